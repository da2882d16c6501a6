package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/org-directory/org-directory/internal/db/models"
	"github.com/org-directory/org-directory/internal/services"
)

// RoleService is the subset of services.RoleService the handlers use
type RoleService interface {
	Get(ctx context.Context, id int64) (*models.Role, error)
	List(ctx context.Context, offset, limit int) ([]*models.Role, error)
	Users(ctx context.Context, roleID int64) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, in services.CreateRoleInput) (*models.Role, error)
	Update(ctx context.Context, existing *models.Role, patch services.RolePatch) (*models.Role, error)
	Delete(ctx context.Context, existing *models.Role) error
}

// RoleHandlers handles role endpoints
type RoleHandlers struct {
	roles  RoleService
	logger *slog.Logger
}

// NewRoleHandlers creates a new RoleHandlers instance
func NewRoleHandlers(roles RoleService) *RoleHandlers {
	return &RoleHandlers{
		roles:  roles,
		logger: slog.Default().With("component", "roles.http"),
	}
}

func (h *RoleHandlers) loadRole(c *gin.Context) *models.Role {
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	role, err := h.roles.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Role not found")
		return nil
	}
	if role == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
		return nil
	}
	return role
}

// ListRolesHandler lists roles ordered by ID
// GET /roles?skip=0&limit=100
func (h *RoleHandlers) ListRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := parsePage(c)
		if !ok {
			return
		}

		roles, err := h.roles.List(c.Request.Context(), p.Skip, p.Limit)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}
		if p.Total, err = h.roles.Count(c.Request.Context()); err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"roles":      roles,
			"pagination": p,
		})
	}
}

// CreateRoleHandler creates a role
// POST /roles
func (h *RoleHandlers) CreateRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateRoleInput
		if !bindJSON(c, &req) {
			return
		}

		role, err := h.roles.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusCreated, role)
	}
}

// GetRoleHandler returns a single role
// GET /roles/:id
func (h *RoleHandlers) GetRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role := h.loadRole(c); role != nil {
			c.JSON(http.StatusOK, role)
		}
	}
}

// ListRoleUsersHandler lists the users holding a role
// GET /roles/:id/users
func (h *RoleHandlers) ListRoleUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := h.loadRole(c)
		if role == nil {
			return
		}

		users, err := h.roles.Users(c.Request.Context(), role.ID)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}

// UpdateRoleHandler applies a partial update; PUT and PATCH share it
// PUT|PATCH /roles/:id
func (h *RoleHandlers) UpdateRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := h.loadRole(c)
		if role == nil {
			return
		}

		var req services.RolePatch
		if !bindJSON(c, &req) {
			return
		}

		updated, err := h.roles.Update(c.Request.Context(), role, req)
		if err != nil {
			respondError(c, h.logger, err, "Role not found")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteRoleHandler deletes a role; holders simply lose it
// DELETE /roles/:id
func (h *RoleHandlers) DeleteRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := h.loadRole(c)
		if role == nil {
			return
		}

		if err := h.roles.Delete(c.Request.Context(), role); err != nil {
			respondError(c, h.logger, err, "Role not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
