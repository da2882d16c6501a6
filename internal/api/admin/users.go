package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/org-directory/org-directory/internal/db/models"
	"github.com/org-directory/org-directory/internal/services"
)

// UserService is the subset of services.UserService the handlers use
type UserService interface {
	Get(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context, offset, limit int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, in services.CreateUserInput) (*models.User, error)
	Update(ctx context.Context, existing *models.User, patch services.UserPatch) (*models.User, error)
	Delete(ctx context.Context, existing *models.User) error
	AssignRole(ctx context.Context, user *models.User, roleID int64) (*models.User, error)
	RevokeRole(ctx context.Context, user *models.User, roleID int64) (*models.User, error)
}

// UserHandlers handles user endpoints. Responses never carry the password hash;
// models.User excludes it from JSON.
type UserHandlers struct {
	users  UserService
	logger *slog.Logger
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(users UserService) *UserHandlers {
	return &UserHandlers{
		users:  users,
		logger: slog.Default().With("component", "users.http"),
	}
}

func (h *UserHandlers) loadUser(c *gin.Context) *models.User {
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "User not found")
		return nil
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return nil
	}
	return user
}

// ListUsersHandler lists users with their roles
// GET /users?skip=0&limit=100
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := parsePage(c)
		if !ok {
			return
		}

		users, err := h.users.List(c.Request.Context(), p.Skip, p.Limit)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}
		if p.Total, err = h.users.Count(c.Request.Context()); err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users":      users,
			"pagination": p,
		})
	}
}

// CreateUserHandler creates a user
// POST /users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateUserInput
		if !bindJSON(c, &req) {
			return
		}

		user, err := h.users.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

// GetUserHandler returns a single user with roles
// GET /users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := h.loadUser(c); user != nil {
			c.JSON(http.StatusOK, user)
		}
	}
}

// UpdateUserHandler applies a partial update; PUT and PATCH share it
// PUT|PATCH /users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := h.loadUser(c)
		if user == nil {
			return
		}

		var req services.UserPatch
		if !bindJSON(c, &req) {
			return
		}

		updated, err := h.users.Update(c.Request.Context(), user, req)
		if err != nil {
			respondError(c, h.logger, err, "User not found")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteUserHandler deletes a user and its role assignments
// DELETE /users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := h.loadUser(c)
		if user == nil {
			return
		}

		if err := h.users.Delete(c.Request.Context(), user); err != nil {
			respondError(c, h.logger, err, "User not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// AssignRoleHandler grants a role; repeating the call is harmless
// PUT /users/:id/roles/:role_id
func (h *UserHandlers) AssignRoleHandler() gin.HandlerFunc {
	return h.roleChange(func(ctx context.Context, u *models.User, roleID int64) (*models.User, error) {
		return h.users.AssignRole(ctx, u, roleID)
	})
}

// RevokeRoleHandler removes a role; revoking a role not held is harmless
// DELETE /users/:id/roles/:role_id
func (h *UserHandlers) RevokeRoleHandler() gin.HandlerFunc {
	return h.roleChange(func(ctx context.Context, u *models.User, roleID int64) (*models.User, error) {
		return h.users.RevokeRole(ctx, u, roleID)
	})
}

func (h *UserHandlers) roleChange(apply func(context.Context, *models.User, int64) (*models.User, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := h.loadUser(c)
		if user == nil {
			return
		}
		roleID, ok := parseID(c, "role_id")
		if !ok {
			return
		}

		updated, err := apply(c.Request.Context(), user, roleID)
		if err != nil {
			respondError(c, h.logger, err, "User not found")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}
