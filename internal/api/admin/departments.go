package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/org-directory/org-directory/internal/db/models"
	"github.com/org-directory/org-directory/internal/services"
)

// DepartmentService is the subset of services.DepartmentService the handlers use
type DepartmentService interface {
	Get(ctx context.Context, id int64) (*models.Department, error)
	List(ctx context.Context, offset, limit int) ([]*models.Department, error)
	ListByOrganization(ctx context.Context, orgID int64, offset, limit int) ([]*models.Department, error)
	Children(ctx context.Context, id int64) ([]*models.Department, error)
	Subtree(ctx context.Context, id int64) (*models.DepartmentNode, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, in services.CreateDepartmentInput) (*models.Department, error)
	Update(ctx context.Context, existing *models.Department, patch services.DepartmentPatch) (*models.Department, error)
	Delete(ctx context.Context, existing *models.Department) error
}

// UpdateDepartmentRequest is the body of a department update. An explicit
// "parent_id": null makes the department a root.
type UpdateDepartmentRequest struct {
	Name     *string         `json:"name"`
	ParentID Nullable[int64] `json:"parent_id"`
}

func (r UpdateDepartmentRequest) patch() services.DepartmentPatch {
	p := services.DepartmentPatch{Name: r.Name}
	switch {
	case r.ParentID.Present && r.ParentID.Null:
		p.ClearParent = true
	case r.ParentID.Present:
		parentID := r.ParentID.Value
		p.ParentID = &parentID
	}
	return p
}

// DepartmentHandlers handles department endpoints
type DepartmentHandlers struct {
	depts  DepartmentService
	logger *slog.Logger
}

// NewDepartmentHandlers creates a new DepartmentHandlers instance
func NewDepartmentHandlers(depts DepartmentService) *DepartmentHandlers {
	return &DepartmentHandlers{
		depts:  depts,
		logger: slog.Default().With("component", "departments.http"),
	}
}

func (h *DepartmentHandlers) loadDepartment(c *gin.Context) *models.Department {
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	dept, err := h.depts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Department not found")
		return nil
	}
	if dept == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Department not found"})
		return nil
	}
	return dept
}

// ListDepartmentsHandler lists departments across organizations ordered by ID
// GET /departments?skip=0&limit=100
func (h *DepartmentHandlers) ListDepartmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := parsePage(c)
		if !ok {
			return
		}

		depts, err := h.depts.List(c.Request.Context(), p.Skip, p.Limit)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}
		if p.Total, err = h.depts.Count(c.Request.Context()); err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"departments": depts,
			"pagination":  p,
		})
	}
}

// CreateDepartmentHandler creates a department, optionally under a parent
// POST /departments
func (h *DepartmentHandlers) CreateDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateDepartmentInput
		if !bindJSON(c, &req) {
			return
		}

		dept, err := h.depts.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusCreated, dept)
	}
}

// GetDepartmentHandler returns a single department
// GET /departments/:id
func (h *DepartmentHandlers) GetDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if dept := h.loadDepartment(c); dept != nil {
			c.JSON(http.StatusOK, dept)
		}
	}
}

// ListChildrenHandler lists the direct children of a department
// GET /departments/:id/children
func (h *DepartmentHandlers) ListChildrenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dept := h.loadDepartment(c)
		if dept == nil {
			return
		}

		children, err := h.depts.Children(c.Request.Context(), dept.ID)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{"departments": children})
	}
}

// GetSubtreeHandler returns a department with all of its descendants nested
// GET /departments/:id/subtree
func (h *DepartmentHandlers) GetSubtreeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		tree, err := h.depts.Subtree(c.Request.Context(), id)
		if err != nil {
			respondError(c, h.logger, err, "Department not found")
			return
		}
		if tree == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Department not found"})
			return
		}

		c.JSON(http.StatusOK, tree)
	}
}

// UpdateDepartmentHandler renames or moves a department; PUT and PATCH share it
// PUT|PATCH /departments/:id
func (h *DepartmentHandlers) UpdateDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dept := h.loadDepartment(c)
		if dept == nil {
			return
		}

		var req UpdateDepartmentRequest
		if !bindJSON(c, &req) {
			return
		}

		updated, err := h.depts.Update(c.Request.Context(), dept, req.patch())
		if err != nil {
			respondError(c, h.logger, err, "Department not found")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteDepartmentHandler deletes a department; its children become roots
// DELETE /departments/:id
func (h *DepartmentHandlers) DeleteDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dept := h.loadDepartment(c)
		if dept == nil {
			return
		}

		if err := h.depts.Delete(c.Request.Context(), dept); err != nil {
			respondError(c, h.logger, err, "Department not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
