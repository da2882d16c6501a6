package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/org-directory/org-directory/internal/db/models"
	"github.com/org-directory/org-directory/internal/services"
)

// OrganizationService is the subset of services.OrganizationService the handlers use
type OrganizationService interface {
	Get(ctx context.Context, id int64) (*models.Organization, error)
	GetWithRelations(ctx context.Context, id int64) (*models.OrganizationWithDepartments, error)
	List(ctx context.Context, offset, limit int) ([]*models.Organization, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, in services.CreateOrganizationInput) (*models.Organization, error)
	Update(ctx context.Context, existing *models.Organization, patch services.OrganizationPatch) (*models.Organization, error)
	Delete(ctx context.Context, existing *models.Organization) error
}

// OrganizationHandlers handles organization endpoints
type OrganizationHandlers struct {
	orgs   OrganizationService
	depts  DepartmentService
	logger *slog.Logger
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance
func NewOrganizationHandlers(orgs OrganizationService, depts DepartmentService) *OrganizationHandlers {
	return &OrganizationHandlers{
		orgs:   orgs,
		depts:  depts,
		logger: slog.Default().With("component", "organizations.http"),
	}
}

// loadOrganization resolves :id, writing 400/404/500 and returning nil on failure
func (h *OrganizationHandlers) loadOrganization(c *gin.Context) *models.Organization {
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	org, err := h.orgs.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Organization not found")
		return nil
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return nil
	}
	return org
}

// ListOrganizationsHandler lists organizations ordered by ID
// GET /organizations?skip=0&limit=100
func (h *OrganizationHandlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := parsePage(c)
		if !ok {
			return
		}

		orgs, err := h.orgs.List(c.Request.Context(), p.Skip, p.Limit)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}
		if p.Total, err = h.orgs.Count(c.Request.Context()); err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"organizations": orgs,
			"pagination":    p,
		})
	}
}

// CreateOrganizationHandler creates an organization
// POST /organizations
func (h *OrganizationHandlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateOrganizationInput
		if !bindJSON(c, &req) {
			return
		}

		org, err := h.orgs.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusCreated, org)
	}
}

// GetOrganizationHandler returns a single organization
// GET /organizations/:id
func (h *OrganizationHandlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if org := h.loadOrganization(c); org != nil {
			c.JSON(http.StatusOK, org)
		}
	}
}

// GetOrganizationDetailHandler returns an organization with its departments nested
// GET /organizations/:id/detail
func (h *OrganizationHandlers) GetOrganizationDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		org, err := h.orgs.GetWithRelations(c.Request.Context(), id)
		if err != nil {
			respondError(c, h.logger, err, "Organization not found")
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
			return
		}

		c.JSON(http.StatusOK, org)
	}
}

// ListOrganizationDepartmentsHandler lists the departments of one organization
// GET /organizations/:id/departments?skip=0&limit=100
func (h *OrganizationHandlers) ListOrganizationDepartmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := h.loadOrganization(c)
		if org == nil {
			return
		}
		p, ok := parsePage(c)
		if !ok {
			return
		}

		depts, err := h.depts.ListByOrganization(c.Request.Context(), org.ID, p.Skip, p.Limit)
		if err != nil {
			respondError(c, h.logger, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{"departments": depts})
	}
}

// UpdateOrganizationHandler applies a partial update; PUT and PATCH share it
// PUT|PATCH /organizations/:id
func (h *OrganizationHandlers) UpdateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := h.loadOrganization(c)
		if org == nil {
			return
		}

		var req services.OrganizationPatch
		if !bindJSON(c, &req) {
			return
		}

		updated, err := h.orgs.Update(c.Request.Context(), org, req)
		if err != nil {
			respondError(c, h.logger, err, "Organization not found")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteOrganizationHandler deletes an organization and its departments
// DELETE /organizations/:id
func (h *OrganizationHandlers) DeleteOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := h.loadOrganization(c)
		if org == nil {
			return
		}

		if err := h.orgs.Delete(c.Request.Context(), org); err != nil {
			respondError(c, h.logger, err, "Organization not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
