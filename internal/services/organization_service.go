package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/org-directory/org-directory/internal/db"
	"github.com/org-directory/org-directory/internal/db/models"
	"github.com/org-directory/org-directory/internal/db/repositories"
	"github.com/org-directory/org-directory/internal/validation"
)

// CreateOrganizationInput carries the fields accepted when creating an organization
type CreateOrganizationInput struct {
	Name        string  `json:"name" validate:"required,notblank,max=200"`
	Description *string `json:"description"`
}

// OrganizationPatch lists the organization fields to change; nil fields are left untouched
type OrganizationPatch struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description"`
}

// OrganizationService manages organizations
type OrganizationService struct {
	store     *db.Store
	orgs      *repositories.OrganizationRepository
	validator *validation.Validator
	logger    *slog.Logger
}

// NewOrganizationService creates an organization service backed by store
func NewOrganizationService(store *db.Store, v *validation.Validator) *OrganizationService {
	return &OrganizationService{
		store:     store,
		orgs:      repositories.NewOrganizationRepository(store.DB()),
		validator: v,
		logger:    slog.Default().With("component", "organizations.svc"),
	}
}

// Get returns the organization with the given ID, or nil when it does not exist
func (s *OrganizationService) Get(ctx context.Context, id int64) (*models.Organization, error) {
	return s.orgs.GetByID(ctx, id)
}

// GetWithRelations returns the organization with its departments nested
func (s *OrganizationService) GetWithRelations(ctx context.Context, id int64) (*models.OrganizationWithDepartments, error) {
	return s.orgs.GetWithDepartments(ctx, id)
}

// FindByName returns the organization with exactly this name, or nil
func (s *OrganizationService) FindByName(ctx context.Context, name string) (*models.Organization, error) {
	return s.orgs.GetByName(ctx, name)
}

// List returns a page of organizations ordered by ID
func (s *OrganizationService) List(ctx context.Context, offset, limit int) ([]*models.Organization, error) {
	offset, limit = normalizePage(offset, limit)
	return s.orgs.List(ctx, offset, limit)
}

// Count returns the number of organizations
func (s *OrganizationService) Count(ctx context.Context) (int64, error) {
	return s.orgs.Count(ctx)
}

// Create validates the input, rejects duplicate names and stores a new organization
func (s *OrganizationService) Create(ctx context.Context, in CreateOrganizationInput) (org *models.Organization, err error) {
	defer func() { recordMutation("organization", "create", err) }()

	if err := validateInput(s.validator, in); err != nil {
		return nil, err
	}

	org = &models.Organization{Name: strings.TrimSpace(in.Name), Description: in.Description}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.orgs.WithTx(tx)

		existing, err := repo.GetByName(ctx, org.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("organization %q %w", org.Name, ErrConflict)
		}

		return translateStoreError(repo.Create(ctx, org))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("organization created", "organization_id", org.ID, "name", org.Name)
	return org, nil
}

// Update applies patch to existing and returns the stored result. updated_at is refreshed
// even when the patch changes nothing.
func (s *OrganizationService) Update(ctx context.Context, existing *models.Organization, patch OrganizationPatch) (updated *models.Organization, err error) {
	defer func() { recordMutation("organization", "update", err) }()

	if err := validateInput(s.validator, patch); err != nil {
		return nil, err
	}

	next := *existing
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		next.Description = patch.Description
	}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.orgs.WithTx(tx)

		if next.Name != existing.Name {
			other, err := repo.GetByName(ctx, next.Name)
			if err != nil {
				return err
			}
			if other != nil && other.ID != existing.ID {
				return fmt.Errorf("organization %q %w", next.Name, ErrConflict)
			}
		}

		return translateStoreError(repo.Update(ctx, &next))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("organization updated", "organization_id", next.ID)
	return &next, nil
}

// Delete removes the organization and, through the schema, all of its departments.
// It fails with ErrReferentialViolation while users still belong to the organization.
func (s *OrganizationService) Delete(ctx context.Context, existing *models.Organization) (err error) {
	defer func() { recordMutation("organization", "delete", err) }()

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return translateStoreError(s.orgs.WithTx(tx).Delete(ctx, existing.ID))
	})
	if errors.Is(err, ErrReferentialViolation) {
		return fmt.Errorf("%w: organization %d still has users", ErrReferentialViolation, existing.ID)
	}
	if err != nil {
		return err
	}

	s.logger.Info("organization deleted", "organization_id", existing.ID)
	return nil
}
