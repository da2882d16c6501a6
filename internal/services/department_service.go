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

// CreateDepartmentInput carries the fields accepted when creating a department
type CreateDepartmentInput struct {
	Name           string `json:"name" validate:"required,notblank,max=200"`
	OrganizationID int64  `json:"organization_id" validate:"required,gt=0"`
	ParentID       *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

// DepartmentPatch lists the department fields to change. ParentID moves the department under
// another parent; ClearParent turns it into a root and takes precedence over ParentID.
type DepartmentPatch struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=200"`
	ParentID    *int64  `json:"parent_id" validate:"omitempty,gt=0"`
	ClearParent bool    `json:"-"`
}

// DepartmentService manages the department hierarchy
type DepartmentService struct {
	store     *db.Store
	orgs      *repositories.OrganizationRepository
	depts     *repositories.DepartmentRepository
	validator *validation.Validator
	logger    *slog.Logger
}

// NewDepartmentService creates a department service backed by store
func NewDepartmentService(store *db.Store, v *validation.Validator) *DepartmentService {
	return &DepartmentService{
		store:     store,
		orgs:      repositories.NewOrganizationRepository(store.DB()),
		depts:     repositories.NewDepartmentRepository(store.DB()),
		validator: v,
		logger:    slog.Default().With("component", "departments.svc"),
	}
}

// Get returns the department with the given ID, or nil
func (s *DepartmentService) Get(ctx context.Context, id int64) (*models.Department, error) {
	return s.depts.GetByID(ctx, id)
}

// List returns a page of departments across organizations
func (s *DepartmentService) List(ctx context.Context, offset, limit int) ([]*models.Department, error) {
	offset, limit = normalizePage(offset, limit)
	return s.depts.List(ctx, offset, limit)
}

// ListByOrganization returns a page of one organization's departments
func (s *DepartmentService) ListByOrganization(ctx context.Context, orgID int64, offset, limit int) ([]*models.Department, error) {
	offset, limit = normalizePage(offset, limit)
	return s.depts.ListByOrganization(ctx, orgID, offset, limit)
}

// Children returns the direct children of a department
func (s *DepartmentService) Children(ctx context.Context, id int64) ([]*models.Department, error) {
	return s.depts.ListChildren(ctx, id)
}

// Subtree returns the department as the root of a tree holding all of its descendants,
// or nil when the department does not exist
func (s *DepartmentService) Subtree(ctx context.Context, id int64) (*models.DepartmentNode, error) {
	depts, err := s.depts.GetSubtree(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(depts) == 0 {
		return nil, nil
	}

	// The requested department is always the root, even if a loop links its parent back in
	root := *depts[0]
	root.ParentID = nil
	roots := models.BuildDepartmentTree(append([]*models.Department{&root}, depts[1:]...))
	for _, node := range roots {
		if node.ID == id {
			node.ParentID = depts[0].ParentID
			return node, nil
		}
	}
	return nil, fmt.Errorf("subtree of department %d has no root", id)
}

// Count returns the number of departments
func (s *DepartmentService) Count(ctx context.Context) (int64, error) {
	return s.depts.Count(ctx)
}

// Create stores a department after checking that its organization exists and that the
// parent, when given, exists in the same organization
func (s *DepartmentService) Create(ctx context.Context, in CreateDepartmentInput) (dept *models.Department, err error) {
	defer func() { recordMutation("department", "create", err) }()

	if err := validateInput(s.validator, in); err != nil {
		return nil, err
	}

	dept = &models.Department{
		Name:           strings.TrimSpace(in.Name),
		OrganizationID: in.OrganizationID,
		ParentID:       in.ParentID,
	}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		org, err := s.orgs.WithTx(tx).GetByID(ctx, in.OrganizationID)
		if err != nil {
			return err
		}
		if org == nil {
			return fmt.Errorf("%w: organization %d does not exist", ErrReferentialViolation, in.OrganizationID)
		}

		repo := s.depts.WithTx(tx)
		if in.ParentID != nil {
			if err := checkParent(ctx, repo, *in.ParentID, in.OrganizationID); err != nil {
				return err
			}
		}

		return translateStoreError(repo.Create(ctx, dept))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("department created",
		"department_id", dept.ID, "organization_id", dept.OrganizationID, "parent_id", dept.ParentID)
	return dept, nil
}

// Update applies patch to existing. Moving a department under itself or one of its
// descendants is rejected with a ValidationError.
func (s *DepartmentService) Update(ctx context.Context, existing *models.Department, patch DepartmentPatch) (updated *models.Department, err error) {
	defer func() { recordMutation("department", "update", err) }()

	if err := validateInput(s.validator, patch); err != nil {
		return nil, err
	}

	next := *existing
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	switch {
	case patch.ClearParent:
		next.ParentID = nil
	case patch.ParentID != nil:
		if *patch.ParentID == existing.ID {
			return nil, newValidationError("parent_id", "a department cannot be its own parent")
		}
		parentID := *patch.ParentID
		next.ParentID = &parentID
	}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.depts.WithTx(tx)

		if !patch.ClearParent && patch.ParentID != nil {
			// Concurrent moves could each pass the ancestry check and close a loop
			if err := repo.LockHierarchy(ctx, existing.OrganizationID); err != nil {
				return err
			}
			if err := checkParent(ctx, repo, *patch.ParentID, existing.OrganizationID); err != nil {
				return err
			}
			cycle, err := repo.IsDescendant(ctx, existing.ID, *patch.ParentID)
			if err != nil {
				return err
			}
			if cycle {
				return newValidationError("parent_id",
					fmt.Sprintf("department %d is a descendant of department %d", *patch.ParentID, existing.ID))
			}
		}

		return translateStoreError(repo.Update(ctx, &next))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("department updated", "department_id", next.ID, "parent_id", next.ParentID)
	return &next, nil
}

// Delete removes a department. Its direct children become roots; users still assigned to
// the department block the delete with ErrReferentialViolation.
func (s *DepartmentService) Delete(ctx context.Context, existing *models.Department) (err error) {
	defer func() { recordMutation("department", "delete", err) }()

	var detached int64
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.depts.WithTx(tx)

		n, err := repo.DetachChildren(ctx, existing.ID)
		if err != nil {
			return err
		}
		detached = n

		return translateStoreError(repo.Delete(ctx, existing.ID))
	})
	if errors.Is(err, ErrReferentialViolation) {
		return fmt.Errorf("%w: department %d still has users", ErrReferentialViolation, existing.ID)
	}
	if err != nil {
		return err
	}

	s.logger.Info("department deleted", "department_id", existing.ID, "detached_children", detached)
	return nil
}

// checkParent verifies that parentID names a department of organization orgID
func checkParent(ctx context.Context, repo *repositories.DepartmentRepository, parentID, orgID int64) error {
	parent, err := repo.GetByID(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("%w: parent department %d does not exist", ErrReferentialViolation, parentID)
	}
	if parent.OrganizationID != orgID {
		return fmt.Errorf("%w: parent department %d belongs to organization %d, not %d",
			ErrReferentialViolation, parentID, parent.OrganizationID, orgID)
	}
	return nil
}
