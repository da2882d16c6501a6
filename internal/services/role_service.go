package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/org-directory/org-directory/internal/db"
	"github.com/org-directory/org-directory/internal/db/models"
	"github.com/org-directory/org-directory/internal/db/repositories"
	"github.com/org-directory/org-directory/internal/validation"
)

// CreateRoleInput carries the fields accepted when creating a role
type CreateRoleInput struct {
	Name        string  `json:"name" validate:"required,notblank,max=100"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

// RolePatch lists the role fields to change; nil fields are left untouched
type RolePatch struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

// RoleService manages the role catalogue
type RoleService struct {
	store     *db.Store
	roles     *repositories.RoleRepository
	users     *repositories.UserRepository
	validator *validation.Validator
	logger    *slog.Logger
}

// NewRoleService creates a role service backed by store
func NewRoleService(store *db.Store, v *validation.Validator) *RoleService {
	return &RoleService{
		store:     store,
		roles:     repositories.NewRoleRepository(store.DB()),
		users:     repositories.NewUserRepository(store.DB()),
		validator: v,
		logger:    slog.Default().With("component", "roles.svc"),
	}
}

// Get returns the role with the given ID, or nil
func (s *RoleService) Get(ctx context.Context, id int64) (*models.Role, error) {
	return s.roles.GetByID(ctx, id)
}

// GetByName returns the role with exactly this name, or nil
func (s *RoleService) GetByName(ctx context.Context, name string) (*models.Role, error) {
	return s.roles.GetByName(ctx, name)
}

// List returns a page of roles ordered by ID
func (s *RoleService) List(ctx context.Context, offset, limit int) ([]*models.Role, error) {
	offset, limit = normalizePage(offset, limit)
	return s.roles.List(ctx, offset, limit)
}

// Users returns every user holding the role
func (s *RoleService) Users(ctx context.Context, roleID int64) ([]*models.User, error) {
	return s.users.ListByRole(ctx, roleID)
}

// Count returns the number of roles
func (s *RoleService) Count(ctx context.Context) (int64, error) {
	return s.roles.Count(ctx)
}

// Create validates the input, rejects duplicate names and stores a new role
func (s *RoleService) Create(ctx context.Context, in CreateRoleInput) (role *models.Role, err error) {
	defer func() { recordMutation("role", "create", err) }()

	if err := validateInput(s.validator, in); err != nil {
		return nil, err
	}

	role = &models.Role{Name: strings.TrimSpace(in.Name), Description: in.Description}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.roles.WithTx(tx)

		existing, err := repo.GetByName(ctx, role.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("role %q %w", role.Name, ErrConflict)
		}

		return translateStoreError(repo.Create(ctx, role))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role created", "role_id", role.ID, "name", role.Name)
	return role, nil
}

// Update applies patch to existing; renaming onto another role's name is a conflict
func (s *RoleService) Update(ctx context.Context, existing *models.Role, patch RolePatch) (updated *models.Role, err error) {
	defer func() { recordMutation("role", "update", err) }()

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
		repo := s.roles.WithTx(tx)

		if next.Name != existing.Name {
			other, err := repo.GetByName(ctx, next.Name)
			if err != nil {
				return err
			}
			if other != nil && other.ID != existing.ID {
				return fmt.Errorf("role %q %w", next.Name, ErrConflict)
			}
		}

		return translateStoreError(repo.Update(ctx, &next))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role updated", "role_id", next.ID)
	return &next, nil
}

// Delete removes the role and every assignment of it; users are untouched
func (s *RoleService) Delete(ctx context.Context, existing *models.Role) (err error) {
	defer func() { recordMutation("role", "delete", err) }()

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return translateStoreError(s.roles.WithTx(tx).Delete(ctx, existing.ID))
	})
	if err != nil {
		return err
	}

	s.logger.Info("role deleted", "role_id", existing.ID)
	return nil
}
