package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/org-directory/org-directory/internal/crypto"
	"github.com/org-directory/org-directory/internal/db"
	"github.com/org-directory/org-directory/internal/db/models"
	"github.com/org-directory/org-directory/internal/db/repositories"
	"github.com/org-directory/org-directory/internal/validation"
)

// CreateUserInput carries the fields accepted when creating a user. Password is hashed
// before storage and never returned.
type CreateUserInput struct {
	Email          string  `json:"email" validate:"required,email,max=255"`
	FullName       *string `json:"full_name" validate:"omitempty,max=255"`
	Password       string  `json:"password" validate:"required,min=6,max=100"`
	IsActive       *bool   `json:"is_active"`
	OrganizationID int64   `json:"organization_id" validate:"required,gt=0"`
	DepartmentID   *int64  `json:"department_id" validate:"omitempty,gt=0"`
}

// UserPatch lists the user fields to change; nil fields are left untouched
type UserPatch struct {
	FullName     *string `json:"full_name" validate:"omitempty,max=255"`
	IsActive     *bool   `json:"is_active"`
	DepartmentID *int64  `json:"department_id" validate:"omitempty,gt=0"`
}

// UserService manages users and their role assignments
type UserService struct {
	store     *db.Store
	orgs      *repositories.OrganizationRepository
	depts     *repositories.DepartmentRepository
	users     *repositories.UserRepository
	roles     *repositories.RoleRepository
	hasher    crypto.PasswordHasher
	validator *validation.Validator
	logger    *slog.Logger
}

// NewUserService creates a user service backed by store, hashing passwords with hasher
func NewUserService(store *db.Store, hasher crypto.PasswordHasher, v *validation.Validator) *UserService {
	return &UserService{
		store:     store,
		orgs:      repositories.NewOrganizationRepository(store.DB()),
		depts:     repositories.NewDepartmentRepository(store.DB()),
		users:     repositories.NewUserRepository(store.DB()),
		roles:     repositories.NewRoleRepository(store.DB()),
		hasher:    hasher,
		validator: v,
		logger:    slog.Default().With("component", "users.svc"),
	}
}

// Get returns the user with its roles, or nil
func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// GetByEmail returns the user with exactly this email, or nil
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetByEmail(ctx, email)
}

// List returns a page of users with roles populated
func (s *UserService) List(ctx context.Context, offset, limit int) ([]*models.User, error) {
	offset, limit = normalizePage(offset, limit)
	return s.users.List(ctx, offset, limit)
}

// Count returns the number of users
func (s *UserService) Count(ctx context.Context) (int64, error) {
	return s.users.Count(ctx)
}

// Create validates the input, hashes the password and stores the user. The organization must
// exist; a department, when given, must exist and belong to that organization.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (user *models.User, err error) {
	defer func() { recordMutation("user", "create", err) }()

	if err := validateInput(s.validator, in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, crypto.ErrPasswordTooLong) {
		return nil, newValidationError("password", "is too long for the configured hashing algorithm")
	}
	if err != nil {
		return nil, err
	}

	user = &models.User{
		Email:          in.Email,
		FullName:       in.FullName,
		HashedPassword: hash,
		IsActive:       true,
		OrganizationID: in.OrganizationID,
		DepartmentID:   in.DepartmentID,
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		users := s.users.WithTx(tx)

		taken, err := users.EmailExists(ctx, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("user with email %q %w", user.Email, ErrConflict)
		}

		org, err := s.orgs.WithTx(tx).GetByID(ctx, user.OrganizationID)
		if err != nil {
			return err
		}
		if org == nil {
			return fmt.Errorf("%w: organization %d does not exist", ErrReferentialViolation, user.OrganizationID)
		}

		if user.DepartmentID != nil {
			if err := s.checkDepartment(ctx, tx, *user.DepartmentID, user.OrganizationID); err != nil {
				return err
			}
		}

		return translateStoreError(users.Create(ctx, user))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "organization_id", user.OrganizationID)
	return user, nil
}

// Update applies patch to existing and returns the stored result with roles preserved
func (s *UserService) Update(ctx context.Context, existing *models.User, patch UserPatch) (updated *models.User, err error) {
	defer func() { recordMutation("user", "update", err) }()

	if err := validateInput(s.validator, patch); err != nil {
		return nil, err
	}

	next := *existing
	if patch.FullName != nil {
		next.FullName = patch.FullName
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	if patch.DepartmentID != nil {
		deptID := *patch.DepartmentID
		next.DepartmentID = &deptID
	}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if patch.DepartmentID != nil {
			if err := s.checkDepartment(ctx, tx, *patch.DepartmentID, existing.OrganizationID); err != nil {
				return err
			}
		}
		return translateStoreError(s.users.WithTx(tx).Update(ctx, &next))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", "user_id", next.ID)
	return &next, nil
}

// Delete removes the user together with its role assignments; the roles themselves remain
func (s *UserService) Delete(ctx context.Context, existing *models.User) (err error) {
	defer func() { recordMutation("user", "delete", err) }()

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return translateStoreError(s.users.WithTx(tx).Delete(ctx, existing.ID))
	})
	if err != nil {
		return err
	}

	s.logger.Info("user deleted", "user_id", existing.ID)
	return nil
}

// AssignRole grants roleID to user. Granting a role the user already holds is a no-op apart
// from refreshing updated_at. An unknown role yields ErrReferentialViolation.
func (s *UserService) AssignRole(ctx context.Context, user *models.User, roleID int64) (updated *models.User, err error) {
	defer func() { recordMutation("user", "assign_role", err) }()

	next := *user
	var inserted bool
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		roles := s.roles.WithTx(tx)

		role, err := roles.GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		if role == nil {
			return fmt.Errorf("%w: role %d does not exist", ErrReferentialViolation, roleID)
		}

		users := s.users.WithTx(tx)
		if inserted, err = users.AssignRole(ctx, user.ID, roleID); err != nil {
			return translateStoreError(err)
		}
		if err := users.Touch(ctx, &next); err != nil {
			return translateStoreError(err)
		}

		next.Roles, err = roles.ListForUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role assigned", "user_id", user.ID, "role_id", roleID, "changed", inserted)
	return &next, nil
}

// RevokeRole removes roleID from user. Revoking a role the user does not hold is a no-op
// apart from refreshing updated_at.
func (s *UserService) RevokeRole(ctx context.Context, user *models.User, roleID int64) (updated *models.User, err error) {
	defer func() { recordMutation("user", "revoke_role", err) }()

	next := *user
	var removed bool
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		users := s.users.WithTx(tx)

		var err error
		if removed, err = users.RevokeRole(ctx, user.ID, roleID); err != nil {
			return err
		}
		if err := users.Touch(ctx, &next); err != nil {
			return translateStoreError(err)
		}

		next.Roles, err = s.roles.WithTx(tx).ListForUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role revoked", "user_id", user.ID, "role_id", roleID, "changed", removed)
	return &next, nil
}

// checkDepartment verifies that deptID names a department of organization orgID
func (s *UserService) checkDepartment(ctx context.Context, tx *sqlx.Tx, deptID, orgID int64) error {
	dept, err := s.depts.WithTx(tx).GetByID(ctx, deptID)
	if err != nil {
		return err
	}
	if dept == nil {
		return fmt.Errorf("%w: department %d does not exist", ErrReferentialViolation, deptID)
	}
	if dept.OrganizationID != orgID {
		return fmt.Errorf("%w: department %d belongs to organization %d, not %d",
			ErrReferentialViolation, deptID, dept.OrganizationID, orgID)
	}
	return nil
}
