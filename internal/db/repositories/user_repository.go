// Package repositories implements the data access layer (repository pattern) for the directory.
// Each repository type encapsulates all database queries for a domain entity.
// Repositories accept sqlx.ExtContext so the same code runs against the pool or inside a
// transaction opened by db.Store.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/org-directory/org-directory/internal/db/models"
)

const userColumns = `id, email, full_name, hashed_password, is_active, organization_id, department_id, created_at, updated_at`

// UserRepository handles user database operations, including role assignment
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *UserRepository) WithTx(tx *sqlx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

// GetByID retrieves a user by ID with its roles loaded
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by exact email with its roles loaded
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// EmailExists reports whether any user already uses email
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email); err != nil {
		return false, fmt.Errorf("failed to check user email: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	if err := sqlx.GetContext(ctx, r.db, user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := r.attachRoles(ctx, []*models.User{user}); err != nil {
		return nil, err
	}
	return user, nil
}

// List returns a page of users ordered by ID, roles batch-loaded in one extra query
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id ASC LIMIT $1 OFFSET $2`

	users := []*models.User{}
	if err := sqlx.SelectContext(ctx, r.db, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	if err := r.attachRoles(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListByRole returns every user holding the role, ordered by ID, roles loaded
func (r *UserRepository) ListByRole(ctx context.Context, roleID int64) ([]*models.User, error) {
	query := `
		SELECT u.id, u.email, u.full_name, u.hashed_password, u.is_active,
		       u.organization_id, u.department_id, u.created_at, u.updated_at
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE ur.role_id = $1
		ORDER BY u.id ASC
	`

	users := []*models.User{}
	if err := sqlx.SelectContext(ctx, r.db, &users, query, roleID); err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}

	if err := r.attachRoles(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// userRoleRow is one row of the batched role lookup
type userRoleRow struct {
	UserID int64 `db:"user_id"`
	models.Role
}

// attachRoles fills Roles on every user with a single query keyed by pq.Array of user IDs.
// Users without roles get an empty, non-nil slice.
func (r *UserRepository) attachRoles(ctx context.Context, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}

	ids := make([]int64, len(users))
	byID := make(map[int64]*models.User, len(users))
	for i, u := range users {
		ids[i] = u.ID
		u.Roles = []*models.Role{}
		byID[u.ID] = u
	}

	query := `
		SELECT ur.user_id, r.id, r.name, r.description
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ANY($1)
		ORDER BY ur.user_id, r.id
	`

	rows := []userRoleRow{}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load user roles: %w", err)
	}

	for i := range rows {
		if u, ok := byID[rows[i].UserID]; ok {
			role := rows[i].Role
			u.Roles = append(u.Roles, &role)
		}
	}
	return nil
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// Create inserts a user and fills in its generated ID and timestamps
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, full_name, hashed_password, is_active, organization_id, department_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		user.Email,
		user.FullName,
		user.HashedPassword,
		user.IsActive,
		user.OrganizationID,
		user.DepartmentID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	if user.Roles == nil {
		user.Roles = []*models.Role{}
	}
	return nil
}

// Update persists the mutable user fields and refreshes updated_at
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET full_name = $2, is_active = $3, department_id = $4, ` + touchUpdatedAt + `
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query, user.ID, user.FullName, user.IsActive, user.DepartmentID).
		Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update user: %w", mapPostgresError(err))
	}
	return nil
}

// Touch refreshes updated_at without changing any other column
func (r *UserRepository) Touch(ctx context.Context, user *models.User) error {
	query := `UPDATE users SET ` + touchUpdatedAt + ` WHERE id = $1 RETURNING updated_at`

	if err := r.db.QueryRowxContext(ctx, query, user.ID).Scan(&user.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to touch user: %w", err)
	}
	return nil
}

// Delete removes a user; its role assignments cascade
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", mapPostgresError(err))
	}
	return requireOneRow(result)
}

// AssignRole links a user to a role. It reports false when the link already existed.
func (r *UserRepository) AssignRole(ctx context.Context, userID, roleID int64) (bool, error) {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to assign role: %w", mapPostgresError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// RevokeRole removes a user-role link. It reports false when there was nothing to remove.
func (r *UserRepository) RevokeRole(ctx context.Context, userID, roleID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
