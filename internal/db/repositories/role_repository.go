// role_repository.go implements RoleRepository, providing CRUD over the roles catalogue and
// the per-user role lookup.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/org-directory/org-directory/internal/db/models"
)

const roleColumns = `id, name, description`

// RoleRepository handles database operations for roles
type RoleRepository struct {
	db sqlx.ExtContext
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db sqlx.ExtContext) *RoleRepository {
	return &RoleRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *RoleRepository) WithTx(tx *sqlx.Tx) *RoleRepository {
	return &RoleRepository{db: tx}
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
}

// GetByName retrieves a role by its exact name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
}

func (r *RoleRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Role, error) {
	role := &models.Role{}
	if err := sqlx.GetContext(ctx, r.db, role, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// List returns a page of roles ordered by ID
func (r *RoleRepository) List(ctx context.Context, offset, limit int) ([]*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY id ASC LIMIT $1 OFFSET $2`

	roles := []*models.Role{}
	if err := sqlx.SelectContext(ctx, r.db, &roles, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// ListForUser returns the roles held by one user
func (r *RoleRepository) ListForUser(ctx context.Context, userID int64) ([]*models.Role, error) {
	query := `
		SELECT r.id, r.name, r.description
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id ASC
	`

	roles := []*models.Role{}
	if err := sqlx.SelectContext(ctx, r.db, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	return roles, nil
}

// Count returns the total number of roles
func (r *RoleRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM roles`); err != nil {
		return 0, fmt.Errorf("failed to count roles: %w", err)
	}
	return n, nil
}

// Create inserts a role and sets its generated ID
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	query := `INSERT INTO roles (name, description) VALUES ($1, $2) RETURNING id`

	if err := r.db.QueryRowxContext(ctx, query, role.Name, role.Description).Scan(&role.ID); err != nil {
		return fmt.Errorf("failed to create role: %w", mapPostgresError(err))
	}
	return nil
}

// Update persists the role's name and description
func (r *RoleRepository) Update(ctx context.Context, role *models.Role) error {
	result, err := r.db.ExecContext(ctx, `UPDATE roles SET name = $2, description = $3 WHERE id = $1`,
		role.ID, role.Name, role.Description)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", mapPostgresError(err))
	}
	return requireOneRow(result)
}

// Delete removes a role; assignments to users cascade
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", mapPostgresError(err))
	}
	return requireOneRow(result)
}
