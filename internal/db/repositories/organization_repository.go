// organization_repository.go implements OrganizationRepository, providing database queries
// for organization CRUD and the organization-with-departments read.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/org-directory/org-directory/internal/db/models"
)

const organizationColumns = `id, name, description, created_at, updated_at`

// touchUpdatedAt keeps updated_at strictly increasing even when two writes land in the same
// clock tick.
const touchUpdatedAt = `updated_at = GREATEST(clock_timestamp(), updated_at + INTERVAL '1 microsecond')`

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db sqlx.ExtContext
}

// NewOrganizationRepository creates a new organization repository. db may be a pool or a transaction.
func NewOrganizationRepository(db sqlx.ExtContext) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *OrganizationRepository) WithTx(tx *sqlx.Tx) *OrganizationRepository {
	return &OrganizationRepository{db: tx}
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`

	org := &models.Organization{}
	if err := sqlx.GetContext(ctx, r.db, org, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetByName retrieves an organization by its exact name
func (r *OrganizationRepository) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE name = $1`

	org := &models.Organization{}
	if err := sqlx.GetContext(ctx, r.db, org, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization by name: %w", err)
	}
	return org, nil
}

// GetWithDepartments retrieves an organization together with every department it owns
func (r *OrganizationRepository) GetWithDepartments(ctx context.Context, id int64) (*models.OrganizationWithDepartments, error) {
	org, err := r.GetByID(ctx, id)
	if err != nil || org == nil {
		return nil, err
	}

	depts := []*models.Department{}
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE organization_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, r.db, &depts, query, id); err != nil {
		return nil, fmt.Errorf("failed to list organization departments: %w", err)
	}

	return &models.OrganizationWithDepartments{Organization: *org, Departments: depts}, nil
}

// List returns a page of organizations ordered by ID
func (r *OrganizationRepository) List(ctx context.Context, offset, limit int) ([]*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY id ASC LIMIT $1 OFFSET $2`

	orgs := []*models.Organization{}
	if err := sqlx.SelectContext(ctx, r.db, &orgs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

// Count returns the total number of organizations
func (r *OrganizationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM organizations`); err != nil {
		return 0, fmt.Errorf("failed to count organizations: %w", err)
	}
	return n, nil
}

// Create inserts a new organization and fills in its generated ID and timestamps
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query, org.Name, org.Description).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}
	return nil
}

// Update persists name and description and refreshes updated_at
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, description = $3, ` + touchUpdatedAt + `
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query, org.ID, org.Name, org.Description).Scan(&org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}
	return nil
}

// Delete removes an organization. Departments cascade; users still referencing it make
// the delete fail with ErrForeignKeyViolation.
func (r *OrganizationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}
	return requireOneRow(result)
}

// requireOneRow converts a zero rows-affected result into ErrNotFound
func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
