// department_repository.go implements DepartmentRepository: department CRUD plus the
// recursive hierarchy reads (children, subtree, ancestry checks).
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/org-directory/org-directory/internal/db/models"
)

const departmentColumns = `id, name, organization_id, parent_id`

// DepartmentRepository handles database operations for departments
type DepartmentRepository struct {
	db sqlx.ExtContext
}

// NewDepartmentRepository creates a new department repository
func NewDepartmentRepository(db sqlx.ExtContext) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *DepartmentRepository) WithTx(tx *sqlx.Tx) *DepartmentRepository {
	return &DepartmentRepository{db: tx}
}

// GetByID retrieves a department by ID
func (r *DepartmentRepository) GetByID(ctx context.Context, id int64) (*models.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE id = $1`

	dept := &models.Department{}
	if err := sqlx.GetContext(ctx, r.db, dept, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return dept, nil
}

// List returns a page of departments across all organizations
func (r *DepartmentRepository) List(ctx context.Context, offset, limit int) ([]*models.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments ORDER BY id ASC LIMIT $1 OFFSET $2`
	return r.selectDepartments(ctx, "failed to list departments", query, limit, offset)
}

// ListByOrganization returns a page of the departments owned by one organization
func (r *DepartmentRepository) ListByOrganization(ctx context.Context, orgID int64, offset, limit int) ([]*models.Department, error) {
	query := `
		SELECT ` + departmentColumns + `
		FROM departments
		WHERE organization_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`
	return r.selectDepartments(ctx, "failed to list organization departments", query, orgID, limit, offset)
}

// ListChildren returns the direct children of a department
func (r *DepartmentRepository) ListChildren(ctx context.Context, parentID int64) ([]*models.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE parent_id = $1 ORDER BY id ASC`
	return r.selectDepartments(ctx, "failed to list child departments", query, parentID)
}

// GetSubtree returns the department and all of its descendants, breadth first.
// The root is always the first element; an unknown ID yields an empty slice.
// Each row is visited once even if the parent links form a loop.
func (r *DepartmentRepository) GetSubtree(ctx context.Context, rootID int64) ([]*models.Department, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT ` + departmentColumns + `, 0 AS depth, ARRAY[id] AS path
			FROM departments
			WHERE id = $1
			UNION ALL
			SELECT d.id, d.name, d.organization_id, d.parent_id, s.depth + 1, s.path || d.id
			FROM departments d
			JOIN subtree s ON d.parent_id = s.id
			WHERE NOT d.id = ANY(s.path)
		)
		SELECT ` + departmentColumns + ` FROM subtree ORDER BY depth, id
	`
	return r.selectDepartments(ctx, "failed to get department subtree", query, rootID)
}

// IsDescendant reports whether candidateID lies in the subtree rooted at ancestorID.
// A department counts as its own descendant.
func (r *DepartmentRepository) IsDescendant(ctx context.Context, ancestorID, candidateID int64) (bool, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM departments WHERE id = $1
			UNION
			SELECT d.id FROM departments d JOIN subtree s ON d.parent_id = s.id
		)
		SELECT EXISTS (SELECT 1 FROM subtree WHERE id = $2)
	`

	var found bool
	if err := sqlx.GetContext(ctx, r.db, &found, query, ancestorID, candidateID); err != nil {
		return false, fmt.Errorf("failed to check department ancestry: %w", err)
	}
	return found, nil
}

// LockHierarchy serialises parent changes within one organization until the
// surrounding transaction ends. The row lock does not conflict with the key-share
// locks taken by foreign key checks, so inserts referencing the organization proceed.
func (r *DepartmentRepository) LockHierarchy(ctx context.Context, orgID int64) error {
	query := `SELECT 1 FROM organizations WHERE id = $1 FOR NO KEY UPDATE`
	if _, err := r.db.ExecContext(ctx, query, orgID); err != nil {
		return fmt.Errorf("failed to lock department hierarchy: %w", err)
	}
	return nil
}

// Count returns the total number of departments
func (r *DepartmentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM departments`); err != nil {
		return 0, fmt.Errorf("failed to count departments: %w", err)
	}
	return n, nil
}

// Create inserts a department and sets its generated ID
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.Department) error {
	query := `
		INSERT INTO departments (name, organization_id, parent_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query, dept.Name, dept.OrganizationID, dept.ParentID).Scan(&dept.ID)
	if err != nil {
		return fmt.Errorf("failed to create department: %w", mapPostgresError(err))
	}
	return nil
}

// Update persists the department's name and parent
func (r *DepartmentRepository) Update(ctx context.Context, dept *models.Department) error {
	query := `UPDATE departments SET name = $2, parent_id = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, dept.ID, dept.Name, dept.ParentID)
	if err != nil {
		return fmt.Errorf("failed to update department: %w", mapPostgresError(err))
	}
	return requireOneRow(result)
}

// DetachChildren turns the direct children of a department into roots and returns how many moved
func (r *DepartmentRepository) DetachChildren(ctx context.Context, parentID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE departments SET parent_id = NULL WHERE parent_id = $1`, parentID)
	if err != nil {
		return 0, fmt.Errorf("failed to detach child departments: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// Delete removes a department. Users still assigned to it make the delete fail with
// ErrForeignKeyViolation.
func (r *DepartmentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete department: %w", mapPostgresError(err))
	}
	return requireOneRow(result)
}

func (r *DepartmentRepository) selectDepartments(ctx context.Context, msg, query string, args ...interface{}) ([]*models.Department, error) {
	depts := []*models.Department{}
	if err := sqlx.SelectContext(ctx, r.db, &depts, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return depts, nil
}
