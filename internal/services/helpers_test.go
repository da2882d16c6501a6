package services

import (
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/org-directory/org-directory/internal/crypto"
	"github.com/org-directory/org-directory/internal/db"
	"github.com/org-directory/org-directory/internal/validation"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var (
	orgColumns      = []string{"id", "name", "description", "created_at", "updated_at"}
	deptColumns     = []string{"id", "name", "organization_id", "parent_id"}
	roleColumns     = []string{"id", "name", "description"}
	userRoleColumns = []string{"user_id", "id", "name", "description"}
	userColumns     = []string{
		"id", "email", "full_name", "hashed_password", "is_active",
		"organization_id", "department_id", "created_at", "updated_at",
	}
)

var errDB = errors.New("db error")

func newTestStore(t *testing.T) (*db.Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db.NewStore(sqlx.NewDb(sqlDB, "sqlmock")), mock
}

func orgRow(id int64, name string) *sqlmock.Rows {
	return sqlmock.NewRows(orgColumns).AddRow(id, name, nil, time.Now(), time.Now())
}

func deptRow(id int64, name string, orgID int64, parentID interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(deptColumns).AddRow(id, name, orgID, parentID)
}

func userRow(id int64, email string, orgID int64) *sqlmock.Rows {
	return sqlmock.NewRows(userColumns).
		AddRow(id, email, nil, "hash", true, orgID, nil, time.Now(), time.Now())
}

func strPtr(s string) *string { return &s }
func idPtr(v int64) *int64    { return &v }
func boolPtr(b bool) *bool    { return &b }

// stubHasher makes hashes predictable in assertions
type stubHasher struct {
	err error
}

func (h stubHasher) Hash(password string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + password, nil
}

func (stubHasher) Algorithm() string { return "stub" }

var _ crypto.PasswordHasher = stubHasher{}

func newValidator() *validation.Validator { return validation.New() }

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
