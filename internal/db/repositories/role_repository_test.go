package repositories

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/org-directory/org-directory/internal/db/models"
)

var roleCols = []string{"id", "name", "description"}

func sampleRoleRow() *sqlmock.Rows {
	return sqlmock.NewRows(roleCols).AddRow(int64(3), "admin", "Full access")
}

func newRoleRepo(t *testing.T) (*RoleRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRoleRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestRoleGetByID_Found(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("SELECT.*FROM roles WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sampleRoleRow())

	role, err := repo.GetByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role == nil || role.Name != "admin" {
		t.Errorf("role = %+v, want admin", role)
	}
}

func TestRoleGetByName_NotFound(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("SELECT.*FROM roles WHERE name").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(roleCols))

	role, err := repo.GetByName(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestRoleGetByID_Error(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("SELECT.*FROM roles").WillReturnError(errDB)

	if _, err := repo.GetByID(context.Background(), 3); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestRoleList(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("SELECT.*FROM roles ORDER BY id ASC LIMIT").
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows(roleCols).
			AddRow(int64(3), "admin", nil).
			AddRow(int64(4), "viewer", nil))

	roles, err := repo.List(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 2 {
		t.Errorf("len = %d, want 2", len(roles))
	}
}

func TestRoleListForUser(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("SELECT.*FROM roles r JOIN user_roles ur.*WHERE ur.user_id").
		WithArgs(int64(1)).
		WillReturnRows(sampleRoleRow())

	roles, err := repo.ListForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 1 {
		t.Errorf("len = %d, want 1", len(roles))
	}
}

func TestRoleCreate(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("INSERT INTO roles").
		WithArgs("admin", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	role := &models.Role{Name: "admin"}
	if err := repo.Create(context.Background(), role); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role.ID != 3 {
		t.Errorf("ID = %d, want 3", role.ID)
	}
}

func TestRoleCreate_Duplicate(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("INSERT INTO roles").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "roles_name_key"})

	if err := repo.Create(context.Background(), &models.Role{Name: "admin"}); !errors.Is(err, ErrUniqueViolation) {
		t.Errorf("err = %v, want ErrUniqueViolation", err)
	}
}

func TestRoleUpdate(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectExec("UPDATE roles SET name").
		WithArgs(int64(3), "superadmin", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), &models.Role{ID: 3, Name: "superadmin"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRoleDelete_NotFound(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectExec("DELETE FROM roles").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRoleCount(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM roles").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}
