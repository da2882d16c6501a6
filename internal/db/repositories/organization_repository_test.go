package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/org-directory/org-directory/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var orgCols = []string{"id", "name", "description", "created_at", "updated_at"}
var orgCreateCols = []string{"id", "created_at", "updated_at"}

var errDB = errors.New("db error")

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleOrgRow() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).
		AddRow(int64(1), "Acme", "Widgets", time.Now(), time.Now())
}

func emptyOrgRow() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols)
}

func newOrgRepo(t *testing.T) (*OrganizationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewOrganizationRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// GetByID / GetByName
// ---------------------------------------------------------------------------

func TestOrganizationGetByID_Found(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sampleOrgRow())

	org, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org == nil {
		t.Fatal("expected org, got nil")
	}
	if org.Name != "Acme" {
		t.Errorf("Name = %s, want Acme", org.Name)
	}
	if org.Description == nil || *org.Description != "Widgets" {
		t.Errorf("Description = %v, want Widgets", org.Description)
	}
}

func TestOrganizationGetByID_NotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").
		WillReturnRows(emptyOrgRow())

	org, err := repo.GetByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestOrganizationGetByID_DBError(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").
		WillReturnError(errDB)

	if _, err := repo.GetByID(context.Background(), 1); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestOrganizationGetByName_Found(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE name").
		WithArgs("Acme").
		WillReturnRows(sampleOrgRow())

	org, err := repo.GetByName(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org == nil || org.ID != 1 {
		t.Errorf("org = %+v, want ID 1", org)
	}
}

func TestOrganizationGetByName_NotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE name").
		WillReturnRows(emptyOrgRow())

	org, err := repo.GetByName(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org != nil {
		t.Error("expected nil, got non-nil")
	}
}

// ---------------------------------------------------------------------------
// GetWithDepartments
// ---------------------------------------------------------------------------

func TestOrganizationGetWithDepartments(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sampleOrgRow())
	mock.ExpectQuery("SELECT.*FROM departments WHERE organization_id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(deptCols).
			AddRow(int64(10), "Engineering", int64(1), nil).
			AddRow(int64(11), "Platform", int64(1), int64(10)))

	got, err := repo.GetWithDepartments(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected result, got nil")
	}
	if len(got.Departments) != 2 {
		t.Fatalf("len(Departments) = %d, want 2", len(got.Departments))
	}
	if got.Departments[1].ParentID == nil || *got.Departments[1].ParentID != 10 {
		t.Errorf("Platform parent = %v, want 10", got.Departments[1].ParentID)
	}
}

func TestOrganizationGetWithDepartments_NoDepartments(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").
		WillReturnRows(sampleOrgRow())
	mock.ExpectQuery("SELECT.*FROM departments WHERE organization_id").
		WillReturnRows(sqlmock.NewRows(deptCols))

	got, err := repo.GetWithDepartments(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Departments == nil || len(got.Departments) != 0 {
		t.Errorf("Departments = %v, want empty non-nil slice", got.Departments)
	}
}

func TestOrganizationGetWithDepartments_NotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").
		WillReturnRows(emptyOrgRow())

	got, err := repo.GetWithDepartments(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil, got non-nil")
	}
}

// ---------------------------------------------------------------------------
// List / Count
// ---------------------------------------------------------------------------

func TestOrganizationList(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations ORDER BY id ASC LIMIT").
		WithArgs(2, 0).
		WillReturnRows(sqlmock.NewRows(orgCols).
			AddRow(int64(1), "Acme", nil, time.Now(), time.Now()).
			AddRow(int64(2), "Globex", nil, time.Now(), time.Now()))

	orgs, err := repo.List(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orgs) != 2 {
		t.Fatalf("len = %d, want 2", len(orgs))
	}
	if orgs[0].ID != 1 || orgs[1].ID != 2 {
		t.Errorf("order = %d,%d, want 1,2", orgs[0].ID, orgs[1].ID)
	}
}

func TestOrganizationList_Empty(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations").
		WithArgs(100, 500).
		WillReturnRows(emptyOrgRow())

	orgs, err := repo.List(context.Background(), 500, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orgs == nil || len(orgs) != 0 {
		t.Errorf("orgs = %v, want empty non-nil slice", orgs)
	}
}

func TestOrganizationList_Error(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations").WillReturnError(errDB)

	if _, err := repo.List(context.Background(), 0, 10); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestOrganizationCount(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM organizations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("Count = %d, want 7", n)
	}
}

// ---------------------------------------------------------------------------
// Create / Update / Delete
// ---------------------------------------------------------------------------

func TestOrganizationCreate(t *testing.T) {
	repo, mock := newOrgRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("Acme", nil).
		WillReturnRows(sqlmock.NewRows(orgCreateCols).AddRow(int64(5), now, now))

	org := &models.Organization{Name: "Acme"}
	if err := repo.Create(context.Background(), org); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.ID != 5 {
		t.Errorf("ID = %d, want 5", org.ID)
	}
	if org.CreatedAt.IsZero() {
		t.Error("CreatedAt should be populated")
	}
}

func TestOrganizationCreate_DuplicateName(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "organizations_name_key"})

	err := repo.Create(context.Background(), &models.Organization{Name: "Acme"})
	if !errors.Is(err, ErrUniqueViolation) {
		t.Errorf("err = %v, want ErrUniqueViolation", err)
	}
}

func TestOrganizationUpdate(t *testing.T) {
	repo, mock := newOrgRepo(t)
	later := time.Now().Add(time.Minute)
	desc := "New"
	mock.ExpectQuery("UPDATE organizations.*SET name.*GREATEST").
		WithArgs(int64(1), "Acme", &desc).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(later))

	org := &models.Organization{ID: 1, Name: "Acme", Description: &desc}
	if err := repo.Update(context.Background(), org); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !org.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", org.UpdatedAt, later)
	}
}

func TestOrganizationUpdate_Vanished(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("UPDATE organizations").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := repo.Update(context.Background(), &models.Organization{ID: 1, Name: "Acme"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOrganizationDelete(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectExec("DELETE FROM organizations WHERE id").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOrganizationDelete_NotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectExec("DELETE FROM organizations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOrganizationDelete_UsersStillAttached(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectExec("DELETE FROM organizations").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "users_organization_id_fkey"})

	if err := repo.Delete(context.Background(), 1); !errors.Is(err, ErrForeignKeyViolation) {
		t.Errorf("err = %v, want ErrForeignKeyViolation", err)
	}
}
