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

var userCols = []string{
	"id", "email", "full_name", "hashed_password", "is_active",
	"organization_id", "department_id", "created_at", "updated_at",
}
var userRoleCols = []string{"user_id", "id", "name", "description"}

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(int64(1), "ann@acme.test", "Ann", "$argon2id$...", true, int64(1), nil, time.Now(), time.Now())
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestUserGetByID_WithRoles(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sampleUserRow())
	mock.ExpectQuery("SELECT.*FROM user_roles ur JOIN roles r").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userRoleCols).
			AddRow(int64(1), int64(3), "admin", nil).
			AddRow(int64(1), int64(4), "auditor", "read only"))

	user, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if len(user.Roles) != 2 {
		t.Fatalf("len(Roles) = %d, want 2", len(user.Roles))
	}
	if !user.HasRole("auditor") {
		t.Error("expected auditor role")
	}
	if user.Roles[1].Description == nil || *user.Roles[1].Description != "read only" {
		t.Errorf("auditor description = %v", user.Roles[1].Description)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Error("expected nil, got non-nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("role lookup should be skipped: %v", err)
	}
}

func TestUserGetByEmail_NoRoles(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE email").
		WithArgs("ann@acme.test").
		WillReturnRows(sampleUserRow())
	mock.ExpectQuery("SELECT.*FROM user_roles").
		WillReturnRows(sqlmock.NewRows(userRoleCols))

	user, err := repo.GetByEmail(context.Background(), "ann@acme.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Roles == nil || len(user.Roles) != 0 {
		t.Errorf("Roles = %v, want empty non-nil slice", user.Roles)
	}
}

func TestUserEmailExists(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT EXISTS.*FROM users WHERE email").
		WithArgs("ann@acme.test").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(context.Background(), "ann@acme.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected email to exist")
	}
}

func TestUserGetByID_RoleLoadError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").WillReturnRows(sampleUserRow())
	mock.ExpectQuery("SELECT.*FROM user_roles").WillReturnError(errDB)

	if _, err := repo.GetByID(context.Background(), 1); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestUserList_BatchesRoles(t *testing.T) {
	repo, mock := newUserRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT.*FROM users ORDER BY id ASC LIMIT").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(1), "a@x.test", nil, "h", true, int64(1), nil, now, now).
			AddRow(int64(2), "b@x.test", nil, "h", false, int64(1), int64(5), now, now))
	mock.ExpectQuery("SELECT.*FROM user_roles.*ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userRoleCols).
			AddRow(int64(2), int64(3), "admin", nil))

	users, err := repo.List(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len = %d, want 2", len(users))
	}
	if len(users[0].Roles) != 0 {
		t.Errorf("user 1 roles = %v, want none", users[0].RoleNames())
	}
	if !users[1].HasRole("admin") {
		t.Error("user 2 should hold admin")
	}
	if users[1].IsActive {
		t.Error("user 2 should be inactive")
	}
}

func TestUserList_EmptySkipsRoleQuery(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users").WillReturnRows(sqlmock.NewRows(userCols))

	users, err := repo.List(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("len = %d, want 0", len(users))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUserListByRole(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users u JOIN user_roles ur.*WHERE ur.role_id").
		WithArgs(int64(3)).
		WillReturnRows(sampleUserRow())
	mock.ExpectQuery("SELECT.*FROM user_roles").
		WillReturnRows(sqlmock.NewRows(userRoleCols).AddRow(int64(1), int64(3), "admin", nil))

	users, err := repo.ListByRole(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 || !users[0].HasRole("admin") {
		t.Errorf("users = %+v", users)
	}
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

func TestUserCreate(t *testing.T) {
	repo, mock := newUserRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("ann@acme.test", nil, "hash", true, int64(1), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	user := &models.User{Email: "ann@acme.test", HashedPassword: "hash", IsActive: true, OrganizationID: 1}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 7 {
		t.Errorf("ID = %d, want 7", user.ID)
	}
	if user.Roles == nil {
		t.Error("Roles should be initialised to an empty slice")
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := repo.Create(context.Background(), &models.User{Email: "ann@acme.test"})
	if !errors.Is(err, ErrUniqueViolation) {
		t.Errorf("err = %v, want ErrUniqueViolation", err)
	}
}

func TestUserUpdate(t *testing.T) {
	repo, mock := newUserRepo(t)
	later := time.Now().Add(time.Second)
	mock.ExpectQuery("UPDATE users.*SET full_name").
		WithArgs(int64(1), nil, false, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(later))

	user := &models.User{ID: 1, IsActive: false, DepartmentID: int64Ptr(5)}
	if err := repo.Update(context.Background(), user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !user.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", user.UpdatedAt, later)
	}
}

func TestUserTouch_Vanished(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("UPDATE users SET updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	if err := repo.Touch(context.Background(), &models.User{ID: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUserDelete(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("DELETE FROM users WHERE id").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Role assignment
// ---------------------------------------------------------------------------

func TestUserAssignRole(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO user_roles.*ON CONFLICT").
		WithArgs(int64(1), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.AssignRole(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Error("expected a new link")
	}
}

func TestUserAssignRole_AlreadyHeld(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO user_roles").WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.AssignRole(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Error("expected no new link")
	}
}

func TestUserAssignRole_UnknownRole(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO user_roles").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "user_roles_role_id_fkey"})

	if _, err := repo.AssignRole(context.Background(), 1, 99); !errors.Is(err, ErrForeignKeyViolation) {
		t.Errorf("err = %v, want ErrForeignKeyViolation", err)
	}
}

func TestUserRevokeRole(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("DELETE FROM user_roles WHERE user_id").
		WithArgs(int64(1), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.RevokeRole(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed {
		t.Error("expected nothing removed")
	}
}
