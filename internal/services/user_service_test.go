package services

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/org-directory/org-directory/internal/crypto"
	"github.com/org-directory/org-directory/internal/db/models"
)

func newUserService(t *testing.T, hasher crypto.PasswordHasher) (*UserService, sqlmock.Sqlmock) {
	t.Helper()
	store, mock := newTestStore(t)
	return NewUserService(store, hasher, newValidator()), mock
}

func validUserInput() CreateUserInput {
	return CreateUserInput{
		Email:          "ann@acme.test",
		FullName:       strPtr("Ann Example"),
		Password:       "secret1",
		OrganizationID: 1,
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserCreate_Success(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS.*FROM users WHERE email").
		WithArgs("ann@acme.test").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(orgRow(1, "Acme"))
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("ann@acme.test", "Ann Example", "hashed:secret1", true, int64(1), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(5), now, now))
	mock.ExpectCommit()

	user, err := svc.Create(context.Background(), validUserInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 5 {
		t.Errorf("ID = %d, want 5", user.ID)
	}
	if !user.IsActive {
		t.Error("is_active should default to true")
	}
	if user.HashedPassword != "hashed:secret1" {
		t.Errorf("HashedPassword = %q", user.HashedPassword)
	}
	if user.Roles == nil || len(user.Roles) != 0 {
		t.Errorf("Roles = %v, want empty", user.Roles)
	}
	expectMet(t, mock)
}

func TestUserCreate_InactiveInDepartment(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	now := time.Now()
	in := validUserInput()
	in.IsActive = boolPtr(false)
	in.DepartmentID = idPtr(10)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").WillReturnRows(orgRow(1, "Acme"))
	mock.ExpectQuery("SELECT.*FROM departments WHERE id").
		WithArgs(int64(10)).
		WillReturnRows(deptRow(10, "Engineering", 1, nil))
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("ann@acme.test", "Ann Example", "hashed:secret1", false, int64(1), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(6), now, now))
	mock.ExpectCommit()

	user, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.IsActive {
		t.Error("user should be inactive")
	}
	expectMet(t, mock)
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), validUserInput())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	expectMet(t, mock)
}

func TestUserCreate_DepartmentOfOtherOrganization(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	in := validUserInput()
	in.DepartmentID = idPtr(20)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").WillReturnRows(orgRow(1, "Acme"))
	mock.ExpectQuery("SELECT.*FROM departments WHERE id").WillReturnRows(deptRow(20, "Sales", 2, nil))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), in)
	if !errors.Is(err, ErrReferentialViolation) {
		t.Errorf("err = %v, want ErrReferentialViolation", err)
	}
	expectMet(t, mock)
}

func TestUserCreate_MissingOrganization(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").WillReturnRows(sqlmock.NewRows(orgColumns))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), validUserInput())
	if !errors.Is(err, ErrReferentialViolation) {
		t.Errorf("err = %v, want ErrReferentialViolation", err)
	}
}

func TestUserCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateUserInput)
		field  string
	}{
		{"bad email", func(in *CreateUserInput) { in.Email = "not-an-email" }, "email"},
		{"short password", func(in *CreateUserInput) { in.Password = "12345" }, "password"},
		{"missing organization", func(in *CreateUserInput) { in.OrganizationID = 0 }, "organization_id"},
		{"zero department", func(in *CreateUserInput) { in.DepartmentID = idPtr(0) }, "department_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newUserService(t, stubHasher{})
			in := validUserInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %s, want %s", ve.Field, tt.field)
			}
			expectMet(t, mock)
		})
	}
}

func TestUserCreate_PasswordTooLongForHasher(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{err: crypto.ErrPasswordTooLong})

	_, err := svc.Create(context.Background(), validUserInput())
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Errorf("err = %v, want password ValidationError", err)
	}
	expectMet(t, mock)
}

// ---------------------------------------------------------------------------
// Update / Delete
// ---------------------------------------------------------------------------

func TestUserUpdate_MoveDepartment(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	existing := &models.User{ID: 5, Email: "ann@acme.test", IsActive: true, OrganizationID: 1,
		Roles: []*models.Role{{ID: 3, Name: "admin"}}}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM departments WHERE id").
		WithArgs(int64(10)).
		WillReturnRows(deptRow(10, "Engineering", 1, nil))
	mock.ExpectQuery("UPDATE users").
		WithArgs(int64(5), nil, false, int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	updated, err := svc.Update(context.Background(), existing, UserPatch{IsActive: boolPtr(false), DepartmentID: idPtr(10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.IsActive || *updated.DepartmentID != 10 {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.HasRole("admin") {
		t.Error("roles should be preserved")
	}
	expectMet(t, mock)
}

func TestUserUpdate_DepartmentOfOtherOrganization(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM departments WHERE id").WillReturnRows(deptRow(20, "Sales", 2, nil))
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), &models.User{ID: 5, OrganizationID: 1}, UserPatch{DepartmentID: idPtr(20)})
	if !errors.Is(err, ErrReferentialViolation) {
		t.Errorf("err = %v, want ErrReferentialViolation", err)
	}
}

func TestUserDelete(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM users").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := svc.Delete(context.Background(), &models.User{ID: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectMet(t, mock)
}

// ---------------------------------------------------------------------------
// Role assignment
// ---------------------------------------------------------------------------

func TestUserAssignRole(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	before := time.Now()
	existing := &models.User{ID: 5, Roles: []*models.Role{}, UpdatedAt: before}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM roles WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(roleColumns).AddRow(int64(3), "admin", nil))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE users SET updated_at").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(before.Add(time.Millisecond)))
	mock.ExpectQuery("SELECT.*FROM roles r JOIN user_roles ur").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(roleColumns).AddRow(int64(3), "admin", nil))
	mock.ExpectCommit()

	updated, err := svc.AssignRole(context.Background(), existing, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.HasRole("admin") {
		t.Errorf("roles = %v, want admin", updated.RoleNames())
	}
	if !updated.UpdatedAt.After(before) {
		t.Error("updated_at should be refreshed")
	}
	expectMet(t, mock)
}

func TestUserAssignRole_AlreadyHeld(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	existing := &models.User{ID: 5, Roles: []*models.Role{{ID: 3, Name: "admin"}}}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM roles WHERE id").
		WillReturnRows(sqlmock.NewRows(roleColumns).AddRow(int64(3), "admin", nil))
	mock.ExpectExec("INSERT INTO user_roles").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE users SET updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectQuery("SELECT.*FROM roles r JOIN user_roles ur").
		WillReturnRows(sqlmock.NewRows(roleColumns).AddRow(int64(3), "admin", nil))
	mock.ExpectCommit()

	updated, err := svc.AssignRole(context.Background(), existing, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Roles) != 1 {
		t.Errorf("len(Roles) = %d, want 1", len(updated.Roles))
	}
	expectMet(t, mock)
}

func TestUserAssignRole_UnknownRole(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM roles WHERE id").WillReturnRows(sqlmock.NewRows(roleColumns))
	mock.ExpectRollback()

	_, err := svc.AssignRole(context.Background(), &models.User{ID: 5}, 99)
	if !errors.Is(err, ErrReferentialViolation) {
		t.Errorf("err = %v, want ErrReferentialViolation", err)
	}
	expectMet(t, mock)
}

func TestUserAssignRole_RoleDeletedConcurrently(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM roles WHERE id").
		WillReturnRows(sqlmock.NewRows(roleColumns).AddRow(int64(3), "admin", nil))
	mock.ExpectExec("INSERT INTO user_roles").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "user_roles_role_id_fkey"})
	mock.ExpectRollback()

	_, err := svc.AssignRole(context.Background(), &models.User{ID: 5}, 3)
	if !errors.Is(err, ErrReferentialViolation) {
		t.Errorf("err = %v, want ErrReferentialViolation", err)
	}
}

func TestUserRevokeRole_NotHeld(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_roles").
		WithArgs(int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE users SET updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectQuery("SELECT.*FROM roles r JOIN user_roles ur").
		WillReturnRows(sqlmock.NewRows(roleColumns))
	mock.ExpectCommit()

	updated, err := svc.RevokeRole(context.Background(), &models.User{ID: 5}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Roles) != 0 {
		t.Errorf("roles = %v, want none", updated.RoleNames())
	}
	expectMet(t, mock)
}

func TestUserGet_LoadsRoles(t *testing.T) {
	svc, mock := newUserService(t, stubHasher{})
	mock.ExpectQuery("SELECT.*FROM users WHERE id").WillReturnRows(userRow(5, "ann@acme.test", 1))
	mock.ExpectQuery("SELECT.*FROM user_roles").
		WillReturnRows(sqlmock.NewRows(userRoleColumns).AddRow(int64(5), int64(3), "admin", nil))

	user, err := svc.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !user.HasRole("admin") {
		t.Error("expected admin role")
	}
}
