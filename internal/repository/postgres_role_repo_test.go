package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/smolhub/internal/model"
)

func TestPostgresRoleRepo_FindRole_Admin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRoleRepo(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT user_id, role, created_at FROM user_roles WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role", "created_at"}).AddRow("u-1", "admin", now))

	got, err := repo.FindRole(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("FindRole error: %v", err)
	}
	if got.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleAdmin)
	}
	assertExpectations(t, mock)
}

func TestPostgresRoleRepo_FindRole_NoRow_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRoleRepo(db)

	mock.ExpectQuery(`FROM user_roles`).WithArgs("u-1").WillReturnError(sql.ErrNoRows)

	got, err := repo.FindRole(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("FindRole error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestPostgresRoleRepo_FindRole_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRoleRepo(db)

	mock.ExpectQuery(`FROM user_roles`).WillReturnError(errors.New("db down"))

	if _, err := repo.FindRole(context.Background(), "u-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestPostgresRoleRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRoleRepo(db)
	now := time.Now()

	mock.ExpectExec(`INSERT INTO user_roles \(user_id, role, created_at\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs("u-1", "admin", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &model.UserRole{UserID: "u-1", Role: model.RoleAdmin, CreatedAt: now})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresRoleRepo_Create_ExistingRow_ReturnsErrDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRoleRepo(db)

	mock.ExpectExec(`INSERT INTO user_roles`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &model.UserRole{UserID: "u-1", Role: model.RoleAdmin})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
