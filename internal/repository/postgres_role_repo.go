package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/smolhub/internal/model"
)

// PostgresRoleRepo はPostgreSQLを使用したuser_rolesリポジトリ。
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// FindRole は指定ユーザーのロール行を取得する。見つからない場合はnilを返す。
func (r *PostgresRoleRepo) FindRole(ctx context.Context, userID string) (*model.UserRole, error) {
	row := &model.UserRole{}
	var roleName string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, created_at FROM user_roles WHERE user_id = $1`,
		userID,
	).Scan(&row.UserID, &roleName, &row.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user role: %w", err)
	}

	row.Role = model.Role(roleName)
	return row, nil
}

// Create はロール行を作成する。
func (r *PostgresRoleRepo) Create(ctx context.Context, role *model.UserRole) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role, created_at) VALUES ($1, $2, $3)`,
		role.UserID, string(role.Role), role.CreatedAt,
	)
	if err != nil {
		return wrapPGError("failed to insert user role", err)
	}
	return nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
