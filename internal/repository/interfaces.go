// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/smolhub/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
// 呼び出し側はerrors.Isで判定する。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithProfile はユーザーとプロフィールを同一トランザクションで作成する。
	// メールアドレスが既に登録されている場合はErrDuplicateを返す。
	CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile) error

	// ConfirmEmail はメールアドレス確認日時を記録する。既に確認済みの場合は何もしない。
	ConfirmEmail(ctx context.Context, id string, at time.Time) error
}

// ProfileRepository はプロフィールの参照インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// RoleRepository はuser_rolesの永続化インターフェース。
type RoleRepository interface {
	// FindRole は指定ユーザーのロール行を取得する。見つからない場合はnilを返す。
	FindRole(ctx context.Context, userID string) (*model.UserRole, error)

	// Create はロール行を作成する。既に行がある場合はErrDuplicateを返す。
	Create(ctx context.Context, role *model.UserRole) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.AuthSession) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AuthSession, error)
	// FindByRefreshTokenHash はリフレッシュトークンのハッシュでセッションを取得する。
	// 期限切れの場合はnilを返す。
	FindByRefreshTokenHash(ctx context.Context, hash string) (*model.AuthSession, error)
	// RotateRefreshToken はリフレッシュトークンを差し替える。
	// oldHashが一致しない場合（既に使用済み）はfalseを返す。
	RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ModelRepository はモデルカタログの永続化インターフェース。
type ModelRepository interface {
	// List はカタログを新しい順に取得する。
	List(ctx context.Context, limit, offset int) ([]*model.ModelArtifact, error)

	// FindByUniqueID はunique_idでカタログ行を取得する。見つからない場合はnilを返す。
	FindByUniqueID(ctx context.Context, uniqueID string) (*model.ModelArtifact, error)

	// ExistsByUniqueID はunique_idの行が存在するかどうかを返す。
	ExistsByUniqueID(ctx context.Context, uniqueID string) (bool, error)

	// Create はカタログ行を作成する。unique_idが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, artifact *model.ModelArtifact) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
