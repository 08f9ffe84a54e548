// Package model はドメインモデルを定義する。
package model

import "time"

// User はIdPに登録された利用者を表す。サーバー側でのみ扱う。
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Confirmed はメールアドレス確認済みかどうかを返す。
func (u *User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Profile はサインアップ時に作成されるプロフィールを表す。
// Userと1:1で対応し、クライアントからは読み取り専用。
type Profile struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Role は粗粒度の権限レベルを表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。モデルのアップロードが可能。
	RoleAdmin Role = "admin"
)

// Valid は既知のロールかどうかを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// UserRole はuser_rolesテーブルの行を表す。
type UserRole struct {
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// AuthSession はサーバー側のログインセッションを表す。
// アクセストークンのsidクレームとリフレッシュトークンのハッシュで参照される。
type AuthSession struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Principal はアクセストークンから復元したリクエスト主体。
// サーバーのミドルウェアがコンテキストに格納する。
type Principal struct {
	UserID    string
	Email     string
	SessionID string
}

// Identity はクライアント側の表現に変換する。資格情報は含まない。
func (p *Principal) Identity() *Identity {
	if p == nil {
		return nil
	}
	return &Identity{ID: p.UserID, Email: p.Email}
}
