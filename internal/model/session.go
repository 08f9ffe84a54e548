// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は認証済み主体の外部IDと資格情報のキャッシュを表す。
// 所有者は外部IdPで、クライアントは期限付きのコピーだけを保持する。
type Identity struct {
	ID           string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired は指定時刻においてアクセストークンが期限切れかどうかを返す。
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// IdentityEventKind は資格情報変更通知の種別。
type IdentityEventKind string

const (
	// IdentityInitial は購読直後に現在の状態を通知する。
	IdentityInitial IdentityEventKind = "INITIAL_SESSION"
	// IdentitySignedIn はサインインを通知する。
	IdentitySignedIn IdentityEventKind = "SIGNED_IN"
	// IdentitySignedOut はサインアウトを通知する。
	IdentitySignedOut IdentityEventKind = "SIGNED_OUT"
	// IdentityTokenRefreshed はトークン更新を通知する。
	IdentityTokenRefreshed IdentityEventKind = "TOKEN_REFRESHED"
)

// IdentityEvent は資格情報の変更通知を表す。
// Identityがnilの場合は匿名状態を意味する。
type IdentityEvent struct {
	Kind     IdentityEventKind
	Identity *Identity
}

// Session はクライアントプロセス全体で共有する現在のIdentityとRoleのビュー。
type Session struct {
	Identity *Identity
	Role     Role
	Loading  bool
}

// Authenticated は認証済みセッションかどうかを返す。
// Loading中は常にfalse。
func (s Session) Authenticated() bool {
	return !s.Loading && s.Identity != nil
}

// IsAdmin は管理者セッションかどうかを返す。
func (s Session) IsAdmin() bool {
	return s.Authenticated() && s.Role == RoleAdmin
}
