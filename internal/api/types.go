// Package api はsmolhub-serverとクライアントの間でやり取りするJSONの型を定義する。
package api

import (
	"fmt"
	"time"

	"github.com/hitoshi/smolhub/internal/model"
)

// grant_typeの値
const (
	GrantTypePassword     = "password"
	GrantTypeRefreshToken = "refresh_token"
)

// ErrorBody はエラーレスポンスの統一フォーマット。
type ErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// NewErrorBody はサーバーが返すErrorBodyをAPIErrorから組み立てる。Errはレスポンスに含めない。
func NewErrorBody(e *model.APIError) ErrorBody {
	return ErrorBody{
		Code:     e.Code,
		Message:  e.Message,
		Category: e.Category,
		Action:   e.Action,
	}
}

// APIError はErrorBodyを*model.APIErrorに変換する。
func (b ErrorBody) APIError() *model.APIError {
	return &model.APIError{
		Code:     b.Code,
		Message:  b.Message,
		Category: b.Category,
		Action:   b.Action,
	}
}

// Credentials はサインアップとパスワードサインインのリクエスト。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest はトークン更新のリクエスト。
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// VerifyRequest はメール確認のリクエスト。
type VerifyRequest struct {
	TokenHash string `json:"token_hash"`
	Type      string `json:"type"`
}

// User はユーザーのレスポンス。
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// UserFromModel はmodel.Userをレスポンス型に変換する。パスワードハッシュは含めない。
func UserFromModel(u *model.User) User {
	return User{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}
}

// Token はサインインとトークン更新のレスポンス。
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         User      `json:"user"`
}

// Identity はTokenをクライアント側のIdentityに変換する。
func (t Token) Identity() *model.Identity {
	return &model.Identity{
		ID:           t.User.ID,
		Email:        t.User.Email,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
}

// Profile はプロフィールのレスポンス。
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileFromModel はmodel.Profileをレスポンス型に変換する。
func ProfileFromModel(p *model.Profile) Profile {
	return Profile{ID: p.ID, Email: p.Email, CreatedAt: p.CreatedAt}
}

// Model はレスポンス型をmodel.Profileに変換する。
func (p Profile) Model() *model.Profile {
	return &model.Profile{ID: p.ID, Email: p.Email, CreatedAt: p.CreatedAt}
}

// UserRole はuser_rolesの行。
type UserRole struct {
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// ModelArtifact はmodelsの行。update_dateはYYYY-MM-DD形式。
type ModelArtifact struct {
	ID            string    `json:"id,omitempty"`
	Name          string    `json:"name"`
	UniqueID      string    `json:"unique_id"`
	FilePath      string    `json:"file_path"`
	Size          int64     `json:"size"`
	UpdateDate    string    `json:"update_date"`
	ReadmeContent string    `json:"readme_content"`
	UploaderID    string    `json:"uploader_id,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

// ArtifactFromModel はmodel.ModelArtifactをレスポンス型に変換する。
func ArtifactFromModel(a *model.ModelArtifact) ModelArtifact {
	return ModelArtifact{
		ID:            a.ID,
		Name:          a.Name,
		UniqueID:      a.UniqueID,
		FilePath:      a.FilePath,
		Size:          a.SizeBytes,
		UpdateDate:    a.UpdateDate.Format(model.DateLayout),
		ReadmeContent: a.ReadmeContent,
		UploaderID:    a.UploaderID,
		CreatedAt:     a.CreatedAt,
	}
}

// Model はレスポンス型をmodel.ModelArtifactに変換する。
func (m ModelArtifact) Model() (*model.ModelArtifact, error) {
	var updateDate time.Time
	if m.UpdateDate != "" {
		d, err := time.Parse(model.DateLayout, m.UpdateDate)
		if err != nil {
			return nil, fmt.Errorf("invalid update_date %q: %w", m.UpdateDate, err)
		}
		updateDate = d
	}
	return &model.ModelArtifact{
		ID:            m.ID,
		Name:          m.Name,
		UniqueID:      m.UniqueID,
		FilePath:      m.FilePath,
		SizeBytes:     m.Size,
		UpdateDate:    updateDate,
		ReadmeContent: m.ReadmeContent,
		UploaderID:    m.UploaderID,
		CreatedAt:     m.CreatedAt,
	}, nil
}

// Bucket はバケットのレスポンス。
type Bucket struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// UploadResult はオブジェクトアップロードのレスポンス。
type UploadResult struct {
	Key string `json:"Key"`
}

// Health はヘルスチェックのレスポンス。
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
