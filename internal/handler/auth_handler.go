package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/auth"
	"github.com/hitoshi/smolhub/internal/middleware"
	"github.com/hitoshi/smolhub/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password string) (*model.User, error)
	SignIn(ctx context.Context, email, password string) (*auth.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Grant, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	Logout(ctx context.Context, sessionID string) error
	Verify(ctx context.Context, tokenHash, kind string) (*model.User, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	now     func() time.Time
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service, now: time.Now}
}

// SignUp はユーザーを登録し、確認メールを送信する。
// POST /auth/v1/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req api.Credentials
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.UserFromModel(user))
}

// Token はアクセストークンを発行する。
// POST /auth/v1/token?grant_type=password|refresh_token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var (
		grant *auth.Grant
		err   error
	)

	switch r.URL.Query().Get("grant_type") {
	case api.GrantTypePassword:
		var req api.Credentials
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err)
			return
		}
		grant, err = h.service.SignIn(r.Context(), req.Email, req.Password)

	case api.GrantTypeRefreshToken:
		var req api.RefreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err)
			return
		}
		grant, err = h.service.Refresh(r.Context(), req.RefreshToken)

	default:
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("grant_type must be password or refresh_token"))
		return
	}

	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toTokenResponse(grant))
}

// User は現在のユーザー情報を返す。
// GET /auth/v1/user
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	user, err := h.service.GetUser(r.Context(), principal.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.UserFromModel(user))
}

// Logout はセッションを破棄する。以後そのセッションのトークンは使えない。
// POST /auth/v1/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	if err := h.service.Logout(r.Context(), principal.SessionID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Verify はメール確認リンクのトークンを検証する。
// POST /auth/v1/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.Verify(r.Context(), req.TokenHash, req.Type)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.UserFromModel(user))
}

func (h *AuthHandler) toTokenResponse(g *auth.Grant) api.Token {
	expiresIn := int64(g.ExpiresAt.Sub(h.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return api.Token{
		AccessToken:  g.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		ExpiresAt:    g.ExpiresAt,
		RefreshToken: g.RefreshToken,
		User:         api.UserFromModel(g.User),
	}
}
