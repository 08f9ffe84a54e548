package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/middleware"
	"github.com/hitoshi/smolhub/internal/model"
)

// UserServiceInterface はプロフィールとロールのハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, caller *model.Principal, id string) (*model.Profile, error)
	GetRole(ctx context.Context, caller *model.Principal, userID string) (*model.UserRole, error)
	AssertRole(ctx context.Context, caller *model.Principal, req model.UserRole) (*model.UserRole, error)
}

// UserHandler はprofilesとuser_rolesのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// GetProfile は本人のプロフィールを返す。
// GET /rest/v1/profiles/{id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetProfile(r.Context(), middleware.OptionalPrincipal(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.ProfileFromModel(profile))
}

// GetRole は本人のロール行を返す。
// GET /rest/v1/user_roles/{user_id}
func (h *UserHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.GetRole(r.Context(), middleware.OptionalPrincipal(r.Context()), chi.URLParam(r, "user_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.UserRole{UserID: row.UserID, Role: row.Role})
}

// CreateRole はサインアップ直後のロール行を作成する。匿名でも呼び出せる。
// POST /rest/v1/user_roles
func (h *UserHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req api.UserRole
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	row, err := h.service.AssertRole(r.Context(), middleware.OptionalPrincipal(r.Context()),
		model.UserRole{UserID: req.UserID, Role: req.Role})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, api.UserRole{UserID: row.UserID, Role: row.Role})
}
