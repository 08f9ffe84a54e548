package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/model"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getProfileFn func(ctx context.Context, caller *model.Principal, id string) (*model.Profile, error)
	getRoleFn    func(ctx context.Context, caller *model.Principal, userID string) (*model.UserRole, error)
	assertRoleFn func(ctx context.Context, caller *model.Principal, req model.UserRole) (*model.UserRole, error)
}

func (m *mockUserService) GetProfile(ctx context.Context, caller *model.Principal, id string) (*model.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, caller, id)
	}
	return nil, model.NewNotFoundError("Profile")
}

func (m *mockUserService) GetRole(ctx context.Context, caller *model.Principal, userID string) (*model.UserRole, error) {
	if m.getRoleFn != nil {
		return m.getRoleFn(ctx, caller, userID)
	}
	return nil, model.NewNotFoundError("Role")
}

func (m *mockUserService) AssertRole(ctx context.Context, caller *model.Principal, req model.UserRole) (*model.UserRole, error) {
	if m.assertRoleFn != nil {
		return m.assertRoleFn(ctx, caller, req)
	}
	return &req, nil
}

// --- GET /rest/v1/profiles/{id} ---

func TestUserHandler_GetProfile_Own(t *testing.T) {
	var gotCaller *model.Principal
	svc := &mockUserService{
		getProfileFn: func(ctx context.Context, caller *model.Principal, id string) (*model.Profile, error) {
			gotCaller = caller
			return &model.Profile{ID: id, Email: "a@example.com"}, nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles/user-123", nil)
	req = withPrincipal(req, "user-123")
	req = withURLParams(req, map[string]string{"id": "user-123"})
	w := httptest.NewRecorder()
	h.GetProfile(w, req)

	assertStatus(t, w, http.StatusOK)
	if gotCaller == nil || gotCaller.UserID != "user-123" {
		t.Errorf("caller = %+v, want user-123", gotCaller)
	}
	var p api.Profile
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if p.ID != "user-123" {
		t.Errorf("profile.ID = %q", p.ID)
	}
}

func TestUserHandler_GetProfile_NotFound(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles/other", nil)
	req = withPrincipal(req, "user-123")
	req = withURLParams(req, map[string]string{"id": "other"})
	w := httptest.NewRecorder()
	h.GetProfile(w, req)

	assertStatus(t, w, http.StatusNotFound)
}

// --- GET /rest/v1/user_roles/{user_id} ---

func TestUserHandler_GetRole(t *testing.T) {
	svc := &mockUserService{
		getRoleFn: func(ctx context.Context, caller *model.Principal, userID string) (*model.UserRole, error) {
			return &model.UserRole{UserID: userID, Role: model.RoleAdmin}, nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/user_roles/user-123", nil)
	req = withPrincipal(req, "user-123")
	req = withURLParams(req, map[string]string{"user_id": "user-123"})
	w := httptest.NewRecorder()
	h.GetRole(w, req)

	assertStatus(t, w, http.StatusOK)
	var row api.UserRole
	if err := json.NewDecoder(w.Body).Decode(&row); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if row.Role != model.RoleAdmin {
		t.Errorf("role = %q, want admin", row.Role)
	}
}

// --- POST /rest/v1/user_roles ---

func TestUserHandler_CreateRole(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		fn         func(ctx context.Context, caller *model.Principal, req model.UserRole) (*model.UserRole, error)
		wantStatus int
	}{
		{
			name:       "匿名でのサインアップ直後の作成",
			body:       `{"user_id":"user-1","role":"admin"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name: "ポリシーで禁止",
			body: `{"user_id":"user-1","role":"admin"}`,
			fn: func(ctx context.Context, caller *model.Principal, req model.UserRole) (*model.UserRole, error) {
				return nil, model.NewNotAuthorizedError()
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "既に存在",
			body: `{"user_id":"user-1","role":"user"}`,
			fn: func(ctx context.Context, caller *model.Principal, req model.UserRole) (*model.UserRole, error) {
				return nil, model.NewAlreadyExistsError()
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "不正なJSON",
			body:       `not-json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewUserHandler(&mockUserService{assertRoleFn: tt.fn})

			req := httptest.NewRequest(http.MethodPost, "/rest/v1/user_roles", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.CreateRole(w, req)

			assertStatus(t, w, tt.wantStatus)
		})
	}
}
