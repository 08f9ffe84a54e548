package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/smolhub/internal/auth"
	"github.com/hitoshi/smolhub/internal/catalog"
	"github.com/hitoshi/smolhub/internal/middleware"
	"github.com/hitoshi/smolhub/internal/model"
)

// tokenAuthenticator は"valid-token"だけを受け付けるAuthenticator。
type tokenAuthenticator struct{}

func (tokenAuthenticator) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if token == "valid-token" {
		return &model.Principal{UserID: "user-123", Email: "a@example.com", SessionID: "s-1"}, nil
	}
	return nil, model.NewNotAuthenticatedError()
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	if deps.Authenticator == nil {
		deps.Authenticator = tokenAuthenticator{}
	}
	if deps.RateLimiter == nil {
		deps.RateLimiter = rl
	}
	if deps.AuthService == nil {
		deps.AuthService = &mockAuthService{}
	}
	if deps.UserService == nil {
		deps.UserService = &mockUserService{}
	}
	if deps.CatalogService == nil {
		deps.CatalogService = &mockCatalogService{}
	}
	if deps.StorageService == nil {
		deps.StorageService = &mockStorageService{}
	}
	if deps.StorageConfig.TempDir == "" {
		deps.StorageConfig.TempDir = t.TempDir()
	}
	return NewRouter(deps)
}

func serve(h http.Handler, method, target string, body io.Reader, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Routes(t *testing.T) {
	h := newTestRouter(t, &RouterDeps{
		UserService: &mockUserService{
			getProfileFn: func(ctx context.Context, caller *model.Principal, id string) (*model.Profile, error) {
				return &model.Profile{ID: id}, nil
			},
		},
		CatalogService: &mockCatalogService{
			getFn: func(ctx context.Context, uniqueID string) (*model.ModelArtifact, error) {
				return &model.ModelArtifact{UniqueID: uniqueID}, nil
			},
		},
	})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		token      string
		wantStatus int
	}{
		{"サインアップ", http.MethodPost, "/auth/v1/signup", `{"email":"a@example.com","password":"hunter22"}`, "", http.StatusOK},
		{"ユーザー情報_匿名", http.MethodGet, "/auth/v1/user", "", "", http.StatusUnauthorized},
		{"ユーザー情報_認証済み", http.MethodGet, "/auth/v1/user", "", "valid-token", http.StatusOK},
		{"ログアウト", http.MethodPost, "/auth/v1/logout", "", "valid-token", http.StatusNoContent},
		{"不正なトークン", http.MethodGet, "/rest/v1/models", "", "forged", http.StatusUnauthorized},
		{"カタログ一覧_匿名", http.MethodGet, "/rest/v1/models", "", "", http.StatusOK},
		{"カタログ取得", http.MethodGet, "/rest/v1/models/tiny-bert", "", "", http.StatusOK},
		{"プロフィール", http.MethodGet, "/rest/v1/profiles/user-123", "", "valid-token", http.StatusOK},
		{"アップロード_匿名", http.MethodPost, "/storage/v1/object/models/tiny-bert/model.bin", "weights", "", http.StatusUnauthorized},
		{"アップロード_認証済み", http.MethodPost, "/storage/v1/object/models/tiny-bert/model.bin", "weights", "valid-token", http.StatusOK},
		{"未定義のパス", http.MethodGet, "/rest/v1/unknown", "", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, tt.method, tt.target, strings.NewReader(tt.body), tt.token)
			assertStatus(t, w, tt.wantStatus)
		})
	}
}

func TestRouter_GetModelUsesUniqueIDParam(t *testing.T) {
	var got string
	h := newTestRouter(t, &RouterDeps{
		CatalogService: &mockCatalogService{
			getFn: func(ctx context.Context, uniqueID string) (*model.ModelArtifact, error) {
				got = uniqueID
				return &model.ModelArtifact{UniqueID: uniqueID}, nil
			},
		},
	})

	serve(h, http.MethodGet, "/rest/v1/models/tiny-bert", nil, "")

	if got != "tiny-bert" {
		t.Errorf("unique_id = %q, want %q", got, "tiny-bert")
	}
}

func TestRouter_CreateModelReceivesPrincipal(t *testing.T) {
	var caller *model.Principal
	h := newTestRouter(t, &RouterDeps{
		CatalogService: &mockCatalogService{
			createFn: func(ctx context.Context, c *model.Principal, in catalog.CreateModelInput) (*model.ModelArtifact, error) {
				caller = c
				return &model.ModelArtifact{UniqueID: in.UniqueID}, nil
			},
		},
	})

	w := serve(h, http.MethodPost, "/rest/v1/models", strings.NewReader(`{"name":"a","unique_id":"a"}`), "valid-token")

	assertStatus(t, w, http.StatusCreated)
	if caller == nil || caller.UserID != "user-123" {
		t.Errorf("caller = %+v, want user-123", caller)
	}
}

func TestRouter_AuthEndpointsAreRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, 1))
	t.Cleanup(rl.Stop)

	h := newTestRouter(t, &RouterDeps{
		RateLimiter: rl,
		AuthService: &mockAuthService{
			signInFn: func(ctx context.Context, email, password string) (*auth.Grant, error) {
				return nil, model.NewInvalidCredentialsError()
			},
		},
	})

	body := `{"email":"a@example.com","password":"wrong"}`
	first := serve(h, http.MethodPost, "/auth/v1/token?grant_type=password", strings.NewReader(body), "")
	assertStatus(t, first, http.StatusBadRequest)

	second := serve(h, http.MethodPost, "/auth/v1/token?grant_type=password", strings.NewReader(body), "")
	assertStatus(t, second, http.StatusTooManyRequests)
}

func TestRouter_HealthAndMetricsBypassAuth(t *testing.T) {
	metricsCalled := false
	h := newTestRouter(t, &RouterDeps{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metricsCalled = true
			w.WriteHeader(http.StatusOK)
		}),
	})

	// 不正なトークンでも運用エンドポイントは認証を通らない
	assertStatus(t, serve(h, http.MethodGet, "/health", nil, "forged"), http.StatusOK)
	assertStatus(t, serve(h, http.MethodGet, "/metrics", nil, "forged"), http.StatusOK)
	if !metricsCalled {
		t.Error("metrics handler was not called")
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newTestRouter(t, &RouterDeps{CORSAllowedOrigin: "https://hub.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/rest/v1/models", nil)
	req.Header.Set("Origin", "https://hub.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assertStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://hub.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
