package hub

import (
	"context"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/client/session"
	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/role"
)

// 短命なアクセストークンへの更新中にRoleの解決がAccessTokenを呼び直しても、
// Session Storeの初期化が完了し、更新は1回で済むことを検証する。
func TestSessionStore_InitWithShortLivedRefreshedToken(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn int64
		expiresAt time.Duration // サーバーが返すexpires_atの現在時刻からのずれ
	}{
		{"有効期間が猶予より短い", 20, 20 * time.Second},
		{"expires_inなし", 0, 20 * time.Second},
		{"クライアントの時計が進んでいる", 20, -time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refreshCalls atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
				refreshCalls.Add(1)
				tok := testToken("access-new", "refresh-new", time.Now().Add(tt.expiresAt))
				tok.ExpiresIn = tt.expiresIn
				writeTestJSON(t, w, http.StatusOK, tok)
			})
			mux.HandleFunc("GET /rest/v1/user_roles/user-1", func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer access-new" {
					t.Errorf("Authorization = %q, want the refreshed token", got)
				}
				writeTestJSON(t, w, http.StatusOK, api.UserRole{UserID: "user-1", Role: model.RoleAdmin})
			})
			c := newTestClient(t, mux)

			creds := NewFileCredentialStore(filepath.Join(t.TempDir(), "credentials.json"))
			if err := creds.Save(&model.Identity{
				ID: "user-1", Email: "a@x.com",
				AccessToken: "access-old", RefreshToken: "refresh-old",
				ExpiresAt: time.Now().Add(-time.Minute),
			}); err != nil {
				t.Fatal(err)
			}
			ic := NewIdentityClient(c, creds, nil)
			resolver := role.NewResolver(role.RowPolicy(), NewRowClient(c, ic.AccessToken))
			store := session.NewStore(ic, resolver, session.Options{FetchTimeout: 2 * time.Second})
			defer store.Dispose()

			done := make(chan error, 1)
			go func() { done <- store.Init(context.Background()) }()

			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("Init() error = %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("Init() did not return (loading=%v)", store.Current().Loading)
			}

			sess := store.Current()
			if !sess.Authenticated() || sess.Identity.AccessToken != "access-new" {
				t.Errorf("session = %+v, want the refreshed identity", sess)
			}
			if sess.Role != model.RoleAdmin {
				t.Errorf("role = %q, want admin", sess.Role)
			}
			if n := refreshCalls.Load(); n != 1 {
				t.Errorf("refresh calls = %d, want 1", n)
			}
		})
	}
}
