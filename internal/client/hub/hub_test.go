package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/smolhub/internal/api"
)

// newTestClient はhandlerをサーバーとするClientを生成する。
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func decodeTestBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Errorf("failed to decode request body: %v", err)
	}
}

func writeTestError(t *testing.T, w http.ResponseWriter, status int, code, message string) {
	t.Helper()
	writeTestJSON(t, w, status, api.ErrorBody{Code: code, Message: message})
}

func TestNewClient_RejectsInvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"スキームなし", "localhost:8080"},
		{"ftpスキーム", "ftp://example.com"},
		{"ホストなし", "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.url, nil); err == nil {
				t.Errorf("NewClient(%q) should fail", tt.url)
			}
		})
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c, err := NewClient("https://hub.example.com/", nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if got := c.endpoint("/rest/v1/models", nil); got != "https://hub.example.com/rest/v1/models" {
		t.Errorf("endpoint = %q", got)
	}
}

func TestEscapePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my-model/model.bin", "my-model/model.bin"},
		{"my model/weights v2.pt", "my%20model/weights%20v2.pt"},
		{"/leading/slash", "leading/slash"},
		{"id/a?b#c.bin", "id/a%3Fb%23c.bin"},
	}

	for _, tt := range tests {
		if got := escapePath(tt.in); got != tt.want {
			t.Errorf("escapePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
