package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/smolhub/internal/api"
)

func TestHealthHandler(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("dial tcp: connection refused") }

	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantBody   api.Health
	}{
		{
			name:       "チェックなし",
			checks:     nil,
			wantStatus: http.StatusOK,
			wantBody:   api.Health{Status: "ok"},
		},
		{
			name:       "全て正常",
			checks:     map[string]HealthCheck{"database": ok, "storage": ok},
			wantStatus: http.StatusOK,
			wantBody:   api.Health{Status: "ok", Checks: map[string]string{"database": "ok", "storage": "ok"}},
		},
		{
			name:       "一部異常",
			checks:     map[string]HealthCheck{"database": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   api.Health{Status: "degraded", Checks: map[string]string{"database": "ok", "redis": "unavailable"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks, time.Second)

			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assertStatus(t, w, tt.wantStatus)
			var got api.Health
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if got.Status != tt.wantBody.Status {
				t.Errorf("status = %q, want %q", got.Status, tt.wantBody.Status)
			}
			if len(got.Checks) != len(tt.wantBody.Checks) {
				t.Fatalf("checks = %v, want %v", got.Checks, tt.wantBody.Checks)
			}
			for k, v := range tt.wantBody.Checks {
				if got.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, got.Checks[k], v)
				}
			}
		})
	}
}

func TestHealthHandler_DoesNotLeakErrorDetails(t *testing.T) {
	h := NewHealthHandler(map[string]HealthCheck{
		"database": func(ctx context.Context) error { return errors.New("password authentication failed for user smolhub") },
	}, time.Second)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if body := w.Body.String(); strings.Contains(body, "password") {
		t.Errorf("health response leaks error details: %s", body)
	}
}
