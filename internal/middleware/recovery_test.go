package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func TestRecoveryMiddleware_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(NewRecoveryMiddleware(logger))
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v\nraw: %s", err, buf.String())
	}
	if entry["panic"] != "boom" {
		t.Errorf("panic = %v, want boom", entry["panic"])
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Error("request_id should be logged")
	}
	if entry["response_started"] != false {
		t.Errorf("response_started = %v, want false", entry["response_started"])
	}
	if stack, _ := entry["stack"].(string); !strings.Contains(stack, "recovery") {
		t.Error("stack should be logged")
	}
}

// 書き始めたレスポンスに500のJSONを継ぎ足さず、接続を中断させる
func TestRecoveryMiddleware_AbortsStartedResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("partial-weights"))
		panic("storage stream broke")
	}))

	w := httptest.NewRecorder()
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", v)
		}
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want the original 200", w.Code)
		}
		if got := w.Body.String(); got != "partial-weights" {
			t.Errorf("body = %q, want only the partial stream", got)
		}
		if !strings.Contains(buf.String(), `"response_started":true`) {
			t.Errorf("log should mark the response as started: %s", buf.String())
		}
	}()

	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/storage/v1/object/public/models/tiny/model.bin", nil))
}

func TestRecoveryMiddleware_RepanicsAbortHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", v)
		}
		if buf.Len() != 0 {
			t.Errorf("abort should not be logged: %s", buf.String())
		}
	}()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
