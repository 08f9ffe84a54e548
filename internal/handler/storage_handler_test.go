package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/storage"
)

// --- モック定義 ---

// mockStorageService はStorageServiceInterfaceのモック実装。
type mockStorageService struct {
	listBucketsFn func(ctx context.Context, caller *model.Principal) ([]model.Bucket, error)
	uploadFn      func(ctx context.Context, caller *model.Principal, bucket, key string, body io.Reader, size int64, contentType string) error
	openFn        func(ctx context.Context, bucket, key string) (*storage.Object, error)
}

func (m *mockStorageService) ListBuckets(ctx context.Context, caller *model.Principal) ([]model.Bucket, error) {
	if m.listBucketsFn != nil {
		return m.listBucketsFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockStorageService) UploadObject(ctx context.Context, caller *model.Principal, bucket, key string, body io.Reader, size int64, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, caller, bucket, key, body, size, contentType)
	}
	return nil
}

func (m *mockStorageService) OpenPublicObject(ctx context.Context, bucket, key string) (*storage.Object, error) {
	if m.openFn != nil {
		return m.openFn(ctx, bucket, key)
	}
	return nil, model.NewNotFoundError("Object")
}

func newUploadRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/storage/v1/object/models/tiny-bert/model.bin", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	return withURLParams(req, map[string]string{"bucket": "models", "*": "tiny-bert/model.bin"})
}

// --- GET /storage/v1/bucket ---

func TestStorageHandler_ListBuckets(t *testing.T) {
	svc := &mockStorageService{
		listBucketsFn: func(ctx context.Context, caller *model.Principal) ([]model.Bucket, error) {
			return []model.Bucket{{Name: "models"}, {Name: "scratch"}}, nil
		},
	}
	h := NewStorageHandler(svc, StorageHandlerConfig{})

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/storage/v1/bucket", nil), "user-1")
	w := httptest.NewRecorder()
	h.ListBuckets(w, req)

	assertStatus(t, w, http.StatusOK)
	var buckets []api.Bucket
	if err := json.NewDecoder(w.Body).Decode(&buckets); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("len(buckets) = %d, want 2", len(buckets))
	}
	if !buckets[0].Public || buckets[1].Public {
		t.Errorf("only the models bucket should be public: %+v", buckets)
	}
}

// --- POST /storage/v1/object/{bucket}/* ---

func TestStorageHandler_Upload_Success(t *testing.T) {
	payload := []byte("weights")
	var gotBucket, gotKey, gotType string
	var gotBody []byte
	var gotSize int64
	svc := &mockStorageService{
		uploadFn: func(ctx context.Context, caller *model.Principal, bucket, key string, body io.Reader, size int64, contentType string) error {
			gotBucket, gotKey, gotType, gotSize = bucket, key, contentType, size
			gotBody, _ = io.ReadAll(body)
			return nil
		},
	}
	h := NewStorageHandler(svc, StorageHandlerConfig{MaxUploadSize: 1024, TempDir: t.TempDir()})

	w := httptest.NewRecorder()
	h.Upload(w, withPrincipal(newUploadRequest(t, payload), "admin-1"))

	assertStatus(t, w, http.StatusOK)
	if gotBucket != "models" || gotKey != "tiny-bert/model.bin" {
		t.Errorf("upload target = %s/%s", gotBucket, gotKey)
	}
	if gotType != "application/octet-stream" {
		t.Errorf("content type = %q", gotType)
	}
	if gotSize != int64(len(payload)) || !bytes.Equal(gotBody, payload) {
		t.Errorf("uploaded %d bytes %q, want %q", gotSize, gotBody, payload)
	}

	var res api.UploadResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if res.Key != "models/tiny-bert/model.bin" {
		t.Errorf("Key = %q", res.Key)
	}
}

func TestStorageHandler_Upload_Anonymous(t *testing.T) {
	called := false
	svc := &mockStorageService{
		uploadFn: func(ctx context.Context, caller *model.Principal, bucket, key string, body io.Reader, size int64, contentType string) error {
			called = true
			return nil
		},
	}
	h := NewStorageHandler(svc, StorageHandlerConfig{TempDir: t.TempDir()})

	w := httptest.NewRecorder()
	h.Upload(w, newUploadRequest(t, []byte("weights")))

	assertStatus(t, w, http.StatusUnauthorized)
	if called {
		t.Error("UploadObject should not be called for anonymous callers")
	}
}

func TestStorageHandler_Upload_TooLarge(t *testing.T) {
	h := NewStorageHandler(&mockStorageService{}, StorageHandlerConfig{MaxUploadSize: 4, TempDir: t.TempDir()})

	w := httptest.NewRecorder()
	h.Upload(w, withPrincipal(newUploadRequest(t, []byte("too many bytes")), "admin-1"))

	assertStatus(t, w, http.StatusRequestEntityTooLarge)
}

func TestStorageHandler_Upload_TooLargeWithoutContentLength(t *testing.T) {
	h := NewStorageHandler(&mockStorageService{}, StorageHandlerConfig{MaxUploadSize: 4, TempDir: t.TempDir()})

	req := withPrincipal(newUploadRequest(t, []byte("too many bytes")), "admin-1")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	h.Upload(w, req)

	assertStatus(t, w, http.StatusRequestEntityTooLarge)
}

func TestStorageHandler_Upload_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"管理者以外", model.NewNotAuthorizedError(), http.StatusForbidden},
		{"既存オブジェクト", model.NewAlreadyExistsError(), http.StatusConflict},
		{"バケットなし", model.NewNotFoundError("Bucket"), http.StatusNotFound},
		{"送信失敗", model.NewUploadFailedError(nil), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockStorageService{
				uploadFn: func(ctx context.Context, caller *model.Principal, bucket, key string, body io.Reader, size int64, contentType string) error {
					return tt.err
				},
			}
			h := NewStorageHandler(svc, StorageHandlerConfig{TempDir: t.TempDir()})

			w := httptest.NewRecorder()
			h.Upload(w, withPrincipal(newUploadRequest(t, []byte("weights")), "user-1"))

			assertStatus(t, w, tt.wantStatus)
		})
	}
}

// --- GET /storage/v1/object/public/{bucket}/* ---

func TestStorageHandler_Download(t *testing.T) {
	var gotBucket, gotKey string
	svc := &mockStorageService{
		openFn: func(ctx context.Context, bucket, key string) (*storage.Object, error) {
			gotBucket, gotKey = bucket, key
			return &storage.Object{Body: io.NopCloser(strings.NewReader("weights")), Size: 7}, nil
		},
	}
	h := NewStorageHandler(svc, StorageHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/storage/v1/object/public/models/tiny-bert/model.bin", nil)
	req = withURLParams(req, map[string]string{"bucket": "models", "*": "tiny-bert/model.bin"})
	w := httptest.NewRecorder()
	h.Download(w, req)

	assertStatus(t, w, http.StatusOK)
	if gotBucket != "models" || gotKey != "tiny-bert/model.bin" {
		t.Errorf("opened %s/%s", gotBucket, gotKey)
	}
	if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != "7" {
		t.Errorf("Content-Length = %q", got)
	}
	if w.Body.String() != "weights" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestStorageHandler_Download_NotFound(t *testing.T) {
	h := NewStorageHandler(&mockStorageService{}, StorageHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/storage/v1/object/public/models/missing/x.bin", nil)
	req = withURLParams(req, map[string]string{"bucket": "models", "*": "missing/x.bin"})
	w := httptest.NewRecorder()
	h.Download(w, req)

	assertStatus(t, w, http.StatusNotFound)
}
