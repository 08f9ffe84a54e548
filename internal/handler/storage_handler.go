package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/catalog"
	"github.com/hitoshi/smolhub/internal/middleware"
	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/storage"
)

// StorageServiceInterface はストレージハンドラーが必要とするサービスインターフェース。
type StorageServiceInterface interface {
	ListBuckets(ctx context.Context, caller *model.Principal) ([]model.Bucket, error)
	UploadObject(ctx context.Context, caller *model.Principal, bucket, key string, body io.Reader, size int64, contentType string) error
	OpenPublicObject(ctx context.Context, bucket, key string) (*storage.Object, error)
}

// StorageHandlerConfig はストレージハンドラーの設定。
type StorageHandlerConfig struct {
	MaxUploadSize int64  // アップロードの上限バイト数
	TempDir       string // アップロードの一時保存先。空の場合はos.TempDir()
}

// StorageHandler はBlobストアのHTTPハンドラー。
type StorageHandler struct {
	service StorageServiceInterface
	config  StorageHandlerConfig
}

// NewStorageHandler はStorageHandlerを生成する。
func NewStorageHandler(service StorageServiceInterface, config StorageHandlerConfig) *StorageHandler {
	return &StorageHandler{service: service, config: config}
}

// ListBuckets はバケット一覧を返す。
// GET /storage/v1/bucket
func (h *StorageHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.service.ListBuckets(r.Context(), middleware.OptionalPrincipal(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]api.Bucket, 0, len(buckets))
	for _, b := range buckets {
		resp = append(resp, api.Bucket{
			ID:        b.Name,
			Name:      b.Name,
			Public:    b.Name == catalog.PublicBucket,
			CreatedAt: b.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upload はリクエストボディをオブジェクトとして保存する。既存オブジェクトは上書きしない。
// S3への送信にはシーク可能なボディが必要なため、一時ファイルに書き出してから送る。
// POST /storage/v1/object/{bucket}/*
func (h *StorageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller := middleware.OptionalPrincipal(r.Context())
	if caller == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}
	if h.config.MaxUploadSize > 0 && r.ContentLength > h.config.MaxUploadSize {
		writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, tooLargeError(h.config.MaxUploadSize))
		return
	}

	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	tmp, err := os.CreateTemp(h.config.TempDir, "smolhub-upload-*")
	if err != nil {
		slog.Error("failed to create temp file", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	body := io.Reader(r.Body)
	if h.config.MaxUploadSize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	}
	size, err := io.Copy(tmp, body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, tooLargeError(h.config.MaxUploadSize))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Failed to read upload body"))
		return
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		slog.Error("failed to rewind temp file", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if err := h.service.UploadObject(r.Context(), caller, bucket, key, tmp, size, r.Header.Get("Content-Type")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.UploadResult{Key: bucket + "/" + key})
}

// Download は公開バケットのオブジェクトを返す。
// GET /storage/v1/object/public/{bucket}/*
func (h *StorageHandler) Download(w http.ResponseWriter, r *http.Request) {
	obj, err := h.service.OpenPublicObject(r.Context(), chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("object download interrupted", slog.String("error", err.Error()))
	}
}

func tooLargeError(limit int64) *model.APIError {
	return model.NewValidationError(fmt.Sprintf("File exceeds the maximum size of %d MB", limit/1024/1024))
}
