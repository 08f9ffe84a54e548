// Package catalog はモデルカタログとモデルファイル用Blobストアのドメインロジックを提供する。
// 参照は匿名でも可能で、書き込みには管理者ロールが必要。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/smolhub/internal/metrics"
	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/repository"
	"github.com/hitoshi/smolhub/internal/storage"
)

// PublicBucket はモデルファイルを置く公開バケット名。
const PublicBucket = "models"

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// RoleResolver はIdentityからRoleを導出するインターフェース。
type RoleResolver interface {
	Resolve(ctx context.Context, identity *model.Identity) (model.Role, error)
}

// BlobStore はモデルファイルの保存先インターフェース。
type BlobStore interface {
	ListBuckets(ctx context.Context) ([]model.Bucket, error)
	HasBucket(ctx context.Context, name string) (bool, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (*storage.Object, error)
}

// CreateModelInput はカタログ行作成の入力。
type CreateModelInput struct {
	Name          string
	UniqueID      string
	FilePath      string
	SizeBytes     int64
	UpdateDate    time.Time
	ReadmeContent string
}

// Service はカタログのサービス層。
type Service struct {
	models        repository.ModelRepository
	blobs         BlobStore
	roles         RoleResolver
	metrics       metrics.MetricsCollector
	maxUploadSize int64
	now           func() time.Time
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	models repository.ModelRepository,
	blobs BlobStore,
	roles RoleResolver,
	collector metrics.MetricsCollector,
	maxUploadSize int64,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		models:        models,
		blobs:         blobs,
		roles:         roles,
		metrics:       collector,
		maxUploadSize: maxUploadSize,
		now:           time.Now,
	}
}

// ListModels はカタログを新しい順に返す。
func (s *Service) ListModels(ctx context.Context, limit, offset int) ([]*model.ModelArtifact, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	artifacts, err := s.models.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return artifacts, nil
}

// GetModel はunique_idでカタログ行を返す。
func (s *Service) GetModel(ctx context.Context, uniqueID string) (*model.ModelArtifact, error) {
	artifact, err := s.models.FindByUniqueID(ctx, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("failed to find model: %w", err)
	}
	if artifact == nil {
		return nil, model.NewNotFoundError("Model")
	}
	return artifact, nil
}

// CreateModel はカタログ行を作成する。
// Blobが先にアップロードされている前提で、ファイルの存在は確認しない。
func (s *Service) CreateModel(ctx context.Context, caller *model.Principal, in CreateModelInput) (*model.ModelArtifact, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		s.metrics.RecordCatalogInsert(metrics.ResultRejected)
		return nil, err
	}
	if err := s.validateInput(in); err != nil {
		s.metrics.RecordCatalogInsert(metrics.ResultRejected)
		return nil, err
	}

	updateDate := in.UpdateDate
	if updateDate.IsZero() {
		updateDate = s.now()
	}
	artifact := &model.ModelArtifact{
		ID:            uuid.New().String(),
		Name:          strings.TrimSpace(in.Name),
		UniqueID:      in.UniqueID,
		FilePath:      in.FilePath,
		SizeBytes:     in.SizeBytes,
		UpdateDate:    updateDate.UTC().Truncate(24 * time.Hour),
		ReadmeContent: in.ReadmeContent,
		UploaderID:    caller.UserID,
		CreatedAt:     s.now(),
	}

	if err := s.models.Create(ctx, artifact); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.metrics.RecordCatalogInsert(metrics.ResultRejected)
			return nil, model.NewDuplicateModelError(in.UniqueID)
		}
		s.metrics.RecordCatalogInsert(metrics.ResultFailure)
		slog.Error("カタログ行の登録に失敗しました",
			slog.String("unique_id", in.UniqueID),
			slog.String("error", err.Error()),
		)
		apiErr := model.NewPersistFailedError(nil)
		apiErr.Err = err
		return nil, apiErr
	}

	s.metrics.RecordCatalogInsert(metrics.ResultSuccess)
	slog.Info("カタログ行を登録しました",
		slog.String("unique_id", artifact.UniqueID),
		slog.String("uploader_id", artifact.UploaderID),
		slog.Int64("size_bytes", artifact.SizeBytes),
	)
	return artifact, nil
}

// UploadObject はBlobを保存する。既存オブジェクトは上書きしない。
func (s *Service) UploadObject(ctx context.Context, caller *model.Principal, bucket, key string, body io.Reader, size int64, contentType string) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		s.metrics.RecordUpload(metrics.ResultRejected)
		return err
	}
	if err := validateObjectKey(key); err != nil {
		s.metrics.RecordUpload(metrics.ResultRejected)
		return err
	}
	if size <= 0 {
		s.metrics.RecordUpload(metrics.ResultRejected)
		return model.NewValidationError("File is empty")
	}
	if s.maxUploadSize > 0 && size > s.maxUploadSize {
		s.metrics.RecordUpload(metrics.ResultRejected)
		return model.NewValidationError(fmt.Sprintf("File exceeds the maximum size of %d MB", s.maxUploadSize/1024/1024))
	}

	ok, err := s.blobs.HasBucket(ctx, bucket)
	if err != nil {
		s.metrics.RecordUpload(metrics.ResultFailure)
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !ok {
		s.metrics.RecordUpload(metrics.ResultRejected)
		return model.NewNotFoundError("Bucket")
	}

	if err := s.blobs.Put(ctx, bucket, key, body, size, contentType); err != nil {
		if errors.Is(err, storage.ErrObjectExists) {
			s.metrics.RecordUpload(metrics.ResultRejected)
			return model.NewAlreadyExistsError()
		}
		s.metrics.RecordUpload(metrics.ResultFailure)
		slog.Error("オブジェクトの保存に失敗しました",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		apiErr := model.NewUploadFailedError(nil)
		apiErr.Err = err
		return apiErr
	}

	s.metrics.RecordUpload(metrics.ResultSuccess)
	s.metrics.RecordUploadBytes(size)
	slog.Info("オブジェクトを保存しました",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int64("size_bytes", size),
	)
	return nil
}

// OpenPublicObject は公開バケットのオブジェクトを開く。呼び出し側がBodyを閉じること。
func (s *Service) OpenPublicObject(ctx context.Context, bucket, key string) (*storage.Object, error) {
	if bucket != PublicBucket {
		return nil, model.NewNotFoundError("Object")
	}
	if err := validateObjectKey(key); err != nil {
		return nil, model.NewNotFoundError("Object")
	}

	obj, err := s.blobs.Get(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, model.NewNotFoundError("Object")
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// ListBuckets はバケット一覧を返す。認証済みの利用者のみ参照できる。
func (s *Service) ListBuckets(ctx context.Context, caller *model.Principal) ([]model.Bucket, error) {
	if caller == nil {
		return nil, model.NewNotAuthenticatedError()
	}
	buckets, err := s.blobs.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	return buckets, nil
}

// requireAdmin は呼び出し元が管理者であることを確認する。
// ロールの参照に失敗した場合は一般ユーザーとして扱う。
func (s *Service) requireAdmin(ctx context.Context, caller *model.Principal) error {
	if caller == nil {
		return model.NewNotAuthenticatedError()
	}
	r, err := s.roles.Resolve(ctx, caller.Identity())
	if err != nil {
		slog.Warn("ロールの解決に失敗しました",
			slog.String("user_id", caller.UserID),
			slog.String("error", err.Error()),
		)
		return model.NewNotAuthorizedError()
	}
	if r != model.RoleAdmin {
		return model.NewNotAuthorizedError()
	}
	return nil
}

func (s *Service) validateInput(in CreateModelInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return model.NewValidationError("Model name is required")
	}
	if in.UniqueID == "" || strings.Contains(in.UniqueID, "/") {
		return model.NewValidationError("Model ID must be non-empty and must not contain '/'")
	}
	if !strings.HasPrefix(in.FilePath, in.UniqueID+"/") || len(in.FilePath) == len(in.UniqueID)+1 {
		return model.NewValidationError("file_path must be {unique_id}/{file_name}")
	}
	if in.SizeBytes <= 0 {
		return model.NewValidationError("size must be positive")
	}
	if s.maxUploadSize > 0 && in.SizeBytes > s.maxUploadSize {
		return model.NewValidationError(fmt.Sprintf("File exceeds the maximum size of %d MB", s.maxUploadSize/1024/1024))
	}
	return nil
}

// validateObjectKey は{prefix}/{file_name}形式のキーのみを受け付ける。
func validateObjectKey(key string) error {
	parts := strings.Split(key, "/")
	if len(parts) != 2 {
		return model.NewValidationError("Object path must be {model_id}/{file_name}")
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return model.NewValidationError("Object path must be {model_id}/{file_name}")
		}
	}
	return nil
}
