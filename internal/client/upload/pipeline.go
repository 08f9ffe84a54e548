// Package upload はモデルファイルのアップロードとカタログ登録を行うUpload Pipelineを提供する。
//
// Submitはローカル検証のあと、次の手順を順番に実行し、最初の失敗で中止する。
//
//  1. サインイン中のIdentityを確認する
//  2. 管理者Roleを確認する
//  3. modelsバケットの存在を確認する
//  4. 識別子がカタログに未登録であることを確認する
//  5. ファイルを{unique_id}/{元ファイル名}にアップロードする
//  6. READMEを読み込むか、テンプレートから生成する
//  7. カタログ行を作成する
//
// 手順7が失敗しても、手順5でアップロードしたファイルは削除しない。
// 手順4は同時に同じ識別子で送信された場合の重複を防がない。その場合はサーバーの一意制約で7が失敗する。
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/smolhub/internal/client/notify"
	"github.com/hitoshi/smolhub/internal/model"
)

const (
	// DefaultBucket はモデルファイルを保存するバケット。
	DefaultBucket = "models"
	// DefaultMaxFileSize はモデルファイルの上限バイト数。
	DefaultMaxFileSize int64 = 50 * 1024 * 1024
	// DefaultStepTimeout は外部呼び出し1回ごとのタイムアウト。
	DefaultStepTimeout = 30 * time.Second
)

// IdentitySource はサインイン中のIdentityを返す。
type IdentitySource interface {
	GetCurrentIdentity(ctx context.Context) (*model.Identity, error)
}

// RoleResolver はIdentityのRoleを導出する。
type RoleResolver interface {
	Resolve(ctx context.Context, identity *model.Identity) (model.Role, error)
}

// Catalog はカタログ行の読み書き。
type Catalog interface {
	ModelExists(ctx context.Context, uniqueID string) (bool, error)
	InsertModel(ctx context.Context, artifact *model.ModelArtifact) (*model.ModelArtifact, error)
}

// BlobStore はオブジェクトストレージ。
type BlobStore interface {
	ListBuckets(ctx context.Context) ([]model.Bucket, error)
	Upload(ctx context.Context, bucket, path string, body io.Reader, size int64) error
}

// Config はPipelineの設定。
type Config struct {
	IDPolicy    IDPolicy
	Bucket      string        // 空の場合はDefaultBucket
	MaxFileSize int64         // 0の場合はDefaultMaxFileSize
	StepTimeout time.Duration // 0の場合はDefaultStepTimeout
}

// Pipeline はUpload Pipeline。
type Pipeline struct {
	identity IdentitySource
	roles    RoleResolver
	catalog  Catalog
	blobs    BlobStore
	config   Config
	logger   *slog.Logger
}

// NewPipeline はPipelineを生成する。
func NewPipeline(identity IdentitySource, roles RoleResolver, catalog Catalog, blobs BlobStore, config Config, logger *slog.Logger) *Pipeline {
	if config.IDPolicy == "" {
		config.IDPolicy = IDDerived
	}
	if config.Bucket == "" {
		config.Bucket = DefaultBucket
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = DefaultStepTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		identity: identity,
		roles:    roles,
		catalog:  catalog,
		blobs:    blobs,
		config:   config,
		logger:   logger,
	}
}

// IDPolicy は設定された識別子の決め方を返す。
func (p *Pipeline) IDPolicy() IDPolicy {
	return p.config.IDPolicy
}

// MaxFileSize はモデルファイルの上限バイト数を返す。
func (p *Pipeline) MaxFileSize() int64 {
	return p.config.MaxFileSize
}

// Submit はフォームを検証し、ファイルのアップロードとカタログ登録を行う。
// 成功時は作成されたカタログ行を返す。画面遷移は呼び出し側が行う。
func (p *Pipeline) Submit(ctx context.Context, form Form) (*model.ModelArtifact, error) {
	v, err := validate(form, p.config.IDPolicy, p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}

	identity, err := p.requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.requireAdmin(ctx, identity); err != nil {
		return nil, err
	}
	if err := p.requireBucket(ctx); err != nil {
		return nil, err
	}
	if err := p.requireUnusedID(ctx, v.uniqueID); err != nil {
		return nil, err
	}

	// READMEの読み込み失敗でオブジェクトだけが残らないよう、アップロードより前に読む
	readme, err := p.materializeReadme(v)
	if err != nil {
		return nil, err
	}

	filePath := v.uniqueID + "/" + v.file.Name
	if err := p.step(ctx, func(ctx context.Context) error {
		return p.blobs.Upload(ctx, p.config.Bucket, filePath, v.file.Content, v.file.Size)
	}); err != nil {
		return nil, model.NewUploadFailedError(err)
	}
	p.logger.Info("model file uploaded",
		slog.String("bucket", p.config.Bucket),
		slog.String("path", filePath),
		slog.Int64("size_bytes", v.file.Size),
	)

	var created *model.ModelArtifact
	if err := p.step(ctx, func(ctx context.Context) error {
		var err error
		created, err = p.catalog.InsertModel(ctx, &model.ModelArtifact{
			Name:          v.name,
			UniqueID:      v.uniqueID,
			FilePath:      filePath,
			SizeBytes:     v.file.Size,
			UpdateDate:    v.updateDate,
			ReadmeContent: readme,
			UploaderID:    identity.ID,
		})
		return err
	}); err != nil {
		p.logger.Warn("catalog insert failed after upload, object left in place",
			slog.String("path", filePath),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistFailedError(err)
	}

	return created, nil
}

// Message はSubmitの失敗をインライン表示する1つのメッセージに変換する。
func Message(err error) string {
	return notify.ErrorMessage(err)
}

// step は外部呼び出し1回をタイムアウト付きで実行する。
func (p *Pipeline) step(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.StepTimeout)
	defer cancel()
	return fn(ctx)
}

func (p *Pipeline) requireIdentity(ctx context.Context) (*model.Identity, error) {
	var identity *model.Identity
	err := p.step(ctx, func(ctx context.Context) error {
		var err error
		identity, err = p.identity.GetCurrentIdentity(ctx)
		return err
	})
	if err != nil || identity == nil {
		apiErr := model.NewNotAuthenticatedError()
		apiErr.Err = err
		return nil, apiErr
	}
	return identity, nil
}

// requireAdmin は管理者でなければNOT_AUTHORIZEDを返す。Roleの導出に失敗した場合も拒否する。
func (p *Pipeline) requireAdmin(ctx context.Context, identity *model.Identity) error {
	var r model.Role
	err := p.step(ctx, func(ctx context.Context) error {
		var err error
		r, err = p.roles.Resolve(ctx, identity)
		return err
	})
	if err != nil || r != model.RoleAdmin {
		apiErr := model.NewNotAuthorizedError()
		apiErr.Err = err
		return apiErr
	}
	return nil
}

func (p *Pipeline) requireBucket(ctx context.Context) error {
	var buckets []model.Bucket
	if err := p.step(ctx, func(ctx context.Context) error {
		var err error
		buckets, err = p.blobs.ListBuckets(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("failed to list buckets: %w", err)
	}

	for _, b := range buckets {
		if b.Name == p.config.Bucket {
			return nil
		}
	}
	return model.NewStorageUnconfiguredError()
}

func (p *Pipeline) requireUnusedID(ctx context.Context, uniqueID string) error {
	var exists bool
	if err := p.step(ctx, func(ctx context.Context) error {
		var err error
		exists, err = p.catalog.ModelExists(ctx, uniqueID)
		return err
	}); err != nil {
		return fmt.Errorf("failed to check model id: %w", err)
	}
	if exists {
		return model.NewDuplicateModelError(uniqueID)
	}
	return nil
}

// materializeReadme は添付されたREADMEを読み込むか、テンプレートから生成する。
func (p *Pipeline) materializeReadme(v *validated) (string, error) {
	if v.readme == nil {
		return generateReadme(v), nil
	}
	text, err := readText(v.readme)
	if err != nil {
		apiErr := model.NewValidationError("Failed to read README file: " + err.Error())
		apiErr.Err = err
		return "", apiErr
	}
	return text, nil
}
