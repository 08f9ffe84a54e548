// Package download はカタログに登録されたモデルファイルをローカルに保存する。
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/security"
)

// DefaultBucket はモデルファイルの公開バケット。
const DefaultBucket = "models"

// DefaultTimeout はダウンロード1回全体のタイムアウト。
const DefaultTimeout = 10 * time.Minute

// Catalog はカタログ行の参照。
type Catalog interface {
	FindModel(ctx context.Context, uniqueID string) (*model.ModelArtifact, error)
}

// Objects は公開オブジェクトの取得。
type Objects interface {
	Download(ctx context.Context, bucket, path string) (io.ReadCloser, int64, error)
}

// Options はDownloaderの設定。
type Options struct {
	Bucket   string    // 空の場合はDefaultBucket
	Progress io.Writer // 進捗の出力先。nilの場合は出力しない
	Logger   *slog.Logger
}

// Downloader はモデルファイルのダウンローダー。
type Downloader struct {
	catalog  Catalog
	objects  Objects
	bucket   string
	progress io.Writer
	logger   *slog.Logger
}

// NewDownloader はDownloaderを生成する。
func NewDownloader(catalog Catalog, objects Objects, opts Options) *Downloader {
	if opts.Bucket == "" {
		opts.Bucket = DefaultBucket
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Downloader{
		catalog:  catalog,
		objects:  objects,
		bucket:   opts.Bucket,
		progress: opts.Progress,
		logger:   opts.Logger,
	}
}

// Download はmodelIDのファイルをoutputDirに保存し、保存先のパスを返す。
// outputDirが存在しない場合は作成する。保存が完了するまでは一時ファイルに書き込む。
func (d *Downloader) Download(ctx context.Context, modelID, outputDir string) (string, error) {
	dest, err := d.download(ctx, modelID, outputDir)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return dest, nil
}

func (d *Downloader) download(ctx context.Context, modelID, outputDir string) (string, error) {
	if modelID == "" {
		return "", errors.New("model id is required")
	}
	if outputDir == "" {
		outputDir = "."
	}

	artifact, err := d.catalog.FindModel(ctx, modelID)
	if err != nil {
		return "", err
	}
	if artifact == nil {
		return "", model.NewNotFoundError(fmt.Sprintf("Model %q", modelID))
	}

	name := path.Base(artifact.FilePath)
	if artifact.FilePath == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("model %q has an invalid file path %q", modelID, artifact.FilePath)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	body, size, err := d.objects.Download(ctx, d.bucket, artifact.FilePath)
	if err != nil {
		return "", err
	}
	defer body.Close()

	dest := filepath.Join(outputDir, name)
	tmp, err := os.CreateTemp(outputDir, "."+name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	var w io.Writer = tmp
	var p *progress
	if d.progress != nil {
		p = newProgress(d.progress, modelID, size)
		w = io.MultiWriter(tmp, p)
	}

	written, err := io.Copy(w, body)
	if p != nil {
		p.done()
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("incomplete download: got %d of %d bytes", written, size)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", fmt.Errorf("move into place: %w", err)
	}
	committed = true

	d.logger.Info("model downloaded",
		slog.String("model_id", modelID),
		slog.String("path", dest),
		slog.Int64("size_bytes", written),
	)
	return dest, nil
}

// NewHTTPClient はダウンロード用のHTTPクライアントを返す。
// allowPrivateがfalseの場合はAPI URLを事前に検証し、
// プライベートネットワークへの接続を拒否するクライアントを使う。
func NewHTTPClient(apiURL string, allowPrivate bool, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if allowPrivate {
		return &http.Client{Timeout: timeout}, nil
	}

	target, err := security.ParseTarget(apiURL)
	if err != nil {
		if errors.Is(err, security.ErrBlockedTarget) {
			return nil, fmt.Errorf("api url rejected (set allow_private_network for local servers): %w", err)
		}
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	return target.Client(timeout), nil
}
