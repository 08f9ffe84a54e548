// Package storage はS3互換オブジェクトストレージへのアクセスを提供する。
// モデルファイルはバケット内の {unique_id}/{元ファイル名} に保存され、上書きされない。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/hitoshi/smolhub/internal/model"
)

var (
	// ErrObjectExists は同じキーのオブジェクトが既に存在する場合のエラー。
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound はオブジェクトが存在しない場合のエラー。
	ErrObjectNotFound = errors.New("object not found")
)

// S3API はBlobStoreが利用するS3クライアントのメソッド集合。
// テストではモックに差し替える。
type S3API interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config はS3クライアントの接続設定。
type Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Client は静的クレデンシャルでS3クライアントを生成する。
// MinIOなどS3互換ストレージではEndpointとUsePathStyleを指定する。
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Object は取得したオブジェクトの本体とメタデータ。
// 呼び出し側はBodyを必ずCloseすること。
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// BlobStore はモデルファイル用のオブジェクトストア。
type BlobStore struct {
	client S3API
}

// NewBlobStore は新しいBlobStoreを生成する。
func NewBlobStore(client S3API) *BlobStore {
	return &BlobStore{client: client}
}

// ListBuckets はバケット一覧を返す。
func (b *BlobStore) ListBuckets(ctx context.Context) ([]model.Bucket, error) {
	out, err := b.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	buckets := make([]model.Bucket, 0, len(out.Buckets))
	for _, bk := range out.Buckets {
		bucket := model.Bucket{Name: aws.ToString(bk.Name)}
		if bk.CreationDate != nil {
			bucket.CreatedAt = *bk.CreationDate
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

// HasBucket は指定名のバケットが存在するかどうかを返す。
func (b *BlobStore) HasBucket(ctx context.Context, name string) (bool, error) {
	buckets, err := b.ListBuckets(ctx)
	if err != nil {
		return false, err
	}
	for _, bk := range buckets {
		if bk.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Exists は指定キーのオブジェクトが存在するかどうかを返す。
func (b *BlobStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object: %w", err)
}

// Put はオブジェクトを保存する。既に同じキーがある場合はErrObjectExistsを返す。
// bodyはサイズが確定したシーク可能なストリームであること。
func (b *BlobStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	exists, err := b.Exists(ctx, bucket, key)
	if err != nil {
		return err
	}
	if exists {
		return ErrObjectExists
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		// HeadObjectとの間に書き込まれた場合もストレージ側で拒否させる
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if apiErrorCode(err) == "PreconditionFailed" {
			return ErrObjectExists
		}
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Get はオブジェクトを取得する。存在しない場合はErrObjectNotFoundを返す。
func (b *BlobStore) Get(ctx context.Context, bucket, key string) (*Object, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return &Object{
		Body:        out.Body,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// Ping はストレージへの疎通を確認する。ヘルスチェックで使用する。
func (b *BlobStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := b.ListBuckets(ctx)
	return err
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	switch apiErrorCode(err) {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
