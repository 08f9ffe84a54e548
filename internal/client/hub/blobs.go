package hub

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/model"
)

// BlobClient はsmolhub-serverのオブジェクトストレージ（/storage/v1）のアダプター。
type BlobClient struct {
	client *Client
	tokens TokenFunc
}

// NewBlobClient はBlobClientを生成する。
func NewBlobClient(client *Client, tokens TokenFunc) *BlobClient {
	return &BlobClient{client: client, tokens: tokens}
}

// ListBuckets はバケット名の一覧を返す。
func (c *BlobClient) ListBuckets(ctx context.Context) ([]model.Bucket, error) {
	t, err := token(ctx, c.tokens)
	if err != nil {
		return nil, err
	}

	var resp []api.Bucket
	if err := c.client.do(ctx, request{
		method: http.MethodGet,
		path:   "/storage/v1/bucket",
		token:  t,
	}, &resp); err != nil {
		return nil, err
	}

	buckets := make([]model.Bucket, 0, len(resp))
	for _, b := range resp {
		buckets = append(buckets, model.Bucket{Name: b.Name, CreatedAt: b.CreatedAt})
	}
	return buckets, nil
}

// Upload はbodyをbucket内のpathに保存する。sizeはbodyのバイト数。
// 既存のオブジェクトがある場合、サーバーはALREADY_EXISTSを返す。
func (c *BlobClient) Upload(ctx context.Context, bucket, path string, body io.Reader, size int64) error {
	t, err := token(ctx, c.tokens)
	if err != nil {
		return err
	}
	return c.client.do(ctx, request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapePath(path),
		body:        body,
		size:        size,
		contentType: "application/octet-stream",
		token:       t,
	}, nil)
}

// Download は公開バケットのオブジェクトを開く。戻り値のReadCloserは呼び出し側がCloseすること。
// サイズが不明な場合は-1を返す。
func (c *BlobClient) Download(ctx context.Context, bucket, path string) (io.ReadCloser, int64, error) {
	resp, err := c.client.send(ctx, request{
		method: http.MethodGet,
		path:   PublicObjectPath(bucket, path),
	})
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// PublicObjectPath は公開オブジェクトのURLパスを返す。
func PublicObjectPath(bucket, path string) string {
	return "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + escapePath(path)
}
