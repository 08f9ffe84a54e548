// Package hub はsmolhub-serverのHTTP APIに対するアダプターを提供する。
//
// IdentityClientが認証、RowClientがprofiles/user_roles/modelsの行、
// BlobClientがオブジェクトストレージを担当する。
// サーバーが返すエラーはすべて*model.APIErrorに復元される。
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/model"
)

// maxErrorBodySize はエラーレスポンスとして読み込むボディの上限。
const maxErrorBodySize = 64 * 1024

// TokenFunc は現在のアクセストークンを返す。匿名の場合は空文字列。
type TokenFunc func(ctx context.Context) (string, error)

// Anonymous は常に匿名でリクエストするTokenFunc。
func Anonymous(context.Context) (string, error) { return "", nil }

// Client はsmolhub-serverへのHTTPリクエストの共通処理を行う。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient はClientを生成する。httpClientがnilの場合はhttp.DefaultClientを使う。
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: host is required", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, httpClient: httpClient}, nil
}

// BaseURL はAPIのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// request は1回のAPI呼び出しを表す。
type request struct {
	method      string
	path        string // エスケープ済みのパス
	query       url.Values
	body        io.Reader
	size        int64 // bodyのバイト数。JSONボディの場合は自動設定
	contentType string
	token       string
}

func (c *Client) endpoint(path string, query url.Values) string {
	raw := c.baseURL.String() + path
	if len(query) > 0 {
		raw += "?" + query.Encode()
	}
	return raw
}

func jsonRequest(method, path string, payload any) (request, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("failed to encode request: %w", err)
	}
	return request{
		method:      method,
		path:        path,
		body:        bytes.NewReader(b),
		size:        int64(len(b)),
		contentType: "application/json",
	}, nil
}

// send はリクエストを送信し、2xx以外のレスポンスを*model.APIErrorに変換する。
// 成功時のレスポンスは呼び出し側がCloseすること。
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if r.body != nil {
		req.ContentLength = r.size
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

// do はJSONレスポンスをoutにデコードする。outがnilの場合はボディを読み捨てる。
func (c *Client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", r.method, r.path, err)
	}
	return nil
}

// decodeError はエラーレスポンスのボディを*model.APIErrorに復元する。
// 統一フォーマットでない場合はステータスコードから組み立てる。
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	var body api.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		return body.APIError()
	}

	var apiErr *model.APIError
	switch resp.StatusCode {
	case http.StatusNotFound:
		apiErr = model.NewNotFoundError("Resource")
	case http.StatusUnauthorized:
		apiErr = model.NewNotAuthenticatedError()
	default:
		apiErr = model.NewInternalError()
		apiErr.Message = fmt.Sprintf("unexpected response status %d", resp.StatusCode)
	}
	apiErr.Err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	return apiErr
}

// isNotFound はerrがNOT_FOUNDのAPIエラーかどうかを返す。
func isNotFound(err error) bool {
	return model.HasCode(err, model.ErrCodeNotFound)
}

// escapePath はオブジェクトパスをセグメントごとにエスケープする。
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// token はTokenFuncを呼び出す。nilの場合は匿名。
func token(ctx context.Context, fn TokenFunc) (string, error) {
	if fn == nil {
		return "", nil
	}
	t, err := fn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	return t, nil
}
