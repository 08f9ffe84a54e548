package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/model"
)

// RowClient はsmolhub-serverの行ストア（/rest/v1）のアダプター。
type RowClient struct {
	client *Client
	tokens TokenFunc
}

// NewRowClient はRowClientを生成する。tokensがnilの場合は匿名でリクエストする。
func NewRowClient(client *Client, tokens TokenFunc) *RowClient {
	return &RowClient{client: client, tokens: tokens}
}

func (c *RowClient) authorized(ctx context.Context, r request) (request, error) {
	t, err := token(ctx, c.tokens)
	if err != nil {
		return request{}, err
	}
	r.token = t
	return r, nil
}

// Profile はプロフィールを返す。
func (c *RowClient) Profile(ctx context.Context, id string) (*model.Profile, error) {
	req, err := c.authorized(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/profiles/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, err
	}

	var p api.Profile
	if err := c.client.do(ctx, req, &p); err != nil {
		return nil, err
	}
	return p.Model(), nil
}

// FindRole はuser_rolesの行を返す。行がない場合は(nil, nil)。
// role.Lookupを満たす。
func (c *RowClient) FindRole(ctx context.Context, userID string) (*model.UserRole, error) {
	req, err := c.authorized(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/user_roles/" + url.PathEscape(userID),
	})
	if err != nil {
		return nil, err
	}

	var row api.UserRole
	if err := c.client.do(ctx, req, &row); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &model.UserRole{UserID: row.UserID, Role: row.Role}, nil
}

// InsertRole はuser_rolesの行を作成する。
func (c *RowClient) InsertRole(ctx context.Context, row model.UserRole) error {
	req, err := jsonRequest(http.MethodPost, "/rest/v1/user_roles", api.UserRole{UserID: row.UserID, Role: row.Role})
	if err != nil {
		return err
	}
	if req, err = c.authorized(ctx, req); err != nil {
		return err
	}
	return c.client.do(ctx, req, nil)
}

// ListModels はカタログを新しい順に返す。limitが0の場合はサーバーの既定値。
func (c *RowClient) ListModels(ctx context.Context, limit, offset int) ([]*model.ModelArtifact, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	req, err := c.authorized(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/models",
		query:  query,
	})
	if err != nil {
		return nil, err
	}

	var rows []api.ModelArtifact
	if err := c.client.do(ctx, req, &rows); err != nil {
		return nil, err
	}

	artifacts := make([]*model.ModelArtifact, 0, len(rows))
	for _, row := range rows {
		a, err := row.Model()
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", row.UniqueID, err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// FindModel はunique_idでカタログ行を返す。存在しない場合は(nil, nil)。
func (c *RowClient) FindModel(ctx context.Context, uniqueID string) (*model.ModelArtifact, error) {
	req, err := c.authorized(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/models/" + url.PathEscape(uniqueID),
	})
	if err != nil {
		return nil, err
	}

	var row api.ModelArtifact
	if err := c.client.do(ctx, req, &row); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return row.Model()
}

// ModelExists はunique_idがカタログに存在するかどうかを返す。
func (c *RowClient) ModelExists(ctx context.Context, uniqueID string) (bool, error) {
	a, err := c.FindModel(ctx, uniqueID)
	if err != nil {
		return false, err
	}
	return a != nil, nil
}

// InsertModel はカタログ行を作成し、サーバーが採番した行を返す。
func (c *RowClient) InsertModel(ctx context.Context, artifact *model.ModelArtifact) (*model.ModelArtifact, error) {
	if artifact == nil {
		return nil, fmt.Errorf("insert model: artifact is nil")
	}
	req, err := jsonRequest(http.MethodPost, "/rest/v1/models", api.ArtifactFromModel(artifact))
	if err != nil {
		return nil, err
	}
	if req, err = c.authorized(ctx, req); err != nil {
		return nil, err
	}

	var row api.ModelArtifact
	if err := c.client.do(ctx, req, &row); err != nil {
		return nil, err
	}
	return row.Model()
}
