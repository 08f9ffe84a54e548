package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/catalog"
	"github.com/hitoshi/smolhub/internal/middleware"
	"github.com/hitoshi/smolhub/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListModels(ctx context.Context, limit, offset int) ([]*model.ModelArtifact, error)
	GetModel(ctx context.Context, uniqueID string) (*model.ModelArtifact, error)
	CreateModel(ctx context.Context, caller *model.Principal, in catalog.CreateModelInput) (*model.ModelArtifact, error)
}

// ModelHandler はmodelsのHTTPハンドラー。
type ModelHandler struct {
	service CatalogServiceInterface
}

// NewModelHandler はModelHandlerを生成する。
func NewModelHandler(service CatalogServiceInterface) *ModelHandler {
	return &ModelHandler{service: service}
}

// ListModels はカタログを新しい順に返す。
// GET /rest/v1/models?limit=50&offset=0
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		handleServiceError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	artifacts, err := h.service.ListModels(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]api.ModelArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		resp = append(resp, api.ArtifactFromModel(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetModel はunique_idでカタログ行を返す。
// GET /rest/v1/models/{unique_id}
func (h *ModelHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.service.GetModel(r.Context(), chi.URLParam(r, "unique_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.ArtifactFromModel(artifact))
}

// CreateModel はカタログ行を作成する。管理者のみ。
// POST /rest/v1/models
func (h *ModelHandler) CreateModel(w http.ResponseWriter, r *http.Request) {
	var req api.ModelArtifact
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	var updateDate time.Time
	if req.UpdateDate != "" {
		d, err := time.Parse(model.DateLayout, req.UpdateDate)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("update_date must be YYYY-MM-DD"))
			return
		}
		updateDate = d
	}

	artifact, err := h.service.CreateModel(r.Context(), middleware.OptionalPrincipal(r.Context()), catalog.CreateModelInput{
		Name:          req.Name,
		UniqueID:      req.UniqueID,
		FilePath:      req.FilePath,
		SizeBytes:     req.Size,
		UpdateDate:    updateDate,
		ReadmeContent: req.ReadmeContent,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, api.ArtifactFromModel(artifact))
}

// queryInt はクエリパラメータを整数として読む。未指定の場合は0。
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, model.NewValidationError(key + " must be a non-negative integer")
	}
	return n, nil
}
