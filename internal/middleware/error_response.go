package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/model"
)

// WriteErrorResponse はapiErrをapi.ErrorBodyとして書き込む。クライアント(hub)はこれを*model.APIErrorに復元する。
// エラーレスポンスはキャッシュさせない。apiErrがnilの場合は内部エラーとして扱う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		statusCode, apiErr = http.StatusInternalServerError, model.NewInternalError()
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.NewErrorBody(apiErr))
}

// WriteInternalServerError は詳細を伏せた500を書き込む。原因はログにだけ残すこと。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
