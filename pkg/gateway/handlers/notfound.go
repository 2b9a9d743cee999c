package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(struct {
		Error *core.Error `json:"error"`
	}{Error: &core.Error{
		Type:      core.ErrNotFound,
		Message:   "unknown route",
		RequestID: reqID,
	}})
}
