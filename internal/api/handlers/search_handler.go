package handlers

import (
	"net/http"

	"github.com/markdave123-py/vectorsync/internal/services"
)

type SearchHandler struct {
	svc *services.SourceService
}

func NewSearchHandler(svc *services.SourceService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Search handles POST /api/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req services.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health handles GET /api/healthz.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
