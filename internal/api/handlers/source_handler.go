package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/vectorsync/internal/core/progress"
	"github.com/markdave123-py/vectorsync/internal/models"
	"github.com/markdave123-py/vectorsync/internal/services"
)

type SourceHandler struct {
	svc       *services.SourceService
	broker    *progress.Broker
	keepAlive time.Duration
}

func NewSourceHandler(svc *services.SourceService, broker *progress.Broker) *SourceHandler {
	return &SourceHandler{svc: svc, broker: broker, keepAlive: 15 * time.Second}
}

// Process handles POST /api/sources/{ref}/process. Synchronous runs answer
// 200 with the result, or 422 when the pipeline reported an error; queued
// runs answer 202.
func (h *SourceHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req services.ProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Process(r.Context(), chi.URLParam(r, "ref"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	switch res.Status {
	case models.ResultProcessing:
		status = http.StatusAccepted
	case models.ResultError:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// Get handles GET /api/sources/{ref}.
func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Events streams progress for one source as server-sent events, starting
// with the stored state, until the run reaches a terminal status or the
// client goes away. A source that is already terminal gets its stored state
// only, unless ?follow=true waits for the next run.
func (h *SourceHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	view, err := h.svc.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	src := view.Source

	events, cancel := h.broker.Subscribe(src.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial := models.ProgressEvent{
		ID:        src.ID,
		Status:    src.Status,
		Stage:     src.Stage,
		Progress:  src.ProgressPercent,
		Message:   src.LastError,
		Timestamp: src.UpdatedAt,
	}
	if err := writeEvent(w, initial); err != nil {
		return
	}
	flusher.Flush()
	if src.Status.Terminal() && r.URL.Query().Get("follow") != "true" {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Status.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev models.ProgressEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		slog.Error("encode progress event", "err", err)
		return err
	}
	_, err = fmt.Fprintf(w, "event: progress\ndata: %s\n\n", body)
	return err
}
