package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// Stage percentages. Embedding batches fill the band between EmbeddingStart
// and EmbeddingEnd.
const (
	PercentStarted    = 0
	PercentExtracting = 10
	PercentChunked    = 25
	EmbeddingStart    = 30
	EmbeddingEnd      = 99
	PercentCompleted  = 100
)

// Tracker writes lifecycle changes back to the record store and publishes
// them. Neither failure aborts a run: both are logged and dropped.
type Tracker struct {
	store  core.StatusWriter
	pub    core.Publisher
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func NewTracker(store core.StatusWriter, pub core.Publisher, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		pub:    pub,
		now:    time.Now,
		logger: slog.Default().With("component", "progress"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run is the progress of one pipeline run. Its percentage never decreases.
type Run struct {
	t  *Tracker
	id int64

	mu        sync.Mutex
	status    models.SourceStatus
	stage     models.Stage
	percent   int
	processed int
	total     int
	done      bool
}

// Start moves the source to processing/started.
func (t *Tracker) Start(ctx context.Context, sourceID int64) *Run {
	r := &Run{t: t, id: sourceID}
	r.set(ctx, models.StatusProcessing, models.StageStarted, PercentStarted, "")
	return r
}

func (r *Run) Percent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.percent
}

// Stage records a stage transition while processing.
func (r *Run) Stage(ctx context.Context, stage models.Stage, percent int, message string) {
	r.set(ctx, models.StatusProcessing, stage, percent, message)
}

// Batch reports an embedded and stored batch. batchPercent is the batcher's
// own 0-99 figure and is mapped into the embedding band.
func (r *Run) Batch(ctx context.Context, processed, total, batchPercent int) {
	r.mu.Lock()
	r.processed, r.total = processed, total
	r.mu.Unlock()
	overall := EmbeddingStart + min(max(batchPercent, 0), 99)*(EmbeddingEnd-EmbeddingStart)/99
	r.set(ctx, models.StatusProcessing, models.StageEmbedding, overall, "")
}

// SetTotal announces how many chunks the embedding stage will handle.
func (r *Run) SetTotal(total int) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
}

// Complete marks the run finished with a terminal success status.
func (r *Run) Complete(ctx context.Context, status models.SourceStatus, message string) {
	r.set(ctx, status, models.StageCompleted, PercentCompleted, message)
}

// Fail moves the source straight to error, keeping the last percentage.
func (r *Run) Fail(ctx context.Context, err error) {
	msg := "processing failed"
	if err != nil {
		msg = err.Error()
	}
	r.set(ctx, models.StatusError, models.StageFailed, -1, msg)
}

func (r *Run) set(ctx context.Context, status models.SourceStatus, stage models.Stage, percent int, message string) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	if percent > r.percent {
		r.percent = min(percent, PercentCompleted)
	}
	r.status, r.stage = status, stage
	r.done = status.Terminal()
	ev := models.ProgressEvent{
		ID:              r.id,
		Status:          status,
		Stage:           stage,
		Progress:        r.percent,
		ProcessedChunks: r.processed,
		TotalChunks:     r.total,
		Message:         message,
		Timestamp:       r.t.now().UTC(),
	}
	r.mu.Unlock()

	r.t.emit(ctx, ev)
}

func (t *Tracker) emit(ctx context.Context, ev models.ProgressEvent) {
	if t.store != nil && ev.ID > 0 {
		err := t.store.UpdateStatus(ctx, ev.ID, ev.Status, ev.Stage, ev.Progress, ev.Message)
		switch {
		case errors.Is(err, core.ErrSourceNotFound):
			t.logger.Debug("status write-back skipped, source row missing", "source_id", ev.ID)
		case err != nil:
			t.logger.Error("status write-back failed", "source_id", ev.ID, "stage", ev.Stage, "err", err)
		}
	}
	if t.pub != nil {
		if err := t.pub.Publish(ctx, ev); err != nil {
			t.logger.Warn("publish progress event", "source_id", ev.ID, "err", err)
		}
	}
}

// ReapStale moves sources stuck in processing longer than olderThan to error
// and announces each of them.
func (t *Tracker) ReapStale(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	ids, err := t.store.MarkStaleProcessing(ctx, olderThan)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		t.logger.Warn("abandoned run moved to error", "source_id", id, "older_than", olderThan)
		if t.pub == nil {
			continue
		}
		ev := models.ProgressEvent{
			ID:        id,
			Status:    models.StatusError,
			Stage:     models.StageFailed,
			Message:   "abandoned",
			Timestamp: t.now().UTC(),
		}
		if err := t.pub.Publish(ctx, ev); err != nil {
			t.logger.Warn("publish progress event", "source_id", id, "err", err)
		}
	}
	return ids, nil
}

// Janitor calls ReapStale every interval until ctx is done.
func (t *Tracker) Janitor(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.ReapStale(ctx, olderThan); err != nil {
				t.logger.Error("reap stale runs", "err", err)
			}
		}
	}
}
