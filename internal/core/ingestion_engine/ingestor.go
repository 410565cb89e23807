package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/core/chunking"
	"github.com/markdave123-py/vectorsync/internal/core/embedding"
	"github.com/markdave123-py/vectorsync/internal/core/identity"
	"github.com/markdave123-py/vectorsync/internal/core/progress"
	"github.com/markdave123-py/vectorsync/internal/core/vectorstore"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// Deps are the collaborators of the ingestor, built once at startup.
//
// Files and Locker are optional: without Files paths are read from the local
// filesystem, without Locker runs are only serialized inside this process.
type Deps struct {
	Store     core.RecordStore
	Files     core.FileStore
	Resolver  *identity.Resolver
	Extractor core.ContentExtractor
	Chunker   *chunking.Engine
	Batcher   *embedding.Batcher
	Gateway   *vectorstore.Gateway
	Tracker   *progress.Tracker
	Locker    core.RunLocker
}

// DocumentIngestor runs the ingestion pipeline, either synchronously through
// ProcessFile or from a job queue drained by a worker pool.
type DocumentIngestor struct {
	deps     Deps
	cfg      *IngestConfig
	queue    JobQueue
	local    *keyedMutex
	onResult func(Job, models.ProcessingResult)
	inflight sync.WaitGroup
	logger   *slog.Logger
}

type Option func(*DocumentIngestor)

// WithQueue replaces the default in-memory queue.
func WithQueue(q JobQueue) Option {
	return func(i *DocumentIngestor) { i.queue = q }
}

// WithResultHook is called with the result of every queued job.
func WithResultHook(fn func(Job, models.ProcessingResult)) Option {
	return func(i *DocumentIngestor) { i.onResult = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *DocumentIngestor) { i.logger = l }
}

func NewDocumentIngestor(deps Deps, cfg *IngestConfig, opts ...Option) *DocumentIngestor {
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	i := &DocumentIngestor{
		deps:   deps,
		cfg:    cfg,
		local:  newKeyedMutex(),
		logger: slog.Default().With("component", "ingestor"),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.queue == nil {
		i.queue = NewMemoryQueue(cfg.QueueSize)
	}
	return i
}

// Start drains the queue with a pool of numWorkers goroutines until ctx is
// done or the queue is closed.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) error {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	pool, err := ants.NewPool(numWorkers)
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}

	go func() {
		defer pool.Release()
		for {
			job, err := i.queue.Pop(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
					i.logger.Info("ingestor shutting down")
					return
				}
				i.logger.Error("take job", "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			i.inflight.Add(1)
			if err := pool.Submit(func() {
				defer i.inflight.Done()
				i.runJob(ctx, job)
			}); err != nil {
				i.inflight.Done()
				i.logger.Error("submit job", "job", job.ID, "err", err)
			}
		}
	}()
	return nil
}

// Wait blocks until every submitted job has finished.
func (i *DocumentIngestor) Wait() { i.inflight.Wait() }

func (i *DocumentIngestor) runJob(ctx context.Context, job Job) {
	i.logger.Info("processing job", "job", job.ID, "source", job.SourceRef)
	res := i.ProcessFile(ctx, job.FilePath, job.SourceRef, job.Options)
	if res.Status == models.ResultError {
		i.logger.Error("job failed", "job", job.ID, "source", job.SourceRef, "message", res.Message)
	}
	if i.onResult != nil {
		i.onResult(job, res)
	}
}

// Enqueue schedules a run and answers right away with status processing.
// It blocks while an in-memory queue is full.
func (i *DocumentIngestor) Enqueue(ctx context.Context, filePath, rawRef string, opts Options) (models.ProcessingResult, error) {
	job := Job{ID: uuid.NewString(), FilePath: filePath, SourceRef: rawRef, Options: opts}
	if err := i.queue.Push(ctx, job); err != nil {
		return models.ProcessingResult{}, fmt.Errorf("enqueue: %w", err)
	}
	return models.ProcessingResult{
		Status:  models.ResultProcessing,
		Message: "queued as job " + job.ID,
	}, nil
}

// ProcessMany runs independent jobs concurrently, at most parallelism at a
// time. Results line up with jobs.
func (i *DocumentIngestor) ProcessMany(ctx context.Context, jobs []Job, parallelism int) []models.ProcessingResult {
	results := make([]models.ProcessingResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for n, job := range jobs {
		g.Go(func() error {
			results[n] = i.ProcessFile(gctx, job.FilePath, job.SourceRef, job.Options)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Close stops accepting jobs.
func (i *DocumentIngestor) Close() error {
	return i.queue.Close()
}
