package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/core/tokenizer"
	"github.com/markdave123-py/vectorsync/internal/models"
)

const (
	DefaultBatchSize   = 50
	DefaultMaxRetries  = 2
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 32 * time.Second
	DefaultPause       = 200 * time.Millisecond
)

// Embedded pairs a chunk with its vector. Placeholder marks a substituted
// vector that should be re-embedded later.
type Embedded struct {
	Chunk       models.Chunk
	Vector      []float32
	Placeholder bool
}

// Batch is one embedded batch handed to the sink.
type Batch struct {
	Number    int
	Of        int
	Items     []Embedded
	Failed    int
	Processed int
	Total     int
}

// Sink receives each batch as soon as it is embedded. A sink error stops the run.
type Sink func(ctx context.Context, b Batch) error

// ProgressFunc is told after every stored batch. Percent never reaches 100;
// completion is reported by the caller.
type ProgressFunc func(processed, total, percent int)

type Stats struct {
	Total    int
	Embedded int
	Failed   int
	Batches  int
}

// Batcher embeds chunks in sequential fixed-size batches. A provider failure
// costs only the chunks of that batch, which get placeholder vectors.
type Batcher struct {
	provider    core.EmbeddingProvider
	batchSize   int
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	limiter     *rate.Limiter
	counter     tokenizer.Counter
	maxTokens   int
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

type Option func(*Batcher)

func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(b *Batcher) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

func WithBackoff(base, ceiling time.Duration) Option {
	return func(b *Batcher) { b.backoffBase, b.backoffMax = base, ceiling }
}

// WithPause spaces batch calls at least d apart. Zero disables pacing.
func WithPause(d time.Duration) Option {
	return func(b *Batcher) {
		if d <= 0 {
			b.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		b.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithTokenLimit truncates texts longer than maxTokens before they are sent.
func WithTokenLimit(counter tokenizer.Counter, maxTokens int) Option {
	return func(b *Batcher) { b.counter, b.maxTokens = counter, maxTokens }
}

// WithSleep replaces the backoff wait, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Batcher) { b.sleep = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Batcher) { b.logger = l }
}

func NewBatcher(provider core.EmbeddingProvider, opts ...Option) *Batcher {
	b := &Batcher{
		provider:    provider,
		batchSize:   DefaultBatchSize,
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		limiter:     rate.NewLimiter(rate.Every(DefaultPause), 1),
		counter:     tokenizer.Estimator{},
		sleep:       sleepCtx,
		logger:      slog.Default().With("component", "embedding"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Placeholder returns the unit vector with every component 1/sqrt(dim).
func Placeholder(dim int) []float32 {
	if dim <= 0 {
		return nil
	}
	v := make([]float32, dim)
	c := float32(1 / math.Sqrt(float64(dim)))
	for i := range v {
		v[i] = c
	}
	return v
}

// Embed runs every batch through the provider and hands it to sink before
// starting the next one. Only a sink error or cancellation stops it early.
func (b *Batcher) Embed(ctx context.Context, chunks []models.Chunk, sink Sink, progress ProgressFunc) (Stats, error) {
	stats := Stats{Total: len(chunks)}
	if len(chunks) == 0 {
		return stats, nil
	}
	batches := (len(chunks) + b.batchSize - 1) / b.batchSize

	for n := 0; n < batches; n++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return stats, err
		}

		start := n * b.batchSize
		end := min(start+b.batchSize, len(chunks))
		items, failed, err := b.embedBatch(ctx, n+1, chunks[start:end])
		if err != nil {
			return stats, err
		}

		stats.Batches++
		stats.Failed += failed
		stats.Embedded += len(items) - failed

		batch := Batch{
			Number:    n + 1,
			Of:        batches,
			Items:     items,
			Failed:    failed,
			Processed: end,
			Total:     len(chunks),
		}
		if sink != nil {
			if err := sink(ctx, batch); err != nil {
				return stats, fmt.Errorf("store batch %d/%d: %w", n+1, batches, err)
			}
		}
		if progress != nil {
			progress(end, len(chunks), min(end*100/len(chunks), 99))
		}
	}
	return stats, nil
}

// EmbedAll collects every embedded chunk in order.
func (b *Batcher) EmbedAll(ctx context.Context, chunks []models.Chunk) ([]Embedded, Stats, error) {
	out := make([]Embedded, 0, len(chunks))
	stats, err := b.Embed(ctx, chunks, func(_ context.Context, batch Batch) error {
		out = append(out, batch.Items...)
		return nil
	}, nil)
	return out, stats, err
}

// embedBatch calls the provider with retries. When the call keeps failing or
// answers with the wrong count, every chunk of the batch gets a placeholder.
// A single vector of the wrong dimension only costs its own chunk.
func (b *Batcher) embedBatch(ctx context.Context, number int, chunks []models.Chunk) ([]Embedded, int, error) {
	dim := b.provider.Dimension()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = b.counter.Truncate(c.Text, b.maxTokens)
	}

	var (
		vectors [][]float32
		err     error
	)
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			wait := b.backoff(attempt)
			b.logger.Info("retrying embedding batch", "batch", number, "attempt", attempt+1, "wait", wait)
			if serr := b.sleep(ctx, wait); serr != nil {
				return nil, 0, serr
			}
		}
		vectors, err = b.provider.EmbedTexts(ctx, texts)
		if err == nil && len(vectors) != len(texts) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))
		}
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
	}

	items := make([]Embedded, len(chunks))
	if err != nil {
		b.logger.Warn("embedding batch failed, storing placeholders",
			"batch", number, "chunks", len(chunks),
			"err", core.E(core.KindEmbeddingBatchFailed, "embed", err))
		for i, c := range chunks {
			items[i] = Embedded{Chunk: c, Vector: Placeholder(dim), Placeholder: true}
		}
		return items, len(chunks), nil
	}

	failed := 0
	for i, c := range chunks {
		v := vectors[i]
		if dim > 0 && len(v) != dim {
			b.logger.Warn("embedding has wrong dimension, storing placeholder",
				"batch", number, "chunk", c.Index, "got", len(v), "want", dim)
			items[i] = Embedded{Chunk: c, Vector: Placeholder(dim), Placeholder: true}
			failed++
			continue
		}
		items[i] = Embedded{Chunk: c, Vector: v}
	}
	return items, failed, nil
}

func (b *Batcher) backoff(attempt int) time.Duration {
	d := b.backoffBase
	for i := 1; i < attempt && d < b.backoffMax; i++ {
		d *= 2
	}
	return min(d, b.backoffMax)
}
