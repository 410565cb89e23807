package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/core/tokenizer"
	"github.com/markdave123-py/vectorsync/internal/models"
	"github.com/markdave123-py/vectorsync/internal/testutil"
)

func makeChunks(n int) []models.Chunk {
	out := make([]models.Chunk, n)
	for i := range out {
		out[i] = models.Chunk{Index: i, Text: fmt.Sprintf("chunk number %d", i)}
	}
	return out
}

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if waits != nil {
			*waits = append(*waits, d)
		}
		return nil
	}
}

func TestPlaceholderIsUnitLength(t *testing.T) {
	v := Placeholder(1536)
	require.Len(t, v, 1536)
	var sum float64
	for _, c := range v {
		sum += float64(c) * float64(c)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
	assert.Nil(t, Placeholder(0))
}

func TestEmbed_BatchesAndProgress(t *testing.T) {
	emb := testutil.NewEmbedder(8)
	b := NewBatcher(emb, WithBatchSize(4), WithPause(0), WithSleep(noSleep(nil)))

	var (
		sizes   []int
		percent []int
	)
	stats, err := b.Embed(context.Background(), makeChunks(10),
		func(_ context.Context, batch Batch) error {
			sizes = append(sizes, len(batch.Items))
			assert.Equal(t, 3, batch.Of)
			return nil
		},
		func(processed, total, p int) { percent = append(percent, p) },
	)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, []int{40, 80, 99}, percent)
	assert.Equal(t, Stats{Total: 10, Embedded: 10, Batches: 3}, stats)
	assert.Equal(t, 3, emb.CallCount())
}

func TestEmbed_FailedBatchGetsPlaceholders(t *testing.T) {
	var calls atomic.Int32
	emb := testutil.NewEmbedder(4)
	emb.EmbedFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("provider unavailable")
		}
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = testutil.HashVector(t, 4)
		}
		return out, nil
	}

	b := NewBatcher(emb, WithBatchSize(2), WithMaxRetries(0), WithPause(0), WithSleep(noSleep(nil)))
	items, stats, err := b.EmbedAll(context.Background(), makeChunks(6))
	require.NoError(t, err)
	require.Len(t, items, 6)

	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 4, stats.Embedded)
	assert.False(t, items[0].Placeholder)
	assert.True(t, items[2].Placeholder)
	assert.True(t, items[3].Placeholder)
	assert.Equal(t, Placeholder(4), items[2].Vector)
	assert.Equal(t, "chunk number 3", items[3].Chunk.Text)
	assert.False(t, items[5].Placeholder)
}

func TestEmbed_RetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	emb := testutil.NewEmbedder(4)
	emb.EmbedFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) <= 3 {
			return nil, errors.New("429 too many requests")
		}
		return [][]float32{testutil.HashVector(texts[0], 4)}, nil
	}

	var waits []time.Duration
	b := NewBatcher(emb, WithMaxRetries(4), WithPause(0), WithSleep(noSleep(&waits)))
	items, stats, err := b.EmbedAll(context.Background(), makeChunks(1))
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Failed)
	assert.False(t, items[0].Placeholder)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, waits)
}

func TestBackoffIsCapped(t *testing.T) {
	b := NewBatcher(testutil.NewEmbedder(1))
	assert.Equal(t, 2*time.Second, b.backoff(1))
	assert.Equal(t, 16*time.Second, b.backoff(4))
	assert.Equal(t, 32*time.Second, b.backoff(6))
	assert.Equal(t, 32*time.Second, b.backoff(60))
}

func TestEmbed_CountMismatchAndWrongDimension(t *testing.T) {
	emb := testutil.NewEmbedder(3)
	emb.EmbedFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 2 {
			return [][]float32{{1, 2, 3}}, nil
		}
		return [][]float32{{1, 2, 3}, {1, 2}, {4, 5, 6}}, nil
	}

	b := NewBatcher(emb, WithBatchSize(3), WithMaxRetries(0), WithPause(0))
	items, stats, err := b.EmbedAll(context.Background(), makeChunks(5))
	require.NoError(t, err)

	assert.False(t, items[0].Placeholder)
	assert.True(t, items[1].Placeholder)
	assert.False(t, items[2].Placeholder)
	assert.True(t, items[3].Placeholder)
	assert.True(t, items[4].Placeholder)
	assert.Equal(t, 3, stats.Failed)
}

func TestEmbed_SinkErrorStopsRun(t *testing.T) {
	emb := testutil.NewEmbedder(2)
	b := NewBatcher(emb, WithBatchSize(1), WithPause(0))

	sinkErr := core.E(core.KindCollectionOperationFailed, "upsert", errors.New("qdrant down"))
	calls := 0
	_, err := b.Embed(context.Background(), makeChunks(3), func(context.Context, Batch) error {
		calls++
		return sinkErr
	}, nil)

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindCollectionOperationFailed))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, emb.CallCount())
}

func TestEmbed_TruncatesLongTexts(t *testing.T) {
	emb := testutil.NewEmbedder(2)
	b := NewBatcher(emb, WithPause(0), WithTokenLimit(tokenizer.Estimator{}, 5))

	long := models.Chunk{Text: strings.Repeat("w", 100)}
	items, _, err := b.EmbedAll(context.Background(), []models.Chunk{long})
	require.NoError(t, err)

	assert.Len(t, emb.Calls[0][0], 20)
	assert.Equal(t, long.Text, items[0].Chunk.Text)
}

func TestEmbed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBatcher(testutil.NewEmbedder(2), WithPause(0))
	_, err := b.Embed(ctx, makeChunks(2), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
