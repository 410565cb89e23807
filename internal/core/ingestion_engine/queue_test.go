package ingestion_engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Job{ID: "a"}))
	require.NoError(t, q.Push(ctx, Job{ID: "b"}))
	assert.Equal(t, 2, q.Len())

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Push(full, Job{ID: "c"}), context.DeadlineExceeded)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", job.ID)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Push(ctx, Job{ID: "d"}), ErrQueueClosed)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "datasource_1")
	require.NoError(t, err)

	other, err := k.Lock(ctx, "datasource_2")
	require.NoError(t, err)
	other()

	acquired := make(chan struct{})
	go func() {
		u, err := k.Lock(ctx, "datasource_1")
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second run entered while the first held the lock")
	case <-time.After(30 * time.Millisecond):
	}

	unlock()
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second run never acquired the lock")
	}
	require.Eventually(t, func() bool { return k.held("datasource_1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestKeyedMutex_CancelWhileWaiting(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "x")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, k.held("x"))
}
