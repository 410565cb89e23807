package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/models"
	"github.com/markdave123-py/vectorsync/internal/testutil"
)

func TestBroker_FiltersBySource(t *testing.T) {
	b := NewBroker()
	all, cancelAll := b.Subscribe(0)
	one, cancelOne := b.Subscribe(7)
	defer cancelAll()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, models.ProgressEvent{ID: 7, Progress: 10}))
	require.NoError(t, b.Publish(ctx, models.ProgressEvent{ID: 8, Progress: 20}))

	assert.Equal(t, 10, (<-one).Progress)
	assert.Len(t, one, 0)
	assert.Equal(t, 10, (<-all).Progress)
	assert.Equal(t, 20, (<-all).Progress)

	cancelOne()
	cancelOne()
	_, open := <-one
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())
}

func TestBroker_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(0)
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, b.Publish(context.Background(), models.ProgressEvent{ID: 1, Progress: i}))
	}
	assert.Len(t, ch, subscriberBuffer)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, models.ProgressEvent) error {
	return errors.New("down")
}

func TestMultiPublisher(t *testing.T) {
	rec := &testutil.Publisher{}
	m := MultiPublisher{failingPublisher{}, nil, rec, LogPublisher{}}

	err := m.Publish(context.Background(), models.ProgressEvent{ID: 3})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, rec.Snapshot(), 1)
}
