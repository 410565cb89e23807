package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/models"
)

const subscriberBuffer = 32

type subscriber struct {
	sourceID int64
	ch       chan models.ProgressEvent
}

// Broker fans events out to in-process subscribers. A subscriber that falls
// behind loses events rather than blocking the pipeline.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
	logger *slog.Logger
}

var _ core.Publisher = (*Broker)(nil)

func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[int]subscriber),
		logger: slog.Default().With("component", "broker"),
	}
}

// Subscribe returns events for sourceID, or for every source when sourceID
// is 0. Call cancel to stop receiving and close the channel.
func (b *Broker) Subscribe(sourceID int64) (<-chan models.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan models.ProgressEvent, subscriberBuffer)
	b.subs[id] = subscriber{sourceID: sourceID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broker) Publish(_ context.Context, ev models.ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.sourceID != 0 && s.sourceID != ev.ID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.logger.Debug("dropping event for slow subscriber", "source_id", ev.ID)
		}
	}
	return nil
}

// Subscribers is the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// RedisPublisher publishes events as JSON on a pub/sub channel so other
// processes can follow runs.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev models.ProgressEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Relay forwards events from a Redis channel into a local publisher, usually
// a Broker, until ctx is done.
func Relay(ctx context.Context, client redis.UniversalClient, channel string, to core.Publisher) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev models.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("ignoring malformed progress event", "channel", channel, "err", err)
				continue
			}
			_ = to.Publish(ctx, ev)
		}
	}
}

// LogPublisher writes every event to the structured log.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, ev models.ProgressEvent) error {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "progress",
		"source_id", ev.ID, "status", ev.Status, "stage", ev.Stage, "progress", ev.Progress,
		"processed", ev.ProcessedChunks, "total", ev.TotalChunks)
	return nil
}

// MultiPublisher publishes to every member and joins their errors.
type MultiPublisher []core.Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev models.ProgressEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
