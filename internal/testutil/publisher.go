package testutil

import (
	"context"
	"sync"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// Publisher records every published progress event.
type Publisher struct {
	mu     sync.Mutex
	Events []models.ProgressEvent
}

func (p *Publisher) Publish(_ context.Context, ev models.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, ev)
	return nil
}

func (p *Publisher) Snapshot() []models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ProgressEvent(nil), p.Events...)
}
