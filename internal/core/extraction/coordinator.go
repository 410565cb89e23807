package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// ErrNoContent is returned by a strategy that ran but found nothing usable.
var ErrNoContent = errors.New("no content extracted")

// Strategy is one way of reading a file format.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, path string) (*models.Content, error)
}

// Coordinator runs the fixed strategy chain registered for a file type and
// returns the first non-empty result.
type Coordinator struct {
	chains map[models.FileType][]Strategy
	logger *slog.Logger
}

var _ core.ContentExtractor = (*Coordinator)(nil)

type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		chains: make(map[models.FileType][]Strategy),
		logger: slog.Default().With("component", "extraction"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register appends strategies to the chain of a file type, in order.
func (c *Coordinator) Register(ft models.FileType, strategies ...Strategy) {
	c.chains[ft] = append(c.chains[ft], strategies...)
}

// Chain returns the strategy names registered for a file type.
func (c *Coordinator) Chain(ft models.FileType) []string {
	names := make([]string, 0, len(c.chains[ft]))
	for _, s := range c.chains[ft] {
		names = append(names, s.Name())
	}
	return names
}

// Extract walks the chain until a strategy yields content. Empty output counts
// as a failure so the next strategy gets its turn. Only when every strategy
// fails does it report ExtractionFailed, carrying each reason.
func (c *Coordinator) Extract(ctx context.Context, path string, ft models.FileType) (*models.Content, error) {
	failure := &core.ExtractionError{FileType: string(ft)}

	for _, s := range c.chains[ft] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := runStrategy(ctx, s, path)
		if err == nil && content.Empty() {
			err = ErrNoContent
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("extraction strategy failed", "strategy", s.Name(), "path", path, "err", err)
			failure.Attempts = append(failure.Attempts, core.StrategyError{Strategy: s.Name(), Err: err})
			continue
		}

		content.Type = ft
		content.Strategy = s.Name()
		c.logger.Info("extraction succeeded", "strategy", s.Name(), "path", path,
			"records", content.RecordCount(), "elements", len(content.Elements))
		return content, nil
	}

	return nil, core.E(core.KindExtractionFailed, "extract", failure)
}

// runStrategy turns a panic inside a third-party parser into an error.
func runStrategy(ctx context.Context, s Strategy, path string) (content *models.Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			content, err = nil, fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Extract(ctx, path)
}
