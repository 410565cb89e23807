package chunking

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/core/tokenizer"
	"github.com/markdave123-py/vectorsync/internal/models"
)

const (
	DefaultTargetChars     = 1500
	DefaultMinChars        = 10
	DefaultMaxRowsPerChunk = 50
)

// Options tunes one chunking call.
//
// TargetChars:     size each chunk grows toward.
// MinChars:        chunks shorter than this are dropped.
// OverlapElements: trailing elements repeated at the start of the next chunk.
// MaxRowsPerChunk: ceiling on records per row chunk.
// Combine:         false emits one chunk per element.
type Options struct {
	TargetChars     int
	MinChars        int
	OverlapElements int
	MaxRowsPerChunk int
	Combine         bool
	Filename        string
	SourceID        int64
}

// DefaultOptions combines elements with one element of overlap.
func DefaultOptions() Options {
	return Options{
		TargetChars:     DefaultTargetChars,
		MinChars:        DefaultMinChars,
		OverlapElements: 1,
		MaxRowsPerChunk: DefaultMaxRowsPerChunk,
		Combine:         true,
	}
}

func (o Options) withDefaults() Options {
	if o.TargetChars <= 0 {
		o.TargetChars = DefaultTargetChars
	}
	if o.MinChars <= 0 {
		o.MinChars = DefaultMinChars
	}
	if o.MaxRowsPerChunk <= 0 {
		o.MaxRowsPerChunk = DefaultMaxRowsPerChunk
	}
	if o.OverlapElements < 0 {
		o.OverlapElements = 0
	}
	return o
}

// Engine turns extracted content into ordered chunks.
type Engine struct {
	counter tokenizer.Counter
	now     func() time.Time
	logger  *slog.Logger
}

type EngineOption func(*Engine)

func WithCounter(c tokenizer.Counter) EngineOption {
	return func(e *Engine) { e.counter = c }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		counter: tokenizer.Estimator{},
		now:     time.Now,
		logger:  slog.Default().With("component", "chunking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chunk splits content by its shape: records are grouped into row chunks,
// elements are accumulated at element boundaries. The naive splitter only
// runs when that produces nothing usable.
func (e *Engine) Chunk(content *models.Content, opts Options) ([]models.Chunk, error) {
	if content.Empty() {
		return nil, core.E(core.KindChunkingProducedNothing, "chunk", errors.New("content is empty"))
	}
	opts = opts.withDefaults()

	var chunks []models.Chunk
	if content.Structured() {
		chunks = chunkRecords(content, opts)
	} else {
		chunks = chunkElements(content.Elements, opts)
	}
	chunks = dropShort(chunks, opts.MinChars)

	if len(chunks) == 0 {
		e.logger.Warn("boundary chunking produced nothing, falling back to fixed-size split",
			"filename", opts.Filename, "source_id", opts.SourceID)
		var err error
		chunks, err = splitNaive(content, opts)
		if err != nil {
			return nil, core.E(core.KindChunkingProducedNothing, "chunk", err)
		}
		chunks = dropShort(chunks, opts.MinChars)
	}
	if len(chunks) == 0 {
		return nil, core.E(core.KindChunkingProducedNothing, "chunk",
			fmt.Errorf("no chunk reached %d characters", opts.MinChars))
	}

	e.annotate(chunks, opts)
	return chunks, nil
}

func dropShort(chunks []models.Chunk, minChars int) []models.Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if len([]rune(strings.TrimSpace(c.Text))) >= minChars {
			out = append(out, c)
		}
	}
	return out
}

// splitNaive joins all text and cuts it with the recursive character splitter.
func splitNaive(content *models.Content, opts Options) ([]models.Chunk, error) {
	var parts []string
	for _, s := range content.Sheets {
		for _, r := range s.Records {
			if t := serializeRecord(s.Columns, r); t != "" {
				parts = append(parts, t)
			}
		}
	}
	for _, el := range content.Elements {
		if el.Type != models.ElementPageBreak && strings.TrimSpace(el.Text) != "" {
			parts = append(parts, el.Text)
		}
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.TargetChars),
		textsplitter.WithChunkOverlap(opts.TargetChars/10),
	)
	pieces, err := splitter.SplitText(strings.Join(parts, "\n\n"))
	if err != nil {
		return nil, fmt.Errorf("fixed-size split: %w", err)
	}
	out := make([]models.Chunk, 0, len(pieces))
	for i, p := range pieces {
		out = append(out, models.Chunk{
			Text:  p,
			Range: models.SourceRange{Kind: models.RangeText, Start: i, End: i + 1},
		})
	}
	return out, nil
}

// annotate numbers the chunks and fills their traceability metadata.
func (e *Engine) annotate(chunks []models.Chunk, opts Options) {
	processedAt := e.now().UTC().Format(time.RFC3339)
	for i := range chunks {
		c := &chunks[i]
		c.Index = i
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		c.Metadata["chunkIndex"] = i
		c.Metadata["totalChunks"] = len(chunks)
		c.Metadata["filename"] = opts.Filename
		c.Metadata["processedAt"] = processedAt
		c.Metadata["sourceId"] = opts.SourceID
		c.Metadata["chunkType"] = string(c.Range.Kind)
		c.Metadata["tokenCount"] = e.counter.Count(c.Text)
		if c.Range.Sheet != "" {
			c.Metadata["sheet"] = c.Range.Sheet
		}
		switch c.Range.Kind {
		case models.RangeRecords:
			c.Metadata["recordStart"] = c.Range.Start
			c.Metadata["recordEnd"] = c.Range.End
		case models.RangeElements:
			c.Metadata["elementStart"] = c.Range.Start
			c.Metadata["elementEnd"] = c.Range.End
		}
	}
}
