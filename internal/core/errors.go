package core

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies pipeline failures so callers can tell absorbed failures
// from fatal ones without parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnresolvedIdentity
	KindExtractionFailed
	KindChunkingProducedNothing
	KindEmbeddingBatchFailed
	KindCollectionOperationFailed
	KindSearchCollectionNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUnresolvedIdentity:
		return "UnresolvedIdentity"
	case KindExtractionFailed:
		return "ExtractionFailed"
	case KindChunkingProducedNothing:
		return "ChunkingProducedNothing"
	case KindEmbeddingBatchFailed:
		return "EmbeddingBatchFailed"
	case KindCollectionOperationFailed:
		return "CollectionOperationFailed"
	case KindSearchCollectionNotFound:
		return "SearchCollectionNotFound"
	default:
		return "Unknown"
	}
}

// Fatal reports whether a failure of this kind stops a pipeline run.
func (k Kind) Fatal() bool {
	switch k {
	case KindEmbeddingBatchFailed, KindSearchCollectionNotFound:
		return false
	}
	return true
}

var ErrSourceNotFound = errors.New("source not found")

// Error is a classified failure raised by one operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds a classified error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StrategyError is the reason one extraction strategy gave up.
type StrategyError struct {
	Strategy string
	Err      error
}

// ExtractionError lists why every strategy of a chain failed.
type ExtractionError struct {
	FileType string
	Attempts []StrategyError
}

func (e *ExtractionError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("no extraction strategy registered for %s", e.FileType)
	}
	return fmt.Sprintf("all %d strategies failed for %s [%s]", len(parts), e.FileType, strings.Join(parts, "; "))
}

func (e *ExtractionError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Err)
	}
	return out
}
