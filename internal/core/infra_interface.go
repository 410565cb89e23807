package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// SourceReader looks up sources and token mappings. Missing rows return nil, nil.
type SourceReader interface {
	GetSource(ctx context.Context, id int64) (*models.Source, error)
	FindSourceByMetadataToken(ctx context.Context, token string) (*models.Source, error)
	SearchSourcesByText(ctx context.Context, needle string, limit int) ([]models.Source, error)
	GetTokenMapping(ctx context.Context, token string) (*models.TokenMapping, error)
}

// StatusWriter persists lifecycle changes of a source.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id int64, status models.SourceStatus, stage models.Stage, progress int, message string) error
	UpdateMetrics(ctx context.Context, id int64, metrics models.SourceMetrics) error
	MergeMetadata(ctx context.Context, id int64, patch map[string]any) error
	MarkStaleProcessing(ctx context.Context, olderThan time.Duration) ([]int64, error)
}

// RecordStore is the relational store holding sources, their status and token mappings.
type RecordStore interface {
	SourceReader
	StatusWriter
	CreateSource(ctx context.Context, src *models.Source) error
	PutTokenMapping(ctx context.Context, m models.TokenMapping) error
	Close() error
}

// RunLocker serializes pipeline runs for the same key across processes.
type RunLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// FileStore reads uploaded bytes by path.
type FileStore interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Materialize returns a local path for the file. cleanup removes any temp copy.
	Materialize(ctx context.Context, path string) (local string, cleanup func(), err error)
}

// Publisher emits progress events to whoever listens.
type Publisher interface {
	Publish(ctx context.Context, ev models.ProgressEvent) error
}
