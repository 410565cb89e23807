package ingestion_engine

import (
	"github.com/markdave123-py/vectorsync/internal/core/identity"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// IngestConfig tunes the pipeline.
//
// TargetChars:     size each chunk grows toward (e.g., 1500).
// MinChars:        chunks shorter than this are dropped (e.g., 10).
// OverlapElements: elements repeated between consecutive text chunks.
// MaxRowsPerChunk: ceiling on records per row chunk.
// Dimension:       vector size of the embedding model (1536 for text-embedding-3-small).
// Distance:        similarity metric of new collections.
// Mode:            what to do with tokens that resolve to nothing.
// QueueSize:       capacity of the in-memory job queue.
type IngestConfig struct {
	TargetChars     int
	MinChars        int
	OverlapElements int
	MaxRowsPerChunk int
	Dimension       int
	Distance        models.Distance
	Mode            identity.Mode
	QueueSize       int
}

func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		TargetChars:     1500,
		MinChars:        10,
		OverlapElements: 1,
		MaxRowsPerChunk: 50,
		Dimension:       1536,
		Distance:        models.DistanceCosine,
		Mode:            identity.Strict,
		QueueSize:       64,
	}
}

// Options are the per-call knobs of ProcessFile.
//
// ChunkSize:       overrides TargetChars when positive.
// ChunkOverlap:    overrides OverlapElements when non-nil.
// SkipRecordCheck: do not require the source row to exist.
// Lenient:         resolve unknown tokens to a pseudo id instead of failing.
// FileType:        overrides the declared type of the source.
type Options struct {
	ChunkSize       int             `json:"chunkSize,omitempty"`
	ChunkOverlap    *int            `json:"chunkOverlap,omitempty"`
	SkipRecordCheck bool            `json:"skipRecordCheck,omitempty"`
	Lenient         bool            `json:"lenient,omitempty"`
	FileType        models.FileType `json:"fileType,omitempty"`
}

// Job is one queued ProcessFile call.
type Job struct {
	ID        string  `json:"id"`
	FilePath  string  `json:"filePath"`
	SourceRef string  `json:"sourceRef"`
	Options   Options `json:"options"`
}
