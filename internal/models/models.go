package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CollectionPrefix is prepended to the canonical source id to name its collection.
const CollectionPrefix = "datasource_"

// CollectionName returns the canonical collection for a source id.
func CollectionName(sourceID int64) string {
	return fmt.Sprintf("%s%d", CollectionPrefix, sourceID)
}

// FileType is the closed set of formats the pipeline knows how to read.
type FileType string

const (
	FileTypeCSV   FileType = "csv"
	FileTypeExcel FileType = "excel"
	FileTypePDF   FileType = "pdf"
	FileTypeDOCX  FileType = "docx"
)

// ParseFileType accepts a declared type or a file extension.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv", "tsv", "txt", "text/csv":
		return FileTypeCSV, nil
	case "excel", "xlsx", "xlsm", "xls", "spreadsheet":
		return FileTypeExcel, nil
	case "pdf", "application/pdf":
		return FileTypePDF, nil
	case "docx", "word", "doc":
		return FileTypeDOCX, nil
	}
	return "", fmt.Errorf("unsupported file type %q", s)
}

// FileTypeFromPath guesses the type from the file extension.
func FileTypeFromPath(path string) (FileType, bool) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", false
	}
	ft, err := ParseFileType(ext)
	return ft, err == nil
}

// Structured reports whether the type yields records rather than text elements.
func (f FileType) Structured() bool {
	return f == FileTypeCSV || f == FileTypeExcel
}

type SourceStatus string

const (
	StatusQueued       SourceStatus = "queued"
	StatusProcessing   SourceStatus = "processing"
	StatusConnected    SourceStatus = "connected"
	StatusCompleted    SourceStatus = "completed"
	StatusError        SourceStatus = "error"
	StatusDisconnected SourceStatus = "disconnected"
	StatusFailed       SourceStatus = "failed"
	StatusReady        SourceStatus = "ready"
)

// Terminal reports whether no further pipeline transitions are expected.
func (s SourceStatus) Terminal() bool {
	switch s {
	case StatusConnected, StatusCompleted, StatusError, StatusFailed, StatusReady:
		return true
	}
	return false
}

type Stage string

const (
	StageStarted    Stage = "started"
	StageExtracting Stage = "extracting"
	StageEmbedding  Stage = "embedding"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

type SourceMetrics struct {
	RecordCount   int `db:"record_count" json:"recordCount"`
	ChunkCount    int `db:"chunk_count" json:"chunkCount"`
	VectorsStored int `db:"vectors_stored" json:"vectorsStored"`
}

// Source is one uploaded file known to the record store.
type Source struct {
	ID              int64          `db:"id" json:"id"`
	Token           string         `db:"token" json:"token,omitempty"`
	Name            string         `db:"name" json:"name"`
	Description     string         `db:"description" json:"description,omitempty"`
	FilePath        string         `db:"file_path" json:"filePath"`
	DeclaredType    FileType       `db:"type" json:"type"`
	Status          SourceStatus   `db:"status" json:"status"`
	Stage           Stage          `db:"stage" json:"stage,omitempty"`
	ProgressPercent int            `db:"progress" json:"progress"`
	Metrics         SourceMetrics  `json:"metrics"`
	LastError       string         `db:"last_error" json:"lastError,omitempty"`
	Metadata        map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// TokenMapping pins an upload token to its canonical source id. Written once.
type TokenMapping struct {
	Token     string    `db:"token" json:"token"`
	SourceID  int64     `db:"source_id" json:"sourceId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type ElementType string

const (
	ElementParagraph ElementType = "paragraph"
	ElementTitle     ElementType = "title"
	ElementPageBreak ElementType = "pageBreak"
	ElementRow       ElementType = "row"
)

// ContentElement is one unit of extracted document text.
type ContentElement struct {
	Type ElementType    `json:"type"`
	Text string         `json:"text"`
	Page int            `json:"page"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Record is one row of tabular content. Values keeps nil for null-ish cells.
type Record struct {
	Index  int            `json:"index"`
	Values map[string]any `json:"values"`
}

type ColumnStats struct {
	Column string  `json:"column"`
	Unit   string  `json:"unit,omitempty"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// Sheet is a named table of records. CSV files produce a single sheet.
type Sheet struct {
	Name      string        `json:"name"`
	Columns   []string      `json:"columns"`
	Records   []Record      `json:"records"`
	TotalRows int           `json:"totalRows"`
	Truncated bool          `json:"truncated,omitempty"`
	Summary   string        `json:"summary,omitempty"`
	Stats     []ColumnStats `json:"stats,omitempty"`
}

// Content is the canonical extraction output: either sheets of records or
// an ordered list of text elements.
type Content struct {
	Type     FileType         `json:"type"`
	Strategy string           `json:"strategy"`
	Sheets   []Sheet          `json:"sheets,omitempty"`
	Elements []ContentElement `json:"elements,omitempty"`
	Skipped  []string         `json:"skipped,omitempty"`
}

// Structured reports whether the content holds records.
func (c *Content) Structured() bool {
	return len(c.Sheets) > 0
}

func (c *Content) RecordCount() int {
	n := 0
	for _, s := range c.Sheets {
		n += len(s.Records)
	}
	return n
}

// Empty reports whether there is nothing worth chunking.
func (c *Content) Empty() bool {
	if c == nil {
		return true
	}
	if c.RecordCount() > 0 {
		return false
	}
	for _, el := range c.Elements {
		if el.Type != ElementPageBreak && strings.TrimSpace(el.Text) != "" {
			return false
		}
	}
	return true
}

type RangeKind string

const (
	RangeRecords  RangeKind = "records"
	RangeElements RangeKind = "elements"
	RangeSummary  RangeKind = "summary"
	RangeText     RangeKind = "text"
)

// SourceRange locates a chunk in its input, half open: [Start, End).
type SourceRange struct {
	Kind  RangeKind `json:"kind"`
	Sheet string    `json:"sheet,omitempty"`
	Start int       `json:"start"`
	End   int       `json:"end"`
}

// Chunk is a bounded text segment handed to the embedding step.
type Chunk struct {
	Index    int            `json:"index"`
	Text     string         `json:"text"`
	Range    SourceRange    `json:"range"`
	Metadata map[string]any `json:"metadata"`
}

// VectorPoint is a stored (id, vector, payload) tuple.
type VectorPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceDot       Distance = "dot"
	DistanceEuclidean Distance = "euclid"
)

type Collection struct {
	Name      string   `json:"name"`
	Dimension int      `json:"dimension"`
	Distance  Distance `json:"distance"`
}

type SearchHit struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type ResultStatus string

const (
	ResultSuccess        ResultStatus = "success"
	ResultError          ResultStatus = "error"
	ResultPartialSuccess ResultStatus = "partial_success"
	ResultProcessing     ResultStatus = "processing"
)

type ResultMetadata struct {
	SourceID       int64  `json:"sourceId,omitempty"`
	RecordCount    int    `json:"recordCount"`
	ChunksStored   int    `json:"chunksStored"`
	FailedChunks   int    `json:"failedChunks"`
	VectorsStored  int    `json:"vectorsStored"`
	CollectionName string `json:"collectionName,omitempty"`
	Strategy       string `json:"strategy,omitempty"`
	ErrorKind      string `json:"errorKind,omitempty"`
	ProcessingTime string `json:"processingTime,omitempty"`
}

// ProcessingResult is what every pipeline entrypoint hands back to callers.
type ProcessingResult struct {
	Status   ResultStatus    `json:"status"`
	Chunks   int             `json:"chunks"`
	Message  string          `json:"message,omitempty"`
	Metadata *ResultMetadata `json:"metadata,omitempty"`
}

type ProgressEvent struct {
	ID              int64        `json:"id"`
	Status          SourceStatus `json:"status"`
	Stage           Stage        `json:"stage"`
	Progress        int          `json:"progress"`
	ProcessedChunks int          `json:"processedChunks"`
	TotalChunks     int          `json:"totalChunks"`
	Message         string       `json:"message,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}
