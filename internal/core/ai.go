package core

import "context"

// EmbeddingProvider maps a batch of strings to fixed length vectors, one per input.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
