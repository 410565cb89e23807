package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := E(KindCollectionOperationFailed, "upsert", errors.New("connection reset"))
	wrapped := fmt.Errorf("batch 3: %w", base)

	assert.Equal(t, KindCollectionOperationFailed, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindCollectionOperationFailed))
	assert.False(t, IsKind(nil, KindCollectionOperationFailed))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Contains(t, wrapped.Error(), "CollectionOperationFailed (upsert): connection reset")
}

func TestKindFatal(t *testing.T) {
	assert.False(t, KindEmbeddingBatchFailed.Fatal())
	assert.False(t, KindSearchCollectionNotFound.Fatal())
	assert.True(t, KindCollectionOperationFailed.Fatal())
	assert.True(t, KindExtractionFailed.Fatal())
}

func TestExtractionErrorListsEveryStrategy(t *testing.T) {
	ex := &ExtractionError{
		FileType: "pdf",
		Attempts: []StrategyError{
			{Strategy: "pdf.layout", Err: errors.New("no elements")},
			{Strategy: "pdf.text", Err: context.DeadlineExceeded},
		},
	}
	err := E(KindExtractionFailed, "extract", ex)

	assert.Contains(t, err.Error(), "pdf.layout: no elements")
	assert.Contains(t, err.Error(), "pdf.text")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var got *ExtractionError
	assert.True(t, errors.As(err, &got))
	assert.Len(t, got.Attempts, 2)
}
