package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/core/identity"
	"github.com/markdave123-py/vectorsync/internal/core/vectorstore"
	"github.com/markdave123-py/vectorsync/internal/models"
	"github.com/markdave123-py/vectorsync/internal/testutil"
)

func TestProcessRequestOptions(t *testing.T) {
	overlap := 2
	opts, err := ProcessRequest{ChunkSize: 800, ChunkOverlap: &overlap, FileType: "xlsx", SkipRecordCheck: true}.options()
	require.NoError(t, err)
	assert.Equal(t, 800, opts.ChunkSize)
	assert.Equal(t, 2, *opts.ChunkOverlap)
	assert.Equal(t, models.FileTypeExcel, opts.FileType)
	assert.True(t, opts.SkipRecordCheck)

	negative := -1
	for name, req := range map[string]ProcessRequest{
		"chunk size": {ChunkSize: -5},
		"overlap":    {ChunkOverlap: &negative},
		"file type":  {FileType: "pptx"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := req.options()
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestFilterFrom(t *testing.T) {
	f := filterFrom(map[string]any{"metadata.sheet": "Sales", "sourceId": float64(42)})
	require.Len(t, f.Must, 2)
	assert.Equal(t, "metadata.sheet", f.Must[0].Key)
	assert.Equal(t, "sourceId", f.Must[1].Key)

	assert.True(t, f.Matches(map[string]any{"sourceId": int64(42), "metadata": map[string]any{"sheet": "Sales"}}))
	assert.False(t, f.Matches(map[string]any{"sourceId": int64(43), "metadata": map[string]any{"sheet": "Sales"}}))
	assert.Equal(t, vectorstore.Filter{}, filterFrom(nil))
}

func newSearchService(t *testing.T) (*SourceService, *vectorstore.Gateway, *testutil.RecordStore) {
	t.Helper()
	store := testutil.NewRecordStore()
	emb := testutil.NewEmbedder(4)
	gw := vectorstore.NewGateway(vectorstore.NewMemoryIndex(), 4, models.DistanceCosine)
	svc := NewSourceService(store, identity.NewResolver(store), nil, gw, emb, identity.Strict)
	return svc, gw, store
}

func seed(t *testing.T, gw *vectorstore.Gateway, collection, text, query string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, gw.EnsureCollection(ctx, collection, 4, models.DistanceCosine))
	_, err := gw.Upsert(ctx, collection, []models.VectorPoint{{
		ID:      vectorstore.ChunkKey(collection, 0),
		Vector:  testutil.HashVector(query, 4),
		Payload: map[string]any{"text": text},
	}})
	require.NoError(t, err)
}

func TestSearchResolvesTokenToCanonicalCollection(t *testing.T) {
	svc, gw, store := newSearchService(t)
	token := "3f9a1c2e-8d4b-4a6f-9e21-7c5d0b8a1f34"
	store.Add(models.Source{ID: 5, DeclaredType: models.FileTypeCSV, Metadata: map[string]any{"uuid": token}})

	query := "quarterly revenue"
	seed(t, gw, "datasource_"+token, "stale copy", query)
	seed(t, gw, "datasource_5", "current", query)

	resp, err := svc.Search(context.Background(), SearchRequest{Collection: token, Query: query})
	require.NoError(t, err)
	assert.Equal(t, "datasource_5", resp.Collection)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "current", resp.Hits[0].Payload["text"])
}

func TestSearchUnresolvedNameFallsBackToAlternateNames(t *testing.T) {
	svc, gw, _ := newSearchService(t)
	query := "open tickets"
	seed(t, gw, "datasource_legacy-upload", "from legacy", query)

	resp, err := svc.Search(context.Background(), SearchRequest{Collection: "legacy-upload", Query: query})
	require.NoError(t, err)
	assert.Equal(t, "datasource_legacy-upload", resp.Collection)
	require.Len(t, resp.Hits, 1)
}

func TestSearchNumericReferenceSkipsResolution(t *testing.T) {
	svc, gw, _ := newSearchService(t)
	query := "headcount"
	seed(t, gw, "datasource_123", "numbers", query)

	resp, err := svc.Search(context.Background(), SearchRequest{Collection: "123", Query: query})
	require.NoError(t, err)
	assert.Equal(t, "datasource_123", resp.Collection)
	assert.Len(t, resp.Hits, 1)
}

func TestSearchLenientModeKeepsRawName(t *testing.T) {
	svc, gw, _ := newSearchService(t)
	svc.mode = identity.Lenient
	query := "open tickets"
	seed(t, gw, "datasource_legacy-upload", "from legacy", query)

	resp, err := svc.Search(context.Background(), SearchRequest{Collection: "datasource_legacy-upload", Query: query})
	require.NoError(t, err)
	assert.Equal(t, "datasource_legacy-upload", resp.Collection)
	assert.Len(t, resp.Hits, 1)
}
