package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/core/identity"
	"github.com/markdave123-py/vectorsync/internal/core/ingestion_engine"
	"github.com/markdave123-py/vectorsync/internal/core/vectorstore"
	"github.com/markdave123-py/vectorsync/internal/models"
)

var ErrInvalidRequest = errors.New("invalid request")

// maxSearchLimit caps caller supplied limits.
const maxSearchLimit = 1000

// SourceService is what the HTTP handlers and the CLI talk to.
type SourceService struct {
	store    core.SourceReader
	resolver *identity.Resolver
	ingestor *ingestion_engine.DocumentIngestor
	gateway  *vectorstore.Gateway
	embedder core.EmbeddingProvider
	mode     identity.Mode
}

func NewSourceService(store core.SourceReader, resolver *identity.Resolver, ing *ingestion_engine.DocumentIngestor,
	gw *vectorstore.Gateway, emb core.EmbeddingProvider, mode identity.Mode) *SourceService {
	return &SourceService{store: store, resolver: resolver, ingestor: ing, gateway: gw, embedder: emb, mode: mode}
}

type ProcessRequest struct {
	FilePath        string `json:"filePath"`
	ChunkSize       int    `json:"chunkSize"`
	ChunkOverlap    *int   `json:"chunkOverlap"`
	SkipRecordCheck bool   `json:"skipRecordCheck"`
	Lenient         bool   `json:"lenient"`
	FileType        string `json:"fileType"`
	Async           bool   `json:"async"`
}

func (r ProcessRequest) options() (ingestion_engine.Options, error) {
	opts := ingestion_engine.Options{
		ChunkSize:       r.ChunkSize,
		ChunkOverlap:    r.ChunkOverlap,
		SkipRecordCheck: r.SkipRecordCheck,
		Lenient:         r.Lenient,
	}
	if r.ChunkSize < 0 {
		return opts, fmt.Errorf("%w: chunkSize must not be negative", ErrInvalidRequest)
	}
	if r.ChunkOverlap != nil && *r.ChunkOverlap < 0 {
		return opts, fmt.Errorf("%w: chunkOverlap must not be negative", ErrInvalidRequest)
	}
	if r.FileType != "" {
		ft, err := models.ParseFileType(r.FileType)
		if err != nil {
			return opts, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		opts.FileType = ft
	}
	return opts, nil
}

// Process runs the pipeline for ref, or queues it when req.Async is set.
func (s *SourceService) Process(ctx context.Context, ref string, req ProcessRequest) (models.ProcessingResult, error) {
	if strings.TrimSpace(ref) == "" {
		return models.ProcessingResult{}, fmt.Errorf("%w: source reference is empty", ErrInvalidRequest)
	}
	opts, err := req.options()
	if err != nil {
		return models.ProcessingResult{}, err
	}
	if req.Async {
		return s.ingestor.Enqueue(ctx, req.FilePath, ref, opts)
	}
	return s.ingestor.ProcessFile(ctx, req.FilePath, ref, opts), nil
}

type SourceView struct {
	Source     *models.Source       `json:"source"`
	Resolution *identity.Resolution `json:"resolution"`
}

// Resolve maps ref without touching the source row.
func (s *SourceService) Resolve(ctx context.Context, ref string, lenient bool) (*identity.Resolution, error) {
	mode := s.mode
	if lenient {
		mode = identity.Lenient
	}
	return s.resolver.Resolve(ctx, ref, mode)
}

// Get returns the source behind ref with its status, progress and metrics.
func (s *SourceService) Get(ctx context.Context, ref string) (*SourceView, error) {
	res, err := s.resolver.Resolve(ctx, ref, identity.Strict)
	if err != nil {
		return nil, err
	}
	src, err := s.store.GetSource(ctx, res.SourceID)
	if err != nil {
		return nil, fmt.Errorf("load source %d: %w", res.SourceID, err)
	}
	if src == nil {
		return nil, fmt.Errorf("source %d: %w", res.SourceID, core.ErrSourceNotFound)
	}
	return &SourceView{Source: src, Resolution: res}, nil
}

type SearchRequest struct {
	Collection string         `json:"collection"`
	Query      string         `json:"query"`
	Limit      int            `json:"limit"`
	Threshold  *float32       `json:"threshold"`
	Filter     map[string]any `json:"filter"`
}

type SearchResponse struct {
	Plan       vectorstore.QueryPlan `json:"plan"`
	Collection string                `json:"collection"`
	Hits       []models.SearchHit    `json:"hits"`
}

// Search classifies the query to pick a limit and threshold, embeds it and
// searches the collection, falling back to legacy names when the canonical one is missing.
func (s *SourceService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Collection) == "" {
		return nil, fmt.Errorf("%w: collection is empty", ErrInvalidRequest)
	}

	plan := vectorstore.ClassifyQuery(req.Query)
	limit := plan.Limit
	if req.Limit > 0 {
		limit = min(req.Limit, maxSearchLimit)
	}
	threshold := plan.ScoreThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	collection, err := s.searchCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	res, err := s.gateway.Search(ctx, collection, vecs[0], filterFrom(req.Filter), limit, threshold)
	if err != nil {
		return nil, err
	}
	hits := res.Hits
	if hits == nil {
		hits = []models.SearchHit{}
	}
	return &SearchResponse{Plan: plan, Collection: res.Collection, Hits: hits}, nil
}

// searchCollection maps a token reference to its canonical collection so a
// legacy copy left behind by migration is never searched. Numeric and
// prefixed numeric references, and references that resolve to nothing, go to
// the gateway as given and try its alternate names.
func (s *SourceService) searchCollection(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if identity.IsCanonicalRef(ref) {
		return ref, nil
	}
	res, err := s.resolver.Resolve(ctx, ref, s.mode)
	if err != nil {
		if core.IsKind(err, core.KindUnresolvedIdentity) {
			return ref, nil
		}
		return "", fmt.Errorf("resolve collection %q: %w", ref, err)
	}
	if res.Via == identity.ViaPseudo {
		return ref, nil
	}
	return res.CollectionName, nil
}

// filterFrom turns {"metadata.sheet": "Sales"} into equality conditions.
func filterFrom(m map[string]any) vectorstore.Filter {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var f vectorstore.Filter
	for _, k := range keys {
		f.Must = append(f.Must, vectorstore.Eq(k, m[k]))
	}
	return f
}
