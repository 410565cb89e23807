package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/models"
)

const (
	DefaultByteBudget = 10 << 20
	DefaultMaxBatch   = 100
	legacyPrefix      = "data_source_"
)

// Gateway fronts a vector index: it normalizes collection names, canonicalizes
// point ids and keeps upserts inside a byte budget.
type Gateway struct {
	index      Index
	dimension  int
	distance   models.Distance
	byteBudget int
	maxBatch   int
	scrollPage int
	logger     *slog.Logger
}

type Option func(*Gateway)

// WithByteBudget caps the estimated size of one upsert request.
func WithByteBudget(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.byteBudget = n
		}
	}
}

// WithMaxBatch caps the number of points in one upsert request.
func WithMaxBatch(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxBatch = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func NewGateway(index Index, dimension int, distance models.Distance, opts ...Option) *Gateway {
	if distance == "" {
		distance = models.DistanceCosine
	}
	g := &Gateway{
		index:      index,
		dimension:  dimension,
		distance:   distance,
		byteBudget: DefaultByteBudget,
		maxBatch:   DefaultMaxBatch,
		scrollPage: 256,
		logger:     slog.Default().With("component", "vectorstore"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Dimension() int { return g.dimension }

// NormalizeCollectionName maps any accepted spelling of a collection (bare id,
// legacy data_source_ prefix, canonical name) onto the canonical datasource_ form.
func NormalizeCollectionName(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, models.CollectionPrefix):
		return raw
	case strings.HasPrefix(raw, legacyPrefix):
		return models.CollectionPrefix + strings.TrimPrefix(raw, legacyPrefix)
	default:
		return models.CollectionPrefix + raw
	}
}

// CandidateNames lists the names tried for a collection, canonical first.
func CandidateNames(raw string) []string {
	raw = strings.TrimSpace(raw)
	bare := strings.TrimPrefix(strings.TrimPrefix(raw, models.CollectionPrefix), legacyPrefix)
	names := []string{NormalizeCollectionName(raw), raw, bare, legacyPrefix + bare}

	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if n == "" || n == legacyPrefix {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// EnsureCollection creates the collection if it is absent. An "already exists"
// answer from the backend counts as success.
func (g *Gateway) EnsureCollection(ctx context.Context, name string, dimension int, distance models.Distance) error {
	name = NormalizeCollectionName(name)
	if dimension <= 0 {
		dimension = g.dimension
	}
	if distance == "" {
		distance = g.distance
	}

	exists, err := g.index.CollectionExists(ctx, name)
	if err != nil {
		return core.E(core.KindCollectionOperationFailed, "ensureCollection", fmt.Errorf("check %s: %w", name, err))
	}
	if exists {
		return nil
	}

	err = g.index.CreateCollection(ctx, models.Collection{Name: name, Dimension: dimension, Distance: distance})
	if err != nil && !errors.Is(err, ErrCollectionExists) {
		return core.E(core.KindCollectionOperationFailed, "ensureCollection", fmt.Errorf("create %s: %w", name, err))
	}
	if err == nil {
		g.logger.Info("collection created", "collection", name, "dimension", dimension, "distance", distance)
	}
	return nil
}

// Upsert writes points in sequential, size-bounded batches, waiting for each
// batch to complete before sending the next. It returns the number written.
func (g *Gateway) Upsert(ctx context.Context, collection string, points []models.VectorPoint) (int, error) {
	collection = NormalizeCollectionName(collection)
	prepared := make([]models.VectorPoint, 0, len(points))
	for _, p := range points {
		payload, err := normalizePayload(p.Payload)
		if err != nil {
			return 0, core.E(core.KindCollectionOperationFailed, "upsert", fmt.Errorf("point %s: %w", p.ID, err))
		}
		prepared = append(prepared, models.VectorPoint{ID: PointID(p.ID), Vector: p.Vector, Payload: payload})
	}

	batches := g.planBatches(prepared)
	written := 0
	for i, batch := range batches {
		if err := g.index.Upsert(ctx, collection, batch, true); err != nil {
			return written, core.E(core.KindCollectionOperationFailed, "upsert",
				fmt.Errorf("%s batch %d/%d: %w", collection, i+1, len(batches), err))
		}
		written += len(batch)
	}
	return written, nil
}

// planBatches groups points greedily so each batch stays under the byte budget
// and the item ceiling. A single oversized point travels alone.
func (g *Gateway) planBatches(points []models.VectorPoint) [][]models.VectorPoint {
	var (
		batches [][]models.VectorPoint
		cur     []models.VectorPoint
		size    int
	)
	for _, p := range points {
		sz := pointSize(p)
		if len(cur) > 0 && (size+sz > g.byteBudget || len(cur) >= g.maxBatch) {
			batches = append(batches, cur)
			cur, size = nil, 0
		}
		cur = append(cur, p)
		size += sz
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// SearchResult names the collection that actually answered.
type SearchResult struct {
	Collection string             `json:"collection"`
	Hits       []models.SearchHit `json:"hits"`
}

// Search queries the first existing candidate name. A missing collection is
// not an error: the result is simply empty.
func (g *Gateway) Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int, threshold float32) (*SearchResult, error) {
	for _, name := range CandidateNames(collection) {
		exists, err := g.index.CollectionExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", name, err)
		}
		if !exists {
			continue
		}
		hits, err := g.index.Search(ctx, name, vector, filter, limit, threshold)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", name, err)
		}
		return &SearchResult{Collection: name, Hits: hits}, nil
	}

	notFound := core.E(core.KindSearchCollectionNotFound, "search", fmt.Errorf("%s: %w", collection, ErrCollectionNotFound))
	g.logger.Warn("search returned no collection", "collection", collection, "err", notFound)
	return &SearchResult{Collection: NormalizeCollectionName(collection)}, nil
}

// Count returns the number of points, zero if the collection does not exist.
func (g *Gateway) Count(ctx context.Context, collection string) (int, error) {
	exists, err := g.index.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return 0, err
	}
	return g.index.Count(ctx, collection)
}

// DeleteStale removes chunks at or beyond keepBelow, left over from an earlier
// run that produced more chunks than the current one.
func (g *Gateway) DeleteStale(ctx context.Context, collection string, keepBelow int) error {
	collection = NormalizeCollectionName(collection)
	filter := Filter{Must: []Condition{Gte("metadata.chunkIndex", int64(keepBelow))}}
	if err := g.index.DeletePoints(ctx, collection, filter); err != nil {
		return core.E(core.KindCollectionOperationFailed, "deleteStale", fmt.Errorf("%s: %w", collection, err))
	}
	return nil
}

// CopyCollection copies every point of from into to, creating to if needed.
// Points are re-keyed to the chunk identity they would have in to, so a later
// run against to overwrites them and a repeated copy is harmless.
func (g *Gateway) CopyCollection(ctx context.Context, from, to string) (int, error) {
	to = NormalizeCollectionName(to)
	if err := g.EnsureCollection(ctx, to, g.dimension, g.distance); err != nil {
		return 0, err
	}

	copied := 0
	offset := ""
	for {
		page, next, err := g.index.Scroll(ctx, from, offset, g.scrollPage)
		if err != nil {
			return copied, core.E(core.KindCollectionOperationFailed, "copy", fmt.Errorf("scroll %s: %w", from, err))
		}
		if len(page) > 0 {
			for k := range page {
				page[k].ID = copiedPointKey(from, to, page[k])
			}
			n, err := g.Upsert(ctx, to, page)
			copied += n
			if err != nil {
				return copied, err
			}
		}
		if next == "" {
			return copied, nil
		}
		offset = next
	}
}

// copiedPointKey uses metadata.chunkIndex when the point carries one and
// otherwise derives a key from the source collection and the old id.
func copiedPointKey(from, to string, p models.VectorPoint) string {
	if v, ok := lookup(p.Payload, "metadata.chunkIndex"); ok {
		if idx, ok := toInt64(v); ok && idx >= 0 {
			return ChunkKey(to, int(idx))
		}
	}
	return from + ":" + p.ID
}

// MigrateLegacy copies the first non-empty legacy collection into canonical,
// but only while canonical holds no points. Legacy collections are never
// deleted. It returns the migrated name, or "" when nothing was done.
func (g *Gateway) MigrateLegacy(ctx context.Context, legacy []string, canonical string) (string, int, error) {
	canonical = NormalizeCollectionName(canonical)
	have, err := g.Count(ctx, canonical)
	if err != nil {
		return "", 0, fmt.Errorf("count %s: %w", canonical, err)
	}
	if have > 0 {
		return "", 0, nil
	}

	for _, name := range legacy {
		if name == "" || name == canonical {
			continue
		}
		n, err := g.Count(ctx, name)
		if err != nil {
			return "", 0, fmt.Errorf("count %s: %w", name, err)
		}
		if n == 0 {
			continue
		}
		copied, err := g.CopyCollection(ctx, name, canonical)
		if err != nil {
			return name, copied, err
		}
		g.logger.Info("legacy collection migrated", "from", name, "to", canonical, "points", copied)
		return name, copied, nil
	}
	return "", 0, nil
}
