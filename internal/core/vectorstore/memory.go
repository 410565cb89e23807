package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// MemoryIndex is an in-process Index used for tests and single-node runs.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	def    models.Collection
	points map[string]models.VectorPoint
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memCollection)}
}

var _ Index = (*MemoryIndex)(nil)

func (m *MemoryIndex) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MemoryIndex) CreateCollection(_ context.Context, c models.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[c.Name]; ok {
		return ErrCollectionExists
	}
	m.collections[c.Name] = &memCollection{def: c, points: make(map[string]models.VectorPoint)}
	return nil
}

func (m *MemoryIndex) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MemoryIndex) get(name string) (*memCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	return c, nil
}

func (m *MemoryIndex) Upsert(_ context.Context, collection string, points []models.VectorPoint, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if c.def.Dimension > 0 && len(p.Vector) != c.def.Dimension {
			return fmt.Errorf("point %s: vector dimension %d, collection expects %d", p.ID, len(p.Vector), c.def.Dimension)
		}
		c.points[p.ID] = models.VectorPoint{ID: p.ID, Vector: append([]float32(nil), p.Vector...), Payload: p.Payload}
	}
	return nil
}

func (m *MemoryIndex) sortedIDs(c *memCollection) []string {
	ids := make([]string, 0, len(c.points))
	for id := range c.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryIndex) Scroll(_ context.Context, collection, offset string, limit int) ([]models.VectorPoint, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(collection)
	if err != nil {
		return nil, "", err
	}
	ids := m.sortedIDs(c)
	start := sort.SearchStrings(ids, offset)
	end := min(start+limit, len(ids))

	out := make([]models.VectorPoint, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, c.points[id])
	}
	next := ""
	if end < len(ids) {
		next = ids[end]
	}
	return out, next, nil
}

func (m *MemoryIndex) Search(_ context.Context, collection string, vector []float32, filter Filter, limit int, threshold float32) ([]models.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}
	var hits []models.SearchHit
	for _, p := range c.points {
		if !filter.Matches(p.Payload) {
			continue
		}
		score := cosine(vector, p.Vector)
		if score < threshold {
			continue
		}
		hits = append(hits, models.SearchHit{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(collection)
	if err != nil {
		return 0, err
	}
	return len(c.points), nil
}

func (m *MemoryIndex) DeletePoints(_ context.Context, collection string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(collection)
	if err != nil {
		return err
	}
	for id, p := range c.points {
		if filter.Matches(p.Payload) {
			delete(c.points, id)
		}
	}
	return nil
}

func (m *MemoryIndex) Close() error { return nil }

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
