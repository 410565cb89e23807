package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/vectorsync/internal/models"
)

var (
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Condition matches one payload key. Keys may address nested values with dots
// ("metadata.chunkIndex"). Exactly one of Equals or AtLeast is set.
type Condition struct {
	Key     string
	Equals  any
	AtLeast *int64
}

// Filter is a conjunction of conditions.
type Filter struct {
	Must []Condition
}

func (f Filter) Empty() bool { return len(f.Must) == 0 }

// Eq builds an equality condition.
func Eq(key string, v any) Condition { return Condition{Key: key, Equals: v} }

// Gte builds a lower-bound condition on an integer payload value.
func Gte(key string, n int64) Condition { return Condition{Key: key, AtLeast: &n} }

// Index is a vector index backend holding named collections of points.
type Index interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CreateCollection returns ErrCollectionExists if the name is taken.
	CreateCollection(ctx context.Context, c models.Collection) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []models.VectorPoint, wait bool) error
	// Scroll pages through points ordered by id. An empty next offset ends the scan.
	Scroll(ctx context.Context, collection, offset string, limit int) (points []models.VectorPoint, next string, err error)
	Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int, threshold float32) ([]models.SearchHit, error)
	Count(ctx context.Context, collection string) (int, error)
	DeletePoints(ctx context.Context, collection string, filter Filter) error
	Close() error
}

// lookup resolves a dotted key inside a payload.
func lookup(payload map[string]any, key string) (any, bool) {
	var cur any = payload
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), float32(int64(n)) == n
	case float64:
		return int64(n), float64(int64(n)) == n
	}
	return 0, false
}

// Matches evaluates the filter against a payload.
func (f Filter) Matches(payload map[string]any) bool {
	for _, c := range f.Must {
		v, ok := lookup(payload, c.Key)
		if !ok {
			return false
		}
		if c.AtLeast != nil {
			n, ok := toInt64(v)
			if !ok || n < *c.AtLeast {
				return false
			}
			continue
		}
		if a, ok := toInt64(v); ok {
			if b, ok := toInt64(c.Equals); ok {
				if a != b {
					return false
				}
				continue
			}
		}
		if fmt.Sprint(v) != fmt.Sprint(c.Equals) {
			return false
		}
	}
	return true
}
