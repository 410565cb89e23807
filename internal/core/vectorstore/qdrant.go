package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markdave123-py/vectorsync/internal/config"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// QdrantIndex implements Index over the Qdrant gRPC API.
type QdrantIndex struct {
	client *qdrant.Client
}

var _ Index = (*QdrantIndex)(nil)

func NewQdrantIndex(cfg config.VectorConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantUseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &QdrantIndex{client: client}, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func (q *QdrantIndex) CollectionExists(ctx context.Context, name string) (bool, error) {
	return q.client.CollectionExists(ctx, name)
}

func qdrantDistance(d models.Distance) qdrant.Distance {
	switch d {
	case models.DistanceDot:
		return qdrant.Distance_Dot
	case models.DistanceEuclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func (q *QdrantIndex) CreateCollection(ctx context.Context, c models.Collection) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(c.Dimension),
			Distance: qdrantDistance(c.Distance),
		}),
	})
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.AlreadyExists || strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return ErrCollectionExists
	}
	return err
}

func (q *QdrantIndex) DeleteCollection(ctx context.Context, name string) error {
	return q.client.DeleteCollection(ctx, name)
}

func toQdrantID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	return qdrant.NewIDUUID(id)
}

func fromQdrantID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points []models.VectorPoint, wait bool) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("point %s payload: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      toQdrantID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(wait),
		Points:         structs,
	})
	return err
}

func (q *QdrantIndex) Scroll(ctx context.Context, collection, offset string, limit int) ([]models.VectorPoint, string, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit + 1)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if offset != "" {
		req.Offset = toQdrantID(offset)
	}
	res, err := q.client.Scroll(ctx, req)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(res) > limit {
		next = fromQdrantID(res[limit].GetId())
		res = res[:limit]
	}
	out := make([]models.VectorPoint, 0, len(res))
	for _, p := range res {
		out = append(out, models.VectorPoint{
			ID:      fromQdrantID(p.GetId()),
			Vector:  p.GetVectors().GetVector().GetData(),
			Payload: fromValueMap(p.GetPayload()),
		})
	}
	return out, next, nil
}

func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int, threshold float32) ([]models.SearchHit, error) {
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if threshold > 0 {
		req.ScoreThreshold = qdrant.PtrOf(threshold)
	}
	if !filter.Empty() {
		req.Filter = toQdrantFilter(filter)
	}
	res, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(res))
	for _, p := range res {
		hits = append(hits, models.SearchHit{
			ID:      fromQdrantID(p.GetId()),
			Score:   p.GetScore(),
			Payload: fromValueMap(p.GetPayload()),
		})
	}
	return hits, nil
}

func (q *QdrantIndex) Count(ctx context.Context, collection string) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	return int(n), err
}

func (q *QdrantIndex) DeletePoints(ctx context.Context, collection string, filter Filter) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
	})
	return err
}

func toQdrantFilter(f Filter) *qdrant.Filter {
	conds := make([]*qdrant.Condition, 0, len(f.Must))
	for _, c := range f.Must {
		if c.AtLeast != nil {
			conds = append(conds, qdrant.NewRange(c.Key, &qdrant.Range{Gte: qdrant.PtrOf(float64(*c.AtLeast))}))
			continue
		}
		if n, ok := toInt64(c.Equals); ok {
			conds = append(conds, qdrant.NewMatchInt(c.Key, n))
			continue
		}
		switch v := c.Equals.(type) {
		case bool:
			conds = append(conds, qdrant.NewMatchBool(c.Key, v))
		default:
			conds = append(conds, qdrant.NewMatch(c.Key, fmt.Sprint(v)))
		}
	}
	return &qdrant.Filter{Must: conds}
}

func fromValueMap(m map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		return fromValueMap(k.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := k.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, fromValue(item))
		}
		return out
	default:
		return nil
	}
}
