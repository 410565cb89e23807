package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// PGVectorIndex implements Index on Postgres with the pgvector extension. The
// tables are created by the record store bootstrap script.
type PGVectorIndex struct {
	db *sql.DB
}

var _ Index = (*PGVectorIndex)(nil)

func NewPGVectorIndex(db *sql.DB) *PGVectorIndex {
	return &PGVectorIndex{db: db}
}

// Close is a no-op: the pool belongs to the record store.
func (p *PGVectorIndex) Close() error { return nil }

func (p *PGVectorIndex) CollectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vector_collections WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func (p *PGVectorIndex) CreateCollection(ctx context.Context, c models.Collection) error {
	const q = `
		INSERT INTO vector_collections (name, dimension, distance)
		VALUES ($1, $2, $3)
	`
	_, err := p.db.ExecContext(ctx, q, c.Name, c.Dimension, string(c.Distance))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrCollectionExists
	}
	return err
}

func (p *PGVectorIndex) DeleteCollection(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM vector_collections WHERE name = $1`, name)
	return err
}

// Upsert writes all points in one transaction. wait is implied: the call
// returns after commit.
func (p *PGVectorIndex) Upsert(ctx context.Context, collection string, points []models.VectorPoint, _ bool) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO vector_points (collection, id, embedding, payload, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload, updated_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, pt := range points {
		payload, err := json.Marshal(pt.Payload)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("point %s payload: %w", pt.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, pt.ID, pgvector.NewVector(pt.Vector), payload); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (p *PGVectorIndex) Scroll(ctx context.Context, collection, offset string, limit int) ([]models.VectorPoint, string, error) {
	const q = `
		SELECT id, embedding, payload
		FROM vector_points
		WHERE collection = $1 AND id >= $2
		ORDER BY id ASC
		LIMIT $3
	`
	rows, err := p.db.QueryContext(ctx, q, collection, offset, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []models.VectorPoint
	for rows.Next() {
		pt, err := scanPoint(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		next = out[limit].ID
		out = out[:limit]
	}
	return out, next, nil
}

func scanPoint(rows *sql.Rows) (models.VectorPoint, error) {
	var (
		pt      models.VectorPoint
		emb     pgvector.Vector
		payload []byte
	)
	if err := rows.Scan(&pt.ID, &emb, &payload); err != nil {
		return pt, err
	}
	pt.Vector = emb.Slice()
	if err := json.Unmarshal(payload, &pt.Payload); err != nil {
		return pt, fmt.Errorf("point %s payload: %w", pt.ID, err)
	}
	return pt, nil
}

// distanceExpr returns the ordering operator and the score expression for a metric.
func distanceExpr(d models.Distance) (op, score string) {
	switch d {
	case models.DistanceDot:
		return "<#>", "-(embedding <#> $2)"
	case models.DistanceEuclidean:
		return "<->", "-(embedding <-> $2)"
	default:
		return "<=>", "1 - (embedding <=> $2)"
	}
}

func (p *PGVectorIndex) Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int, threshold float32) ([]models.SearchHit, error) {
	var distance string
	if err := p.db.QueryRowContext(ctx, `SELECT distance FROM vector_collections WHERE name = $1`, collection).Scan(&distance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", collection, ErrCollectionNotFound)
		}
		return nil, err
	}
	op, score := distanceExpr(models.Distance(distance))

	args := []any{collection, pgvector.NewVector(vector)}
	where, args := filterSQL(filter, args)

	q := fmt.Sprintf(`
		SELECT id, payload, %s AS score
		FROM vector_points
		WHERE collection = $1%s
		ORDER BY embedding %s $2
		LIMIT %d
	`, score, where, op, limit)

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var (
			h       models.SearchHit
			payload []byte
			s       float64
		)
		if err := rows.Scan(&h.ID, &payload, &s); err != nil {
			return nil, err
		}
		if float32(s) < threshold {
			continue
		}
		h.Score = float32(s)
		if err := json.Unmarshal(payload, &h.Payload); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *PGVectorIndex) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM vector_points WHERE collection = $1`, collection).Scan(&n)
	return n, err
}

func (p *PGVectorIndex) DeletePoints(ctx context.Context, collection string, filter Filter) error {
	where, args := filterSQL(filter, []any{collection})
	_, err := p.db.ExecContext(ctx, `DELETE FROM vector_points WHERE collection = $1`+where, args...)
	return err
}

// filterSQL appends one predicate per condition, continuing the placeholder
// numbering after the existing args. Key paths travel as parameters.
func filterSQL(f Filter, args []any) (string, []any) {
	var b strings.Builder
	for _, c := range f.Must {
		args = append(args, "{"+strings.ReplaceAll(c.Key, ".", ",")+"}")
		pathArg := len(args)
		if c.AtLeast != nil {
			args = append(args, *c.AtLeast)
			fmt.Fprintf(&b, " AND (payload #>> $%d::text[])::numeric >= $%d", pathArg, len(args))
			continue
		}
		args = append(args, fmt.Sprint(c.Equals))
		fmt.Fprintf(&b, " AND payload #>> $%d::text[] = $%d", pathArg, len(args))
	}
	return b.String(), args
}
