package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/vectorsync/internal/config"
	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// metadataTokenKeys are the metadata fields an upload token may have been
// recorded under.
var metadataTokenKeys = []string{"uuid", "token", "upload_id", "file_id"}

type DatabaseClient struct {
	db *sql.DB
}

var _ Client = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg.Database)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends certificate verification to the URL when a CA cert is configured.
func buildDSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.URL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if cfg.SslCertPath == "" {
		return cfg.URL, nil
	}
	if _, err := os.Stat(cfg.SslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", cfg.SslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DB exposes the pool for the pgvector index and the advisory locker.
func (c *DatabaseClient) DB() *sql.DB { return c.db }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const sourceColumns = `
	id, name, description, file_path, type, status, stage, progress,
	record_count, chunk_count, vectors_stored, last_error, metadata, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.Source, error) {
	var (
		s    models.Source
		meta []byte
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.Description, &s.FilePath, &s.DeclaredType, &s.Status, &s.Stage, &s.ProgressPercent,
		&s.Metrics.RecordCount, &s.Metrics.ChunkCount, &s.Metrics.VectorsStored, &s.LastError, &meta,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("source %d metadata: %w", s.ID, err)
		}
	}
	return &s, nil
}

func (c *DatabaseClient) CreateSource(ctx context.Context, src *models.Source) error {
	if src == nil {
		return errors.New("nil source")
	}
	meta, err := json.Marshal(orEmpty(src.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if src.Status == "" {
		src.Status = models.StatusQueued
	}
	const q = `
		INSERT INTO data_sources (name, description, file_path, type, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING id, created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		src.Name, src.Description, src.FilePath, string(src.DeclaredType), string(src.Status), string(meta),
	).Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt)
}

func (c *DatabaseClient) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM data_sources WHERE id = $1`, id)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// FindSourceByMetadataToken returns the newest source carrying token under
// one of the well-known metadata keys.
func (c *DatabaseClient) FindSourceByMetadataToken(ctx context.Context, token string) (*models.Source, error) {
	preds := make([]string, len(metadataTokenKeys))
	for i, k := range metadataTokenKeys {
		preds[i] = fmt.Sprintf("metadata->>'%s' = $1", k)
	}
	q := `SELECT ` + sourceColumns + ` FROM data_sources WHERE ` + strings.Join(preds, " OR ") + ` ORDER BY id DESC LIMIT 1`
	s, err := scanSource(c.db.QueryRowContext(ctx, q, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (c *DatabaseClient) SearchSourcesByText(ctx context.Context, needle string, limit int) ([]models.Source, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT ` + sourceColumns + `
		FROM data_sources
		WHERE name ILIKE $1 OR description ILIKE $1 OR metadata::text ILIKE $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, likePattern(needle), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// likePattern matches needle anywhere, treating LIKE wildcards in it literally.
func likePattern(needle string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(needle) + "%"
}

func (c *DatabaseClient) GetTokenMapping(ctx context.Context, token string) (*models.TokenMapping, error) {
	var m models.TokenMapping
	err := c.db.QueryRowContext(ctx,
		`SELECT token, source_id, created_at FROM datasource_token_mappings WHERE token = $1`, token,
	).Scan(&m.Token, &m.SourceID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// PutTokenMapping is write-once: an existing mapping for the token is kept.
func (c *DatabaseClient) PutTokenMapping(ctx context.Context, m models.TokenMapping) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO datasource_token_mappings (token, source_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`
	_, err := c.db.ExecContext(ctx, q, m.Token, m.SourceID, m.CreatedAt)
	return err
}

func (c *DatabaseClient) UpdateStatus(ctx context.Context, id int64, status models.SourceStatus, stage models.Stage, progress int, message string) error {
	const q = `
		UPDATE data_sources
		SET status = $2::text, stage = $3, progress = $4,
		    last_error = CASE WHEN $2::text = 'error' THEN $5 ELSE last_error END,
		    updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, string(status), string(stage), progress, message)
	return affected(res, err, id)
}

func (c *DatabaseClient) UpdateMetrics(ctx context.Context, id int64, m models.SourceMetrics) error {
	const q = `
		UPDATE data_sources
		SET record_count = $2, chunk_count = $3, vectors_stored = $4, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, m.RecordCount, m.ChunkCount, m.VectorsStored)
	return affected(res, err, id)
}

// MergeMetadata shallow-merges patch into the stored metadata object.
func (c *DatabaseClient) MergeMetadata(ctx context.Context, id int64, patch map[string]any) error {
	body, err := json.Marshal(orEmpty(patch))
	if err != nil {
		return fmt.Errorf("encode metadata patch: %w", err)
	}
	const q = `
		UPDATE data_sources
		SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, string(body))
	return affected(res, err, id)
}

// MarkStaleProcessing fails sources stuck in processing for longer than
// olderThan and returns their ids.
func (c *DatabaseClient) MarkStaleProcessing(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	const q = `
		UPDATE data_sources
		SET status = 'error', stage = 'failed', last_error = 'abandoned: no progress for ' || $2::text, updated_at = now()
		WHERE status = 'processing' AND updated_at < now() - make_interval(secs => $1::float8)
		RETURNING id
	`
	rows, err := c.db.QueryContext(ctx, q, olderThan.Seconds(), olderThan.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func affected(res sql.Result, err error, id int64) error {
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("source %d: %w", id, core.ErrSourceNotFound)
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
