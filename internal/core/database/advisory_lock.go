package db

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/markdave123-py/vectorsync/internal/core"
)

// AdvisoryLocker serializes pipeline runs across processes with Postgres
// session advisory locks. Each held lock pins one pooled connection.
type AdvisoryLocker struct {
	db *sql.DB
}

var _ core.RunLocker = (*AdvisoryLocker)(nil)

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// advisoryKey maps a lock name onto the bigint key space of pg_advisory_lock.
func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("vectorsync:" + name))
	return int64(h.Sum64())
}

// Lock blocks until the lock for key is free or ctx is done.
func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock conn: %w", err)
	}
	id := advisoryKey(key)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, id); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock %s: %w", key, err)
	}

	return func() {
		// unlock even when the run's context is already cancelled
		uctx := context.WithoutCancel(ctx)
		if _, err := conn.ExecContext(uctx, `SELECT pg_advisory_unlock($1)`, id); err != nil {
			slog.Error("pg_advisory_unlock", "key", key, "err", err)
		}
		_ = conn.Close()
	}, nil
}
