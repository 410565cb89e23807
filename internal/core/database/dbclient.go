package db

import (
	"database/sql"

	"github.com/markdave123-py/vectorsync/internal/core"
)

// Client is the Postgres-backed record store. DB shares its pool with the
// pgvector index and the advisory run locker.
type Client interface {
	core.RecordStore
	DB() *sql.DB
}
