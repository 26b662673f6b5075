package store

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a PostgreSQL connection pool. Leasing (LeaseQueuedMessages,
// LeaseForDevicePull) runs in a transaction. The other status writes, such as
// MarkSent, MarkDelivered and MarkFailed, are single UPDATE statements outside
// any transaction, and their timeline entries are inserted by a separate
// statement afterwards.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an existing connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// ErrNotFound is returned by single-row lookups that find no matching row.
type ErrNotFound struct{ Resource string }

func (e *ErrNotFound) Error() string { return e.Resource + " not found" }
