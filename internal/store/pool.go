package store

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"alertlens/internal/logger"
)

// pool is a fixed-size pool of SQLite connections with standard pragmas
// applied. Safe for concurrent use; individual connections are not, so
// each caller must take its own connection and put it back when done.
type pool struct {
	inner *sqlitex.Pool
	path  string
}

func openPool(path string, poolSize int) (*pool, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	if poolSize <= 0 {
		poolSize = 4
	}
	// In-memory databases are independent per connection, so the pool
	// must hold exactly one. The pool also rejects the bare ":memory:"
	// spelling; only the URI form opens.
	if path == ":memory:" {
		path = "file::memory:?mode=memory"
		poolSize = 1
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConn(conn)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}

	logger.Infof("sqlite pool opened: path=%s pool_size=%d", path, poolSize)
	return &pool{inner: inner, path: path}, nil
}

// prepareConn applies pragmas once per pooled connection. WAL mode gives
// concurrent readers while a single writer upserts.
func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return ensureSchema(conn)
}
