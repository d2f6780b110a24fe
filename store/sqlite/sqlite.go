// Package sqlite opens the default persistence backend: a single-file,
// pure-Go SQLite database via modernc.org/sqlite, no cgo required.
// Grounded on the driver usage in haasonsaas-nexus's sqlitevec backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agoraflow/agora/store"
)

// Open opens (creating if absent) the sqlite database at path and
// applies the schema. path may be ":memory:" for an ephemeral store,
// useful in tests and the CLI's one-shot `run` subcommand.
func Open(ctx context.Context, path string) (*store.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY under concurrent access

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store/sqlite: ping %s: %w", path, err)
	}
	if err := store.ApplySchema(ctx, sqlDB, store.DialectSQLite); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return store.New(sqlDB, store.DialectSQLite), nil
}
