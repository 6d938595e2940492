// Package sqlite wires the governance store ports to an embedded SQLite
// database via modernc.org/sqlite, for the DB_BACKEND=sqlite fallback path
// (single-node deployments, local development, tests).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/r3e-network/agent-governance/internal/store"
	"github.com/r3e-network/agent-governance/internal/store/sqlstore"
)

// Open opens (creating if needed) the SQLite database file at path,
// applies the embedded schema, and returns a ready-to-use *store.Store.
func Open(ctx context.Context, path string) (*store.Store, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under the governance daemon's moderate write concurrency.
	db.SetMaxOpenConns(1)

	if err := ApplySchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	return sqlstore.New(db, sqlstore.DialectSQLite).Bundle(), db, nil
}
