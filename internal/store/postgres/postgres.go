// Package postgres wires the governance store ports to a Postgres
// database via lib/pq and the embedded golang-migrate schema in
// internal/store/migrate.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/r3e-network/agent-governance/internal/store"
	"github.com/r3e-network/agent-governance/internal/store/migrate"
	"github.com/r3e-network/agent-governance/internal/store/sqlstore"
)

// Open connects to url, applies the embedded migrations when
// migrateOnStart is true, and returns a ready-to-use *store.Store plus the
// underlying *sql.DB so the caller can own its lifecycle.
func Open(ctx context.Context, url string, minConns, maxConns int, connMaxLifetime time.Duration, migrateOnStart bool) (*store.Store, *sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if minConns > 0 {
		db.SetMaxIdleConns(minConns)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	if migrateOnStart {
		if err := migrate.Apply(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	return sqlstore.New(db, sqlstore.DialectPostgres).Bundle(), db, nil
}
