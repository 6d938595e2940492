// Package sqlite applies the governance schema to a modernc.org/sqlite
// database for the DB_BACKEND=sqlite fallback path. It mirrors
// internal/store/migrate's Postgres schema with SQLite-compatible types;
// SQLite's dynamic typing makes a second golang-migrate dialect file
// redundant for a fallback this small, so it is applied directly instead.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
    uuid                TEXT PRIMARY KEY,
    agent_id            TEXT NOT NULL,
    display_name        TEXT,
    api_key_hash        BLOB NOT NULL,
    genesis_signature   BLOB,
    status              TEXT NOT NULL DEFAULT 'active',
    trust_tier          TEXT NOT NULL DEFAULT 'unknown',
    autonomous          INTEGER NOT NULL DEFAULT 0,
    tags                TEXT,
    created_at          TEXT NOT NULL,
    last_update_at      TEXT NOT NULL,
    archived_at         TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_agent_id_active
    ON identities (agent_id) WHERE status != 'archived';

CREATE TABLE IF NOT EXISTS session_bindings (
    session_key TEXT PRIMARY KEY,
    agent_uuid  TEXT NOT NULL,
    expires_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_state (
    agent_uuid                TEXT PRIMARY KEY,
    e                         REAL NOT NULL,
    i                         REAL NOT NULL,
    s                         REAL NOT NULL,
    v                         REAL NOT NULL,
    coherence                 REAL NOT NULL,
    risk_score                REAL NOT NULL,
    lambda1                   REAL NOT NULL,
    regime                    TEXT NOT NULL,
    margin                    TEXT NOT NULL,
    total_updates             INTEGER NOT NULL DEFAULT 0,
    lambda1_skip_count        INTEGER NOT NULL DEFAULT 0,
    locked_persistence_count  INTEGER NOT NULL DEFAULT 0,
    locked_streak             INTEGER NOT NULL DEFAULT 0,
    history                   TEXT,
    updated_at                TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dialectic_sessions (
    session_id               TEXT PRIMARY KEY,
    paused_agent_uuid        TEXT NOT NULL,
    reviewer_agent_uuid      TEXT NOT NULL,
    topic                    TEXT,
    phase                    TEXT NOT NULL,
    status                   TEXT NOT NULL,
    paused_agent_state_snap  TEXT NOT NULL,
    synthesis_attempts       INTEGER NOT NULL DEFAULT 0,
    resolution               TEXT,
    created_at               TEXT NOT NULL,
    updated_at                TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dialectic_sessions_paused_agent
    ON dialectic_sessions (paused_agent_uuid);

CREATE TABLE IF NOT EXISTS dialectic_messages (
    session_id           TEXT NOT NULL,
    seq                  INTEGER NOT NULL,
    author_uuid          TEXT NOT NULL,
    kind                 TEXT NOT NULL,
    timestamp            TEXT NOT NULL,
    reasoning            TEXT,
    root_cause           TEXT,
    proposed_conditions  TEXT,
    observed_metrics     TEXT,
    concerns             TEXT,
    agrees               INTEGER,
    signature            BLOB,
    PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS knowledge_notes (
    id            TEXT PRIMARY KEY,
    author_uuid   TEXT NOT NULL,
    summary       TEXT NOT NULL,
    details       TEXT,
    kind          TEXT NOT NULL,
    severity      TEXT,
    tags          TEXT,
    status        TEXT NOT NULL DEFAULT 'open',
    supersedes    TEXT,
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_notes_author ON knowledge_notes (author_uuid);

CREATE TABLE IF NOT EXISTS audit_events (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    ts            TEXT NOT NULL,
    actor_uuid    TEXT NOT NULL,
    action        TEXT NOT NULL,
    subject_uuid  TEXT,
    tags          TEXT,
    details       TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events (ts);
CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events (actor_uuid);

CREATE TABLE IF NOT EXISTS pattern_events (
    agent_uuid   TEXT NOT NULL,
    fingerprint  TEXT NOT NULL,
    ts           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pattern_events_agent ON pattern_events (agent_uuid, fingerprint);
`

// ApplySchema creates every table the governance store needs if it does not
// already exist.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
