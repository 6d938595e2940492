// Package sqlstore implements every internal/store port against a plain
// *sql.DB, grounded on the teacher's pkg/storage/postgres.BaseStore query
// patterns (transaction-aware Querier, fmt.Sprintf table names, $N/?
// rebinding) but generalized to run over either Postgres (lib/pq) or
// SQLite (modernc.org/sqlite) from the same query text, since both
// backends' schemas (internal/store/migrate/sql, internal/store/sqlite)
// are kept column-identical on purpose.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/store"
	"github.com/r3e-network/agent-governance/pkg/storage/postgres"
)

// Dialect distinguishes the placeholder style a backend expects.
type Dialect int

const (
	// DialectSQLite uses "?" positional placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses "$1", "$2", ... placeholders.
	DialectPostgres
)

// Store implements every store.* port against db. Queries are always
// written with "?" placeholders and rebound per dialect before execution.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New builds a sqlstore.Store. Callers obtain one through
// internal/store/postgres.New or internal/store/sqlite.New rather than
// calling this directly.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Bundle returns a store.Store with every port backed by this instance.
func (s *Store) Bundle() *store.Store {
	return &store.Store{
		Identities:    (*identities)(s),
		Sessions:      (*sessionBindings)(s),
		AgentStates:   (*agentStates)(s),
		Dialectic:     (*dialecticSessions)(s),
		Notes:         (*notes)(s),
		Audit:         (*auditLog)(s),
		PatternEvents: (*patternEvents)(s),
	}
}

func (s *Store) rebind(query string) string {
	if s.dialect == DialectSQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return ""
	}
	return string(b)
}

func unmarshalJSON(raw sql.NullString, v any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), v)
}

// --- Identities ---

type identities Store

func (s *identities) Create(ctx context.Context, id *model.Identity) error {
	_, err := (*Store)(s).exec(ctx, `INSERT INTO identities
		(uuid, agent_id, display_name, api_key_hash, genesis_signature, status, trust_tier, autonomous, tags, created_at, last_update_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.UUID, id.AgentID, id.DisplayName, id.APIKeyHash, id.GenesisSignature,
		string(id.Status), string(id.TrustTier), boolToInt(id.Autonomous), marshalJSON(id.Tags),
		id.CreatedAt.UTC(), id.LastUpdateAt.UTC(), nullTime(id.ArchivedAt))
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// nullTime reuses the teacher's sql.NullTime conversion helpers (kept in
// pkg/storage/postgres as shared scan/bind utilities) so both dialects
// bind optional timestamps the same way.
func nullTime(t *time.Time) any {
	nt := postgres.PtrToNullTime(t)
	if !nt.Valid {
		return nil
	}
	return nt.Time.UTC()
}

func scanIdentity(row interface{ Scan(...any) error }) (*model.Identity, error) {
	var id model.Identity
	var tags sql.NullString
	var archivedAt sql.NullTime
	var autonomous int
	if err := row.Scan(&id.UUID, &id.AgentID, &id.DisplayName, &id.APIKeyHash, &id.GenesisSignature,
		&id.Status, &id.TrustTier, &autonomous, &tags, &id.CreatedAt, &id.LastUpdateAt, &archivedAt); err != nil {
		return nil, err
	}
	id.Autonomous = autonomous != 0
	id.ArchivedAt = postgres.NullTimeToPtr(archivedAt)
	if err := unmarshalJSON(tags, &id.Tags); err != nil {
		return nil, err
	}
	return &id, nil
}

const identityColumns = `uuid, agent_id, display_name, api_key_hash, genesis_signature, status, trust_tier, autonomous, tags, created_at, last_update_at, archived_at`

func (s *identities) GetByUUID(ctx context.Context, uuid string) (*model.Identity, error) {
	row := (*Store)(s).queryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE uuid = ?`, uuid)
	id, err := scanIdentity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get identity by uuid: %w", err)
	}
	return id, nil
}

func (s *identities) GetByAgentID(ctx context.Context, agentID string) (*model.Identity, error) {
	row := (*Store)(s).queryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE agent_id = ? ORDER BY created_at DESC LIMIT 1`, agentID)
	id, err := scanIdentity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get identity by agent_id: %w", err)
	}
	return id, nil
}

func (s *identities) FindUnclaimedByDisplayName(ctx context.Context, name string) (*model.Identity, error) {
	row := (*Store)(s).queryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE display_name = ? AND status != 'archived' ORDER BY created_at DESC LIMIT 1`, name)
	id, err := scanIdentity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find identity by display name: %w", err)
	}
	return id, nil
}

// FindByFingerprint has no dedicated column in the relational schema; the
// identity resolver's transport-fingerprint mode stores the binding via
// SessionBindings with an "fp:" key prefix instead (see
// internal/identity/resolver.go), so this always reports not
// found rather than maintaining a second, unused lookup path.
func (s *identities) FindByFingerprint(ctx context.Context, fingerprint string) (*model.Identity, error) {
	return nil, sql.ErrNoRows
}

func (s *identities) Update(ctx context.Context, id *model.Identity) error {
	_, err := (*Store)(s).exec(ctx, `UPDATE identities SET
		display_name = ?, api_key_hash = ?, genesis_signature = ?, status = ?, trust_tier = ?,
		autonomous = ?, tags = ?, last_update_at = ?, archived_at = ?
		WHERE uuid = ?`,
		id.DisplayName, id.APIKeyHash, id.GenesisSignature, string(id.Status), string(id.TrustTier),
		boolToInt(id.Autonomous), marshalJSON(id.Tags), id.LastUpdateAt.UTC(), nullTime(id.ArchivedAt), id.UUID)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}

func (s *identities) List(ctx context.Context, includeArchived bool) ([]*model.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities`
	if !includeArchived {
		query += ` WHERE status != 'archived'`
	}
	query += ` ORDER BY created_at`
	rows, err := (*Store)(s).query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []*model.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- SessionBindings ---

type sessionBindings Store

func (s *sessionBindings) Bind(ctx context.Context, sessionKey, agentUUID string, expiresAt time.Time) error {
	switch (*Store)(s).dialect {
	case DialectPostgres:
		_, err := (*Store)(s).exec(ctx, `INSERT INTO session_bindings (session_key, agent_uuid, expires_at)
			VALUES (?, ?, ?)
			ON CONFLICT (session_key) DO UPDATE SET agent_uuid = EXCLUDED.agent_uuid, expires_at = EXCLUDED.expires_at`,
			sessionKey, agentUUID, expiresAt.UTC())
		if err != nil {
			return fmt.Errorf("bind session: %w", err)
		}
	default:
		_, err := (*Store)(s).exec(ctx, `INSERT INTO session_bindings (session_key, agent_uuid, expires_at)
			VALUES (?, ?, ?)
			ON CONFLICT (session_key) DO UPDATE SET agent_uuid = excluded.agent_uuid, expires_at = excluded.expires_at`,
			sessionKey, agentUUID, expiresAt.UTC())
		if err != nil {
			return fmt.Errorf("bind session: %w", err)
		}
	}
	return nil
}

func (s *sessionBindings) Lookup(ctx context.Context, sessionKey string) (string, time.Time, bool, error) {
	var agentUUID string
	var expiresAt time.Time
	err := (*Store)(s).queryRow(ctx, `SELECT agent_uuid, expires_at FROM session_bindings WHERE session_key = ?`, sessionKey).
		Scan(&agentUUID, &expiresAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("lookup session binding: %w", err)
	}
	return agentUUID, expiresAt, true, nil
}

// --- AgentStates ---

type agentStates Store

const agentStateColumns = `agent_uuid, e, i, s, v, coherence, risk_score, lambda1, regime, margin,
	total_updates, lambda1_skip_count, locked_persistence_count, locked_streak, history, updated_at`

func scanAgentState(row interface{ Scan(...any) error }) (*model.AgentState, error) {
	var st model.AgentState
	var history sql.NullString
	if err := row.Scan(&st.AgentUUID, &st.E, &st.I, &st.S, &st.V, &st.Coherence, &st.RiskScore, &st.Lambda1,
		&st.Regime, &st.Margin, &st.TotalUpdates, &st.Lambda1SkipCount, &st.LockedPersistenceCount,
		&st.LockedStreak, &history, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(history, &st.History); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *agentStates) Get(ctx context.Context, agentUUID string) (*model.AgentState, error) {
	row := (*Store)(s).queryRow(ctx, `SELECT `+agentStateColumns+` FROM agent_state WHERE agent_uuid = ?`, agentUUID)
	st, err := scanAgentState(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get agent state: %w", err)
	}
	return st, nil
}

func (s *agentStates) Put(ctx context.Context, st *model.AgentState) error {
	switch (*Store)(s).dialect {
	case DialectPostgres:
		_, err := (*Store)(s).exec(ctx, `INSERT INTO agent_state
			(agent_uuid, e, i, s, v, coherence, risk_score, lambda1, regime, margin, total_updates, lambda1_skip_count, locked_persistence_count, locked_streak, history, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (agent_uuid) DO UPDATE SET
				e = EXCLUDED.e, i = EXCLUDED.i, s = EXCLUDED.s, v = EXCLUDED.v,
				coherence = EXCLUDED.coherence, risk_score = EXCLUDED.risk_score, lambda1 = EXCLUDED.lambda1,
				regime = EXCLUDED.regime, margin = EXCLUDED.margin, total_updates = EXCLUDED.total_updates,
				lambda1_skip_count = EXCLUDED.lambda1_skip_count, locked_persistence_count = EXCLUDED.locked_persistence_count,
				locked_streak = EXCLUDED.locked_streak, history = EXCLUDED.history, updated_at = EXCLUDED.updated_at`,
			st.AgentUUID, st.E, st.I, st.S, st.V, st.Coherence, st.RiskScore, st.Lambda1, string(st.Regime), string(st.Margin),
			st.TotalUpdates, st.Lambda1SkipCount, st.LockedPersistenceCount, st.LockedStreak, marshalJSON(st.History), st.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("put agent state: %w", err)
		}
	default:
		_, err := (*Store)(s).exec(ctx, `INSERT INTO agent_state
			(agent_uuid, e, i, s, v, coherence, risk_score, lambda1, regime, margin, total_updates, lambda1_skip_count, locked_persistence_count, locked_streak, history, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (agent_uuid) DO UPDATE SET
				e = excluded.e, i = excluded.i, s = excluded.s, v = excluded.v,
				coherence = excluded.coherence, risk_score = excluded.risk_score, lambda1 = excluded.lambda1,
				regime = excluded.regime, margin = excluded.margin, total_updates = excluded.total_updates,
				lambda1_skip_count = excluded.lambda1_skip_count, locked_persistence_count = excluded.locked_persistence_count,
				locked_streak = excluded.locked_streak, history = excluded.history, updated_at = excluded.updated_at`,
			st.AgentUUID, st.E, st.I, st.S, st.V, st.Coherence, st.RiskScore, st.Lambda1, string(st.Regime), string(st.Margin),
			st.TotalUpdates, st.Lambda1SkipCount, st.LockedPersistenceCount, st.LockedStreak, marshalJSON(st.History), st.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("put agent state: %w", err)
		}
	}
	return nil
}

func (s *agentStates) ListAll(ctx context.Context) ([]*model.AgentState, error) {
	rows, err := (*Store)(s).query(ctx, `SELECT `+agentStateColumns+` FROM agent_state`)
	if err != nil {
		return nil, fmt.Errorf("list agent states: %w", err)
	}
	defer rows.Close()

	var out []*model.AgentState
	for rows.Next() {
		st, err := scanAgentState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// --- DialecticSessions ---

type dialecticSessions Store

const sessionColumns = `session_id, paused_agent_uuid, reviewer_agent_uuid, topic, phase, status,
	paused_agent_state_snap, synthesis_attempts, resolution, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	var sess model.Session
	var snap, resolution sql.NullString
	if err := row.Scan(&sess.SessionID, &sess.PausedAgentUUID, &sess.ReviewerAgentUUID, &sess.Topic,
		&sess.Phase, &sess.Status, &snap, &sess.SynthesisAttempts, &resolution, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(snap, &sess.PausedAgentStateSnap); err != nil {
		return nil, err
	}
	if resolution.Valid && resolution.String != "" {
		var res model.Resolution
		if err := json.Unmarshal([]byte(resolution.String), &res); err != nil {
			return nil, err
		}
		sess.Resolution = &res
	}
	return &sess, nil
}

func (s *dialecticSessions) loadMessages(ctx context.Context, sessionID string) ([]model.DialecticMessage, error) {
	rows, err := (*Store)(s).query(ctx, `SELECT seq, author_uuid, kind, timestamp, reasoning, root_cause,
		proposed_conditions, observed_metrics, concerns, agrees, signature
		FROM dialectic_messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list dialectic messages: %w", err)
	}
	defer rows.Close()

	var out []model.DialecticMessage
	for rows.Next() {
		var m model.DialecticMessage
		var conditions, metrics, concerns sql.NullString
		var agrees sql.NullBool
		if err := rows.Scan(&m.Seq, &m.AuthorUUID, &m.Kind, &m.Timestamp, &m.Reasoning, &m.RootCause,
			&conditions, &metrics, &concerns, &agrees, &m.Signature); err != nil {
			return nil, fmt.Errorf("scan dialectic message: %w", err)
		}
		if err := unmarshalJSON(conditions, &m.ProposedConditions); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(metrics, &m.ObservedMetrics); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(concerns, &m.Concerns); err != nil {
			return nil, err
		}
		if agrees.Valid {
			v := agrees.Bool
			m.Agrees = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *dialecticSessions) Create(ctx context.Context, sess *model.Session) error {
	_, err := (*Store)(s).exec(ctx, `INSERT INTO dialectic_sessions
		(session_id, paused_agent_uuid, reviewer_agent_uuid, topic, phase, status, paused_agent_state_snap, synthesis_attempts, resolution, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.PausedAgentUUID, sess.ReviewerAgentUUID, sess.Topic, string(sess.Phase), string(sess.Status),
		marshalJSON(sess.PausedAgentStateSnap), sess.SynthesisAttempts, marshalResolution(sess.Resolution),
		sess.CreatedAt.UTC(), sess.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert dialectic session: %w", err)
	}
	for _, m := range sess.Messages {
		if err := s.AppendMessage(ctx, sess.SessionID, m); err != nil {
			return err
		}
	}
	return nil
}

func marshalResolution(r *model.Resolution) string {
	if r == nil {
		return ""
	}
	return marshalJSON(r)
}

func (s *dialecticSessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	row := (*Store)(s).queryRow(ctx, `SELECT `+sessionColumns+` FROM dialectic_sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get dialectic session: %w", err)
	}
	msgs, err := s.loadMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

func (s *dialecticSessions) Update(ctx context.Context, sess *model.Session) error {
	_, err := (*Store)(s).exec(ctx, `UPDATE dialectic_sessions SET
		reviewer_agent_uuid = ?, topic = ?, phase = ?, status = ?, paused_agent_state_snap = ?,
		synthesis_attempts = ?, resolution = ?, updated_at = ?
		WHERE session_id = ?`,
		sess.ReviewerAgentUUID, sess.Topic, string(sess.Phase), string(sess.Status), marshalJSON(sess.PausedAgentStateSnap),
		sess.SynthesisAttempts, marshalResolution(sess.Resolution), sess.UpdatedAt.UTC(), sess.SessionID)
	if err != nil {
		return fmt.Errorf("update dialectic session: %w", err)
	}
	return nil
}

func (s *dialecticSessions) FindOpenForAgent(ctx context.Context, agentUUID string) (*model.Session, error) {
	row := (*Store)(s).queryRow(ctx, `SELECT `+sessionColumns+` FROM dialectic_sessions
		WHERE paused_agent_uuid = ? AND phase NOT IN ('resolved', 'failed', 'cancelled')
		ORDER BY created_at DESC LIMIT 1`, agentUUID)
	sess, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find open dialectic session: %w", err)
	}
	return sess, nil
}

func (s *dialecticSessions) ListNonTerminal(ctx context.Context) ([]*model.Session, error) {
	rows, err := (*Store)(s).query(ctx, `SELECT `+sessionColumns+` FROM dialectic_sessions
		WHERE phase NOT IN ('resolved', 'failed', 'cancelled') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dialectic session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *dialecticSessions) AppendMessage(ctx context.Context, sessionID string, msg model.DialecticMessage) error {
	_, err := (*Store)(s).exec(ctx, `INSERT INTO dialectic_messages
		(session_id, seq, author_uuid, kind, timestamp, reasoning, root_cause, proposed_conditions, observed_metrics, concerns, agrees, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, msg.Seq, msg.AuthorUUID, string(msg.Kind), msg.Timestamp.UTC(), msg.Reasoning, msg.RootCause,
		marshalJSON(msg.ProposedConditions), marshalJSON(msg.ObservedMetrics), marshalJSON(msg.Concerns),
		agreesValue(msg.Agrees), msg.Signature)
	if err != nil {
		return fmt.Errorf("append dialectic message: %w", err)
	}
	return nil
}

func agreesValue(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func (s *dialecticSessions) ReviewedRecently(ctx context.Context, reviewerUUID, pausedUUID string, since time.Time) (bool, error) {
	var count int
	err := (*Store)(s).queryRow(ctx, `SELECT COUNT(*) FROM dialectic_sessions
		WHERE reviewer_agent_uuid = ? AND paused_agent_uuid = ? AND created_at >= ?`,
		reviewerUUID, pausedUUID, since.UTC()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("reviewed recently: %w", err)
	}
	return count > 0, nil
}

func (s *dialecticSessions) SynthesisTrackRecord(ctx context.Context, reviewerUUID string) (float64, bool, error) {
	var total, resolved int
	err := (*Store)(s).queryRow(ctx, `SELECT COUNT(*), SUM(CASE WHEN phase = 'resolved' THEN 1 ELSE 0 END)
		FROM dialectic_sessions WHERE reviewer_agent_uuid = ? AND phase IN ('resolved', 'failed', 'cancelled')`,
		reviewerUUID).Scan(&total, &resolved)
	if err != nil {
		return 0, false, fmt.Errorf("synthesis track record: %w", err)
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(resolved) / float64(total), true, nil
}

// --- Notes ---

type notes Store

func (s *notes) Append(ctx context.Context, n *model.KnowledgeNote) error {
	_, err := (*Store)(s).exec(ctx, `INSERT INTO knowledge_notes
		(id, author_uuid, summary, details, kind, severity, tags, status, supersedes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.AuthorUUID, n.Summary, n.Details, string(n.Kind), n.Severity, marshalJSON(n.Tags),
		string(n.Status), n.Supersedes, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append knowledge note: %w", err)
	}
	return nil
}

const noteColumns = `id, author_uuid, summary, details, kind, severity, tags, status, supersedes, created_at`

func scanNote(row interface{ Scan(...any) error }) (*model.KnowledgeNote, error) {
	var n model.KnowledgeNote
	var tags sql.NullString
	if err := row.Scan(&n.ID, &n.AuthorUUID, &n.Summary, &n.Details, &n.Kind, &n.Severity, &tags,
		&n.Status, &n.Supersedes, &n.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &n.Tags); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *notes) ListByTag(ctx context.Context, tag string) ([]*model.KnowledgeNote, error) {
	rows, err := (*Store)(s).query(ctx, `SELECT `+noteColumns+` FROM knowledge_notes WHERE tags LIKE ? ORDER BY created_at DESC`, "%\""+tag+"\"%")
	if err != nil {
		return nil, fmt.Errorf("list notes by tag: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (s *notes) ListByAuthor(ctx context.Context, authorUUID string) ([]*model.KnowledgeNote, error) {
	rows, err := (*Store)(s).query(ctx, `SELECT `+noteColumns+` FROM knowledge_notes WHERE author_uuid = ? ORDER BY created_at DESC`, authorUUID)
	if err != nil {
		return nil, fmt.Errorf("list notes by author: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]*model.KnowledgeNote, error) {
	var out []*model.KnowledgeNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *notes) UpdateStatus(ctx context.Context, id string, status model.NoteStatus) error {
	_, err := (*Store)(s).exec(ctx, `UPDATE knowledge_notes SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update note status: %w", err)
	}
	return nil
}

// --- AuditLog ---

type auditLog Store

func (s *auditLog) Append(ctx context.Context, event model.AuditEvent) error {
	_, err := (*Store)(s).exec(ctx, `INSERT INTO audit_events (ts, actor_uuid, action, subject_uuid, tags, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.Timestamp.UTC(), event.ActorUUID, event.Action, event.SubjectUUID, marshalJSON(event.Tags), marshalJSON(event.Details))
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

const auditColumns = `id, ts, actor_uuid, action, subject_uuid, tags, details`

func scanAuditEvent(rows *sql.Rows) (model.AuditEvent, error) {
	var e model.AuditEvent
	var tags, details sql.NullString
	if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorUUID, &e.Action, &e.SubjectUUID, &tags, &details); err != nil {
		return e, err
	}
	if err := unmarshalJSON(tags, &e.Tags); err != nil {
		return e, err
	}
	if err := unmarshalJSON(details, &e.Details); err != nil {
		return e, err
	}
	return e, nil
}

func (s *auditLog) ListByActor(ctx context.Context, actorUUID string, limit int) ([]model.AuditEvent, error) {
	rows, err := (*Store)(s).query(ctx, `SELECT `+auditColumns+` FROM audit_events WHERE actor_uuid = ? ORDER BY ts DESC LIMIT ?`, actorUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events by actor: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *auditLog) ListSince(ctx context.Context, since time.Time, limit int) ([]model.AuditEvent, error) {
	rows, err := (*Store)(s).query(ctx, `SELECT `+auditColumns+` FROM audit_events WHERE ts >= ? ORDER BY ts DESC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events since: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- PatternEvents ---

type patternEvents Store

func (s *patternEvents) Record(ctx context.Context, agentUUID, fingerprint string, at time.Time) error {
	_, err := (*Store)(s).exec(ctx, `INSERT INTO pattern_events (agent_uuid, fingerprint, ts) VALUES (?, ?, ?)`,
		agentUUID, fingerprint, at.UTC())
	if err != nil {
		return fmt.Errorf("record pattern event: %w", err)
	}
	return nil
}

func (s *patternEvents) CountSince(ctx context.Context, agentUUID, fingerprint string, since time.Time) (int, error) {
	var count int
	err := (*Store)(s).queryRow(ctx, `SELECT COUNT(*) FROM pattern_events WHERE agent_uuid = ? AND fingerprint = ? AND ts >= ?`,
		agentUUID, fingerprint, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pattern events: %w", err)
	}
	return count, nil
}
