// Package store defines the persistence ports the governance core depends
// on. Concrete adapters (internal/store/postgres, internal/store/sqlite)
// implement these against their respective SQL dialects; the core never
// imports a driver package directly.
package store

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/internal/model"
)

// Identities is the Agent Registry's durable backing store.
type Identities interface {
	Create(ctx context.Context, id *model.Identity) error
	GetByUUID(ctx context.Context, uuid string) (*model.Identity, error)
	GetByAgentID(ctx context.Context, agentID string) (*model.Identity, error)
	FindUnclaimedByDisplayName(ctx context.Context, name string) (*model.Identity, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.Identity, error)
	Update(ctx context.Context, id *model.Identity) error
	List(ctx context.Context, includeArchived bool) ([]*model.Identity, error)
}

// SessionBindings is the durable fallback behind the session cache.
type SessionBindings interface {
	Bind(ctx context.Context, sessionKey, agentUUID string, expiresAt time.Time) error
	Lookup(ctx context.Context, sessionKey string) (agentUUID string, expiresAt time.Time, found bool, err error)
}

// AgentStates is the Agent State store, owned exclusively by the Dynamics
// Engine.
type AgentStates interface {
	Get(ctx context.Context, agentUUID string) (*model.AgentState, error)
	Put(ctx context.Context, state *model.AgentState) error
	ListAll(ctx context.Context) ([]*model.AgentState, error)
}

// DialecticSessions is the Dialectic State Machine's durable store.
type DialecticSessions interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Update(ctx context.Context, s *model.Session) error
	FindOpenForAgent(ctx context.Context, agentUUID string) (*model.Session, error)
	ListNonTerminal(ctx context.Context) ([]*model.Session, error)
	AppendMessage(ctx context.Context, sessionID string, msg model.DialecticMessage) error

	// ReviewedRecently backs the reviewer-selection anti-collusion rule:
	// has reviewerUUID reviewed for pausedUUID within the given window.
	ReviewedRecently(ctx context.Context, reviewerUUID, pausedUUID string, since time.Time) (bool, error)

	// SynthesisTrackRecord backs the reviewer-selection track_record term:
	// the candidate's historical rate of sessions it reviewed that resolved
	// successfully, and whether it has any history at all.
	SynthesisTrackRecord(ctx context.Context, reviewerUUID string) (rate float64, hasHistory bool, err error)
}

// Notes is the narrow append/list-by-tag interface the core depends on
// for the external knowledge-graph collaborator.
type Notes interface {
	Append(ctx context.Context, note *model.KnowledgeNote) error
	ListByTag(ctx context.Context, tag string) ([]*model.KnowledgeNote, error)
	ListByAuthor(ctx context.Context, authorUUID string) ([]*model.KnowledgeNote, error)
	UpdateStatus(ctx context.Context, id string, status model.NoteStatus) error
}

// AuditLog is the append-only audit event sink.
type AuditLog interface {
	Append(ctx context.Context, event model.AuditEvent) error
	ListByActor(ctx context.Context, actorUUID string, limit int) ([]model.AuditEvent, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]model.AuditEvent, error)
}

// PatternEvents backs the stuck detector's cognitive-loop rule: a small
// per-agent log of recent tool-call fingerprints.
type PatternEvents interface {
	Record(ctx context.Context, agentUUID, fingerprint string, at time.Time) error
	CountSince(ctx context.Context, agentUUID, fingerprint string, since time.Time) (int, error)
}

// Store bundles every persistence port the core needs. A concrete backend
// (postgres, sqlite) constructs one Store backed by a single *sql.DB.
type Store struct {
	Identities      Identities
	Sessions        SessionBindings
	AgentStates     AgentStates
	Dialectic       DialecticSessions
	Notes           Notes
	Audit           AuditLog
	PatternEvents   PatternEvents
}
