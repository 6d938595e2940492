// Package audit is the append-only audit trail collaborator named in
// spec.md §3 (Audit Event) and expanded in the SPEC_FULL supplemental
// features: every append runs its Details map through the teacher's
// infrastructure/redaction sanitizer first, so a caller that accidentally
// stuffs an API key or token into Details never gets it persisted verbatim.
package audit

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/redaction"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/store"
)

// Log is the audit-trail collaborator: append, and the two list views
// §6 exposes (by actor, and a tail since a timestamp).
type Log struct {
	store store.AuditLog
}

// New builds a Log over the durable audit_events store.
func New(s store.AuditLog) *Log {
	return &Log{store: s}
}

// Append redacts event.Details and persists the event. Timestamp defaults
// to now if the caller left it zero.
func (l *Log) Append(ctx context.Context, event model.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Details != nil {
		event.Details = redaction.RedactMap(event.Details)
	}
	return l.store.Append(ctx, event)
}

// ListByActor returns up to limit of the most recent events for an actor.
func (l *Log) ListByActor(ctx context.Context, actorUUID string, limit int) ([]model.AuditEvent, error) {
	return l.store.ListByActor(ctx, actorUUID, limit)
}

// ListSince returns up to limit events recorded at or after since.
func (l *Log) ListSince(ctx context.Context, since time.Time, limit int) ([]model.AuditEvent, error) {
	return l.store.ListSince(ctx, since, limit)
}
