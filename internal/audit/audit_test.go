package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/internal/model"
)

type memAuditLog struct {
	events []model.AuditEvent
}

func (m *memAuditLog) Append(ctx context.Context, event model.AuditEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAuditLog) ListByActor(ctx context.Context, actorUUID string, limit int) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	for _, e := range m.events {
		if e.ActorUUID == actorUUID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memAuditLog) ListSince(ctx context.Context, since time.Time, limit int) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	for _, e := range m.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAppendRedactsDetailsAndDefaultsTimestamp(t *testing.T) {
	mem := &memAuditLog{}
	log := New(mem)

	err := log.Append(context.Background(), model.AuditEvent{
		ActorUUID: "agent-1",
		Action:    "resume",
		Details:   map[string]interface{}{"password": "hunter2", "risk": 0.2},
	})
	require.NoError(t, err)
	require.Len(t, mem.events, 1)

	stored := mem.events[0]
	assert.False(t, stored.Timestamp.IsZero())
	assert.NotEqual(t, "hunter2", stored.Details["password"])
	assert.Equal(t, 0.2, stored.Details["risk"])
}

func TestListByActorFiltersAndTruncates(t *testing.T) {
	mem := &memAuditLog{}
	log := New(mem)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, model.AuditEvent{ActorUUID: "a1", Action: "x"}))
	require.NoError(t, log.Append(ctx, model.AuditEvent{ActorUUID: "a2", Action: "y"}))
	require.NoError(t, log.Append(ctx, model.AuditEvent{ActorUUID: "a1", Action: "z"}))

	events, err := log.ListByActor(ctx, "a1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
