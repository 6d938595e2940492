package stuck

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/internal/model"
)

func TestClassifyCriticalMarginTimeout(t *testing.T) {
	d := &Detector{}
	state := model.AgentState{Margin: model.MarginCritical, UpdatedAt: time.Now().Add(-6 * time.Minute)}
	reason, matched := d.classify(context.Background(), "u1", state)
	require.True(t, matched)
	assert.Equal(t, ReasonCriticalMarginTimeout, reason)
}

func TestClassifyTightMarginTimeout(t *testing.T) {
	d := &Detector{}
	state := model.AgentState{Margin: model.MarginTight, UpdatedAt: time.Now().Add(-16 * time.Minute)}
	reason, matched := d.classify(context.Background(), "u1", state)
	require.True(t, matched)
	assert.Equal(t, ReasonTightMarginTimeout, reason)
}

func TestClassifyActivityTimeoutIgnoresMargin(t *testing.T) {
	d := &Detector{}
	state := model.AgentState{Margin: model.MarginComfortable, UpdatedAt: time.Now().Add(-31 * time.Minute)}
	reason, matched := d.classify(context.Background(), "u1", state)
	require.True(t, matched)
	assert.Equal(t, ReasonActivityTimeout, reason)
}

func TestClassifyNoneWhenHealthy(t *testing.T) {
	d := &Detector{}
	state := model.AgentState{Margin: model.MarginComfortable, UpdatedAt: time.Now()}
	_, matched := d.classify(context.Background(), "u1", state)
	assert.False(t, matched)
}

type fakePatternEvents struct {
	count int
}

func (f *fakePatternEvents) Record(ctx context.Context, agentUUID, fingerprint string, at time.Time) error {
	return nil
}

func (f *fakePatternEvents) CountSince(ctx context.Context, agentUUID, fingerprint string, since time.Time) (int, error) {
	return f.count, nil
}

func TestClassifyCognitiveLoop(t *testing.T) {
	d := &Detector{patterns: &fakePatternEvents{count: 3}}
	state := model.AgentState{Margin: model.MarginComfortable, UpdatedAt: time.Now()}
	reason, matched := d.classify(context.Background(), "u1", state)
	require.True(t, matched)
	assert.Equal(t, ReasonCognitiveLoop, reason)
}

type fakeInvestigationTracker struct {
	since        time.Time
	investigating bool
}

func (f *fakeInvestigationTracker) InvestigatingSince(agentUUID string) (time.Time, bool) {
	return f.since, f.investigating
}

func TestClassifyTimeBoxExceeded(t *testing.T) {
	d := &Detector{investig: &fakeInvestigationTracker{since: time.Now().Add(-11 * time.Minute), investigating: true}}
	state := model.AgentState{Margin: model.MarginComfortable, UpdatedAt: time.Now()}
	reason, matched := d.classify(context.Background(), "u1", state)
	require.True(t, matched)
	assert.Equal(t, ReasonTimeBoxExceeded, reason)
}

func TestClassifyOrderCriticalMarginBeatsActivity(t *testing.T) {
	d := &Detector{}
	// Both critical-margin and activity-timeout conditions are satisfied;
	// the first rule in order must win.
	state := model.AgentState{Margin: model.MarginCritical, UpdatedAt: time.Now().Add(-31 * time.Minute)}
	reason, matched := d.classify(context.Background(), "u1", state)
	require.True(t, matched)
	assert.Equal(t, ReasonCriticalMarginTimeout, reason)
}
