package dialectic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/internal/crypto"
	"github.com/r3e-network/agent-governance/internal/dynamics"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/platform"
	"github.com/r3e-network/agent-governance/internal/store"
	"github.com/r3e-network/agent-governance/pkg/config"
)

// --- in-memory fakes shared by this package's integration tests ---

type fakeIdentities struct {
	byUUID map[string]*model.Identity
}

func (f *fakeIdentities) Create(ctx context.Context, id *model.Identity) error {
	f.byUUID[id.UUID] = id
	return nil
}
func (f *fakeIdentities) GetByUUID(ctx context.Context, uuid string) (*model.Identity, error) {
	id, ok := f.byUUID[uuid]
	if !ok {
		return nil, errAgentNotFound
	}
	return id, nil
}
func (f *fakeIdentities) GetByAgentID(ctx context.Context, agentID string) (*model.Identity, error) {
	return nil, errAgentNotFound
}
func (f *fakeIdentities) FindUnclaimedByDisplayName(ctx context.Context, name string) (*model.Identity, error) {
	return nil, nil
}
func (f *fakeIdentities) FindByFingerprint(ctx context.Context, fingerprint string) (*model.Identity, error) {
	return nil, nil
}
func (f *fakeIdentities) Update(ctx context.Context, id *model.Identity) error {
	f.byUUID[id.UUID] = id
	return nil
}
func (f *fakeIdentities) List(ctx context.Context, includeArchived bool) ([]*model.Identity, error) {
	out := make([]*model.Identity, 0, len(f.byUUID))
	for _, id := range f.byUUID {
		out = append(out, id)
	}
	return out, nil
}

type fakeStates struct {
	byUUID map[string]*model.AgentState
}

func (f *fakeStates) Get(ctx context.Context, agentUUID string) (*model.AgentState, error) {
	s, ok := f.byUUID[agentUUID]
	if !ok {
		return nil, errAgentNotFound
	}
	return s, nil
}
func (f *fakeStates) Put(ctx context.Context, state *model.AgentState) error {
	f.byUUID[state.AgentUUID] = state
	return nil
}
func (f *fakeStates) ListAll(ctx context.Context) ([]*model.AgentState, error) { return nil, nil }

type fakeSessions struct {
	byID map[string]*model.Session
}

func (f *fakeSessions) Create(ctx context.Context, s *model.Session) error {
	f.byID[s.SessionID] = s
	return nil
}
func (f *fakeSessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	s, ok := f.byID[sessionID]
	if !ok {
		return nil, errAgentNotFound
	}
	return s, nil
}
func (f *fakeSessions) Update(ctx context.Context, s *model.Session) error {
	f.byID[s.SessionID] = s
	return nil
}
func (f *fakeSessions) FindOpenForAgent(ctx context.Context, agentUUID string) (*model.Session, error) {
	for _, s := range f.byID {
		if (s.PausedAgentUUID == agentUUID || s.ReviewerAgentUUID == agentUUID) && !s.Phase.Terminal() {
			return s, nil
		}
	}
	return nil, nil
}
func (f *fakeSessions) ListNonTerminal(ctx context.Context) ([]*model.Session, error) {
	var out []*model.Session
	for _, s := range f.byID {
		if !s.Phase.Terminal() {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeSessions) AppendMessage(ctx context.Context, sessionID string, msg model.DialecticMessage) error {
	return nil
}
func (f *fakeSessions) ReviewedRecently(ctx context.Context, reviewerUUID, pausedUUID string, since time.Time) (bool, error) {
	return false, nil
}
func (f *fakeSessions) SynthesisTrackRecord(ctx context.Context, reviewerUUID string) (float64, bool, error) {
	return 0, false, nil
}

type fakeAudit struct{ events []model.AuditEvent }

func (f *fakeAudit) Append(ctx context.Context, event model.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}
func (f *fakeAudit) ListByActor(ctx context.Context, actorUUID string, limit int) ([]model.AuditEvent, error) {
	return nil, nil
}
func (f *fakeAudit) ListSince(ctx context.Context, since time.Time, limit int) ([]model.AuditEvent, error) {
	return nil, nil
}

type fakeLockHandle struct{ name string }

func (h *fakeLockHandle) Name() string                                   { return h.name }
func (h *fakeLockHandle) Renew(ctx context.Context, ttl time.Duration) error { return nil }
func (h *fakeLockHandle) Release(ctx context.Context) error              { return nil }

type fakeLock struct{}

func (fakeLock) Name() string                   { return "fake-lock" }
func (fakeLock) Start(ctx context.Context) error { return nil }
func (fakeLock) Stop(ctx context.Context) error  { return nil }
func (fakeLock) Ping(ctx context.Context) error  { return nil }
func (fakeLock) Acquire(ctx context.Context, name string, ttl time.Duration) (platform.LockHandle, error) {
	return &fakeLockHandle{name: name}, nil
}

var errAgentNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

func newTestService(t *testing.T) (*Service, *fakeIdentities, *fakeStates, *fakeSessions) {
	ids := &fakeIdentities{byUUID: make(map[string]*model.Identity)}
	states := &fakeStates{byUUID: make(map[string]*model.AgentState)}
	sessions := &fakeSessions{byID: make(map[string]*model.Session)}
	audit := &fakeAudit{}

	engine := dynamics.New(config.New().Dynamics)
	dynSvc := dynamics.NewService(engine, fakeLock{}, states, ids, sessions, audit, 30*time.Second)

	svc := New(sessions, ids, states, audit, fakeLock{}, dynSvc, nil, 30*time.Second)
	return svc, ids, states, sessions
}

func seedIdentity(t *testing.T, ids *fakeIdentities, states *fakeStates, uuidStr, apiKey string, risk float64, status model.IdentityStatus) *model.Identity {
	id := &model.Identity{
		UUID: uuidStr, AgentID: uuidStr, Status: status,
		APIKeyHash: crypto.Hash256([]byte(apiKey)),
	}
	require.NoError(t, ids.Create(context.Background(), id))
	require.NoError(t, states.Put(context.Background(), &model.AgentState{
		AgentUUID: uuidStr, RiskScore: risk, Coherence: 1 - risk, UpdatedAt: time.Now(),
	}))
	return id
}

func signed(t *testing.T, apiKey string, msg model.DialecticMessage) model.DialecticMessage {
	require.NoError(t, SignMessage(crypto.Hash256([]byte(apiKey)), &msg))
	return msg
}

func TestFullDialecticHappyPath(t *testing.T) {
	svc, ids, states, _ := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, ids, states, "paused-1", "paused-key", 0.7, model.StatusPaused)
	seedIdentity(t, ids, states, "reviewer-1", "reviewer-key", 0.1, model.StatusActive)

	sessionID, err := svc.RequestReview(ctx, "paused-1", "stuck in a loop")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	thesis := signed(t, "paused-key", model.DialecticMessage{
		AuthorUUID: "paused-1", Kind: model.KindThesis, RootCause: "repeated identical tool calls without new information gained",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 5}},
		Agrees:             agreeTrue(),
	})
	require.NoError(t, svc.SubmitThesis(ctx, sessionID, thesis))

	antithesis := signed(t, "reviewer-key", model.DialecticMessage{
		AuthorUUID: "reviewer-1", Kind: model.KindAntithesis, RootCause: "repeated identical tool calls without new information gained",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 5}},
		Agrees:             agreeTrue(),
	})
	require.NoError(t, svc.SubmitAntithesis(ctx, sessionID, antithesis))

	synthesis := signed(t, "paused-key", model.DialecticMessage{
		AuthorUUID: "paused-1", Kind: model.KindSynthesis, RootCause: "repeated identical tool calls without new information gained",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 5}},
	})
	require.NoError(t, svc.SubmitSynthesis(ctx, sessionID, synthesis, ""))

	session, err := svc.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseResolved, session.Phase)

	paused, err := ids.GetByUUID(ctx, "paused-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, paused.Status)
}

func TestSubmitThesisRejectsWrongAuthor(t *testing.T) {
	svc, ids, states, _ := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, ids, states, "paused-1", "paused-key", 0.7, model.StatusPaused)
	seedIdentity(t, ids, states, "reviewer-1", "reviewer-key", 0.1, model.StatusActive)

	sessionID, err := svc.RequestReview(ctx, "paused-1", "stuck")
	require.NoError(t, err)

	wrongAuthor := signed(t, "reviewer-key", model.DialecticMessage{
		AuthorUUID: "reviewer-1", RootCause: "repeated identical tool calls without new information gained",
	})
	err = svc.SubmitThesis(ctx, sessionID, wrongAuthor)
	require.Error(t, err)
}

func TestRequestReviewFailsWhenAlreadyOpen(t *testing.T) {
	svc, ids, states, _ := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, ids, states, "paused-1", "paused-key", 0.7, model.StatusPaused)
	seedIdentity(t, ids, states, "reviewer-1", "reviewer-key", 0.1, model.StatusActive)

	_, err := svc.RequestReview(ctx, "paused-1", "stuck")
	require.NoError(t, err)

	_, err = svc.RequestReview(ctx, "paused-1", "stuck again")
	require.Error(t, err)
}

func TestRequestReviewFailsWithNoEligibleReviewer(t *testing.T) {
	svc, ids, states, _ := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, ids, states, "paused-1", "paused-key", 0.7, model.StatusPaused)

	_, err := svc.RequestReview(ctx, "paused-1", "stuck")
	require.Error(t, err)
}

func TestCancelMovesToTerminal(t *testing.T) {
	svc, ids, states, sessions := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, ids, states, "paused-1", "paused-key", 0.7, model.StatusPaused)
	seedIdentity(t, ids, states, "reviewer-1", "reviewer-key", 0.1, model.StatusActive)

	sessionID, err := svc.RequestReview(ctx, "paused-1", "stuck")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, sessionID, "operator intervention"))

	session, err := sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseCancelled, session.Phase)
}

func TestSweepTimeoutsCancelsStaleSessions(t *testing.T) {
	svc, ids, states, sessions := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, ids, states, "paused-1", "paused-key", 0.7, model.StatusPaused)
	seedIdentity(t, ids, states, "reviewer-1", "reviewer-key", 0.1, model.StatusActive)

	sessionID, err := svc.RequestReview(ctx, "paused-1", "stuck")
	require.NoError(t, err)

	stale, err := sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, sessions.Update(ctx, stale))

	svc.SweepTimeouts(ctx)

	after, err := sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseCancelled, after.Phase)
}

func TestReviewerSelectionExcludesCreature(t *testing.T) {
	svc, ids, states, _ := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, ids, states, "paused-1", "paused-key", 0.7, model.StatusPaused)
	creature := seedIdentity(t, ids, states, "creature-1", "creature-key", 0.1, model.StatusActive)
	creature.Autonomous = true
	require.NoError(t, ids.Update(ctx, creature))

	_, err := svc.RequestReview(ctx, "paused-1", "stuck")
	require.Error(t, err)
}
