package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	governanceerrors "github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/sessioncache"
)

type memIdentities struct {
	byUUID map[string]*model.Identity
}

func newMemIdentities() *memIdentities {
	return &memIdentities{byUUID: make(map[string]*model.Identity)}
}

func (m *memIdentities) Create(ctx context.Context, id *model.Identity) error {
	m.byUUID[id.UUID] = id
	return nil
}

func (m *memIdentities) GetByUUID(ctx context.Context, uuid string) (*model.Identity, error) {
	id, ok := m.byUUID[uuid]
	if !ok {
		return nil, governanceerrors.AgentNotFound(uuid)
	}
	return id, nil
}

func (m *memIdentities) GetByAgentID(ctx context.Context, agentID string) (*model.Identity, error) {
	for _, id := range m.byUUID {
		if id.AgentID == agentID {
			return id, nil
		}
	}
	return nil, governanceerrors.AgentNotFound(agentID)
}

func (m *memIdentities) FindUnclaimedByDisplayName(ctx context.Context, name string) (*model.Identity, error) {
	for _, id := range m.byUUID {
		if id.DisplayName == name {
			return id, nil
		}
	}
	return nil, nil
}

func (m *memIdentities) FindByFingerprint(ctx context.Context, fingerprint string) (*model.Identity, error) {
	return nil, nil
}

func (m *memIdentities) Update(ctx context.Context, id *model.Identity) error {
	m.byUUID[id.UUID] = id
	return nil
}

func (m *memIdentities) List(ctx context.Context, includeArchived bool) ([]*model.Identity, error) {
	var out []*model.Identity
	for _, id := range m.byUUID {
		out = append(out, id)
	}
	return out, nil
}

type memSessions struct {
	bindings map[string]struct {
		uuid string
		exp  time.Time
	}
}

func newMemSessions() *memSessions {
	return &memSessions{bindings: make(map[string]struct {
		uuid string
		exp  time.Time
	})}
}

func (m *memSessions) Bind(ctx context.Context, sessionKey, agentUUID string, expiresAt time.Time) error {
	m.bindings[sessionKey] = struct {
		uuid string
		exp  time.Time
	}{agentUUID, expiresAt}
	return nil
}

func (m *memSessions) Lookup(ctx context.Context, sessionKey string) (string, time.Time, bool, error) {
	b, ok := m.bindings[sessionKey]
	if !ok {
		return "", time.Time{}, false, nil
	}
	return b.uuid, b.exp, true, nil
}

func testResolver() (*Resolver, *memIdentities, *memSessions) {
	ids := newMemIdentities()
	sess := newMemSessions()
	r := New(ids, sess, sessioncache.NewLocal(time.Minute), time.Hour, []byte("test-claim-secret"))
	return r, ids, sess
}

func TestCreateThenResolveExplicit(t *testing.T) {
	r, _, _ := testResolver()
	ctx := context.Background()

	id, key, err := r.CreateWithKey(ctx, IdentityInit{Model: "claude"})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	resolved, err := r.Resolve(ctx, RequestContext{AgentUUID: id.UUID, APIKey: key})
	require.NoError(t, err)
	assert.Equal(t, id.UUID, resolved.UUID)
}

func TestResolveExplicitRejectsWrongKey(t *testing.T) {
	r, _, _ := testResolver()
	ctx := context.Background()

	id, _, err := r.CreateWithKey(ctx, IdentityInit{Model: "claude"})
	require.NoError(t, err)

	_, err = r.Resolve(ctx, RequestContext{AgentUUID: id.UUID, APIKey: "wrong-key"})
	require.Error(t, err)
}

func TestResolveSessionFallsThroughToStoreThenCache(t *testing.T) {
	r, ids, sess := testResolver()
	ctx := context.Background()

	id := &model.Identity{UUID: "u1", AgentID: "a1", Status: model.StatusActive}
	require.NoError(t, ids.Create(ctx, id))
	require.NoError(t, sess.Bind(ctx, "sk-1", "u1", time.Now().Add(time.Hour)))

	resolved, err := r.Resolve(ctx, RequestContext{SessionKey: "sk-1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", resolved.UUID)

	v, ok := r.cache.Get(ctx, "session:sk-1")
	require.True(t, ok)
	assert.Equal(t, "u1", v)
}

func TestResolveSessionExpired(t *testing.T) {
	r, ids, sess := testResolver()
	ctx := context.Background()

	id := &model.Identity{UUID: "u1", AgentID: "a1"}
	require.NoError(t, ids.Create(ctx, id))
	require.NoError(t, sess.Bind(ctx, "sk-old", "u1", time.Now().Add(-time.Minute)))

	_, err := r.Resolve(ctx, RequestContext{SessionKey: "sk-old"})
	require.Error(t, err)
}

func TestResolveNameClaimAmbiguousWithoutResumeOrForce(t *testing.T) {
	r, ids, _ := testResolver()
	ctx := context.Background()

	existing := &model.Identity{UUID: "u1", AgentID: "a1", DisplayName: "orin"}
	require.NoError(t, ids.Create(ctx, existing))

	token, err := IssueNameClaimToken([]byte("test-claim-secret"), "orin", time.Minute)
	require.NoError(t, err)

	_, err = r.Resolve(ctx, RequestContext{DisplayName: "orin", NameClaimToken: token})
	require.Error(t, err)
	var svcErr *governanceerrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, governanceerrors.ErrAmbiguousExisting, svcErr.Code)
}

func TestResolveNameClaimResumeReturnsExisting(t *testing.T) {
	r, ids, _ := testResolver()
	ctx := context.Background()

	existing := &model.Identity{UUID: "u1", AgentID: "a1", DisplayName: "orin"}
	require.NoError(t, ids.Create(ctx, existing))

	token, err := IssueNameClaimToken([]byte("test-claim-secret"), "orin", time.Minute)
	require.NoError(t, err)

	resolved, err := r.Resolve(ctx, RequestContext{DisplayName: "orin", NameClaimToken: token, Resume: true})
	require.NoError(t, err)
	assert.Equal(t, "u1", resolved.UUID)
}

func TestResolveNameClaimRejectsTokenMismatch(t *testing.T) {
	r, _, _ := testResolver()
	ctx := context.Background()

	token, err := IssueNameClaimToken([]byte("test-claim-secret"), "orin", time.Minute)
	require.NoError(t, err)

	_, err = r.Resolve(ctx, RequestContext{DisplayName: "someone-else", NameClaimToken: token})
	require.Error(t, err)
}

func TestRotateKeyInvalidatesOldKey(t *testing.T) {
	r, _, _ := testResolver()
	ctx := context.Background()

	id, oldKey, err := r.CreateWithKey(ctx, IdentityInit{Model: "claude"})
	require.NoError(t, err)

	newKey, err := r.RotateKey(ctx, id.UUID)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)

	_, err = r.Resolve(ctx, RequestContext{AgentUUID: id.UUID, APIKey: oldKey})
	require.Error(t, err)

	resolved, err := r.Resolve(ctx, RequestContext{AgentUUID: id.UUID, APIKey: newKey})
	require.NoError(t, err)
	assert.Equal(t, id.UUID, resolved.UUID)
}

func TestSetDisplayName(t *testing.T) {
	r, _, _ := testResolver()
	ctx := context.Background()

	id, _, err := r.CreateWithKey(ctx, IdentityInit{Model: "claude"})
	require.NoError(t, err)

	require.NoError(t, r.SetDisplayName(ctx, id.UUID, "new-name"))

	updated, err := r.identities.GetByUUID(ctx, id.UUID)
	require.NoError(t, err)
	assert.Equal(t, "new-name", updated.DisplayName)
}
