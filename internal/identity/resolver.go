// Package identity implements the Agent Registry & Identity Resolver: the
// durable mapping from an incoming request context to exactly one
// canonical agent_uuid, with session caching, the Prompt-on-Resume
// contract, and the strict write-ownership rule.
package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	governanceerrors "github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/crypto"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/sessioncache"
	"github.com/r3e-network/agent-governance/internal/store"
)

// RequestContext is the union of the four resolve() modes from §4.2.
type RequestContext struct {
	// Mode 1: explicit identity + key.
	AgentUUID string
	APIKey    string

	// Mode 2: session key.
	SessionKey string

	// Mode 3: human display name + claim token.
	DisplayName   string
	NameClaimToken string

	// Mode 4: transport fingerprint.
	TransportFingerprint string

	// Modifiers for the Prompt-on-Resume rule.
	Resume   bool
	ForceNew bool

	// Model tag used only when a fresh identity must be created.
	Model string
}

// Candidate describes the AMBIGUOUS_EXISTING outcome's payload.
type Candidate struct {
	UUID         string
	AgentID      string
	DisplayName  string
	LastActive   time.Time
	UpdateCount  int64
}

// Resolver implements resolve/create/rotate_key/set_display_name.
type Resolver struct {
	identities store.Identities
	sessions   store.SessionBindings
	cache      sessioncache.Cache
	sessionTTL time.Duration
	claimSecret []byte
}

// New builds a Resolver. sessionCache may be nil, in which case every
// lookup falls through to the durable store (the resolver degrades
// gracefully per §4.2's cache-failure rule).
func New(identities store.Identities, sessions store.SessionBindings, sessionCache sessioncache.Cache, sessionTTL time.Duration, claimSecret []byte) *Resolver {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	return &Resolver{identities: identities, sessions: sessions, cache: sessionCache, sessionTTL: sessionTTL, claimSecret: claimSecret}
}

// Resolve maps a request context to exactly one canonical identity, or
// returns AMBIGUOUS_EXISTING per the Prompt-on-Resume rule.
func (r *Resolver) Resolve(ctx context.Context, rc RequestContext) (*model.Identity, error) {
	switch {
	case rc.AgentUUID != "" && rc.APIKey != "":
		return r.resolveExplicit(ctx, rc)
	case rc.SessionKey != "":
		return r.resolveSession(ctx, rc)
	case rc.DisplayName != "" && rc.NameClaimToken != "":
		return r.resolveNameClaim(ctx, rc)
	case rc.TransportFingerprint != "":
		return r.resolveFingerprint(ctx, rc)
	default:
		return nil, governanceerrors.New(governanceerrors.ErrMissingParameter, "no resolvable request context field was supplied")
	}
}

func (r *Resolver) resolveExplicit(ctx context.Context, rc RequestContext) (*model.Identity, error) {
	id, err := r.identities.GetByUUID(ctx, rc.AgentUUID)
	if err != nil {
		return nil, governanceerrors.AgentNotFound(rc.AgentUUID)
	}
	if subtle.ConstantTimeCompare(crypto.Hash256([]byte(rc.APIKey)), id.APIKeyHash) != 1 {
		return nil, governanceerrors.AuthFailed("api key does not match this identity")
	}
	return id, nil
}

func (r *Resolver) resolveSession(ctx context.Context, rc RequestContext) (*model.Identity, error) {
	key := "session:" + rc.SessionKey

	if r.cache != nil {
		if uuidStr, ok := r.cache.Get(ctx, key); ok {
			id, err := r.identities.GetByUUID(ctx, uuidStr)
			if err == nil {
				return id, nil
			}
		}
	}

	agentUUID, expiresAt, found, err := r.sessions.Lookup(ctx, rc.SessionKey)
	if err != nil {
		return nil, governanceerrors.Unavailable("session store")
	}
	if !found || time.Now().After(expiresAt) {
		return nil, governanceerrors.New(governanceerrors.ErrSessionNotFound, "no binding for this session key")
	}

	id, err := r.identities.GetByUUID(ctx, agentUUID)
	if err != nil {
		return nil, governanceerrors.AgentNotFound(agentUUID)
	}

	r.touchSession(ctx, rc.SessionKey, agentUUID)
	return id, nil
}

// touchSession extends the binding's TTL and repopulates the cache on
// every successful lookup, per §4.2's "extended on every touch" rule.
func (r *Resolver) touchSession(ctx context.Context, sessionKey, agentUUID string) {
	_ = r.sessions.Bind(ctx, sessionKey, agentUUID, time.Now().Add(r.sessionTTL))
	if r.cache != nil {
		r.cache.Set(ctx, "session:"+sessionKey, agentUUID, r.sessionTTL)
	}
}

func (r *Resolver) resolveNameClaim(ctx context.Context, rc RequestContext) (*model.Identity, error) {
	claimedName, err := VerifyNameClaimToken(r.claimSecret, rc.NameClaimToken)
	if err != nil || claimedName != rc.DisplayName {
		return nil, governanceerrors.AuthFailed("name_claim_token is invalid or does not match display_name")
	}

	candidate, err := r.identities.FindUnclaimedByDisplayName(ctx, rc.DisplayName)
	if err != nil || candidate == nil {
		if rc.ForceNew {
			return r.Create(ctx, IdentityInit{DisplayName: rc.DisplayName, Model: rc.Model})
		}
		return nil, governanceerrors.New(governanceerrors.ErrAgentNotFound, "no identity with this display name exists")
	}

	if !rc.Resume && !rc.ForceNew {
		return nil, r.ambiguous(candidate)
	}
	if rc.ForceNew {
		return r.Create(ctx, IdentityInit{DisplayName: rc.DisplayName, Model: rc.Model})
	}
	return candidate, nil
}

func (r *Resolver) resolveFingerprint(ctx context.Context, rc RequestContext) (*model.Identity, error) {
	// Transport fingerprints are stored as session bindings under a
	// dedicated key prefix; this avoids a second identical mapping table
	// for what is, structurally, the same (stable key -> agent_uuid)
	// relationship as a session binding.
	fpKey := "fp:" + rc.TransportFingerprint

	agentUUID, _, found, err := r.sessions.Lookup(ctx, fpKey)
	if err != nil {
		return nil, governanceerrors.Unavailable("session store")
	}
	if found {
		id, err := r.identities.GetByUUID(ctx, agentUUID)
		if err == nil {
			return id, nil
		}
	}

	if !rc.Resume && !rc.ForceNew && found {
		id, _ := r.identities.GetByUUID(ctx, agentUUID)
		if id != nil {
			return nil, r.ambiguous(id)
		}
	}

	created, err := r.Create(ctx, IdentityInit{Model: rc.Model})
	if err != nil {
		return nil, err
	}
	_ = r.sessions.Bind(ctx, fpKey, created.UUID, time.Now().Add(100*365*24*time.Hour))
	return created, nil
}

func (r *Resolver) ambiguous(candidate *model.Identity) error {
	return governanceerrors.AmbiguousExisting(candidate.UUID, candidate.AgentID, candidate.DisplayName)
}

// IdentityInit is the create() argument bundle.
type IdentityInit struct {
	Model       string
	DisplayName string
	Autonomous  bool
	Tags        []string
}

// Create generates a new identity, a 256-bit API key, and returns the
// plaintext key exactly once (§4.2's create()).
func (r *Resolver) Create(ctx context.Context, init IdentityInit) (*model.Identity, error) {
	id, _, err := r.CreateWithKey(ctx, init)
	return id, err
}

// CreateWithKey is Create but also returns the plaintext key; split out so
// callers that need the key (the onboard operation) aren't forced to
// re-derive it, while Create satisfies call sites that only need the
// identity.
func (r *Resolver) CreateWithKey(ctx context.Context, init IdentityInit) (*model.Identity, string, error) {
	rawKey, err := crypto.GenerateRandomBytes(32)
	if err != nil {
		return nil, "", governanceerrors.Internal("failed to generate api key", err)
	}
	plaintext := fmt.Sprintf("%x", rawKey)
	crypto.ZeroBytes(rawKey)

	now := time.Now()
	id := &model.Identity{
		UUID:         uuid.NewString(),
		AgentID:      generateAgentID(init.Model, now),
		DisplayName:  init.DisplayName,
		APIKeyHash:   crypto.Hash256([]byte(plaintext)),
		Status:       model.StatusActive,
		TrustTier:    model.TrustUnknown,
		Autonomous:   init.Autonomous,
		Tags:         init.Tags,
		CreatedAt:    now,
		LastUpdateAt: now,
	}

	if err := r.identities.Create(ctx, id); err != nil {
		return nil, "", governanceerrors.PersistFailure(err)
	}
	return id, plaintext, nil
}

func generateAgentID(model string, at time.Time) string {
	if strings.TrimSpace(model) == "" {
		model = "agent"
	}
	suffix := rand.Intn(0xFFFF)
	return fmt.Sprintf("%s_%s_%04x", model, at.Format("20060102"), suffix)
}

// RotateKey regenerates an identity's API key. Callers must already have
// verified the caller is either the key's current holder or the
// administrative lifecycle primitive (write-ownership is enforced by the
// operations middleware, not here).
func (r *Resolver) RotateKey(ctx context.Context, agentUUID string) (string, error) {
	id, err := r.identities.GetByUUID(ctx, agentUUID)
	if err != nil {
		return "", governanceerrors.AgentNotFound(agentUUID)
	}

	rawKey, err := crypto.GenerateRandomBytes(32)
	if err != nil {
		return "", governanceerrors.Internal("failed to generate api key", err)
	}
	plaintext := fmt.Sprintf("%x", rawKey)
	crypto.ZeroBytes(rawKey)

	id.APIKeyHash = crypto.Hash256([]byte(plaintext))
	id.LastUpdateAt = time.Now()
	if err := r.identities.Update(ctx, id); err != nil {
		return "", governanceerrors.PersistFailure(err)
	}
	return plaintext, nil
}

// SetDisplayName mutates an identity's display name (§4.2's
// set_display_name).
func (r *Resolver) SetDisplayName(ctx context.Context, agentUUID, name string) error {
	id, err := r.identities.GetByUUID(ctx, agentUUID)
	if err != nil {
		return governanceerrors.AgentNotFound(agentUUID)
	}
	id.DisplayName = name
	id.LastUpdateAt = time.Now()
	if err := r.identities.Update(ctx, id); err != nil {
		return governanceerrors.PersistFailure(err)
	}
	return nil
}
