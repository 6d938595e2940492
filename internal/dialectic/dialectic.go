// Package dialectic implements the Dialectic State Machine: the
// thesis/antithesis/synthesis negotiation between a paused agent and a
// chosen reviewer, with signed messages, a Safety Gate, and one-shot
// resolution.
package dialectic

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/crypto"
	"github.com/r3e-network/agent-governance/internal/dynamics"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/platform"
	"github.com/r3e-network/agent-governance/internal/store"
)

const (
	maxSynthesisAttempts = 3
	sessionTimeout       = time.Hour
	reopenCooldown       = time.Hour
	anticollusionWindow  = 24 * time.Hour
	minReviewerScore     = 0.1
	summarizerDeadline   = 5 * time.Second
)

// Service drives dialectic sessions to resolution.
type Service struct {
	sessions   store.DialecticSessions
	identities store.Identities
	states     store.AgentStates
	audit      store.AuditLog
	lock       platform.NamedLockDriver
	dynamics   *dynamics.Service
	summarizer platform.SummarizerDriver
	lockTTL    time.Duration

	lastResolutionAttempt map[string]time.Time
}

// New builds a dialectic Service.
func New(sessions store.DialecticSessions, identities store.Identities, states store.AgentStates, audit store.AuditLog, lock platform.NamedLockDriver, dyn *dynamics.Service, summarizer platform.SummarizerDriver, lockTTL time.Duration) *Service {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if summarizer == nil {
		summarizer = platform.NullSummarizer{}
	}
	return &Service{
		sessions: sessions, identities: identities, states: states, audit: audit,
		lock: lock, dynamics: dyn, summarizer: summarizer, lockTTL: lockTTL,
		lastResolutionAttempt: make(map[string]time.Time),
	}
}

// sessionLockNames returns the two agent names in uuid-lexicographic order,
// the union-lock acquisition order required to avoid deadlock (§5).
func sessionLockNames(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

func (s *Service) acquireSessionLock(ctx context.Context, pausedUUID, reviewerUUID string) (platform.LockHandle, platform.LockHandle, error) {
	first, second := sessionLockNames(pausedUUID, reviewerUUID)
	h1, err := s.lock.Acquire(ctx, first, s.lockTTL)
	if err != nil {
		return nil, nil, err
	}
	h2, err := s.lock.Acquire(ctx, second, s.lockTTL)
	if err != nil {
		h1.Release(ctx)
		return nil, nil, err
	}
	return h1, h2, nil
}

// HasOpenSession reports whether agentUUID already has a non-terminal
// session, used by both request_review and the stuck detector.
func (s *Service) HasOpenSession(ctx context.Context, agentUUID string) (bool, error) {
	sess, err := s.sessions.FindOpenForAgent(ctx, agentUUID)
	if err != nil {
		return false, nil
	}
	return sess != nil, nil
}

// GetSession is get_session(session_id) from §6's external interface.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.New(errors.ErrResourceNotFound, "no such dialectic session")
	}
	return session, nil
}

// ListSessions is list_sessions() from §6's external interface: every
// session still in a non-terminal phase.
func (s *Service) ListSessions(ctx context.Context) ([]*model.Session, error) {
	return s.sessions.ListNonTerminal(ctx)
}

// RequestReview is request_review(paused_uuid, reason) -> SessionId (§4.4).
func (s *Service) RequestReview(ctx context.Context, pausedUUID, reason string) (string, error) {
	if existing, _ := s.sessions.FindOpenForAgent(ctx, pausedUUID); existing != nil {
		return "", errors.New(errors.ErrAlreadyOpen, "a dialectic session is already open for this agent")
	}

	if last, ok := s.lastResolutionAttempt[pausedUUID]; ok && time.Since(last) < reopenCooldown {
		return "", errors.New(errors.ErrConflict, "conservative default in effect: session will not reopen before the cooldown elapses").
			WithDetails("retry_after", last.Add(reopenCooldown))
	}

	paused, err := s.identities.GetByUUID(ctx, pausedUUID)
	if err != nil {
		return "", errors.AgentNotFound(pausedUUID)
	}

	reviewerUUID, err := s.selectReviewer(ctx, paused)
	if err != nil {
		return "", err
	}

	state, err := s.states.Get(ctx, pausedUUID)
	if err != nil {
		return "", errors.AgentNotFound(pausedUUID)
	}

	now := time.Now()
	session := &model.Session{
		SessionID:            uuid.NewString(),
		PausedAgentUUID:       pausedUUID,
		ReviewerAgentUUID:     reviewerUUID,
		Topic:                 reason,
		Phase:                 model.PhaseThesis,
		Status:                "active",
		PausedAgentStateSnap:  *state,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", errors.PersistFailure(err)
	}

	_ = s.audit.Append(ctx, model.AuditEvent{
		Timestamp: now, ActorUUID: pausedUUID, SubjectUUID: reviewerUUID, Action: "dialectic_requested",
		Tags: []string{"dialectic", "request-review"},
		Details: map[string]interface{}{"session_id": session.SessionID, "reason": reason},
	})
	return session.SessionID, nil
}

// candidateScore is an intermediate scoring record for reviewer selection.
type candidateScore struct {
	uuid  string
	score float64
}

// selectReviewer implements §4.4's authority-score formula and
// anti-collusion rule.
func (s *Service) selectReviewer(ctx context.Context, paused *model.Identity) (string, error) {
	all, err := s.identities.List(ctx, false)
	if err != nil {
		return "", errors.PersistFailure(err)
	}

	var scored []candidateScore
	for _, cand := range all {
		if cand.UUID == paused.UUID || cand.Status != model.StatusActive || cand.Creature() {
			continue
		}
		score, err := s.authorityScore(ctx, paused, cand)
		if err != nil {
			continue
		}
		scored = append(scored, candidateScore{uuid: cand.UUID, score: score})
	}

	if len(scored) == 0 {
		return "", errors.New(errors.ErrNoReviewer, "no reviewer candidates available")
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].uuid < scored[j].uuid
	})

	best := scored[0]
	if best.score <= minReviewerScore {
		return "", errors.New(errors.ErrNoReviewer, "no candidate cleared the minimum authority score")
	}
	return best.uuid, nil
}

func (s *Service) authorityScore(ctx context.Context, paused, candidate *model.Identity) (float64, error) {
	candState, err := s.states.Get(ctx, candidate.UUID)
	if err != nil {
		return 0, err
	}

	health := 1 - candState.RiskScore
	trackRecord, hasHistory, _ := s.sessions.SynthesisTrackRecord(ctx, candidate.UUID)
	if !hasHistory {
		trackRecord = 0.5
	}
	expertiseOverlap := jaccardStrings(paused.Tags, candidate.Tags)
	hoursSince := time.Since(candState.UpdatedAt).Hours()
	recency := math.Exp(-hoursSince / 24)

	score := 0.4*health + 0.3*trackRecord + 0.2*expertiseOverlap + 0.1*recency

	reviewedRecently, _ := s.sessions.ReviewedRecently(ctx, candidate.UUID, paused.UUID, time.Now().Add(-anticollusionWindow))
	if reviewedRecently {
		score *= 0.5
	}
	return score, nil
}

func jaccardStrings(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)
	inter := 0
	for k := range setA {
		if setB[k] {
			inter++
		}
	}
	union := len(setA)
	for k := range setB {
		if !setA[k] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
