package dynamics

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/platform"
	"github.com/r3e-network/agent-governance/internal/store"
)

// Service is the public-contract surface of the EISV Dynamics Engine:
// apply_update, resume, and snapshot, each orchestrating the write-lock,
// the pure Engine.Step computation, persistence, and audit.
type Service struct {
	engine  *Engine
	lock    platform.NamedLockDriver
	states  store.AgentStates
	idents  store.Identities
	dlct    store.DialecticSessions
	audit   store.AuditLog
	lockTTL time.Duration
}

// NewService wires the Dynamics Engine to its collaborators.
func NewService(engine *Engine, lock platform.NamedLockDriver, states store.AgentStates, idents store.Identities, dlct store.DialecticSessions, audit store.AuditLog, lockTTL time.Duration) *Service {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Service{engine: engine, lock: lock, states: states, idents: idents, dlct: dlct, audit: audit, lockTTL: lockTTL}
}

func (s *Service) validateInputs(inputs Inputs) error {
	if len(inputs.Parameters) != s.engine.cfg.ParamDim {
		return errors.New(errors.ErrInvalidParameterType, "parameters has the wrong dimension").
			WithDetails("expected_dim", s.engine.cfg.ParamDim).WithDetails("got_dim", len(inputs.Parameters))
	}
	if len(inputs.EthicalDrift) != s.engine.cfg.DriftDim {
		return errors.New(errors.ErrInvalidParameterType, "ethical_drift has the wrong dimension").
			WithDetails("expected_dim", s.engine.cfg.DriftDim).WithDetails("got_dim", len(inputs.EthicalDrift))
	}
	if inputs.Complexity < 0 || inputs.Complexity > 1 {
		return errors.OutOfRange("complexity", 0, 1)
	}
	if inputs.Confidence < 0 || inputs.Confidence > 1 {
		return errors.OutOfRange("confidence", 0, 1)
	}
	return nil
}

// ApplyUpdate is apply_update(agent_uuid, inputs) -> UpdateResult (§4.1).
func (s *Service) ApplyUpdate(ctx context.Context, agentUUID string, inputs Inputs) (*model.UpdateResult, error) {
	if inputs.Confidence == 0 {
		inputs.Confidence = 1.0
	}

	if err := s.validateInputs(inputs); err != nil {
		return nil, err
	}

	identity, err := s.idents.GetByUUID(ctx, agentUUID)
	if err != nil {
		return nil, errors.AgentNotFound(agentUUID)
	}
	if identity.Status != model.StatusActive {
		return nil, errors.New(errors.ErrOutOfRange, "agent is not in active status").
			WithDetails("agent_uuid", agentUUID).WithDetails("status", identity.Status)
	}

	handle, err := s.lock.Acquire(ctx, agentUUID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer handle.Release(ctx)

	prev, err := s.states.Get(ctx, agentUUID)
	if err != nil {
		prev = &model.AgentState{AgentUUID: agentUUID, Lambda1: s.engine.cfg.Lambda1Base}
	}

	step := s.engine.Step(*prev, inputs)
	if step.NonFinite {
		_ = s.audit.Append(ctx, model.AuditEvent{
			Timestamp: time.Now(), ActorUUID: agentUUID, Action: "integration_failure",
			Tags: []string{"dynamics", "integration-failure"},
		})
		return nil, errors.IntegrationFailure(nil)
	}

	next := *prev
	next.E, next.I, next.S, next.V = step.E, step.I, step.S, step.V
	next.Coherence = step.Coherence
	next.RiskScore = step.RiskScore
	next.Lambda1 = step.Lambda1
	next.TotalUpdates++
	if step.Lambda1Skipped {
		next.Lambda1SkipCount++
	}
	next.LockedStreak = lockedStreak(*prev, next.I, next.S)
	next.Regime = regime(*prev, next.S, next.I, next.LockedStreak)
	next.Margin = margin(next.Coherence, next.RiskScore, absf(next.V))
	next.UpdatedAt = time.Now()
	next.PushHistory(model.HistoryPoint{
		Timestamp: next.UpdatedAt, E: next.E, I: next.I, S: next.S, V: next.V,
		Coherence: next.Coherence, Risk: next.RiskScore,
	})
	if next.Regime == model.RegimeLocked {
		next.LockedPersistenceCount++
	}

	v, autoAttest, requireHuman := verdict(next.Coherence, next.RiskScore, next.Regime, inputs)

	result := &model.UpdateResult{
		State: next, Verdict: v, AutoAttest: autoAttest, RequireHuman: requireHuman,
		Sampling: s.engine.samplingParams(next.Lambda1),
	}

	if v == model.VerdictReject {
		identity.Status = model.StatusPaused
		identity.LastUpdateAt = next.UpdatedAt
		if err := s.idents.Update(ctx, identity); err != nil {
			return nil, errors.PersistFailure(err)
		}
		if err := s.states.Put(ctx, &next); err != nil {
			return nil, errors.PersistFailure(err)
		}
		_ = s.audit.Append(ctx, model.AuditEvent{
			Timestamp: next.UpdatedAt, ActorUUID: agentUUID, Action: "verdict_reject_pause",
			Tags: []string{"dynamics", "lifecycle", "pause"},
			Details: map[string]interface{}{"risk": next.RiskScore, "coherence": next.Coherence},
		})
		result.Guidance = "agent paused: coherence or risk crossed the reject threshold"
		return result, nil
	}

	if err := s.states.Put(ctx, &next); err != nil {
		return nil, errors.PersistFailure(err)
	}

	if v == model.VerdictRevise {
		result.Guidance = "revise: review the suggested recovery operation before retrying"
	}

	return result, nil
}

// Simulate is simulate_update(agent_uuid, inputs) -> UpdateResult: runs the
// same Engine.Step computation as ApplyUpdate but never acquires the
// write-lock and never persists the result, letting a caller preview a
// verdict before committing to it.
func (s *Service) Simulate(ctx context.Context, agentUUID string, inputs Inputs) (*model.UpdateResult, error) {
	if inputs.Confidence == 0 {
		inputs.Confidence = 1.0
	}
	if err := s.validateInputs(inputs); err != nil {
		return nil, err
	}

	identity, err := s.idents.GetByUUID(ctx, agentUUID)
	if err != nil {
		return nil, errors.AgentNotFound(agentUUID)
	}
	_ = identity

	prev, err := s.states.Get(ctx, agentUUID)
	if err != nil {
		prev = &model.AgentState{AgentUUID: agentUUID, Lambda1: s.engine.cfg.Lambda1Base}
	}

	step := s.engine.Step(*prev, inputs)
	if step.NonFinite {
		return nil, errors.IntegrationFailure(nil)
	}

	next := *prev
	next.E, next.I, next.S, next.V = step.E, step.I, step.S, step.V
	next.Coherence = step.Coherence
	next.RiskScore = step.RiskScore
	next.Lambda1 = step.Lambda1
	next.LockedStreak = lockedStreak(*prev, next.I, next.S)
	next.Regime = regime(*prev, next.S, next.I, next.LockedStreak)
	next.Margin = margin(next.Coherence, next.RiskScore, absf(next.V))

	v, autoAttest, requireHuman := verdict(next.Coherence, next.RiskScore, next.Regime, inputs)
	return &model.UpdateResult{
		State: next, Verdict: v, AutoAttest: autoAttest, RequireHuman: requireHuman,
		Sampling: s.engine.samplingParams(next.Lambda1),
	}, nil
}

// absf mirrors model.AgentState's unexported helper for this package's own
// margin computation inputs.
func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Resume is resume(agent_uuid, conditions?, reviewer_uuid?) -> ResumeResult
// (§4.1). It requires either the bare safety predicate or that the caller
// (the Dialectic State Machine, post-Safety-Gate) is presenting accepted
// conditions.
func (s *Service) Resume(ctx context.Context, agentUUID string, conditions []model.Condition, reviewerUUID string) error {
	handle, err := s.lock.Acquire(ctx, agentUUID, s.lockTTL)
	if err != nil {
		return err
	}
	defer handle.Release(ctx)

	identity, err := s.idents.GetByUUID(ctx, agentUUID)
	if err != nil {
		return errors.AgentNotFound(agentUUID)
	}

	if identity.Status == model.StatusActive {
		// Idempotent: resuming an already-active agent with identical
		// conditions is a no-op success (§8 property 9).
		return nil
	}

	state, err := s.states.Get(ctx, agentUUID)
	if err != nil {
		return errors.AgentNotFound(agentUUID)
	}

	safe := state.SafeToResume()
	if !safe && len(conditions) == 0 {
		return errors.Unsafe("resume predicate not satisfied and no accepted conditions presented")
	}

	identity.Status = model.StatusActive
	identity.LastUpdateAt = time.Now()
	if err := s.idents.Update(ctx, identity); err != nil {
		return errors.PersistFailure(err)
	}

	details := map[string]interface{}{"coherence": state.Coherence, "risk": state.RiskScore}
	if reviewerUUID != "" {
		details["reviewer_uuid"] = reviewerUUID
	}
	if len(conditions) > 0 {
		details["conditions_applied"] = len(conditions)
	}
	_ = s.audit.Append(ctx, model.AuditEvent{
		Timestamp: identity.LastUpdateAt, ActorUUID: agentUUID, Action: "resume",
		Tags: []string{"dynamics", "lifecycle", "resume"}, Details: details,
	})
	return nil
}

// Snapshot is snapshot(agent_uuid) -> StateView: read-only, no lock taken.
func (s *Service) Snapshot(ctx context.Context, agentUUID string) (*model.AgentState, error) {
	state, err := s.states.Get(ctx, agentUUID)
	if err != nil {
		return nil, errors.AgentNotFound(agentUUID)
	}
	return state, nil
}
