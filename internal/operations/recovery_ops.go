package operations

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
)

func recoveryOperations() []Operation {
	return []Operation{
		{Name: "resume_if_safe", Class: ratelimit.ClassUpdate, Timeout: 10 * time.Second, Handler: resumeIfSafe,
			Description: "resume the caller if the bare safety predicate holds, no dialectic review needed"},
		{Name: "self_recovery_review", Class: ratelimit.ClassDialectic, Timeout: 10 * time.Second, Handler: selfRecoveryReview,
			Description: "open a dialectic session for an agent that cannot resume unilaterally"},
		{Name: "check_recovery_options", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: checkRecoveryOptions,
			Description: "report whether the caller is safe to resume and which path applies"},
		{Name: "operator_resume", Class: ratelimit.ClassAdmin, Timeout: 10 * time.Second, Handler: operatorResume,
			Description: "operator-forced resume with an explicit acknowledged override condition"},
	}
}

func resumeIfSafe(ctx context.Context, d *Deps, agentUUID string, _ Params) (interface{}, *errors.ServiceError) {
	state, err := d.Dynamics.Snapshot(ctx, agentUUID)
	if err != nil {
		return nil, errors.As(err)
	}
	if !state.SafeToResume() {
		return nil, errors.Unsafe("resume predicate not satisfied; use self_recovery_review")
	}
	if err := d.Dynamics.Resume(ctx, agentUUID, nil, ""); err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"resumed": true}, nil
}

func selfRecoveryReview(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	reason := p.StringOr("reason", "self-recovery review requested")
	sessionID, err := d.Dialectic.RequestReview(ctx, agentUUID, reason)
	if err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"session_id": sessionID}, nil
}

func checkRecoveryOptions(ctx context.Context, d *Deps, agentUUID string, _ Params) (interface{}, *errors.ServiceError) {
	state, err := d.Dynamics.Snapshot(ctx, agentUUID)
	if err != nil {
		return nil, errors.As(err)
	}
	hasOpen, _ := d.Dialectic.HasOpenSession(ctx, agentUUID)
	path := "resume_if_safe"
	if !state.SafeToResume() {
		path = "self_recovery_review"
	}
	if hasOpen {
		path = "await_existing_session"
	}
	return map[string]interface{}{
		"safe_to_resume":      state.SafeToResume(),
		"has_open_session":    hasOpen,
		"recommended_path":    path,
		"coherence":           state.Coherence,
		"risk_score":          state.RiskScore,
		"void_active":         state.VoidActive(),
	}, nil
}

// operatorResume is an administrative override: the operator presents an
// explicit acknowledgment condition, which satisfies dynamics.Service.Resume's
// "safe OR has accepted conditions" gate the same way a dialectic synthesis
// would, without running the full thesis/antithesis/synthesis exchange.
func operatorResume(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	reason := p.StringOr("reason", "operator override")
	conditions := []model.Condition{{Kind: "operator_override", Key: "reason", Value: 1}}
	if err := d.Dynamics.Resume(ctx, agentUUID, conditions, ""); err != nil {
		return nil, errors.As(err)
	}
	_ = d.Audit.Append(ctx, model.AuditEvent{
		Timestamp: time.Now(), ActorUUID: agentUUID, Action: "operator_resume",
		Tags: []string{"recovery", "operator-override"}, Details: map[string]interface{}{"reason": reason},
	})
	return map[string]interface{}{"resumed": true}, nil
}
