package operations

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
)

func observabilityOperations() []Operation {
	return []Operation{
		{Name: "observe", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: observe,
			Description: "alias of get_metrics: the caller's current EISV state"},
		{Name: "compare", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: compare,
			Description: "compare the caller's state against another agent's"},
		{Name: "detect_anomalies", Class: ratelimit.ClassAdmin, Timeout: 10 * time.Second, Handler: detectAnomalies,
			Description: "scan every agent's persisted state for unsafe-regime or high-risk conditions"},
		{Name: "aggregate_metrics", Class: ratelimit.ClassAdmin, Timeout: 10 * time.Second, Handler: aggregateMetrics,
			Description: "fleet-wide averages over every agent's persisted state"},
		{Name: "telemetry", Class: ratelimit.ClassAdmin, Timeout: 5 * time.Second, Handler: telemetrySnapshot,
			Description: "process-level counters: uptime, agent count, open dialectic session count, version"},
	}
}

func observe(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	return getMetrics(ctx, d, agentUUID, p)
}

func compare(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	otherUUID, ok := p.String("other_agent_uuid")
	if !ok {
		return nil, errors.MissingParameter("other_agent_uuid")
	}
	mine, err := d.Dynamics.Snapshot(ctx, agentUUID)
	if err != nil {
		return nil, errors.As(err)
	}
	other, err := d.Dynamics.Snapshot(ctx, otherUUID)
	if err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{
		"self":              mine,
		"other":             other,
		"coherence_delta":   mine.Coherence - other.Coherence,
		"risk_score_delta":  mine.RiskScore - other.RiskScore,
	}, nil
}

// detect_anomalies and aggregate_metrics are thin wrappers over
// AgentStates.ListAll rather than a dedicated time-series store: the
// expanded spec's supplemental features explicitly scope a calibration/
// telemetry store out as an external collaborator concern, so the
// observability surface here only ever reads state the Dynamics Engine
// already persists.
func detectAnomalies(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	riskThreshold, ok := p.Float64("risk_threshold")
	if !ok {
		riskThreshold = 0.6
	}
	states, err := d.Store.AgentStates.ListAll(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list agent states", err)
	}
	var anomalies []map[string]interface{}
	for _, s := range states {
		if s.RiskScore >= riskThreshold || s.Margin == model.MarginCritical || s.VoidActive() {
			anomalies = append(anomalies, map[string]interface{}{
				"agent_uuid": s.AgentUUID,
				"risk_score": s.RiskScore,
				"margin":     s.Margin,
				"regime":     s.Regime,
				"void_active": s.VoidActive(),
			})
		}
	}
	return map[string]interface{}{"anomalies": anomalies, "scanned": len(states)}, nil
}

func aggregateMetrics(ctx context.Context, d *Deps, _ string, _ Params) (interface{}, *errors.ServiceError) {
	states, err := d.Store.AgentStates.ListAll(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list agent states", err)
	}
	if len(states) == 0 {
		return map[string]interface{}{"agent_count": 0}, nil
	}
	var sumCoherence, sumRisk float64
	regimes := map[model.Regime]int{}
	for _, s := range states {
		sumCoherence += s.Coherence
		sumRisk += s.RiskScore
		regimes[s.Regime]++
	}
	n := float64(len(states))
	return map[string]interface{}{
		"agent_count":     len(states),
		"avg_coherence":   sumCoherence / n,
		"avg_risk_score":  sumRisk / n,
		"regime_counts":   regimes,
	}, nil
}

func telemetrySnapshot(ctx context.Context, d *Deps, _ string, _ Params) (interface{}, *errors.ServiceError) {
	states, err := d.Store.AgentStates.ListAll(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list agent states", err)
	}
	sessions, _ := d.Dialectic.ListSessions(ctx)
	return map[string]interface{}{
		"uptime_seconds":       time.Since(d.StartedAt).Seconds(),
		"agent_count":          len(states),
		"open_dialectic_count": len(sessions),
		"version":              d.Version,
	}, nil
}
