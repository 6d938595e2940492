package operations

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/dynamics"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
)

func governanceOperations() []Operation {
	return []Operation{
		{Name: "process_update", Class: ratelimit.ClassUpdate, Timeout: 10 * time.Second, Handler: processUpdate,
			Description: "apply_update: integrate one EISV step and return its verdict (§4.1)"},
		{Name: "simulate_update", Class: ratelimit.ClassRead, Timeout: 10 * time.Second, Handler: simulateUpdate,
			Description: "preview apply_update's outcome without persisting it"},
		{Name: "get_metrics", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: getMetrics,
			Description: "return the caller's current EISV state snapshot"},
		{Name: "get_history", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: getHistory,
			Description: "return the caller's bounded recent-update history ring"},
	}
}

func parseInputs(p Params) dynamics.Inputs {
	return dynamics.Inputs{
		Parameters:           p.Float64Slice("parameters"),
		EthicalDrift:         p.Float64Slice("ethical_drift"),
		Complexity:           firstFloat(p, "complexity"),
		Confidence:           firstFloat(p, "confidence"),
		CIPassed:             p.Bool("ci_passed"),
		ExternalValidation:   p.Bool("external_validation"),
		TaskType:             p.StringOr("task_type", ""),
		CalibrationDeviation: firstFloat(p, "calibration_deviation"),
	}
}

func firstFloat(p Params, key string) float64 {
	f, _ := p.Float64(key)
	return f
}

func processUpdate(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	result, err := d.Dynamics.ApplyUpdate(ctx, agentUUID, parseInputs(p))
	if err != nil {
		return nil, errors.As(err)
	}
	if d.Metrics != nil {
		d.Metrics.RecordEISVUpdate(string(result.Verdict))
		d.Metrics.SetAgentState(agentUUID, result.State.RiskScore, marginScore(result.State.Margin))
	}
	return result, nil
}

func simulateUpdate(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	result, err := d.Dynamics.Simulate(ctx, agentUUID, parseInputs(p))
	if err != nil {
		return nil, errors.As(err)
	}
	return result, nil
}

func getMetrics(ctx context.Context, d *Deps, agentUUID string, _ Params) (interface{}, *errors.ServiceError) {
	state, err := d.Dynamics.Snapshot(ctx, agentUUID)
	if err != nil {
		return nil, errors.As(err)
	}
	return state, nil
}

func getHistory(ctx context.Context, d *Deps, agentUUID string, _ Params) (interface{}, *errors.ServiceError) {
	state, err := d.Dynamics.Snapshot(ctx, agentUUID)
	if err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"agent_uuid": agentUUID, "history": state.History}, nil
}

// marginScore gives the observability layer a single comparable float for
// an agent's margin classification, since telemetry gauges need a number
// and model.Margin is a qualitative enum.
func marginScore(m model.Margin) float64 {
	switch m {
	case model.MarginCritical:
		return 0
	case model.MarginTight:
		return 0.5
	default:
		return 1
	}
}
