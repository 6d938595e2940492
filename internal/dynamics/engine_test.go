package dynamics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/pkg/config"
)

func testEngine() *Engine {
	return New(config.New().Dynamics)
}

func baseInputs() Inputs {
	return Inputs{
		Parameters:   make([]float64, 128),
		EthicalDrift: []float64{0.1, 0.1, 0.1},
		Complexity:   0.3,
		Confidence:   0.9,
		CIPassed:     true,
	}
}

// Scenario 1 (§8): happy-path update stays within every bound the spec
// names as an invariant, regardless of the exact calibration of the
// risk-score weights (an explicitly open question).
func TestStepHappyPathStaysWithinBounds(t *testing.T) {
	e := testEngine()
	prev := model.AgentState{E: 0.5, I: 0.8, S: 0.2, V: 0.0}

	step := e.Step(prev, baseInputs())

	require.False(t, step.NonFinite)
	assert.GreaterOrEqual(t, step.E, 0.0)
	assert.LessOrEqual(t, step.E, 1.0)
	assert.GreaterOrEqual(t, step.I, 0.0)
	assert.LessOrEqual(t, step.I, 1.0)
	assert.GreaterOrEqual(t, step.S, 0.0)
	assert.LessOrEqual(t, step.S, 2.0)
	assert.GreaterOrEqual(t, step.V, -2.0)
	assert.LessOrEqual(t, step.V, 2.0)
	assert.GreaterOrEqual(t, step.Coherence, 0.0)
	assert.LessOrEqual(t, step.Coherence, 1.0)
	assert.GreaterOrEqual(t, step.RiskScore, 0.0)
	assert.LessOrEqual(t, step.RiskScore, 1.0)
}

// Scenario 1 margin/verdict: comfortable margin, approve verdict,
// auto_attest granted when ci_passed && confidence >= 0.8.
func TestVerdictApprovesComfortableState(t *testing.T) {
	e := testEngine()
	prev := model.AgentState{E: 0.5, I: 0.8, S: 0.2, V: 0.1}
	inputs := baseInputs()

	step := e.Step(prev, inputs)
	m := margin(step.Coherence, step.RiskScore, math.Abs(step.V))
	v, autoAttest, requireHuman := verdict(step.Coherence, step.RiskScore, model.RegimeExploration, inputs)

	assert.Equal(t, model.MarginComfortable, m)
	assert.Equal(t, model.VerdictApprove, v)
	assert.True(t, autoAttest)
	assert.False(t, requireHuman)
}

// Scenario 2 (§8): confidence gating. Lower confidence skips the lambda1
// update and, regardless of the verdict the risk/coherence numbers alone
// would produce, forces auto_attest=false / revise / require_human.
func TestConfidenceGatingSkipsLambda1AndCoercesVerdict(t *testing.T) {
	e := testEngine()
	prev := model.AgentState{E: 0.5, I: 0.8, S: 0.2, V: 0.0, Lambda1: 0.42}

	gated := baseInputs()
	gated.Confidence = 0.6

	step := e.Step(prev, gated)
	assert.True(t, step.Lambda1Skipped)
	assert.Equal(t, prev.Lambda1, step.Lambda1)

	v, autoAttest, requireHuman := verdict(step.Coherence, step.RiskScore, model.RegimeExploration, gated)
	assert.Equal(t, model.VerdictRevise, v)
	assert.False(t, autoAttest)
	assert.True(t, requireHuman)
}

// Scenario 3 (§8): hitting the reject edge from a degraded starting state
// with high drift and complexity.
func TestVerdictRejectsDegradedState(t *testing.T) {
	e := testEngine()
	prev := model.AgentState{E: 0.1, I: 0.9, S: 1.9, V: -1.0}
	inputs := baseInputs()
	inputs.EthicalDrift = []float64{1.0, 1.0, 1.0}
	inputs.Complexity = 0.9
	inputs.Confidence = 1.0

	step := e.Step(prev, inputs)
	v, _, _ := verdict(step.Coherence, step.RiskScore, model.RegimeExploration, inputs)

	assert.Less(t, step.Coherence, 0.40)
	assert.Equal(t, model.VerdictReject, v)
}

func TestStepIsDeterministic(t *testing.T) {
	e := testEngine()
	prev := model.AgentState{E: 0.5, I: 0.8, S: 0.2, V: 0.0}
	inputs := baseInputs()

	a := e.Step(prev, inputs)
	b := e.Step(prev, inputs)
	assert.Equal(t, a, b)
}

func TestLinearModeSkipsGammaTerm(t *testing.T) {
	cfg := config.New().Dynamics
	cfg.Mode = "linear"
	e := New(cfg)
	nonlinear := testEngine()

	prev := model.AgentState{E: 0.5, I: 0.8, S: 0.2, V: 0.0}
	inputs := baseInputs()

	linStep := e.Step(prev, inputs)
	nlStep := nonlinear.Step(prev, inputs)
	assert.NotEqual(t, linStep.I, nlStep.I)
}

func TestEntropyFloorEnforcedWithoutExternalValidation(t *testing.T) {
	e := testEngine()
	prev := model.AgentState{E: 0.9, I: 0.9, S: 0.001, V: 0.0}
	inputs := baseInputs()
	inputs.EthicalDrift = []float64{0, 0, 0}

	step := e.Step(prev, inputs)
	assert.GreaterOrEqual(t, step.S, 0.001)
}

func TestExternalValidationAllowsZeroEntropy(t *testing.T) {
	e := testEngine()
	cfg := e.cfg
	cfg.Mu = 5.0
	e2 := New(cfg)

	prev := model.AgentState{E: 0.9, I: 0.9, S: 0.0001, V: 0.0}
	inputs := baseInputs()
	inputs.EthicalDrift = []float64{0, 0, 0}
	inputs.ExternalValidation = true

	step := e2.Step(prev, inputs)
	assert.GreaterOrEqual(t, step.S, 0.0)
}

func TestNonFiniteIntegrationIsFlagged(t *testing.T) {
	e := testEngine()
	prev := model.AgentState{E: math.Inf(1), I: 0.5, S: 0.2, V: 0.0}
	step := e.Step(prev, baseInputs())
	assert.True(t, step.NonFinite)
}

func TestMarginClassification(t *testing.T) {
	assert.Equal(t, model.MarginCritical, margin(0.30, 0.10, 0.01))
	assert.Equal(t, model.MarginCritical, margin(0.80, 0.65, 0.01))
	assert.Equal(t, model.MarginCritical, margin(0.80, 0.10, 0.20))
	assert.Equal(t, model.MarginTight, margin(0.45, 0.10, 0.01))
	assert.Equal(t, model.MarginComfortable, margin(0.90, 0.10, 0.01))
}

func TestLockedRegimeRequiresThreeConsecutiveSteps(t *testing.T) {
	state := model.AgentState{I: 0.999, S: 0.001, LockedStreak: 2}
	streak := lockedStreak(state, 0.999, 0.001)
	assert.Equal(t, 3, streak)
	assert.Equal(t, model.RegimeLocked, regime(state, 0.001, 0.999, streak))
}

func TestSamplingParamsMonotonicInLambda1(t *testing.T) {
	e := testEngine()
	low := e.samplingParams(0.1)
	high := e.samplingParams(1.5)

	assert.Less(t, low.Temperature, high.Temperature)
	assert.Less(t, low.TopP, high.TopP)
	assert.LessOrEqual(t, low.MaxTokens, high.MaxTokens)
}
