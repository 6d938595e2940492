// Package dynamics implements the EISV Dynamics Engine: the per-agent
// forward-Euler state integration, derived coherence/risk/margin/regime,
// and the governance verdict. It is the one component in the governance
// core doing CPU-only, non-suspending work — no I/O happens inside Step.
package dynamics

import (
	"math"

	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/pkg/config"
)

// Inputs is one apply_update call's argument bundle (§4.1).
type Inputs struct {
	Parameters         []float64
	EthicalDrift       []float64
	Complexity         float64
	Confidence         float64
	CIPassed           bool
	ExternalValidation bool
	TaskType           string

	// CalibrationDeviation is the expected-vs-observed gap for the
	// confidence bucket this update falls into, supplied by a calibration
	// table if present; zero when no table is configured.
	CalibrationDeviation float64
}

// Engine integrates one EISV step at a time; it holds only tunable
// parameters, never per-agent state (callers own and persist that).
type Engine struct {
	cfg config.DynamicsConfig
}

// New builds an Engine from the dynamics tunables.
func New(cfg config.DynamicsConfig) *Engine {
	if cfg.DT == 0 {
		cfg.DT = 0.1
	}
	return &Engine{cfg: cfg}
}

// driftMagnitude computes d² = ‖Δη‖² / dim(Δη).
func driftMagnitude(drift []float64) float64 {
	if len(drift) == 0 {
		return 0
	}
	var sumSquares float64
	for _, v := range drift {
		sumSquares += v * v
	}
	return sumSquares / float64(len(drift))
}

// coherence computes C(V) = C_max · 0.5 · (1 + tanh(C1·V)).
func (e *Engine) coherence(v float64) float64 {
	return e.cfg.CMax * 0.5 * (1 + math.Tanh(e.cfg.C1*v))
}

// nextLambda1 applies the §4.1 gating rule: skip the update under
// confidence < gate (consuming the prior value and incrementing the skip
// counter), otherwise blend toward a target derived from recent
// coherence/risk history via an exponential moving average.
func (e *Engine) nextLambda1(prev model.AgentState, inputs Inputs) (lambda1 float64, skipped bool) {
	if inputs.Confidence < e.cfg.ConfidenceGate {
		lambda1 = prev.Lambda1
		if lambda1 == 0 {
			lambda1 = e.cfg.Lambda1Base
		}
		return lambda1, true
	}

	target := e.cfg.Lambda1Base
	if n := len(prev.History); n > 0 {
		var coherenceSum, riskSum float64
		window := n
		if window > 8 {
			window = 8
		}
		for i := n - window; i < n; i++ {
			coherenceSum += prev.History[i].Coherence
			riskSum += prev.History[i].Risk
		}
		avgCoherence := coherenceSum / float64(window)
		avgRisk := riskSum / float64(window)
		target = e.cfg.Lambda1Base * (1 + avgRisk - avgCoherence)
		if target < 0 {
			target = 0
		}
	}

	prior := prev.Lambda1
	if prior == 0 {
		prior = e.cfg.Lambda1Base
	}
	lambda1 = prior + e.cfg.Lambda1EMA*(target-prior)
	return lambda1, false
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// StepResult is the pure-computation output of one integration step,
// before the caller's persistence/verdict-side-effect decisions.
type StepResult struct {
	E, I, S, V    float64
	Coherence     float64
	RiskScore     float64
	Lambda1       float64
	Lambda1Skipped bool
	DriftSq       float64
	NonFinite     bool
}

// Step integrates exactly one forward-Euler step from prev given inputs,
// per §4.1's core algorithm. It never mutates prev.
func (e *Engine) Step(prev model.AgentState, inputs Inputs) StepResult {
	dSq := driftMagnitude(inputs.EthicalDrift)
	lambda1, skipped := e.nextLambda1(prev, inputs)

	cPrev := e.coherence(prev.V)

	dE := e.cfg.Alpha*(prev.I-prev.E) - e.cfg.BetaE*prev.E*prev.S + lambda1*prev.E*dSq
	dI := -e.cfg.K*prev.S + e.cfg.BetaI*prev.I*cPrev
	if e.cfg.Mode != "linear" {
		dI -= e.cfg.GammaI * prev.I * (1 - prev.I)
	}
	dS := -e.cfg.Mu*prev.S + lambda1*dSq - e.cfg.Lambda2*cPrev
	dV := e.cfg.Kappa*(prev.E-prev.I) - e.cfg.Delta*prev.V

	dt := e.cfg.DT
	newE := prev.E + dt*dE
	newI := prev.I + dt*dI
	newS := prev.S + dt*dS
	newV := prev.V + dt*dV

	nonFinite := isNonFinite(newE) || isNonFinite(newI) || isNonFinite(newS) || isNonFinite(newV)
	if nonFinite {
		return StepResult{NonFinite: true}
	}

	newE = clamp(newE, 0, 1)
	newI = clamp(newI, 0, 1)
	newS = clamp(newS, 0, 2)
	newV = clamp(newV, -2, 2)

	sMin := e.cfg.SMin
	if sMin == 0 {
		sMin = 0.001
	}
	if !inputs.ExternalValidation && newS < sMin {
		newS = sMin
	}

	newC := e.coherence(newV)
	risk := e.riskScore(newS, newV, newC, inputs, dSq)

	return StepResult{
		E: newE, I: newI, S: newS, V: newV,
		Coherence:      newC,
		RiskScore:      risk,
		Lambda1:        lambda1,
		Lambda1Skipped: skipped,
		DriftSq:        dSq,
	}
}

func isNonFinite(x float64) bool {
	return math.IsNaN(x) || math.IsInf(x, 0)
}

// riskScore weights entropy, void magnitude, incoherence, calibration
// deviation, and drift magnitude into a single [0,1] scalar (§4.1).
func (e *Engine) riskScore(s, v, c float64, inputs Inputs, driftSq float64) float64 {
	const (
		wEntropy      = 0.30
		wVoid         = 0.25
		wIncoherence  = 0.20
		wCalibration  = 0.15
		wDrift        = 0.10
	)

	entropyTerm := clamp(s/2.0, 0, 1)
	voidTerm := clamp(math.Abs(v)/2.0, 0, 1)
	incoherenceTerm := clamp(1-c, 0, 1)
	calibrationTerm := clamp(math.Abs(inputs.CalibrationDeviation), 0, 1)
	driftTerm := clamp(driftSq, 0, 1)

	risk := wEntropy*entropyTerm + wVoid*voidTerm + wIncoherence*incoherenceTerm +
		wCalibration*calibrationTerm + wDrift*driftTerm
	return clamp(risk, 0, 1)
}

// margin classifies proximity to the verdict-failure edges (§4.1). The
// proximity fraction is 20% of each threshold's distance from its
// "safe" side.
func margin(coherence, risk, absV float64) model.Margin {
	const (
		coherenceThreshold = 0.40
		riskThreshold      = 0.60
		voidThreshold      = 0.15
		proximityFraction  = 0.20
	)

	if coherence < coherenceThreshold || risk >= riskThreshold || absV >= voidThreshold {
		return model.MarginCritical
	}

	coherenceNear := coherence < coherenceThreshold*(1+proximityFraction)
	riskNear := risk >= riskThreshold*(1-proximityFraction)
	voidNear := absV >= voidThreshold*(1-proximityFraction)
	if coherenceNear || riskNear || voidNear {
		return model.MarginTight
	}
	return model.MarginComfortable
}

// regime compares new state against the locked-streak counter and the
// direction of S/I movement (§4.1).
func regime(prev model.AgentState, newS, newI float64, lockedStreak int) model.Regime {
	const epsilon = 1e-6

	if lockedStreak >= 3 {
		return model.RegimeLocked
	}

	deltaS := newS - prev.S
	if deltaS > epsilon {
		return model.RegimeExploration
	}
	if deltaS < -epsilon && newI > prev.I {
		return model.RegimeConvergence
	}
	return model.RegimeTransition
}

// lockedStreak updates the consecutive-step counter for the locked-regime
// predicate I >= 0.999 && S <= 0.001.
func lockedStreak(prev model.AgentState, newI, newS float64) int {
	const (
		iThreshold = 0.999
		sThreshold = 0.001
	)
	if newI >= iThreshold && newS <= sThreshold {
		return prev.LockedStreak + 1
	}
	return 0
}

// verdict derives the governance verdict and auto-attest/require-human
// flags from risk, coherence, and the resulting regime (§4.1).
func verdict(coherence, risk float64, reg model.Regime, inputs Inputs) (v model.Verdict, autoAttest, requireHuman bool) {
	const (
		rejectCoherence = 0.40
		rejectRisk      = 0.70
		reviseRisk      = 0.30
	)

	switch {
	case coherence < rejectCoherence || risk > rejectRisk:
		return model.VerdictReject, false, false
	case risk > reviseRisk || (reg == model.RegimeLocked && !inputs.ExternalValidation):
		return model.VerdictRevise, false, true
	default:
		v = model.VerdictApprove
	}

	if inputs.CIPassed && inputs.Confidence >= 0.8 {
		return v, true, false
	}
	return model.VerdictRevise, false, true
}

// samplingParams projects lambda1 affinely into the next-turn sampling
// ranges (§4.1); the projection is monotonic in lambda1, assuming lambda1
// itself stays within a sane [0, 2] band in practice.
func (e *Engine) samplingParams(lambda1 float64) model.SamplingParams {
	const lambda1Span = 2.0
	frac := clamp(lambda1/lambda1Span, 0, 1)

	temp := e.cfg.TemperatureMin + frac*(e.cfg.TemperatureMax-e.cfg.TemperatureMin)
	topP := e.cfg.TopPMin + frac*(e.cfg.TopPMax-e.cfg.TopPMin)
	maxTokens := e.cfg.MaxTokensMin + int(frac*float64(e.cfg.MaxTokensMax-e.cfg.MaxTokensMin))

	return model.SamplingParams{Temperature: temp, TopP: topP, MaxTokens: maxTokens}
}
