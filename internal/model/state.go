package model

import "time"

// Regime is the qualitative phase of an agent's EISV trajectory.
type Regime string

const (
	RegimeExploration Regime = "exploration"
	RegimeTransition  Regime = "transition"
	RegimeConvergence Regime = "convergence"
	RegimeLocked       Regime = "locked"
)

// Margin classifies how close a state is to verdict-failure edges.
type Margin string

const (
	MarginComfortable Margin = "comfortable"
	MarginTight       Margin = "tight"
	MarginCritical    Margin = "critical"
)

// Verdict is the governance decision attached to an update.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictRevise  Verdict = "revise"
	VerdictReject  Verdict = "reject"
)

// HistoryPoint is one bounded-ring entry of recent EISV + derived scalars.
type HistoryPoint struct {
	Timestamp time.Time `json:"ts"`
	E, I, S, V float64  `json:"e_i_s_v"`
	Coherence float64   `json:"coherence"`
	Risk      float64   `json:"risk"`
}

// HistoryRingSize is the bounded history length kept per agent.
const HistoryRingSize = 64

// AgentState is the latest EISV state for one agent plus bookkeeping the
// Dynamics Engine needs to keep lambda1 gating and regime detection correct
// across updates.
type AgentState struct {
	AgentUUID string `json:"agent_uuid"`

	E, I, S, V float64 `json:"e_i_s_v"`

	Coherence float64 `json:"coherence"`
	RiskScore float64 `json:"risk_score"`
	Lambda1   float64 `json:"lambda1"`
	Regime    Regime  `json:"regime"`
	Margin    Margin  `json:"margin"`

	TotalUpdates           int64 `json:"total_updates"`
	Lambda1SkipCount       int64 `json:"lambda1_skip_count"`
	LockedPersistenceCount int64 `json:"locked_persistence_count"`

	// LockedStreak counts consecutive updates satisfying the locked-regime
	// predicate (I >= 0.999 && S <= 0.001); reaching 3 flips Regime to locked.
	LockedStreak int `json:"locked_streak"`

	History []HistoryPoint `json:"history,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// PushHistory appends a history point, trimming to HistoryRingSize.
func (s *AgentState) PushHistory(p HistoryPoint) {
	s.History = append(s.History, p)
	if len(s.History) > HistoryRingSize {
		s.History = s.History[len(s.History)-HistoryRingSize:]
	}
}

// VoidActive reports whether the void integral magnitude indicates an
// unsafe void condition, used by the resume safety predicate.
func (s AgentState) VoidActive() bool {
	return absf(s.V) >= 0.15
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// SafeToResume implements the shared safety predicate from spec §4.1/§4.3:
// C > 0.40 && risk < 0.60 && !void_active.
func (s AgentState) SafeToResume() bool {
	return s.Coherence > 0.40 && s.RiskScore < 0.60 && !s.VoidActive()
}

// SamplingParams are the next-turn sampling parameters derived from lambda1.
type SamplingParams struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

// UpdateResult is the return value of the Dynamics Engine's apply_update.
type UpdateResult struct {
	State       AgentState     `json:"state"`
	Verdict     Verdict        `json:"verdict"`
	AutoAttest  bool           `json:"auto_attest"`
	RequireHuman bool          `json:"require_human"`
	Guidance    string         `json:"guidance,omitempty"`
	Sampling    SamplingParams `json:"sampling"`
}
