package model

import "time"

// SessionPhase is the current phase of a dialectic session.
type SessionPhase string

const (
	PhaseThesis     SessionPhase = "thesis"
	PhaseAntithesis SessionPhase = "antithesis"
	PhaseSynthesis  SessionPhase = "synthesis"
	PhaseResolved   SessionPhase = "resolved"
	PhaseFailed     SessionPhase = "failed"
	PhaseCancelled  SessionPhase = "cancelled"
)

// Terminal reports whether the phase is a terminal state.
func (p SessionPhase) Terminal() bool {
	return p == PhaseResolved || p == PhaseFailed || p == PhaseCancelled
}

// MessageKind identifies which leg of the negotiation a message belongs to.
type MessageKind string

const (
	KindThesis     MessageKind = "thesis"
	KindAntithesis MessageKind = "antithesis"
	KindSynthesis  MessageKind = "synthesis"
)

// Condition is a structured proposed condition, e.g. {kind:"limit",
// key:"concurrent_tasks", value:5}. Equality is by structural fields, never
// by rendered text, per spec §4.4.
type Condition struct {
	Kind  string  `json:"kind"`
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Equal reports structural equality.
func (c Condition) Equal(o Condition) bool {
	return c.Kind == o.Kind && c.Key == o.Key && c.Value == o.Value
}

// DialecticMessage is one message in a session's ordered thesis/antithesis/
// synthesis exchange.
type DialecticMessage struct {
	Seq                int          `json:"seq"`
	AuthorUUID         string       `json:"author_uuid"`
	Kind               MessageKind  `json:"kind"`
	Timestamp          time.Time    `json:"timestamp"`
	Reasoning          string       `json:"reasoning"`
	RootCause          string       `json:"root_cause"`
	ProposedConditions []Condition  `json:"proposed_conditions,omitempty"`
	ObservedMetrics    map[string]float64 `json:"observed_metrics,omitempty"`
	Concerns           []string     `json:"concerns,omitempty"`
	Agrees             *bool        `json:"agrees,omitempty"`
	Signature          []byte       `json:"signature,omitempty"`
}

// SessionStatus mirrors SessionPhase for terminal/active classification in
// storage (active while in thesis/antithesis/synthesis, else the terminal
// phase name).
type SessionStatus string

// Session is a Dialectic Session record.
type Session struct {
	SessionID             string             `json:"session_id"`
	PausedAgentUUID       string             `json:"paused_agent_uuid"`
	ReviewerAgentUUID     string             `json:"reviewer_agent_uuid"`
	Topic                 string             `json:"topic"`
	Phase                 SessionPhase       `json:"phase"`
	Status                SessionStatus      `json:"status"`
	Messages              []DialecticMessage `json:"messages"`
	PausedAgentStateSnap  AgentState         `json:"paused_agent_state_snapshot"`
	SynthesisAttempts     int                `json:"synthesis_attempts"`
	Resolution            *Resolution        `json:"resolution,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Resolution records the outcome of a session.
type Resolution struct {
	Accepted   bool        `json:"accepted"`
	Conditions []Condition `json:"conditions,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// LastMessage returns the most recently appended message, or nil.
func (s *Session) LastMessage() *DialecticMessage {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}
