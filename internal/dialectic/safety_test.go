package dialectic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/r3e-network/agent-governance/internal/model"
)

func TestSafetyGateRejectsForbiddenPattern(t *testing.T) {
	msg := model.DialecticMessage{
		RootCause:          "agent kept retrying the same failing tool call repeatedly",
		ProposedConditions: []model.Condition{{Kind: "action", Key: "disable_governance_checks", Value: 1}},
	}
	err := checkSafetyGate(msg)
	assert.Error(t, err)
}

func TestSafetyGateRejectsRiskThresholdAboveBound(t *testing.T) {
	msg := model.DialecticMessage{
		RootCause:          "agent exceeded entropy bounds during sustained exploration",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "risk_threshold", Value: 0.95}},
	}
	assert.Error(t, checkSafetyGate(msg))
}

func TestSafetyGateRejectsCoherenceThresholdBelowBound(t *testing.T) {
	msg := model.DialecticMessage{
		RootCause:          "agent exceeded entropy bounds during sustained exploration",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "coherence_threshold", Value: 0.05}},
	}
	assert.Error(t, checkSafetyGate(msg))
}

func TestSafetyGateRejectsShortRootCause(t *testing.T) {
	msg := model.DialecticMessage{RootCause: "loop"}
	assert.Error(t, checkSafetyGate(msg))
}

func TestSafetyGateRejectsVagueConcern(t *testing.T) {
	msg := model.DialecticMessage{
		RootCause: "agent exceeded entropy bounds during sustained exploration",
		Concerns:  []string{"maybe we try again later"},
	}
	assert.Error(t, checkSafetyGate(msg))
}

func TestSafetyGateAllowsVagueWordWithNumericPayload(t *testing.T) {
	msg := model.DialecticMessage{
		RootCause: "agent exceeded entropy bounds during sustained exploration",
		Concerns:  []string{"try limiting concurrent_tasks to 5"},
	}
	assert.NoError(t, checkSafetyGate(msg))
}

func TestSafetyGateAcceptsSafeCondition(t *testing.T) {
	msg := model.DialecticMessage{
		RootCause:          "agent exceeded entropy bounds during sustained exploration",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 5}},
	}
	assert.NoError(t, checkSafetyGate(msg))
}
