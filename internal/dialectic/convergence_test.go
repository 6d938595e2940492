package dialectic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/r3e-network/agent-governance/internal/model"
)

func agreeTrue() *bool {
	b := true
	return &b
}

func TestEvaluateConvergenceAccepts(t *testing.T) {
	shared := []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 5}}
	thesis := model.DialecticMessage{
		Agrees: agreeTrue(), RootCause: "repeated identical tool calls without new information gained",
		ProposedConditions: shared,
	}
	antithesis := model.DialecticMessage{
		Agrees: agreeTrue(), RootCause: "repeated identical tool calls without new information gained",
		ProposedConditions: shared,
	}
	synthesis := model.DialecticMessage{
		RootCause:          "repeated identical tool calls without new information gained",
		ProposedConditions: shared,
	}

	result := evaluateConvergence(thesis, antithesis, synthesis)
	assert.True(t, result.accepted, result.reason)
}

func TestEvaluateConvergenceRejectsLowConditionOverlap(t *testing.T) {
	thesis := model.DialecticMessage{
		Agrees:             agreeTrue(),
		RootCause:          "repeated identical tool calls without new information gained",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 5}},
	}
	antithesis := model.DialecticMessage{
		Agrees:             agreeTrue(),
		RootCause:          "repeated identical tool calls without new information gained",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "timeout_seconds", Value: 30}},
	}
	synthesis := model.DialecticMessage{RootCause: "repeated identical tool calls without new information gained"}

	result := evaluateConvergence(thesis, antithesis, synthesis)
	assert.False(t, result.accepted)
}

func TestEvaluateConvergenceRejectsConflictingConditions(t *testing.T) {
	thesis := model.DialecticMessage{
		Agrees: agreeTrue(), RootCause: "repeated identical tool calls without new information gained",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 5}},
	}
	antithesis := model.DialecticMessage{
		Agrees: agreeTrue(), RootCause: "repeated identical tool calls without new information gained",
		ProposedConditions: []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 10}},
	}
	synthesis := model.DialecticMessage{RootCause: "repeated identical tool calls without new information gained"}

	result := evaluateConvergence(thesis, antithesis, synthesis)
	assert.False(t, result.accepted)
}

func TestEvaluateConvergenceRejectsLowRootCauseSimilarity(t *testing.T) {
	shared := []model.Condition{{Kind: "limit", Key: "concurrent_tasks", Value: 5}}
	thesis := model.DialecticMessage{Agrees: agreeTrue(), RootCause: "repeated identical tool calls without new information", ProposedConditions: shared}
	antithesis := model.DialecticMessage{Agrees: agreeTrue(), RootCause: "unrelated network latency spike during deploy window", ProposedConditions: shared}
	synthesis := model.DialecticMessage{RootCause: "repeated identical tool calls without new information"}

	result := evaluateConvergence(thesis, antithesis, synthesis)
	assert.False(t, result.accepted)
}

func TestConditionJaccardIdentical(t *testing.T) {
	a := []model.Condition{{Kind: "limit", Key: "x", Value: 1}, {Kind: "limit", Key: "y", Value: 2}}
	assert.Equal(t, 1.0, conditionJaccard(a, a))
}

func TestTokenJaccardStopWordsIgnored(t *testing.T) {
	score := tokenJaccard("the agent looped on the same call", "agent looped on same call again")
	assert.Greater(t, score, 0.5)
}
