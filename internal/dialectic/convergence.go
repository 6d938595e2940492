package dialectic

import (
	"strings"

	"github.com/r3e-network/agent-governance/internal/model"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "of": true, "and": true,
	"to": true, "in": true, "on": true, "it": true, "for": true, "with": true,
	"was": true, "were": true, "by": true, "at": true, "that": true, "this": true,
}

// convergenceResult is the outcome of evaluating a synthesis attempt.
type convergenceResult struct {
	accepted bool
	reason   string
}

// evaluateConvergence checks §4.4's four convergence conditions against a
// session's thesis, antithesis, and the proposed synthesis message.
func evaluateConvergence(thesis, antithesis, synthesis model.DialecticMessage) convergenceResult {
	agreesOrProposed := (thesis.Agrees != nil && *thesis.Agrees && antithesis.Agrees != nil && *antithesis.Agrees) ||
		len(synthesis.ProposedConditions) > 0
	if !agreesOrProposed {
		return convergenceResult{reason: "neither mutual agreement nor a structured condition set was present"}
	}

	if conflict := conditionsConflict(thesis.ProposedConditions, antithesis.ProposedConditions); conflict {
		return convergenceResult{reason: "thesis and antithesis propose structurally conflicting conditions on the same key"}
	}

	overlap := conditionJaccard(thesis.ProposedConditions, antithesis.ProposedConditions)
	if overlap < 0.5 {
		return convergenceResult{reason: "condition overlap between thesis and antithesis is below 0.5"}
	}

	rootCauseSim := tokenJaccard(thesis.RootCause, antithesis.RootCause)
	if rootCauseSim < 0.3 {
		return convergenceResult{reason: "root-cause similarity between thesis and antithesis is below 0.3"}
	}

	if err := checkSafetyGate(synthesis); err != nil {
		return convergenceResult{reason: err.Error()}
	}

	return convergenceResult{accepted: true}
}

// conditionsConflict detects e.g. threshold=X increase vs threshold=X
// decrease on the same key: same Kind+Key, differing Value sign of change,
// approximated here as differing Value with the same Kind/Key.
func conditionsConflict(a, b []model.Condition) bool {
	byKey := make(map[string]model.Condition)
	for _, c := range a {
		byKey[c.Kind+"/"+c.Key] = c
	}
	for _, c := range b {
		if other, ok := byKey[c.Kind+"/"+c.Key]; ok && other.Value != c.Value {
			return true
		}
	}
	return false
}

func conditionJaccard(a, b []model.Condition) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter, union := 0, 0
	matched := make([]bool, len(b))
	for _, ca := range a {
		found := false
		for i, cb := range b {
			if !matched[i] && ca.Equal(cb) {
				matched[i] = true
				found = true
				break
			}
		}
		if found {
			inter++
		}
		union++
	}
	for _, m := range matched {
		if !m {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenJaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	inter, union := 0, len(setA)
	for tok := range setB {
		if setA[tok] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	out := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()\"'")
		if w == "" || stopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}
