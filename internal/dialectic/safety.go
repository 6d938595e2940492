package dialectic

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/r3e-network/agent-governance/internal/model"
)

var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)disable.*governance`),
	regexp.MustCompile(`(?i)bypass.*safety`),
	regexp.MustCompile(`(?i)remove.*monitor`),
	regexp.MustCompile(`(?i)unlimited.*risk`),
}

var vagueTerms = []string{"maybe", "try", "later"}

const minRootCauseLen = 16

// safetyGateViolation describes why a proposed condition or synthesis
// failed the Safety Gate.
type safetyGateViolation struct {
	reason string
}

func (v *safetyGateViolation) Error() string { return v.reason }

// checkSafetyGate validates every proposed condition in a synthesis message
// plus its root_cause length, per §4.4's hard limits.
func checkSafetyGate(msg model.DialecticMessage) error {
	nonSpace := 0
	for _, r := range msg.RootCause {
		if !unicode.IsSpace(r) {
			nonSpace++
		}
	}
	if nonSpace < minRootCauseLen {
		return &safetyGateViolation{reason: "root_cause is shorter than the minimum 16 non-whitespace characters"}
	}

	for _, cond := range msg.ProposedConditions {
		serialized := fmt.Sprintf("%s %s %v", cond.Kind, cond.Key, cond.Value)
		for _, re := range forbiddenPatterns {
			if re.MatchString(serialized) {
				return &safetyGateViolation{reason: "proposed condition matches a forbidden pattern: " + re.String()}
			}
		}
		if cond.Key == "risk_threshold" && cond.Value > 0.90 {
			return &safetyGateViolation{reason: "risk_threshold condition exceeds the hard bound of 0.90"}
		}
		if cond.Key == "coherence_threshold" && cond.Value < 0.10 {
			return &safetyGateViolation{reason: "coherence_threshold condition is below the hard bound of 0.10"}
		}
	}

	for _, concern := range msg.Concerns {
		if isVague(concern) {
			return &safetyGateViolation{reason: "a concern reads as vague with no numeric payload: " + concern}
		}
	}
	return nil
}

func isVague(text string) bool {
	lower := strings.ToLower(text)
	hasVagueTerm := false
	for _, term := range vagueTerms {
		if strings.Contains(lower, term) {
			hasVagueTerm = true
			break
		}
	}
	if !hasVagueTerm {
		return false
	}
	return !containsDigit(text)
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
