package operations

import (
	"github.com/r3e-network/agent-governance/infrastructure/utils"
	"github.com/r3e-network/agent-governance/internal/model"
)

// Params is the decoded argument bag for one operation call: the request
// body (HTTP JSON, or an in-process caller's map) before it is bound to a
// specific handler's expectations. Handlers pull fields out explicitly
// rather than unmarshalling into a typed struct, matching §9's "operation
// as a value" dispatch model over one shared, loosely-typed envelope.
type Params map[string]interface{}

func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p Params) StringOr(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

func (p Params) Bool(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (p Params) Float64(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func (p Params) Int(key, def int) int {
	if f, ok := p.Float64(key); ok {
		return int(f)
	}
	return def
}

// StringSlice decodes a JSON string array, trimming blank entries and
// deduplicating (tags and concerns lists tend to arrive with both).
func (p Params) StringSlice(key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return utils.Unique(utils.TrimEmpty(out))
}

func (p Params) Float64Slice(key string) []float64 {
	v, ok := p[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		switch n := item.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		}
	}
	return out
}

// Conditions decodes a "conditions" field of [{kind,key,value}, ...] into
// model.Condition values; Message uses it for a dialectic message's
// proposed_conditions.
func (p Params) Conditions(key string) []model.Condition {
	v, ok := p[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]model.Condition, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		c := Params(m)
		kind, _ := c.String("kind")
		key, _ := c.String("key")
		value, _ := c.Float64("value")
		if kind == "" || key == "" {
			continue
		}
		out = append(out, model.Condition{Kind: kind, Key: key, Value: value})
	}
	return out
}

func (p Params) Message(key string) model.DialecticMessage {
	v, ok := p[key]
	if !ok {
		return model.DialecticMessage{}
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return model.DialecticMessage{}
	}
	mp := Params(m)
	reasoning, _ := mp.String("reasoning")
	rootCause, _ := mp.String("root_cause")
	return model.DialecticMessage{
		Reasoning:          reasoning,
		RootCause:          rootCause,
		ProposedConditions: mp.Conditions("proposed_conditions"),
		Concerns:           mp.StringSlice("concerns"),
	}
}
