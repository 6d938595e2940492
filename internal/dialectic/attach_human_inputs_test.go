package dialectic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/internal/model"
)

type fixedSummarizer struct {
	out string
	err error
}

func (f fixedSummarizer) Name() string                   { return "fixed" }
func (f fixedSummarizer) Start(ctx context.Context) error { return nil }
func (f fixedSummarizer) Stop(ctx context.Context) error  { return nil }
func (f fixedSummarizer) Ping(ctx context.Context) error  { return nil }
func (f fixedSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return f.out, f.err
}

func TestAttachHumanInputsExtractsStructuredConditions(t *testing.T) {
	s := &Service{summarizer: fixedSummarizer{out: `{"conditions":[{"kind":"limit","key":"concurrent_tasks","value":3}],"concerns":["watch memory"]}`}}

	msg := &model.DialecticMessage{}
	s.attachHumanInputs(context.Background(), msg, "please limit concurrency")

	require.Len(t, msg.ProposedConditions, 1)
	assert.Equal(t, model.Condition{Kind: "limit", Key: "concurrent_tasks", Value: 3}, msg.ProposedConditions[0])
	assert.Equal(t, []string{"watch memory"}, msg.Concerns)
}

func TestAttachHumanInputsFallsBackToVerbatimConcern(t *testing.T) {
	s := &Service{summarizer: fixedSummarizer{out: "please limit concurrency"}}

	msg := &model.DialecticMessage{}
	s.attachHumanInputs(context.Background(), msg, "please limit concurrency")

	assert.Equal(t, []string{"please limit concurrency"}, msg.Concerns)
	assert.Empty(t, msg.ProposedConditions)
}
