package platform

import (
	"context"
	"errors"
)

// NullSummarizer is the default SummarizerDriver: a verbatim passthrough,
// used when no SUMMARIZER_ENDPOINT is configured.
type NullSummarizer struct{}

func (NullSummarizer) Name() string                    { return "null-summarizer" }
func (NullSummarizer) Start(ctx context.Context) error  { return nil }
func (NullSummarizer) Stop(ctx context.Context) error   { return nil }
func (NullSummarizer) Ping(ctx context.Context) error   { return nil }
func (NullSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return text, nil
}

// NullEmbedder is the default EmbedderDriver, used when no
// EMBEDDINGS_ENDPOINT is configured: Embed always returns an error.
type NullEmbedder struct{}

var errNoEmbedder = errors.New("no embedder configured")

func (NullEmbedder) Name() string                   { return "null-embedder" }
func (NullEmbedder) Start(ctx context.Context) error { return nil }
func (NullEmbedder) Stop(ctx context.Context) error  { return nil }
func (NullEmbedder) Ping(ctx context.Context) error  { return nil }
func (NullEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbedder
}
