package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSummarizerSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "condensed"})
	}))
	defer srv.Close()

	s, err := NewHTTPSummarizer(srv.URL, time.Second)
	require.NoError(t, err)

	out, err := s.Summarize(context.Background(), "a long human explanation")
	require.NoError(t, err)
	assert.Equal(t, "condensed", out)
}

func TestHTTPEmbedderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]float32{"embedding": {0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(srv.URL, time.Second)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "some note text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestHTTPSummarizerErrorsOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewHTTPSummarizer(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "text")
	assert.Error(t, err)
}
