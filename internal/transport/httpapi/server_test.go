package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/infrastructure/testutil"
	"github.com/r3e-network/agent-governance/internal/identity"
	"github.com/r3e-network/agent-governance/internal/operations"
	"github.com/r3e-network/agent-governance/internal/sessioncache"
	"github.com/r3e-network/agent-governance/pkg/logger"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	log := logger.New(logger.LoggingConfig{Level: "error", Format: "text", Output: "stdout"})
	resolver := identity.New(nil, nil, sessioncache.NewLocal(time.Minute), time.Minute, []byte("test-secret"))
	table := operations.NewTable(&operations.Deps{StartedAt: time.Now(), Version: "test"})
	return New(table, resolver, log, Config{RequestTimeout: time.Second})
}

func TestHealthzReportsOK(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDispatchListOperationsRequiresNoIdentityButAdminClassApplies(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/operations/list_operations", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDispatchUnknownOperationReturnsNotFound(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/operations/does_not_exist", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthzOverRealListener(t *testing.T) {
	s := testServer(t)
	srv := testutil.NewHTTPTestServer(t, s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "agent-governance")
}
