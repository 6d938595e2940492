// Package httpapi exposes the operation table over HTTP: one POST route
// per operation name, plus the health and liveness routes, built on the
// teacher's gorilla/mux + infrastructure/middleware stack.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/infrastructure/httputil"
	"github.com/r3e-network/agent-governance/infrastructure/middleware"
	"github.com/r3e-network/agent-governance/internal/identity"
	"github.com/r3e-network/agent-governance/internal/operations"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
	"github.com/r3e-network/agent-governance/pkg/logger"
)

// Server is the HTTP transport over one operations.Table.
type Server struct {
	router   *mux.Router
	table    *operations.Table
	resolver *identity.Resolver
	log      *logger.Logger
}

// Config bundles the server's construction parameters.
type Config struct {
	RequestTimeout time.Duration
	CORS           *middleware.CORSConfig
}

// New builds the router: CORS, request validation, and a bounded request
// timeout wrap every route; health/liveness are unauthenticated, and every
// operation route except onboard and admin-class operations resolves the
// caller's identity first.
func New(table *operations.Table, resolver *identity.Resolver, log *logger.Logger, cfg Config) *Server {
	s := &Server{router: mux.NewRouter(), table: table, resolver: resolver, log: log}

	health := middleware.NewHealthChecker("agent-governance")
	s.router.Handle("/healthz", health.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/livez", middleware.LivenessHandler()).Methods(http.MethodGet)

	ops := s.router.PathPrefix("/v1/operations").Subrouter()
	ops.HandleFunc("/{name}", s.dispatch).Methods(http.MethodPost)

	validation := middleware.NewValidationMiddleware(middleware.DefaultValidationConfig())
	timeout := middleware.NewTimeoutMiddleware(cfg.RequestTimeout)
	cors := middleware.NewCORSMiddleware(cfg.CORS)
	secHeaders := middleware.NewSecurityHeadersMiddleware(middleware.DefaultSecurityHeaders())

	s.router.Use(secHeaders.Handler, cors.Handler, validation.Handler, timeout.Handler)
	return s
}

// Handler returns the composed http.Handler for use with net/http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httputil.WriteErrorResponse(w, r, http.StatusBadRequest, "INVALID_BODY", "failed to read request body", nil)
		return
	}

	params := operations.Params{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			httputil.WriteErrorResponse(w, r, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", nil)
			return
		}
	}

	agentUUID, svcErr := s.resolveCaller(r.Context(), name, params)
	if svcErr != nil {
		writeServiceError(w, r, svcErr)
		return
	}

	result, svcErr := s.table.Dispatch(r.Context(), name, agentUUID, params)
	if svcErr != nil {
		writeServiceError(w, r, svcErr)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// resolveCaller maps the request body's identity fields to the Agent
// Registry's four resolve modes (§4.2). The onboard operation runs with no
// resolvable identity yet, since producing one is its job; admin-class
// operations and unknown operation names skip resolution too.
func (s *Server) resolveCaller(ctx context.Context, operation string, params operations.Params) (string, *errors.ServiceError) {
	rc := identity.RequestContext{
		AgentUUID:            params.StringOr("agent_uuid", ""),
		APIKey:               params.StringOr("api_key", ""),
		SessionKey:           params.StringOr("session_key", ""),
		DisplayName:          params.StringOr("display_name", ""),
		NameClaimToken:       params.StringOr("name_claim_token", ""),
		TransportFingerprint: params.StringOr("transport_fingerprint", ""),
		Resume:               params.Bool("resume"),
		ForceNew:             params.Bool("force_new"),
	}

	if operation == "onboard" {
		return "", nil
	}
	op, ok := s.table.Describe(operation)
	if !ok {
		// Dispatch reports the unknown name as NOT_FOUND.
		return "", nil
	}
	if op.Class == ratelimit.ClassAdmin {
		// Admin-class operations (health_check, list_operations,
		// cleanup_stale_locks, ...) are operator surfaces, not per-agent
		// ones; they run without resolving a caller identity. A deployment
		// fronting this with an operator-only network boundary or reverse
		// proxy auth is expected, the same way the teacher's admin routes
		// assume a trusted operator network.
		return "", nil
	}

	id, err := s.resolver.Resolve(ctx, rc)
	if err != nil {
		return "", errors.As(err)
	}
	return id.UUID, nil
}

func writeServiceError(w http.ResponseWriter, r *http.Request, svcErr *errors.ServiceError) {
	httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
}
