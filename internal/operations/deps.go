package operations

import (
	"time"

	"github.com/r3e-network/agent-governance/internal/audit"
	"github.com/r3e-network/agent-governance/internal/dialectic"
	"github.com/r3e-network/agent-governance/internal/dynamics"
	"github.com/r3e-network/agent-governance/internal/identity"
	"github.com/r3e-network/agent-governance/internal/notes"
	"github.com/r3e-network/agent-governance/internal/platform"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
	"github.com/r3e-network/agent-governance/internal/store"
	"github.com/r3e-network/agent-governance/internal/stuck"
	"github.com/r3e-network/agent-governance/internal/telemetry"
	"github.com/r3e-network/agent-governance/pkg/logger"
)

// Deps is every collaborator an operation handler may call into. It is
// built once at process start (cmd/governanced) and threaded through the
// whole operation table instead of package-level globals.
type Deps struct {
	Identity  *identity.Resolver
	Dynamics  *dynamics.Service
	Dialectic *dialectic.Service
	Stuck     *stuck.Detector
	Notes     *notes.Collaborator
	Audit     *audit.Log
	Store     *store.Store
	RateLimit *ratelimit.Registry
	Lock      platform.NamedLockDriver
	Metrics   *telemetry.Metrics
	Log       *logger.Logger

	Version   string
	StartedAt time.Time

	// Table is set by NewTable once construction completes, so admin
	// handlers (list_operations, describe_operation) can introspect the
	// table they are themselves dispatched from.
	Table *Table
}
