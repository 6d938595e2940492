// Package operations implements §9's "operation as a value" design: every
// logical operation in §6's external interface is one entry
// {name, class, timeout, handler} in a single table, dispatched by name.
// Rate limiting, identity write-ownership, and panic-to-INTERNAL recovery
// are a fixed pipeline around the dispatch call, not per-handler code.
package operations

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
)

// Handler is the signature every operation implements. agentUUID is the
// caller's identity as resolved by the Agent Registry for this request
// (never a caller-supplied override, enforcing write-ownership), and
// params is the decoded request body.
type Handler func(ctx context.Context, d *Deps, agentUUID string, params Params) (interface{}, *errors.ServiceError)

// Operation is one named entry in the dispatch table.
type Operation struct {
	Name        string
	Description string
	Class       ratelimit.Class
	Timeout     time.Duration
	Handler     Handler
}

// Table is the fixed, ordered set of operations the runtime exposes.
type Table struct {
	deps  *Deps
	order []string
	byName map[string]Operation
}

// NewTable builds the full operation table, wired to deps.
func NewTable(deps *Deps) *Table {
	t := &Table{deps: deps, byName: make(map[string]Operation)}
	for _, op := range allOperations() {
		t.register(op)
	}
	deps.Table = t
	return t
}

func (t *Table) register(op Operation) {
	if op.Timeout <= 0 {
		op.Timeout = 10 * time.Second
	}
	if op.Class == "" {
		op.Class = ratelimit.ClassRead
	}
	if _, exists := t.byName[op.Name]; !exists {
		t.order = append(t.order, op.Name)
	}
	t.byName[op.Name] = op
}

// Names returns every registered operation name in registration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Describe returns one operation's metadata, for the describe_operation
// admin operation and the HTTP transport's route table.
func (t *Table) Describe(name string) (Operation, bool) {
	op, ok := t.byName[name]
	return op, ok
}

// Dispatch runs the fixed middleware pipeline around one named operation:
// rate limiting by (agentUUID, class), a per-operation timeout, and a
// top-level recover() that converts a handler panic into an INTERNAL
// ServiceError instead of crashing the process.
func (t *Table) Dispatch(ctx context.Context, name, agentUUID string, params Params) (result interface{}, svcErr *errors.ServiceError) {
	op, ok := t.byName[name]
	if !ok {
		return nil, errors.New(errors.ErrResourceNotFound, "no such operation").WithDetails("operation", name)
	}

	if t.deps.RateLimit != nil && !t.deps.RateLimit.Allow(agentUUID, op.Class) {
		return nil, errors.RateLimited(string(op.Class))
	}

	opCtx, cancel := context.WithTimeout(ctx, op.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			svcErr = errors.Internal("operation handler panicked", fmt.Errorf("%v", r))
		}
		if t.deps.Metrics != nil {
			status := "ok"
			if svcErr != nil {
				status = string(svcErr.Code)
				t.deps.Metrics.RecordError(status)
			}
			t.deps.Metrics.RecordOperation(name, status, time.Since(start))
		}
	}()

	if params == nil {
		params = Params{}
	}
	result, svcErr = op.Handler(opCtx, t.deps, agentUUID, params)
	return result, svcErr
}

func allOperations() []Operation {
	var ops []Operation
	ops = append(ops, identityOperations()...)
	ops = append(ops, governanceOperations()...)
	ops = append(ops, recoveryOperations()...)
	ops = append(ops, dialecticOperations()...)
	ops = append(ops, lifecycleOperations()...)
	ops = append(ops, noteOperations()...)
	ops = append(ops, observabilityOperations()...)
	ops = append(ops, adminOperations()...)
	return ops
}
