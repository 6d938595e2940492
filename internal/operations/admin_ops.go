package operations

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/platform"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
	"github.com/r3e-network/agent-governance/pkg/version"
)

func adminOperations() []Operation {
	return []Operation{
		{Name: "health_check", Class: ratelimit.ClassAdmin, Timeout: 5 * time.Second, Handler: healthCheck,
			Description: "ping the named-lock driver (the only capability checked) and report build version"},
		{Name: "list_operations", Class: ratelimit.ClassAdmin, Timeout: 2 * time.Second, Handler: listOperations,
			Description: "list every operation name this table dispatches"},
		{Name: "describe_operation", Class: ratelimit.ClassAdmin, Timeout: 2 * time.Second, Handler: describeOperation,
			Description: "describe one operation's class and timeout"},
		{Name: "cleanup_stale_locks", Class: ratelimit.ClassAdmin, Timeout: 10 * time.Second, Handler: cleanupStaleLocks,
			Description: "force an out-of-band sweep of expired-but-unreleased named locks"},
	}
}

func healthCheck(ctx context.Context, d *Deps, _ string, _ Params) (interface{}, *errors.ServiceError) {
	status := map[string]string{}
	if d.Lock != nil {
		if err := d.Lock.Ping(ctx); err != nil {
			status["lock"] = err.Error()
		} else {
			status["lock"] = "ok"
		}
	}
	return map[string]interface{}{
		"status":         "ok",
		"version":        version.Version,
		"uptime_seconds": time.Since(d.StartedAt).Seconds(),
		"capabilities":   status,
	}, nil
}

func listOperations(ctx context.Context, d *Deps, _ string, _ Params) (interface{}, *errors.ServiceError) {
	return map[string]interface{}{"operations": d.Table.Names()}, nil
}

func describeOperation(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	name, ok := p.String("name")
	if !ok {
		return nil, errors.MissingParameter("name")
	}
	op, ok := d.Table.Describe(name)
	if !ok {
		return nil, errors.New(errors.ErrResourceNotFound, "no such operation").WithDetails("operation", name)
	}
	return map[string]interface{}{
		"name":        op.Name,
		"description": op.Description,
		"class":       op.Class,
		"timeout":     op.Timeout.String(),
	}, nil
}

// cleanupStaleLocks type-asserts for the optional platform.StaleLockReaper
// capability: Local supports an out-of-band sweep, Redis reports zero since
// its keys expire natively via PX and need no manual reaping.
func cleanupStaleLocks(ctx context.Context, d *Deps, _ string, _ Params) (interface{}, *errors.ServiceError) {
	reaper, ok := d.Lock.(platform.StaleLockReaper)
	if !ok {
		return map[string]interface{}{"reaped": 0, "note": "lock driver does not support manual sweeps"}, nil
	}
	n, err := reaper.ReapStale(ctx)
	if err != nil {
		return nil, errors.Internal("stale lock sweep failed", err)
	}
	return map[string]interface{}{"reaped": n}, nil
}
