// Package platform defines the small set of capability interfaces the
// governance core depends on instead of concrete backends: a named
// distributed lock, a text summarizer, and a semantic embedder. Each has a
// cluster-backed implementation and a null/local fallback; the core only
// ever depends on the interface.
package platform

import (
	"context"
	"time"
)

// Driver is the base interface every capability backend implements so the
// Registry can start/stop/health-check it uniformly.
type Driver interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}

// LockHandle represents a held named lock. Renew extends its TTL; Release
// drops it. Both are idempotent-safe to call once the handle is no longer
// needed.
type LockHandle interface {
	Name() string
	Renew(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// NamedLockDriver is the per-agent write-lock capability from the
// concurrency model: acquire a named, TTL-expiring lock, renew it for
// long-running holders, and release it. Implementations: a Redis-backed
// cluster lock (preferred) and a local in-process mutex registry with a
// TTL reaper (fallback).
type NamedLockDriver interface {
	Driver

	// Acquire blocks up to the driver's configured acquisition timeout and
	// returns a handle, or ErrContention-mapped error on timeout.
	Acquire(ctx context.Context, name string, ttl time.Duration) (LockHandle, error)
}

// SummarizerDriver is the narrow (text) -> text capability used to turn a
// dialectic session's free-form human_inputs into something more concise
// before the state machine tries to extract structured conditions from it.
// The null implementation is a passthrough.
type SummarizerDriver interface {
	Driver
	Summarize(ctx context.Context, text string) (string, error)
}

// EmbedderDriver is the narrow (text) -> vector capability. The null
// implementation returns an error. Nothing in the note path calls Embed;
// knowledge notes are filtered by tag or author only.
type EmbedderDriver interface {
	Driver
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StaleLockReaper is an optional capability a NamedLockDriver may implement
// to let an operator force an out-of-band sweep for expired-but-unreleased
// holds, instead of waiting for the driver's own background cadence (Local's
// ticker, Redis's native key TTL). The cleanup_stale_locks admin operation
// type-asserts for this rather than requiring it on every driver.
type StaleLockReaper interface {
	ReapStale(ctx context.Context) (int, error)
}

// Registry holds the capability instances constructed once at process
// start and handed to every component that needs them, replacing the
// module-level globals the capability's instructions warn against.
type Registry struct {
	lock       NamedLockDriver
	summarizer SummarizerDriver
	embedder   EmbedderDriver
	custom     map[string]Driver
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{custom: make(map[string]Driver)}
}

func (r *Registry) SetLock(d NamedLockDriver)          { r.lock = d }
func (r *Registry) Lock() NamedLockDriver              { return r.lock }
func (r *Registry) SetSummarizer(d SummarizerDriver)   { r.summarizer = d }
func (r *Registry) Summarizer() SummarizerDriver       { return r.summarizer }
func (r *Registry) SetEmbedder(d EmbedderDriver)       { r.embedder = d }
func (r *Registry) Embedder() EmbedderDriver           { return r.embedder }

// Register adds a custom driver under a name, for capabilities not part of
// the fixed set above.
func (r *Registry) Register(name string, d Driver) { r.custom[name] = d }

// Get retrieves a custom driver by name.
func (r *Registry) Get(name string) (Driver, bool) {
	d, ok := r.custom[name]
	return d, ok
}

// StartAll starts every registered driver.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, d := range r.all() {
		if d == nil {
			continue
		}
		if err := d.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every registered driver in reverse order, collecting the
// last error encountered (stopping continues regardless).
func (r *Registry) StopAll(ctx context.Context) error {
	drivers := r.all()
	var lastErr error
	for i := len(drivers) - 1; i >= 0; i-- {
		if drivers[i] == nil {
			continue
		}
		if err := drivers[i].Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// PingAll health-checks every registered driver.
func (r *Registry) PingAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, d := range r.all() {
		if d == nil {
			continue
		}
		results[d.Name()] = d.Ping(ctx)
	}
	return results
}

func (r *Registry) all() []Driver {
	result := make([]Driver, 0, 3+len(r.custom))
	if r.lock != nil {
		result = append(result, r.lock)
	}
	if r.summarizer != nil {
		result = append(result, r.summarizer)
	}
	if r.embedder != nil {
		result = append(result, r.embedder)
	}
	for _, d := range r.custom {
		result = append(result, d)
	}
	return result
}
