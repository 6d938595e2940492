// Package ratelimit applies a token-bucket limit (golang.org/x/time/rate)
// keyed by (agent_uuid, operation_class); it keeps no sliding-window
// counters and no per-hour budgets. It is adapted from
// infrastructure/ratelimit's single-limiter-per-client shape into a
// registry of limiters keyed by composite identity.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class names the operation_class half of the rate-limit key. The
// governance runtime buckets operations into a small number of classes so
// cheap reads and expensive writes (dynamics updates, dialectic submits)
// don't share one budget.
type Class string

const (
	ClassRead      Class = "read"
	ClassUpdate    Class = "update"
	ClassDialectic Class = "dialectic"
	ClassAdmin     Class = "admin"
)

// Limits gives the requests-per-second and burst for one operation class.
type Limits struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultLimits returns the out-of-the-box per-class budgets; Config
// overrides any subset of these.
func DefaultLimits() map[Class]Limits {
	return map[Class]Limits{
		ClassRead:      {RequestsPerSecond: 20, Burst: 40},
		ClassUpdate:    {RequestsPerSecond: 5, Burst: 10},
		ClassDialectic: {RequestsPerSecond: 1, Burst: 3},
		ClassAdmin:     {RequestsPerSecond: 2, Burst: 5},
	}
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Registry holds one token-bucket limiter per (agent_uuid, operation_class)
// pair, created lazily on first use and reaped after an idle period so a
// long-running process doesn't accumulate one limiter per agent forever.
type Registry struct {
	mu       sync.Mutex
	limits   map[Class]Limits
	limiters map[string]*keyedLimiter
	idleTTL  time.Duration
	stopCh   chan struct{}
}

// NewRegistry builds a Registry. A nil limits map uses DefaultLimits().
func NewRegistry(limits map[Class]Limits, idleTTL time.Duration) *Registry {
	if limits == nil {
		limits = DefaultLimits()
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Registry{
		limits:   limits,
		limiters: make(map[string]*keyedLimiter),
		idleTTL:  idleTTL,
		stopCh:   make(chan struct{}),
	}
}

// StartReaper runs a background sweep that drops idle limiters.
func (r *Registry) StartReaper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-t.C:
				r.reapIdle()
			}
		}
	}()
}

// Stop halts the reaper goroutine, if running.
func (r *Registry) Stop() { close(r.stopCh) }

func (r *Registry) reapIdle() {
	cutoff := time.Now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, kl := range r.limiters {
		if kl.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
		}
	}
}

func (r *Registry) key(agentUUID string, class Class) string {
	return string(class) + "|" + agentUUID
}

// Allow reports whether the call for (agentUUID, class) is within budget,
// consuming one token if so.
func (r *Registry) Allow(agentUUID string, class Class) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.key(agentUUID, class)
	kl, ok := r.limiters[key]
	if !ok {
		limits, ok := r.limits[class]
		if !ok {
			limits = Limits{RequestsPerSecond: 10, Burst: 20}
		}
		kl = &keyedLimiter{limiter: rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst)}
		r.limiters[key] = kl
	}
	kl.lastSeen = time.Now()
	return kl.limiter.Allow()
}
