// Package lock implements the per-agent named write-lock capability from
// the concurrency model: a Redis-backed cluster lock for multi-process
// deployments, and a local in-process mutex registry with a TTL reaper as
// the single-process fallback. Both satisfy platform.NamedLockDriver.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	governanceerrors "github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/platform"
)

// entry is one held (or free) named lock slot in the local registry.
type entry struct {
	mu        sync.Mutex
	held      bool
	expiresAt time.Time
}

// Local is the single-process NamedLockDriver. It keeps one mutex per lock
// name and reaps expired holds on a timer so a crashed holder doesn't wedge
// the name forever.
type Local struct {
	mu             sync.Mutex
	entries        map[string]*entry
	acquireTimeout time.Duration
	reapInterval   time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

// NewLocal creates a local lock driver. acquireTimeout bounds how long
// Acquire waits for contended names before returning CONTENTION.
func NewLocal(acquireTimeout time.Duration) *Local {
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &Local{
		entries:        make(map[string]*entry),
		acquireTimeout: acquireTimeout,
		reapInterval:   time.Second,
		stopCh:         make(chan struct{}),
	}
}

func (l *Local) Name() string { return "lock.local" }

func (l *Local) Start(ctx context.Context) error {
	l.wg.Add(1)
	go l.reapLoop()
	return nil
}

func (l *Local) Stop(ctx context.Context) error {
	close(l.stopCh)
	l.wg.Wait()
	return nil
}

func (l *Local) Ping(ctx context.Context) error { return nil }

func (l *Local) reapLoop() {
	defer l.wg.Done()
	t := time.NewTicker(l.reapInterval)
	defer t.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-t.C:
			l.reapExpired()
		}
	}
}

func (l *Local) reapExpired() int {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	reaped := 0
	for name, e := range l.entries {
		e.mu.Lock()
		expired := e.held && now.After(e.expiresAt)
		if expired {
			e.held = false
			reaped++
		}
		free := !e.held
		e.mu.Unlock()
		if free {
			delete(l.entries, name)
		}
	}
	return reaped
}

// ReapStale runs the same sweep the background reaper performs on its
// timer, synchronously, and reports how many expired holds it cleared.
// The cleanup_stale_locks admin operation calls this directly so an
// operator can force a sweep between ticks.
func (l *Local) ReapStale(ctx context.Context) (int, error) {
	return l.reapExpired(), nil
}

func (l *Local) entryFor(name string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok {
		e = &entry{}
		l.entries[name] = e
	}
	return e
}

// Acquire blocks, polling, until the named entry is free or the driver's
// acquisition timeout elapses.
func (l *Local) Acquire(ctx context.Context, name string, ttl time.Duration) (platform.LockHandle, error) {
	deadline := time.Now().Add(l.acquireTimeout)
	e := l.entryFor(name)

	poll := 10 * time.Millisecond
	for {
		e.mu.Lock()
		free := !e.held || time.Now().After(e.expiresAt)
		if free {
			e.held = true
			e.expiresAt = time.Now().Add(ttl)
			e.mu.Unlock()
			return &localHandle{driver: l, name: name, entry: e}, nil
		}
		e.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, governanceerrors.Contention(name)
		}
		select {
		case <-ctx.Done():
			return nil, governanceerrors.Wrap(governanceerrors.ErrContention, "context cancelled waiting for lock", ctx.Err())
		case <-time.After(poll):
		}
		if poll < 200*time.Millisecond {
			poll *= 2
		}
	}
}

type localHandle struct {
	driver *Local
	name   string
	entry  *entry
}

func (h *localHandle) Name() string { return h.name }

func (h *localHandle) Renew(ctx context.Context, ttl time.Duration) error {
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	if !h.entry.held {
		return fmt.Errorf("lock %q is no longer held", h.name)
	}
	h.entry.expiresAt = time.Now().Add(ttl)
	return nil
}

func (h *localHandle) Release(ctx context.Context) error {
	h.entry.mu.Lock()
	h.entry.held = false
	h.entry.mu.Unlock()
	return nil
}
