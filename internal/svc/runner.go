// Package svc is the governance daemon's process lifecycle base: starting
// capability drivers and background sweep loops in registration order,
// and stopping them in reverse order on shutdown. It is grounded on the
// teacher's system/core LifecycleManager (module registry walked in
// dependency/registration order, reverse-order stop, continue-on-stop-error)
// but scoped down to the governance daemon's flat component list — there is
// no module dependency graph to resolve here, just a fixed boot sequence.
package svc

import (
	"context"
	"sync"

	"github.com/r3e-network/agent-governance/internal/platform"
	"github.com/r3e-network/agent-governance/pkg/logger"
)

// Loop is a long-running background task that blocks until ctx is
// cancelled, e.g. the stuck detector's sweep loop or the dialectic state
// machine's timeout sweep.
type Loop interface {
	Run(ctx context.Context)
}

// LoopFunc adapts a plain function to Loop.
type LoopFunc func(ctx context.Context)

func (f LoopFunc) Run(ctx context.Context) { f(ctx) }

// Runner owns every capability driver and background loop the daemon
// starts at boot, and tears them down in reverse order at shutdown.
type Runner struct {
	log     *logger.Logger
	drivers []platform.Driver
	loops   []namedLoop
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type namedLoop struct {
	name string
	loop Loop
}

// New builds an empty Runner.
func New(log *logger.Logger) *Runner {
	return &Runner{log: log}
}

// RegisterDriver adds a capability driver to be started before any loop
// runs and stopped, in reverse order, after every loop has exited.
func (r *Runner) RegisterDriver(d platform.Driver) {
	r.drivers = append(r.drivers, d)
}

// RegisterLoop adds a background loop to be started once every driver has
// started successfully.
func (r *Runner) RegisterLoop(name string, l Loop) {
	r.loops = append(r.loops, namedLoop{name: name, loop: l})
}

// Start starts every registered driver in registration order, stopping
// whatever already started if one fails, then launches every registered
// loop in its own goroutine under a child context.
func (r *Runner) Start(ctx context.Context) error {
	started := make([]platform.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		if err := d.Start(ctx); err != nil {
			r.log.WithField("driver", d.Name()).WithField("error", err).Error("svc: driver failed to start")
			stopReverse(ctx, started, r.log)
			return err
		}
		started = append(started, d)
		r.log.WithField("driver", d.Name()).Info("svc: driver started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, nl := range r.loops {
		nl := nl
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.log.WithField("loop", nl.name).Info("svc: loop started")
			nl.loop.Run(loopCtx)
			r.log.WithField("loop", nl.name).Info("svc: loop stopped")
		}()
	}

	return nil
}

// Stop cancels every running loop, waits for them to return, then stops
// every driver in reverse registration order. Driver stop errors are
// logged, not returned, so one failing driver never leaves the rest
// holding resources (mirrors the teacher's continue-on-stop-error rule).
func (r *Runner) Stop(ctx context.Context) {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	stopReverse(ctx, r.drivers, r.log)
}

func stopReverse(ctx context.Context, drivers []platform.Driver, log *logger.Logger) {
	for i := len(drivers) - 1; i >= 0; i-- {
		d := drivers[i]
		if err := d.Stop(ctx); err != nil {
			log.WithField("driver", d.Name()).WithField("error", err).Error("svc: driver failed to stop")
			continue
		}
		log.WithField("driver", d.Name()).Info("svc: driver stopped")
	}
}
