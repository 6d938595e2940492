package svc

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/agent-governance/pkg/logger"
)

// CronLoop adapts a single cron-scheduled job to the Loop interface so it
// can be registered on a Runner alongside ticker-driven loops like the
// stuck detector's. It exists for components that expose a one-shot sweep
// method rather than owning their own ticker — the Dialectic State
// Machine's session-timeout sweep being the motivating case.
type CronLoop struct {
	schedule string
	job      func(ctx context.Context)
	log      *logger.Logger
}

// NewCronLoop builds a CronLoop that runs job on the given six-field,
// seconds-first cron schedule (e.g. "0 */5 * * * *" for every five
// minutes) or a descriptor such as "@every 1m".
func NewCronLoop(schedule string, job func(ctx context.Context), log *logger.Logger) *CronLoop {
	return &CronLoop{schedule: schedule, job: job, log: log}
}

// Run starts the cron scheduler and blocks until ctx is cancelled. The
// scheduler parses six-field (seconds-precision) expressions so a
// timeout sweep can run more often than once a minute if configured to.
func (c *CronLoop) Run(ctx context.Context) {
	sched := cron.New(cron.WithSeconds())
	_, err := sched.AddFunc(c.schedule, func() { c.job(ctx) })
	if err != nil {
		c.log.WithField("schedule", c.schedule).WithField("error", err).Error("svc: invalid cron schedule")
		return
	}
	sched.Start()
	<-ctx.Done()
	stopCtx := sched.Stop()
	<-stopCtx.Done()
}
