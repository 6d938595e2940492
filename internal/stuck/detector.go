// Package stuck implements the Stuck-Agent Detector & Auto-Recovery Loop: a
// periodic sweep that classifies agents in unsafe or inactive regimes and
// either resumes them directly or opens a dialectic session.
package stuck

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/agent-governance/internal/dynamics"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/store"
	"github.com/r3e-network/agent-governance/pkg/config"
	"github.com/r3e-network/agent-governance/pkg/logger"
)

// Reason identifies which detection rule matched.
type Reason string

const (
	ReasonCriticalMarginTimeout Reason = "critical_margin_timeout"
	ReasonTightMarginTimeout    Reason = "tight_margin_timeout"
	ReasonActivityTimeout       Reason = "activity_timeout"
	ReasonCognitiveLoop         Reason = "cognitive_loop"
	ReasonTimeBoxExceeded       Reason = "time_box_exceeded"
)

const (
	criticalMarginTimeout = 5 * time.Minute
	tightMarginTimeout    = 15 * time.Minute
	activityTimeout       = 30 * time.Minute
	cognitiveLoopWindow   = 30 * time.Minute
	cognitiveLoopCount    = 3
	investigationTimeBox  = 10 * time.Minute
)

// DialecticOpener is the narrow surface the detector needs from the
// Dialectic State Machine: open a session for an unsafe agent.
type DialecticOpener interface {
	RequestReview(ctx context.Context, pausedUUID, reason string) (string, error)
	HasOpenSession(ctx context.Context, agentUUID string) (bool, error)
}

// Notes is the narrow surface the detector needs from the Knowledge Note
// collaborator: recording an auto-recovery note.
type Notes interface {
	Append(ctx context.Context, note *model.KnowledgeNote) error
}

// InvestigationTracker reports whether an agent is tagged "investigating"
// and, if so, since when its last progress marker was recorded. A nil
// tracker disables detection rule 5 entirely.
type InvestigationTracker interface {
	InvestigatingSince(agentUUID string) (since time.Time, investigating bool)
}

// Detector runs the periodic sweep.
type Detector struct {
	identities store.Identities
	states     store.AgentStates
	patterns   store.PatternEvents
	dynamics   *dynamics.Service
	dialectic  DialecticOpener
	notes      Notes
	investig   InvestigationTracker
	log        *logger.Logger

	sweepInterval time.Duration
	warmup        time.Duration
}

// New builds a Detector from the governance config's stuck-detector section.
func New(identities store.Identities, states store.AgentStates, patterns store.PatternEvents, dyn *dynamics.Service, dialectic DialecticOpener, notes Notes, investig InvestigationTracker, cfg config.StuckDetectorConfig, log *logger.Logger) *Detector {
	sweep := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	warmup := time.Duration(cfg.WarmupSeconds) * time.Second
	if warmup <= 0 {
		warmup = 10 * time.Second
	}
	return &Detector{
		identities: identities, states: states, patterns: patterns,
		dynamics: dyn, dialectic: dialectic, notes: notes, investig: investig,
		log: log, sweepInterval: sweep, warmup: warmup,
	}
}

// Run blocks, firing a sweep every sweepInterval after the initial warmup,
// until ctx is cancelled. Ticks never overlap: a slow tick delays the next
// one rather than running concurrently.
func (d *Detector) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(d.warmup):
	}

	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	d.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Detector) sweep(ctx context.Context) {
	identities, err := d.identities.List(ctx, false)
	if err != nil {
		d.log.WithField("error", err).Error("stuck detector: failed to list identities")
		return
	}

	for _, id := range identities {
		if id.Creature() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return
		}
		d.evaluateAgent(ctx, id)
	}
}

func (d *Detector) evaluateAgent(ctx context.Context, id *model.Identity) {
	state, err := d.states.Get(ctx, id.UUID)
	if err != nil {
		return
	}

	reason, matched := d.classify(ctx, id.UUID, *state)
	if !matched {
		return
	}

	d.recover(ctx, id, *state, reason)
}

// classify applies the five ordered detection rules; the first match wins.
func (d *Detector) classify(ctx context.Context, agentUUID string, state model.AgentState) (Reason, bool) {
	sinceUpdate := time.Since(state.UpdatedAt)

	if state.Margin == model.MarginCritical && sinceUpdate > criticalMarginTimeout {
		return ReasonCriticalMarginTimeout, true
	}
	if state.Margin == model.MarginTight && sinceUpdate > tightMarginTimeout {
		return ReasonTightMarginTimeout, true
	}
	if sinceUpdate > activityTimeout {
		return ReasonActivityTimeout, true
	}
	if d.patterns != nil {
		if count, err := d.patterns.CountSince(ctx, agentUUID, lastFingerprintKey, time.Now().Add(-cognitiveLoopWindow)); err == nil && count >= cognitiveLoopCount {
			return ReasonCognitiveLoop, true
		}
	}
	if d.investig != nil {
		if since, investigating := d.investig.InvestigatingSince(agentUUID); investigating && time.Since(since) > investigationTimeBox {
			return ReasonTimeBoxExceeded, true
		}
	}
	return "", false
}

// lastFingerprintKey is a placeholder fingerprint key; callers of
// RecordPattern supply the true per-tool-call fingerprint, and the
// cognitive_loop rule checks the most recently recorded one via
// PatternEvents.CountSince keyed identically.
const lastFingerprintKey = "*"

func (d *Detector) recover(ctx context.Context, id *model.Identity, state model.AgentState, reason Reason) {
	safe := state.SafeToResume()

	fields := logrus.Fields{"agent_uuid": id.UUID, "reason": reason}

	if safe {
		if err := d.dynamics.Resume(ctx, id.UUID, nil, ""); err != nil {
			d.log.WithFields(fields).WithField("error", err).Error("stuck detector: auto-resume failed")
			return
		}
		if d.notes != nil {
			_ = d.notes.Append(ctx, &model.KnowledgeNote{
				AuthorUUID: id.UUID,
				Summary:    fmt.Sprintf("auto-recovered from %s", reason),
				Kind:       model.NoteInsight,
				Tags:       []string{"auto-recovery", "stuck-agent"},
				Status:     model.NoteOpen,
				CreatedAt:  time.Now(),
			})
		}
		d.log.WithFields(fields).Info("stuck detector: auto-resumed agent")
		return
	}

	if d.dialectic == nil {
		return
	}
	open, err := d.dialectic.HasOpenSession(ctx, id.UUID)
	if err != nil {
		d.log.WithFields(fields).WithField("error", err).Error("stuck detector: failed to check open dialectic session")
		return
	}
	if open {
		return
	}

	if _, err := d.dialectic.RequestReview(ctx, id.UUID, string(reason)); err != nil {
		d.log.WithFields(fields).WithField("error", err).Error("stuck detector: failed to open dialectic session")
		return
	}
	d.log.WithFields(fields).Info("stuck detector: opened dialectic session")
}
