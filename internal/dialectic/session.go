package dialectic

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/model"
)

func (s *Service) authorIdentity(ctx context.Context, authorUUID string) (*model.Identity, error) {
	id, err := s.identities.GetByUUID(ctx, authorUUID)
	if err != nil {
		return nil, errors.AgentNotFound(authorUUID)
	}
	return id, nil
}

func (s *Service) verifyAndAppend(ctx context.Context, session *model.Session, msg model.DialecticMessage) error {
	author, err := s.authorIdentity(ctx, msg.AuthorUUID)
	if err != nil {
		return err
	}
	if !verifySignature(author.APIKeyHash, msg) {
		return errors.AuthFailed("dialectic message signature does not verify")
	}
	msg.Seq = len(session.Messages)
	msg.Timestamp = time.Now()
	session.Messages = append(session.Messages, msg)
	return s.sessions.AppendMessage(ctx, session.SessionID, msg)
}

func (s *Service) loadNonTerminal(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.New(errors.ErrResourceNotFound, "no such dialectic session")
	}
	if session.Phase.Terminal() {
		return nil, errors.New(errors.ErrWrongPhase, "session is already in a terminal phase")
	}
	return session, nil
}

// SubmitThesis is submit_thesis(session_id, msg): allowed only in phase
// thesis, author must be the paused agent. Transitions to antithesis.
func (s *Service) SubmitThesis(ctx context.Context, sessionID string, msg model.DialecticMessage) error {
	session, err := s.loadNonTerminal(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Phase != model.PhaseThesis {
		return errors.New(errors.ErrWrongPhase, "session is not in phase thesis")
	}
	if msg.AuthorUUID != session.PausedAgentUUID {
		return errors.New(errors.ErrOwnershipViolation, "only the paused agent may submit the thesis message")
	}

	h1, h2, err := s.acquireSessionLock(ctx, session.PausedAgentUUID, session.ReviewerAgentUUID)
	if err != nil {
		return err
	}
	defer h1.Release(ctx)
	defer h2.Release(ctx)

	msg.Kind = model.KindThesis
	if err := s.verifyAndAppend(ctx, session, msg); err != nil {
		return err
	}

	session.Phase = model.PhaseAntithesis
	session.UpdatedAt = time.Now()
	return s.persist(ctx, session)
}

// SubmitAntithesis is submit_antithesis(session_id, msg): allowed only in
// phase antithesis, author must be the reviewer. Transitions to synthesis.
func (s *Service) SubmitAntithesis(ctx context.Context, sessionID string, msg model.DialecticMessage) error {
	session, err := s.loadNonTerminal(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Phase != model.PhaseAntithesis {
		return errors.New(errors.ErrWrongPhase, "session is not in phase antithesis")
	}
	if msg.AuthorUUID != session.ReviewerAgentUUID {
		return errors.New(errors.ErrOwnershipViolation, "only the reviewer may submit the antithesis message")
	}

	h1, h2, err := s.acquireSessionLock(ctx, session.PausedAgentUUID, session.ReviewerAgentUUID)
	if err != nil {
		return err
	}
	defer h1.Release(ctx)
	defer h2.Release(ctx)

	msg.Kind = model.KindAntithesis
	if err := s.verifyAndAppend(ctx, session, msg); err != nil {
		return err
	}

	session.Phase = model.PhaseSynthesis
	session.UpdatedAt = time.Now()
	return s.persist(ctx, session)
}

// SubmitSynthesis is submit_synthesis(session_id, msg, human_inputs?):
// allowed from either party while phase=synthesis. Evaluates convergence;
// on success runs the Safety Gate and resolve_and_resume; on failure,
// allows up to three total synthesis attempts before failing the session.
func (s *Service) SubmitSynthesis(ctx context.Context, sessionID string, msg model.DialecticMessage, humanInputs string) error {
	session, err := s.loadNonTerminal(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Phase != model.PhaseSynthesis {
		return errors.New(errors.ErrWrongPhase, "session is not in phase synthesis")
	}
	if msg.AuthorUUID != session.PausedAgentUUID && msg.AuthorUUID != session.ReviewerAgentUUID {
		return errors.New(errors.ErrOwnershipViolation, "only a session party may submit the synthesis message")
	}

	h1, h2, err := s.acquireSessionLock(ctx, session.PausedAgentUUID, session.ReviewerAgentUUID)
	if err != nil {
		return err
	}
	defer h1.Release(ctx)
	defer h2.Release(ctx)

	if humanInputs != "" {
		s.attachHumanInputs(ctx, &msg, humanInputs)
	}

	msg.Kind = model.KindSynthesis
	if err := s.verifyAndAppend(ctx, session, msg); err != nil {
		return err
	}
	session.SynthesisAttempts++

	thesis := findLastByKind(session.Messages, model.KindThesis)
	antithesis := findLastByKind(session.Messages, model.KindAntithesis)
	if thesis == nil || antithesis == nil {
		return errors.New(errors.ErrWrongPhase, "session has no prior thesis/antithesis to evaluate")
	}

	result := evaluateConvergence(*thesis, *antithesis, msg)
	if !result.accepted {
		if session.SynthesisAttempts >= maxSynthesisAttempts {
			session.Phase = model.PhaseFailed
			session.Status = "failed"
			session.Resolution = &model.Resolution{Accepted: false, Reason: result.reason}
			session.UpdatedAt = time.Now()
			if err := s.persist(ctx, session); err != nil {
				return err
			}
			s.lastResolutionAttempt[session.PausedAgentUUID] = time.Now()
			s.appendAudit(ctx, session, "dialectic_failed", []string{"dialectic", "conservative-default"}, map[string]interface{}{"reason": result.reason})
			return nil
		}
		session.UpdatedAt = time.Now()
		return s.persist(ctx, session)
	}

	return s.resolveAndResume(ctx, session, msg.ProposedConditions)
}

// attachHumanInputs condenses a human reviewer's free-form input through
// the configured summarizer, then tries to pull structured conditions out
// of the result with gjson. A real summarizer is expected to return a
// JSON object like {"conditions": [{"kind": "...", "key": "...", "value":
// ...}], "concerns": [...]}; the null/passthrough summarizer just echoes
// the input text, which fails the conditions lookup and falls back to
// attaching it verbatim as a concern.
func (s *Service) attachHumanInputs(ctx context.Context, msg *model.DialecticMessage, humanInputs string) {
	sumCtx, cancel := context.WithTimeout(ctx, summarizerDeadline)
	defer cancel()
	condensed, err := s.summarizer.Summarize(sumCtx, humanInputs)
	if err != nil {
		msg.Concerns = append(msg.Concerns, humanInputs)
		return
	}

	parsed := gjson.Parse(condensed)
	conditions := parsed.Get("conditions")
	if !conditions.IsArray() {
		msg.Concerns = append(msg.Concerns, humanInputs)
		return
	}

	conditions.ForEach(func(_, c gjson.Result) bool {
		kind := c.Get("kind").String()
		key := c.Get("key").String()
		if kind == "" || key == "" {
			return true
		}
		msg.ProposedConditions = append(msg.ProposedConditions, model.Condition{
			Kind: kind, Key: key, Value: c.Get("value").Float(),
		})
		return true
	})

	for _, concern := range parsed.Get("concerns").Array() {
		msg.Concerns = append(msg.Concerns, concern.String())
	}
	if len(msg.ProposedConditions) == 0 && len(msg.Concerns) == 0 {
		msg.Concerns = append(msg.Concerns, humanInputs)
	}
}

// resolveAndResume is the one-shot resolution execution from §4.4.
func (s *Service) resolveAndResume(ctx context.Context, session *model.Session, conditions []model.Condition) error {
	for _, c := range conditions {
		if err := checkSafetyGate(model.DialecticMessage{RootCause: "defence-in-depth-recheck-of-condition", ProposedConditions: []model.Condition{c}}); err != nil {
			session.Phase = model.PhaseFailed
			session.Status = "failed"
			session.Resolution = &model.Resolution{Accepted: false, Reason: "safety_gate_defence_in_depth"}
			session.UpdatedAt = time.Now()
			_ = s.persist(ctx, session)
			return errors.Unsafe(err.Error())
		}
	}

	if err := s.dynamics.Resume(ctx, session.PausedAgentUUID, conditions, session.ReviewerAgentUUID); err != nil {
		var svcErr *errors.ServiceError
		if !stderrors.As(err, &svcErr) || svcErr.Code != errors.ErrUnsafe {
			return err
		}
		session.Phase = model.PhaseFailed
		session.Status = "failed"
		session.Resolution = &model.Resolution{Accepted: false, Reason: "unsafe_post_gate"}
		session.UpdatedAt = time.Now()
		if err := s.persist(ctx, session); err != nil {
			return err
		}
		s.lastResolutionAttempt[session.PausedAgentUUID] = time.Now()
		return nil
	}

	session.Phase = model.PhaseResolved
	session.Status = "resolved"
	session.Resolution = &model.Resolution{Accepted: true, Conditions: conditions}
	session.UpdatedAt = time.Now()
	if err := s.persist(ctx, session); err != nil {
		return err
	}
	s.appendAudit(ctx, session, "dialectic_resolved", []string{"dialectic", "resolved"}, map[string]interface{}{"conditions": len(conditions)})
	return nil
}

// Cancel is cancel(session_id, reason): moves any non-terminal session to
// cancelled. Any party may cancel.
func (s *Service) Cancel(ctx context.Context, sessionID, reason string) error {
	session, err := s.loadNonTerminal(ctx, sessionID)
	if err != nil {
		return err
	}

	h1, h2, err := s.acquireSessionLock(ctx, session.PausedAgentUUID, session.ReviewerAgentUUID)
	if err != nil {
		return err
	}
	defer h1.Release(ctx)
	defer h2.Release(ctx)

	session.Phase = model.PhaseCancelled
	session.Status = "cancelled"
	session.Resolution = &model.Resolution{Accepted: false, Reason: reason}
	session.UpdatedAt = time.Now()
	if err := s.persist(ctx, session); err != nil {
		return err
	}
	s.appendAudit(ctx, session, "dialectic_cancelled", []string{"dialectic", "cancelled"}, map[string]interface{}{"reason": reason})
	return nil
}

// SweepTimeouts cancels every non-terminal session that has seen no
// progress within the last hour, per §4.4's timeout rule. Intended to run
// on the same periodic cadence as the stuck detector.
func (s *Service) SweepTimeouts(ctx context.Context) {
	sessions, err := s.sessions.ListNonTerminal(ctx)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-sessionTimeout)
	for _, session := range sessions {
		if session.UpdatedAt.Before(cutoff) {
			_ = s.Cancel(ctx, session.SessionID, "timeout")
		}
	}
}

func (s *Service) persist(ctx context.Context, session *model.Session) error {
	if err := s.sessions.Update(ctx, session); err != nil {
		return errors.PersistFailure(err)
	}
	return nil
}

func (s *Service) appendAudit(ctx context.Context, session *model.Session, action string, tags []string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["session_id"] = session.SessionID
	_ = s.audit.Append(ctx, model.AuditEvent{
		Timestamp: time.Now(), ActorUUID: session.PausedAgentUUID, SubjectUUID: session.ReviewerAgentUUID,
		Action: action, Tags: tags, Details: details,
	})
}

func findLastByKind(messages []model.DialecticMessage, kind model.MessageKind) *model.DialecticMessage {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Kind == kind {
			m := messages[i]
			return &m
		}
	}
	return nil
}
