package operations

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
)

func dialecticOperations() []Operation {
	return []Operation{
		{Name: "request_review", Class: ratelimit.ClassDialectic, Timeout: 10 * time.Second, Handler: requestReview,
			Description: "open a dialectic session for the caller (§4.4)"},
		{Name: "submit_thesis", Class: ratelimit.ClassDialectic, Timeout: 10 * time.Second, Handler: submitThesis,
			Description: "submit the paused agent's thesis message"},
		{Name: "submit_antithesis", Class: ratelimit.ClassDialectic, Timeout: 10 * time.Second, Handler: submitAntithesis,
			Description: "submit the reviewer's antithesis message"},
		{Name: "submit_synthesis", Class: ratelimit.ClassDialectic, Timeout: 10 * time.Second, Handler: submitSynthesis,
			Description: "submit a synthesis message; resolves the session on convergence"},
		{Name: "get_session", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: getSession,
			Description: "return one dialectic session by id"},
		{Name: "list_sessions", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: listSessions,
			Description: "list every dialectic session still in a non-terminal phase"},
		{Name: "cancel_session", Class: ratelimit.ClassDialectic, Timeout: 5 * time.Second, Handler: cancelSession,
			Description: "cancel a non-terminal session; either party may call this"},
	}
}

func requestReview(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	reason := p.StringOr("reason", "")
	sessionID, err := d.Dialectic.RequestReview(ctx, agentUUID, reason)
	if err != nil {
		return nil, errors.As(err)
	}
	if d.Metrics != nil {
		d.Metrics.RecordDialecticOpened()
	}
	return map[string]interface{}{"session_id": sessionID}, nil
}

func submitThesis(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	sessionID, ok := p.String("session_id")
	if !ok {
		return nil, errors.MissingParameter("session_id")
	}
	msg := p.Message("message")
	msg.AuthorUUID = agentUUID
	if err := d.Dialectic.SubmitThesis(ctx, sessionID, msg); err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"ok": true}, nil
}

func submitAntithesis(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	sessionID, ok := p.String("session_id")
	if !ok {
		return nil, errors.MissingParameter("session_id")
	}
	msg := p.Message("message")
	msg.AuthorUUID = agentUUID
	if err := d.Dialectic.SubmitAntithesis(ctx, sessionID, msg); err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"ok": true}, nil
}

func submitSynthesis(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	sessionID, ok := p.String("session_id")
	if !ok {
		return nil, errors.MissingParameter("session_id")
	}
	msg := p.Message("message")
	msg.AuthorUUID = agentUUID
	humanInputs := p.StringOr("human_inputs", "")
	if err := d.Dialectic.SubmitSynthesis(ctx, sessionID, msg, humanInputs); err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"ok": true}, nil
}

func getSession(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	sessionID, ok := p.String("session_id")
	if !ok {
		return nil, errors.MissingParameter("session_id")
	}
	session, err := d.Dialectic.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.As(err)
	}
	return session, nil
}

func listSessions(ctx context.Context, d *Deps, _ string, _ Params) (interface{}, *errors.ServiceError) {
	sessions, err := d.Dialectic.ListSessions(ctx)
	if err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"sessions": sessions}, nil
}

func cancelSession(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	sessionID, ok := p.String("session_id")
	if !ok {
		return nil, errors.MissingParameter("session_id")
	}
	reason := p.StringOr("reason", "cancelled by party")
	if err := d.Dialectic.Cancel(ctx, sessionID, reason); err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"ok": true}, nil
}
