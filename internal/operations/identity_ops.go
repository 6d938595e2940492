package operations

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/identity"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
)

func identityOperations() []Operation {
	return []Operation{
		{Name: "onboard", Class: ratelimit.ClassUpdate, Timeout: 5 * time.Second, Handler: onboard,
			Description: "resolve or create the caller's canonical identity (§4.2 resolve/create)"},
		{Name: "identity", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: getIdentity,
			Description: "return the caller's own identity record"},
		{Name: "set_display_name", Class: ratelimit.ClassUpdate, Timeout: 5 * time.Second, Handler: setDisplayName,
			Description: "mutate the caller's display name"},
		{Name: "rotate_key", Class: ratelimit.ClassUpdate, Timeout: 5 * time.Second, Handler: rotateKey,
			Description: "regenerate the caller's API key, returned once in plaintext"},
	}
}

// onboard is onboard()/resolve() from §4.2: the one operation that may run
// before an agentUUID has been resolved, since its whole job is producing
// one. The identity-injection middleware therefore does not gate this
// handler on a non-empty agentUUID the way every other handler is.
func onboard(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	rc := identity.RequestContext{
		AgentUUID:            p.StringOr("agent_uuid", ""),
		APIKey:               p.StringOr("api_key", ""),
		SessionKey:           p.StringOr("session_key", ""),
		DisplayName:          p.StringOr("display_name", ""),
		NameClaimToken:       p.StringOr("name_claim_token", ""),
		TransportFingerprint: p.StringOr("transport_fingerprint", ""),
		Resume:               p.Bool("resume"),
		ForceNew:             p.Bool("force_new"),
		Model:                p.StringOr("model", ""),
	}

	if rc.AgentUUID == "" && rc.SessionKey == "" && rc.DisplayName == "" && rc.TransportFingerprint == "" {
		id, plaintext, err := d.Identity.CreateWithKey(ctx, identity.IdentityInit{
			Model:       p.StringOr("model", ""),
			DisplayName: p.StringOr("display_name", ""),
			Autonomous:  p.Bool("autonomous"),
			Tags:        p.StringSlice("tags"),
		})
		if err != nil {
			return nil, errors.As(err)
		}
		return map[string]interface{}{"identity": id, "api_key": plaintext}, nil
	}

	id, err := d.Identity.Resolve(ctx, rc)
	if err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"identity": id}, nil
}

func getIdentity(ctx context.Context, d *Deps, agentUUID string, _ Params) (interface{}, *errors.ServiceError) {
	id, err := d.Store.Identities.GetByUUID(ctx, agentUUID)
	if err != nil {
		return nil, errors.AgentNotFound(agentUUID)
	}
	return id, nil
}

func setDisplayName(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	name, ok := p.String("display_name")
	if !ok || name == "" {
		return nil, errors.MissingParameter("display_name")
	}
	if err := d.Identity.SetDisplayName(ctx, agentUUID, name); err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"ok": true}, nil
}

func rotateKey(ctx context.Context, d *Deps, agentUUID string, _ Params) (interface{}, *errors.ServiceError) {
	plaintext, err := d.Identity.RotateKey(ctx, agentUUID)
	if err != nil {
		return nil, errors.As(err)
	}
	return map[string]interface{}{"api_key": plaintext}, nil
}
