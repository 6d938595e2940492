package operations

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
)

func lifecycleOperations() []Operation {
	return []Operation{
		{Name: "list", Class: ratelimit.ClassAdmin, Timeout: 5 * time.Second, Handler: listAgents,
			Description: "list every registered agent identity"},
		{Name: "get", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: getAgent,
			Description: "get one agent identity by uuid"},
		{Name: "update_metadata", Class: ratelimit.ClassAdmin, Timeout: 5 * time.Second, Handler: updateMetadata,
			Description: "mutate an agent's tags"},
		{Name: "archive", Class: ratelimit.ClassAdmin, Timeout: 5 * time.Second, Handler: archiveAgent,
			Description: "move an agent identity to archived status"},
		{Name: "delete", Class: ratelimit.ClassAdmin, Timeout: 5 * time.Second, Handler: deleteAgent,
			Description: "move an agent identity to deleted status (soft delete; the record is retained for audit)"},
	}
}

func listAgents(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	idents, err := d.Store.Identities.List(ctx, p.Bool("include_archived"))
	if err != nil {
		return nil, errors.Internal("failed to list identities", err)
	}
	return map[string]interface{}{"identities": idents}, nil
}

func getAgent(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	target, ok := p.String("agent_uuid")
	if !ok {
		return nil, errors.MissingParameter("agent_uuid")
	}
	id, err := d.Store.Identities.GetByUUID(ctx, target)
	if err != nil {
		return nil, errors.AgentNotFound(target)
	}
	return id, nil
}

func updateMetadata(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	target, ok := p.String("agent_uuid")
	if !ok {
		return nil, errors.MissingParameter("agent_uuid")
	}
	id, err := d.Store.Identities.GetByUUID(ctx, target)
	if err != nil {
		return nil, errors.AgentNotFound(target)
	}
	if !id.IsWritable() {
		return nil, errors.New(errors.ErrOwnershipViolation, "identity is archived or deleted and no longer writable")
	}
	if tags := p.StringSlice("tags"); tags != nil {
		id.Tags = tags
	}
	id.LastUpdateAt = time.Now()
	if err := d.Store.Identities.Update(ctx, id); err != nil {
		return nil, errors.PersistFailure(err)
	}
	return id, nil
}

func setStatus(ctx context.Context, d *Deps, agentUUID string, status model.IdentityStatus) (*model.Identity, *errors.ServiceError) {
	id, err := d.Store.Identities.GetByUUID(ctx, agentUUID)
	if err != nil {
		return nil, errors.AgentNotFound(agentUUID)
	}
	id.Status = status
	id.LastUpdateAt = time.Now()
	if status == model.StatusArchived {
		now := id.LastUpdateAt
		id.ArchivedAt = &now
	}
	if err := d.Store.Identities.Update(ctx, id); err != nil {
		return nil, errors.PersistFailure(err)
	}
	return id, nil
}

func archiveAgent(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	target, ok := p.String("agent_uuid")
	if !ok {
		return nil, errors.MissingParameter("agent_uuid")
	}
	id, svcErr := setStatus(ctx, d, target, model.StatusArchived)
	if svcErr != nil {
		return nil, svcErr
	}
	_ = d.Audit.Append(ctx, model.AuditEvent{
		Timestamp: time.Now(), ActorUUID: target, Action: "archived",
		Tags: []string{"lifecycle", "archive"},
	})
	return id, nil
}

func deleteAgent(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	target, ok := p.String("agent_uuid")
	if !ok {
		return nil, errors.MissingParameter("agent_uuid")
	}
	id, svcErr := setStatus(ctx, d, target, model.StatusDeleted)
	if svcErr != nil {
		return nil, svcErr
	}
	_ = d.Audit.Append(ctx, model.AuditEvent{
		Timestamp: time.Now(), ActorUUID: target, Action: "deleted",
		Tags: []string{"lifecycle", "delete"},
	})
	return id, nil
}
