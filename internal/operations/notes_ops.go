package operations

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
)

func noteOperations() []Operation {
	return []Operation{
		{Name: "store", Class: ratelimit.ClassUpdate, Timeout: 5 * time.Second, Handler: storeNote,
			Description: "append a knowledge note authored by the caller"},
		{Name: "search", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: searchNotes,
			Description: "list notes by tag (or by author when no tag is given)"},
		{Name: "get", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: getNote,
			Description: "find one note by id within a tag or the caller's own notes"},
		{Name: "list", Class: ratelimit.ClassRead, Timeout: 5 * time.Second, Handler: listNotes,
			Description: "list the caller's own notes"},
		{Name: "update_status", Class: ratelimit.ClassUpdate, Timeout: 5 * time.Second, Handler: updateNoteStatus,
			Description: "transition a note's lifecycle status"},
		{Name: "cleanup", Class: ratelimit.ClassAdmin, Timeout: 10 * time.Second, Handler: cleanupNotes,
			Description: "archive resolved notes older than a cutoff within one tag"},
	}
}

func storeNote(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	summary, ok := p.String("summary")
	if !ok || summary == "" {
		return nil, errors.MissingParameter("summary")
	}
	note := &model.KnowledgeNote{
		AuthorUUID: agentUUID,
		Summary:    summary,
		Details:    p.StringOr("details", ""),
		Kind:       model.NoteKind(p.StringOr("kind", string(model.NoteGeneric))),
		Severity:   p.StringOr("severity", ""),
		Tags:       p.StringSlice("tags"),
		Supersedes: p.StringOr("supersedes", ""),
	}
	if err := d.Notes.Append(ctx, note); err != nil {
		return nil, errors.Internal("failed to store note", err)
	}
	return note, nil
}

func searchNotes(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	if tag, ok := p.String("tag"); ok && tag != "" {
		notes, err := d.Notes.ListByTag(ctx, tag)
		if err != nil {
			return nil, errors.Internal("failed to search notes", err)
		}
		return map[string]interface{}{"notes": notes}, nil
	}
	author := p.StringOr("author_uuid", agentUUID)
	notes, err := d.Notes.ListByAuthor(ctx, author)
	if err != nil {
		return nil, errors.Internal("failed to search notes", err)
	}
	return map[string]interface{}{"notes": notes}, nil
}

// getNote has no direct by-id lookup in the Notes store port (§ "Knowledge
// notes" keeps the external collaborator narrow: append and list-by-tag/
// author only), so it scans the scoped list the caller can already see.
func getNote(ctx context.Context, d *Deps, agentUUID string, p Params) (interface{}, *errors.ServiceError) {
	id, ok := p.String("id")
	if !ok {
		return nil, errors.MissingParameter("id")
	}
	var candidates []*model.KnowledgeNote
	var err error
	if tag, ok := p.String("tag"); ok && tag != "" {
		candidates, err = d.Notes.ListByTag(ctx, tag)
	} else {
		candidates, err = d.Notes.ListByAuthor(ctx, agentUUID)
	}
	if err != nil {
		return nil, errors.Internal("failed to look up note", err)
	}
	for _, n := range candidates {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, errors.New(errors.ErrResourceNotFound, "no such note in the searched scope")
}

func listNotes(ctx context.Context, d *Deps, agentUUID string, _ Params) (interface{}, *errors.ServiceError) {
	notes, err := d.Notes.ListByAuthor(ctx, agentUUID)
	if err != nil {
		return nil, errors.Internal("failed to list notes", err)
	}
	return map[string]interface{}{"notes": notes}, nil
}

func updateNoteStatus(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	id, ok := p.String("id")
	if !ok {
		return nil, errors.MissingParameter("id")
	}
	status, ok := p.String("status")
	if !ok {
		return nil, errors.MissingParameter("status")
	}
	if err := d.Notes.UpdateStatus(ctx, id, model.NoteStatus(status)); err != nil {
		return nil, errors.Internal("failed to update note status", err)
	}
	return map[string]interface{}{"ok": true}, nil
}

// cleanupNotes archives every resolved note older than the cutoff within
// one tag; it is deliberately tag-scoped rather than a full-table sweep
// since the Notes port has no list-all operation (the external
// collaborator's storage semantics belong to it, not the core).
func cleanupNotes(ctx context.Context, d *Deps, _ string, p Params) (interface{}, *errors.ServiceError) {
	tag, ok := p.String("tag")
	if !ok || tag == "" {
		return nil, errors.MissingParameter("tag")
	}
	olderThanDays := p.Int("older_than_days", 30)
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	notes, err := d.Notes.ListByTag(ctx, tag)
	if err != nil {
		return nil, errors.Internal("failed to list notes for cleanup", err)
	}

	archived := 0
	for _, n := range notes {
		if n.Status == model.NoteResolved && n.CreatedAt.Before(cutoff) {
			if err := d.Notes.UpdateStatus(ctx, n.ID, model.NoteArchived); err == nil {
				archived++
			}
		}
	}
	return map[string]interface{}{"archived": archived}, nil
}
