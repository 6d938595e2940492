// Package notes is the Knowledge Note collaborator spec.md §3/§6 names as
// an external system the core only appends to and filters by tag — this
// package is that external system's thin governance-side client, backed
// by the durable knowledge_notes store.
package notes

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/agent-governance/internal/model"
	"github.com/r3e-network/agent-governance/internal/store"
)

// Collaborator is the append/list-by-tag/list-by-author/update-status
// surface the stuck detector and the note operations depend on.
type Collaborator struct {
	store store.Notes
}

// New builds a Collaborator over the durable knowledge_notes store.
func New(s store.Notes) *Collaborator {
	return &Collaborator{store: s}
}

// Append assigns an ID and CreatedAt if the caller left them zero, then
// persists the note.
func (c *Collaborator) Append(ctx context.Context, note *model.KnowledgeNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	if note.Status == "" {
		note.Status = model.NoteOpen
	}
	return c.store.Append(ctx, note)
}

// ListByTag returns every note carrying tag, regardless of author.
func (c *Collaborator) ListByTag(ctx context.Context, tag string) ([]*model.KnowledgeNote, error) {
	return c.store.ListByTag(ctx, tag)
}

// ListByAuthor returns every note authored by authorUUID.
func (c *Collaborator) ListByAuthor(ctx context.Context, authorUUID string) ([]*model.KnowledgeNote, error) {
	return c.store.ListByAuthor(ctx, authorUUID)
}

// UpdateStatus transitions a note's lifecycle status.
func (c *Collaborator) UpdateStatus(ctx context.Context, id string, status model.NoteStatus) error {
	return c.store.UpdateStatus(ctx, id, status)
}
