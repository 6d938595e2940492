package notes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/internal/model"
)

type memNotes struct {
	byID map[string]*model.KnowledgeNote
}

func newMemNotes() *memNotes { return &memNotes{byID: make(map[string]*model.KnowledgeNote)} }

func (m *memNotes) Append(ctx context.Context, note *model.KnowledgeNote) error {
	m.byID[note.ID] = note
	return nil
}

func (m *memNotes) ListByTag(ctx context.Context, tag string) ([]*model.KnowledgeNote, error) {
	var out []*model.KnowledgeNote
	for _, n := range m.byID {
		for _, t := range n.Tags {
			if t == tag {
				out = append(out, n)
				break
			}
		}
	}
	return out, nil
}

func (m *memNotes) ListByAuthor(ctx context.Context, authorUUID string) ([]*model.KnowledgeNote, error) {
	var out []*model.KnowledgeNote
	for _, n := range m.byID {
		if n.AuthorUUID == authorUUID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotes) UpdateStatus(ctx context.Context, id string, status model.NoteStatus) error {
	n, ok := m.byID[id]
	if !ok {
		return assertNotFound{}
	}
	n.Status = status
	return nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "note not found" }

func TestAppendAssignsIDAndDefaults(t *testing.T) {
	mem := newMemNotes()
	c := New(mem)
	ctx := context.Background()

	note := &model.KnowledgeNote{AuthorUUID: "a1", Summary: "found a loop", Kind: model.NoteInsight, Tags: []string{"auto-recovery"}}
	require.NoError(t, c.Append(ctx, note))
	assert.NotEmpty(t, note.ID)
	assert.False(t, note.CreatedAt.IsZero())
	assert.Equal(t, model.NoteOpen, note.Status)

	found, err := c.ListByTag(ctx, "auto-recovery")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestUpdateStatus(t *testing.T) {
	mem := newMemNotes()
	c := New(mem)
	ctx := context.Background()

	note := &model.KnowledgeNote{AuthorUUID: "a1", Summary: "x"}
	require.NoError(t, c.Append(ctx, note))

	require.NoError(t, c.UpdateStatus(ctx, note.ID, model.NoteResolved))
	byAuthor, err := c.ListByAuthor(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, model.NoteResolved, byAuthor[0].Status)
}
