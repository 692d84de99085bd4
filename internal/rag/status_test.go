package rag

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStatusStore(t *testing.T) *SQLiteStatusStore {
	t.Helper()
	s, err := NewStatusStore(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStatusStore_CreateStartsPending(t *testing.T) {
	// Given a status store
	s := newTestStatusStore(t)
	ctx := context.Background()

	// When registering a document
	doc, err := s.Create(ctx, "project-1", "handbook.pdf")

	// Then it is stored in the Pending state
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "handbook.pdf", got.Source)
}

func TestStatusStore_HappyPathLifecycle(t *testing.T) {
	// Given a pending document
	s := newTestStatusStore(t)
	ctx := context.Background()
	doc, err := s.Create(ctx, "project-1", "handbook.pdf")
	require.NoError(t, err)

	// When walking Pending -> Processing -> Completed
	require.NoError(t, s.Transition(ctx, doc.ID, StatusProcessing, ""))
	require.NoError(t, s.Transition(ctx, doc.ID, StatusCompleted, ""))

	// Then the final state is Completed with no failure reason
	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.Error)
}

func TestStatusStore_FailureRecordsReason(t *testing.T) {
	// Given a processing document
	s := newTestStatusStore(t)
	ctx := context.Background()
	doc, err := s.Create(ctx, "project-1", "empty.txt")
	require.NoError(t, err)
	require.NoError(t, s.Transition(ctx, doc.ID, StatusProcessing, ""))

	// When it fails
	require.NoError(t, s.Transition(ctx, doc.ID, StatusFailed, "document contains no extractable text"))

	// Then the reason is recorded
	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "document contains no extractable text", got.Error)
}

func TestStatusStore_RejectsInvalidTransitions(t *testing.T) {
	s := newTestStatusStore(t)
	ctx := context.Background()

	// Pending cannot jump straight to a terminal state
	doc, err := s.Create(ctx, "project-1", "a.txt")
	require.NoError(t, err)
	assert.Error(t, s.Transition(ctx, doc.ID, StatusCompleted, ""))
	assert.Error(t, s.Transition(ctx, doc.ID, StatusFailed, "boom"))

	// Terminal states never transition again
	require.NoError(t, s.Transition(ctx, doc.ID, StatusProcessing, ""))
	require.NoError(t, s.Transition(ctx, doc.ID, StatusCompleted, ""))
	assert.Error(t, s.Transition(ctx, doc.ID, StatusProcessing, ""))
	assert.Error(t, s.Transition(ctx, doc.ID, StatusPending, ""))
	assert.Error(t, s.Transition(ctx, doc.ID, StatusFailed, "late"))
}

func TestStatusStore_TransitionUnknownDocument(t *testing.T) {
	s := newTestStatusStore(t)

	err := s.Transition(context.Background(), "no-such-id", StatusProcessing, "")

	assert.ErrorContains(t, err, "not found")
}

func TestStatusStore_ListByProjectIsolation(t *testing.T) {
	// Given documents in two projects
	s := newTestStatusStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "project-1", "a.txt")
	require.NoError(t, err)
	_, err = s.Create(ctx, "project-1", "b.txt")
	require.NoError(t, err)
	_, err = s.Create(ctx, "project-2", "c.txt")
	require.NoError(t, err)

	// When listing one project
	docs, err := s.ListByProject(ctx, "project-1")

	// Then only that project's documents come back
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "project-1", d.ProjectID)
	}
}
