package ports

import (
	"context"
	"testing"
	"time"

	"github.com/sopnav/sopnav/pkg/domain"
	"github.com/sopnav/sopnav/pkg/mermaid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract verifies that a SnapshotStore implementation
// adheres to the interface contract. Every store adapter runs this suite.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-" + time.Now().Format("20060102150405.000")

	makeSnapshot := func(id string) *domain.SessionSnapshot {
		state := domain.NewSessionState()
		state.CurrentGraphID = "retail"
		state.Graphs["retail"] = &domain.GraphEntry{
			Graph:  mermaid.Parse("START --> A\nA --> B"),
			Source: "START --> A\nA --> B",
		}
		state.Path["retail"] = []string{"START", "A"}
		state.Todos = []domain.TodoItem{{Desc: "ship it", Status: domain.TodoInProgress}}
		now := time.Now().UTC().Truncate(time.Millisecond)
		return &domain.SessionSnapshot{
			SessionID: id,
			CreatedTS: now.Add(-time.Minute),
			UpdatedTS: now,
			Events: []domain.Event{
				{ID: "ev-1", Timestamp: now, Tool: "load_graph", SessionID: id, Params: map[string]any{"sop_file": "retail"}},
				{ID: "ev-2", Timestamp: now, Tool: "goto_node", SessionID: id, Params: map[string]any{"node_id": "A"}},
			},
			State: state,
		}
	}

	t.Run("SaveAndLoad", func(t *testing.T) {
		snap := makeSnapshot(sessionID)
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, sessionID, loaded.SessionID)
		require.Len(t, loaded.Events, 2)
		assert.Equal(t, "load_graph", loaded.Events[0].Tool, "event order survives persistence")
		assert.Equal(t, "goto_node", loaded.Events[1].Tool)
		assert.Equal(t, []string{"START", "A"}, loaded.State.Path["retail"])
		assert.Equal(t, "retail", loaded.State.CurrentGraphID)
		require.NotNil(t, loaded.State.Graphs["retail"].Graph)
		assert.Equal(t, "START", loaded.State.Graphs["retail"].Graph.EntryNode,
			"parsed graph is part of the snapshot, no re-parse needed")
	})

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		snap := makeSnapshot(sessionID)
		snap.State.Path["retail"] = []string{"START"}
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, []string{"START"}, loaded.State.Path["retail"])
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, makeSnapshot(sessionID)))
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		assert.NoError(t, store.Delete(ctx, sessionID), "deleting a missing session is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, makeSnapshot(id1)))
		require.NoError(t, store.Save(ctx, id2, makeSnapshot(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
