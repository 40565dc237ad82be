package session_test

import (
	"testing"

	"github.com/sopnav/sopnav/pkg/domain"
	"github.com/sopnav/sopnav/pkg/mermaid"
	"github.com/sopnav/sopnav/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retailFlow = `flowchart TD
    START(["Begin"]) --> A["Step A"]
    A --> B{Decision}
    B -->|yes| C(["Done"])
    B -->|no| A
`

func loadRetail(t *testing.T) *session.TraversalSession {
	t.Helper()
	g := mermaid.Parse(retailFlow)
	require.Equal(t, "START", g.EntryNode)

	sess := session.NewTraversalSession("s1")
	sess.LoadGraph("retail", &domain.GraphEntry{Graph: g, Source: retailFlow})
	return sess
}

func TestMove_EntryIsAlwaysLegal(t *testing.T) {
	sess := loadRetail(t)

	res := sess.Move("START", true)
	require.True(t, res.Valid)
	assert.Equal(t, []string{"START"}, res.PathTrace)
	assert.Equal(t, "START", res.Node.ID)
}

func TestMove_FirstMoveMustBeEntryInStrictMode(t *testing.T) {
	sess := loadRetail(t)

	res := sess.Move("C", true)
	require.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, domain.ErrInvalidTransition)
	assert.Equal(t, "", res.CurrentNode)
	assert.Equal(t, []string{"START"}, res.ValidNext)
	assert.Empty(t, sess.Path(), "rejected moves mutate nothing")
}

func TestMove_SuccessorAdvances(t *testing.T) {
	sess := loadRetail(t)

	require.True(t, sess.Move("START", true).Valid)
	res := sess.Move("A", true)
	require.True(t, res.Valid)
	assert.Equal(t, []string{"START", "A"}, res.PathTrace)
	assert.ElementsMatch(t, []string{"B"}, edgeTargets(res.Edges))
}

func TestMove_SelfTransitionIsIdempotent(t *testing.T) {
	sess := loadRetail(t)
	require.True(t, sess.Move("START", true).Valid)
	require.True(t, sess.Move("A", true).Valid)

	res := sess.Move("A", true)
	require.True(t, res.Valid)
	assert.Equal(t, []string{"START", "A"}, res.PathTrace, "no duplicate append")
}

func TestMove_EntryReentryResetsTrace(t *testing.T) {
	sess := loadRetail(t)
	for _, id := range []string{"START", "A", "B", "C"} {
		require.True(t, sess.Move(id, true).Valid, "move to %s", id)
	}

	res := sess.Move("START", true)
	require.True(t, res.Valid)
	assert.Equal(t, []string{"START"}, res.PathTrace)
	assert.Equal(t, []string{"START"}, sess.Path())
}

func TestMove_RejectedTransitionKeepsState(t *testing.T) {
	sess := loadRetail(t)
	require.True(t, sess.Move("START", true).Valid)

	res := sess.Move("C", true)
	require.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, domain.ErrInvalidTransition)
	assert.Equal(t, "START", res.CurrentNode)
	assert.Equal(t, []string{"A"}, res.ValidNext)
	assert.Equal(t, []string{"START"}, sess.Path())
}

func TestMove_UnknownNodeAlwaysRejected(t *testing.T) {
	for _, strict := range []bool{true, false} {
		sess := loadRetail(t)
		require.True(t, sess.Move("START", strict).Valid)

		res := sess.Move("NOPE", strict)
		require.False(t, res.Valid)
		assert.ErrorIs(t, res.Err, domain.ErrUnknownNode)
		assert.Equal(t, []string{"START"}, sess.Path())
	}
}

func TestMove_TerminalBranchOut(t *testing.T) {
	sess := loadRetail(t)
	for _, id := range []string{"START", "A", "B", "C"} {
		require.True(t, sess.Move(id, true).Valid)
	}

	// C is a stadium terminal, so any node is reachable from it.
	res := sess.Move("B", true)
	require.True(t, res.Valid)
	assert.Equal(t, []string{"START", "A", "B", "C", "B"}, res.PathTrace)
}

func TestMove_LenientAcceptsAnyKnownNode(t *testing.T) {
	sess := loadRetail(t)

	res := sess.Move("C", false)
	require.True(t, res.Valid)
	assert.Equal(t, []string{"C"}, res.PathTrace)
}

func TestMove_StrictContainment(t *testing.T) {
	sess := loadRetail(t)
	g := mermaid.Parse(retailFlow)

	attempts := []string{"START", "C", "A", "A", "B", "no_such", "A", "C", "START", "A"}
	for _, id := range attempts {
		sess.Move(id, true)
	}

	path := sess.Path()
	require.NotEmpty(t, path)
	for i := 0; i+1 < len(path); i++ {
		from, to := path[i], path[i+1]
		if from == to || g.IsTerminal(from) {
			continue
		}
		assert.Contains(t, g.SuccessorIDs(from), to, "pair (%s,%s)", from, to)
	}
}

func TestMove_NoGraphLoaded(t *testing.T) {
	sess := session.NewTraversalSession("s1")
	res := sess.Move("A", true)
	require.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, domain.ErrGraphNotLoaded)
}

func TestLoadGraph_ReloadClearsPath(t *testing.T) {
	sess := loadRetail(t)
	require.True(t, sess.Move("START", true).Valid)
	require.True(t, sess.Move("A", true).Valid)

	sess.LoadGraph("retail", &domain.GraphEntry{Graph: mermaid.Parse(retailFlow), Source: retailFlow})
	assert.Empty(t, sess.Path())
	assert.Equal(t, "", sess.CurrentNode())
}

func TestLoadGraph_MultipleGraphsKeepSeparatePaths(t *testing.T) {
	sess := loadRetail(t)
	require.True(t, sess.Move("START", true).Valid)
	require.True(t, sess.Move("A", true).Valid)

	other := "flowchart TD\n    X --> Y\n"
	sess.LoadGraph("other", &domain.GraphEntry{Graph: mermaid.Parse(other), Source: other})
	require.True(t, sess.Move("X", true).Valid)
	assert.Equal(t, []string{"X"}, sess.Path())

	// Switching back restores the first graph's traversal.
	sess.State().CurrentGraphID = "retail"
	assert.Equal(t, []string{"START", "A"}, sess.Path())
}

func TestSetTodos(t *testing.T) {
	sess := loadRetail(t)
	summary := sess.SetTodos([]domain.TodoItem{
		{Desc: "verify id", Status: domain.TodoCompleted},
		{Desc: "check order", Status: domain.TodoInProgress},
		{Desc: "refund", Status: domain.TodoPending},
		{Desc: "close ticket", Status: domain.TodoPending},
	})

	assert.Equal(t, 2, summary.Pending)
	assert.Equal(t, 1, summary.InProgress)
	assert.Equal(t, 1, summary.Completed)
	assert.Len(t, sess.Todos(), 4)
}

func edgeTargets(edges []mermaid.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Target
	}
	return out
}
