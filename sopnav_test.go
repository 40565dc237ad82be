package sopnav_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sopnav/sopnav"
	"github.com/sopnav/sopnav/pkg/domain"
	"github.com/sopnav/sopnav/pkg/mermaid"
	"github.com/sopnav/sopnav/pkg/session"
	"github.com/sopnav/sopnav/pkg/workflowdoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const facadeDoc = `---
agent: retail
---

## Role

Retail agent.

## SOP Flowchart

` + "```mermaid" + `
flowchart TD
    START(["Begin"]) --> A["Step A"]
` + "```" + `
`

func writeAgent(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, workflowdoc.DocumentFileName), []byte(facadeDoc), 0o644))
}

func TestNew_RequiresAgentsDirOrResolver(t *testing.T) {
	_, err := sopnav.New("")
	assert.Error(t, err)
}

func TestEngine_Wiring(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "retail")
	sessions := filepath.Join(t.TempDir(), "sessions")

	eng, err := sopnav.New(root,
		sopnav.WithStrictMode(true),
		sopnav.WithSessionsDir(sessions),
	)
	require.NoError(t, err)
	require.NoError(t, eng.LoadPersisted(context.Background()))

	assert.True(t, eng.Store().Strict())

	doc, err := eng.Resolver().Resolve(context.Background(), "retail")
	require.NoError(t, err)
	assert.Equal(t, "retail", doc.Front.Agent)

	handler, err := eng.HTTPHandler()
	require.NoError(t, err)
	assert.NotNil(t, handler)
	assert.NotNil(t, eng.MCPServer())
}

func TestEngine_PersistenceSurvivesRestart(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "retail")
	sessions := filepath.Join(t.TempDir(), "sessions")
	ctx := context.Background()

	eng, err := sopnav.New(root, sopnav.WithStrictMode(true), sopnav.WithSessionsDir(sessions))
	require.NoError(t, err)

	src := "flowchart TD\n    START([\"Begin\"]) --> A[\"Step A\"]\n"
	require.NoError(t, eng.Store().Update(ctx, "conv-1", func(sess *session.TraversalSession) error {
		sess.LoadGraph("retail", &domain.GraphEntry{Graph: mermaid.Parse(src), Source: src})
		sess.Move("START", true)
		return nil
	}))

	reborn, err := sopnav.New(root, sopnav.WithStrictMode(true), sopnav.WithSessionsDir(sessions))
	require.NoError(t, err)
	require.NoError(t, reborn.LoadPersisted(ctx))

	require.NoError(t, reborn.Store().View("conv-1", func(sess *session.TraversalSession) error {
		assert.Equal(t, []string{"START"}, sess.Path())
		return nil
	}))
}
