package workflowdoc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sopnav/sopnav/pkg/workflowdoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `---
agent: retail
version: "2.1"
entry_node: START
model:
  provider: openai
  name: gpt-4o
  temperature: 0.2
mcp_servers:
  - name: toolkit
    url: http://localhost:9000/mcp
---

## Role

You are a retail support agent.

## Global Rules

Always confirm before mutating orders.

## SOP Flowchart

` + "```mermaid" + `
START([Begin]) --> A["Authenticate"]
A --> B{Known customer?}
B -->|yes| DONE(["Complete"])
` + "```" + `

## Node Prompts

### A

prompt: |
  Verify the customer identity before anything else.
tools:
  - lookup_customer
examples:
  - user: "hi"
    agent: "Can I get your order number?"

### B

Decide based on the lookup result.
`

func TestParse_Frontmatter(t *testing.T) {
	doc := workflowdoc.Parse(sampleDoc)

	assert.Equal(t, "retail", doc.Front.Agent)
	assert.Equal(t, "2.1", doc.Front.Version)
	assert.Equal(t, "START", doc.Front.EntryNode)
	assert.Equal(t, "openai", doc.Front.Model.Provider)
	require.NotNil(t, doc.Front.Model.Temperature)
	assert.InDelta(t, 0.2, *doc.Front.Model.Temperature, 1e-9)
	require.Len(t, doc.Front.MCPServers, 1)
	assert.Equal(t, "toolkit", doc.Front.MCPServers[0].Name)
}

func TestParse_Sections(t *testing.T) {
	doc := workflowdoc.Parse(sampleDoc)

	assert.Contains(t, doc.Prose, "## Role")
	assert.Contains(t, doc.Prose, "## Global Rules")
	assert.NotContains(t, doc.Prose, "SOP Flowchart")
	assert.Contains(t, doc.Mermaid, `START([Begin])`)
	assert.Equal(t, []string{"Role", "Global Rules"}, doc.SectionTitles())
}

func TestParse_NodePrompts(t *testing.T) {
	doc := workflowdoc.Parse(sampleDoc)

	a, ok := doc.PromptFor("A")
	require.True(t, ok)
	assert.Contains(t, a.Prompt, "Verify the customer identity")
	assert.Equal(t, []string{"lookup_customer"}, a.Tools)
	require.Len(t, a.Examples, 1)
	assert.Equal(t, "hi", a.Examples[0].User)

	// Plain-text sections become the prompt verbatim.
	b, ok := doc.PromptFor("B")
	require.True(t, ok)
	assert.Equal(t, "Decide based on the lookup result.", b.Prompt)

	_, ok = doc.PromptFor("MISSING")
	assert.False(t, ok)
}

func TestParse_MissingPieces(t *testing.T) {
	doc := workflowdoc.Parse("just some prose, no sections at all")

	assert.Equal(t, "just some prose, no sections at all", doc.Prose)
	assert.Empty(t, doc.Mermaid)
	assert.Empty(t, doc.Prompts)
	assert.Equal(t, workflowdoc.Frontmatter{}, doc.Front)
}

func TestSystemPrompt(t *testing.T) {
	doc := workflowdoc.Parse(sampleDoc)
	prompt := doc.SystemPrompt()

	assert.Contains(t, prompt, "## Role")
	assert.Contains(t, prompt, "```mermaid")
	assert.Contains(t, prompt, `START([Begin])`)
	assert.NotContains(t, prompt, "Node Prompts", "node prompts are delivered progressively, not in the system prompt")
}

func TestCompose_RoundTrip(t *testing.T) {
	doc := workflowdoc.Parse(sampleDoc)
	composed := workflowdoc.Compose(doc.RawFrontmatter, doc.Prose, doc.Mermaid, doc.RawPrompts)
	re := workflowdoc.Parse(composed)

	assert.Equal(t, doc.Front, re.Front)
	assert.Equal(t, doc.Mermaid, re.Mermaid)
	assert.Equal(t, doc.Prose, re.Prose)
	assert.Equal(t, doc.Prompts, re.Prompts)
}

func TestNodesWithPrompts(t *testing.T) {
	doc := workflowdoc.Parse(sampleDoc)
	known := map[string]bool{"A": true, "START": true}

	assert.Equal(t, []string{"A"}, doc.NodesWithPrompts(known), "prompts for unknown nodes are skipped")
}

func TestDirResolver(t *testing.T) {
	root := t.TempDir()
	agentDir := filepath.Join(root, "retail")
	require.NoError(t, os.MkdirAll(agentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, workflowdoc.DocumentFileName), []byte(sampleDoc), 0o644))

	r := workflowdoc.NewDirResolver(root)
	ctx := context.Background()

	t.Run("ByAgentName", func(t *testing.T) {
		doc, err := r.Resolve(ctx, "retail")
		require.NoError(t, err)
		assert.Equal(t, "retail", doc.Front.Agent)
	})

	t.Run("ByAbsolutePath", func(t *testing.T) {
		doc, err := r.Resolve(ctx, filepath.Join(agentDir, workflowdoc.DocumentFileName))
		require.NoError(t, err)
		assert.Equal(t, "retail", doc.Front.Agent)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := r.Resolve(ctx, "nope")
		assert.Error(t, err)
	})

	t.Run("TraversalRejected", func(t *testing.T) {
		_, err := r.Resolve(ctx, "../outside")
		assert.Error(t, err)
	})

	t.Run("ListAgents", func(t *testing.T) {
		agents, err := r.ListAgents(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"retail"}, agents)
	})
}

func TestSafeAgentName(t *testing.T) {
	assert.True(t, workflowdoc.SafeAgentName("retail"))
	assert.True(t, workflowdoc.SafeAgentName("retail_v2-b"))
	assert.False(t, workflowdoc.SafeAgentName(""))
	assert.False(t, workflowdoc.SafeAgentName(".hidden"))
	assert.False(t, workflowdoc.SafeAgentName("a/b"))
	assert.False(t, workflowdoc.SafeAgentName(`a\b`))
	assert.False(t, workflowdoc.SafeAgentName("spaced name"))
}
