package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	httpadapter "github.com/sopnav/sopnav/pkg/adapters/http"
	"github.com/sopnav/sopnav/pkg/domain"
	"github.com/sopnav/sopnav/pkg/mermaid"
	"github.com/sopnav/sopnav/pkg/observability"
	"github.com/sopnav/sopnav/pkg/session"
	"github.com/sopnav/sopnav/pkg/workflowdoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentDoc = `---
agent: retail
version: "1.0"
---

## Role

Retail agent.

## SOP Flowchart

` + "```mermaid" + `
flowchart TD
    START(["Begin"]) --> A["Step A"]
    A --> DONE(["Complete"])
` + "```" + `

## Node Prompts

### A

Do step A carefully.
`

type fixture struct {
	handler http.Handler
	store   *session.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "retail")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, workflowdoc.DocumentFileName), []byte(agentDoc), 0o644))

	store := session.NewStore(session.WithStrictMode(true))
	reg := prometheus.NewRegistry()
	observability.NewMetrics(reg, store.SessionCount, store.DroppedEvents)

	handler := httpadapter.NewHandler(store, workflowdoc.NewDirResolver(root),
		httpadapter.WithMetricsRegistry(reg))
	return &fixture{handler: handler, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func seedSession(t *testing.T, store *session.Store, id string) {
	t.Helper()
	src := "flowchart TD\n    START([\"Begin\"]) --> A[\"Step A\"]\n"
	require.NoError(t, store.Update(context.Background(), id, func(sess *session.TraversalSession) error {
		sess.LoadGraph("retail", &domain.GraphEntry{Graph: mermaid.Parse(src), Source: src})
		sess.Move("START", true)
		return nil
	}))
	store.Record(context.Background(), id, "load_graph", map[string]any{"sop_file": "retail"}, "agent=retail", nil)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sopnav_live_sessions")
}

func TestListConnections(t *testing.T) {
	f := newFixture(t)
	seedSession(t, f.store, "conv-1")

	w := f.do(t, "GET", "/api/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decode(t, w)
	assert.Equal(t, float64(1), out["total_events"])
	sessions := out["sessions"].([]any)
	require.Len(t, sessions, 1)
	first := sessions[0].(map[string]any)
	assert.Equal(t, "conv-1", first["session_id"])
	assert.Equal(t, "START", first["current_node"])
}

func TestGetConnectionDetail(t *testing.T) {
	f := newFixture(t)
	seedSession(t, f.store, "conv-1")

	w := f.do(t, "GET", "/api/connections/conv-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decode(t, w)
	assert.Equal(t, "conv-1", out["session_id"])
	events := out["events"].([]any)
	require.Len(t, events, 1)

	states := out["graph_state"].(map[string]any)
	retail := states["retail"].(map[string]any)
	assert.Equal(t, "START", retail["current_node"])
	assert.Equal(t, []any{"START"}, retail["path"])
	graph := retail["graph_json"].(map[string]any)
	assert.NotEmpty(t, graph["nodes"])
}

func TestGetConnectionDetail_NotFound(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/api/connections/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteConnection(t *testing.T) {
	f := newFixture(t)
	seedSession(t, f.store, "conv-1")

	w := f.do(t, "DELETE", "/api/connections/conv-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["deleted"])
	assert.Empty(t, f.store.List())
}

func TestListAgents(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/api/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"retail"}, decode(t, w)["agents"])
}

func TestGetAgentContent(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/api/agents/retail", nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decode(t, w)
	assert.Equal(t, "retail", out["agent_name"])
	assert.Contains(t, out["mermaid"], "START")
	assert.Contains(t, out["rest_md"], "## Role")

	prompts := out["node_prompts"].(map[string]any)
	require.Contains(t, prompts, "A")

	graph := out["graph_json"].(map[string]any)
	nodes := graph["nodes"].([]any)
	assert.Len(t, nodes, 3)
}

func TestGetAgentContent_BadName(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/api/agents/.hidden", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveAgentContent_RoundTrip(t *testing.T) {
	f := newFixture(t)

	// Fetch, then save back with an extra node added via graph_json.
	w := f.do(t, "GET", "/api/agents/retail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)

	g := mermaid.Parse(got["mermaid"].(string))
	g.Nodes = append(g.Nodes, mermaid.Node{ID: "B", Label: "Step B", Shape: mermaid.ShapeRectangle})
	g.Edges = append(g.Edges, mermaid.Edge{Source: "A", Target: "B"})

	payload, err := json.Marshal(map[string]any{
		"frontmatter":  got["frontmatter"],
		"rest_md":      got["rest_md"],
		"graph_json":   g,
		"node_prompts": map[string]string{"A": "Do step A carefully."},
	})
	require.NoError(t, err)

	w = f.do(t, "POST", "/api/agents/retail/save", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])

	// The saved document parses back with the new node present.
	w = f.do(t, "GET", "/api/agents/retail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	saved := decode(t, w)
	assert.Contains(t, saved["mermaid"], `B["Step B"]`)
	assert.Contains(t, saved["rest_md"], "## Role")
}

func TestSaveAgentContent_UnknownAgent(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/agents/ghost/save", []byte(`{}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
