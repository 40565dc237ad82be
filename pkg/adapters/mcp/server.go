// Package mcp exposes the navigation engine as an MCP tool server with
// the three workflow operations: load_graph, goto_node, and todo.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/sopnav/sopnav/internal/logging"
	"github.com/sopnav/sopnav/pkg/domain"
	"github.com/sopnav/sopnav/pkg/mermaid"
	"github.com/sopnav/sopnav/pkg/observability"
	"github.com/sopnav/sopnav/pkg/ports"
	"github.com/sopnav/sopnav/pkg/session"
	"github.com/sopnav/sopnav/pkg/workflowdoc"
)

// GraphSummary is the structural digest returned by load_graph.
type GraphSummary struct {
	NodeCount        int      `json:"node_count"`
	DecisionNodes    []string `json:"decision_nodes"`
	TerminalNodes    []string `json:"terminal_nodes"`
	NodesWithPrompts []string `json:"nodes_with_prompts"`
}

// LoadGraphResult is the load_graph response: agent identity, graph
// digest, and the synthesized system prompt.
type LoadGraphResult struct {
	Agent                string                         `json:"agent"`
	Version              string                         `json:"version"`
	EntryNode            string                         `json:"entry_node"`
	Model                workflowdoc.ModelConfig        `json:"model"`
	MCPServers           []workflowdoc.MCPServerConfig  `json:"mcp_servers"`
	Graph                GraphSummary                   `json:"graph"`
	SystemPromptSections []string                       `json:"system_prompt_sections"`
	SystemPrompt         string                         `json:"system_prompt"`
}

// NodePayload carries the progressive instructions for the node just
// entered: the prompt (falling back to the mermaid label), tool hints,
// and few-shot examples.
type NodePayload struct {
	ID               string                 `json:"id"`
	NodeInstructions string                 `json:"node_instructions"`
	ToolHints        []string               `json:"tool_hints,omitempty"`
	Examples         []domain.PromptExample `json:"examples,omitempty"`
}

// EdgeOut is one outgoing transition from the current node.
type EdgeOut struct {
	To        string `json:"to"`
	Condition string `json:"condition"`
}

// GotoNodeResult is the goto_node response. On a rejected move Valid is
// false and CurrentNode/ValidNextNodes tell the caller how to recover.
type GotoNodeResult struct {
	Valid          bool              `json:"valid"`
	Error          string            `json:"error,omitempty"`
	CurrentNode    string            `json:"current_node,omitempty"`
	ValidNextNodes []string          `json:"valid_next_nodes,omitempty"`
	Node           *NodePayload      `json:"node,omitempty"`
	Edges          []EdgeOut         `json:"edges,omitempty"`
	PathTrace      string            `json:"path_trace,omitempty"`
	Todos          []domain.TodoItem `json:"todos,omitempty"`
	SystemReminder string            `json:"system_reminder,omitempty"`
}

// Server exposes the session store and document resolver over MCP.
type Server struct {
	store     *session.Store
	resolver  ports.DocumentResolver
	metrics   *observability.Metrics
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics enables per-tool call metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates an MCP server over the given store and resolver.
func NewServer(store *session.Store, resolver ports.DocumentResolver, version string, opts ...Option) *Server {
	s := &Server{
		store:     store,
		resolver:  resolver,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("sop-graph-navigation", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Mcp-Session-Id")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sessionID derives the session identity from the MCP connection, so one
// live conversation maps to one TraversalSession. Transports without a
// connection-scoped id get a fresh UUID per call.
func (s *Server) sessionID(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		if id := strings.TrimSpace(cs.SessionID()); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

func (s *Server) registerTools() {
	loadTool := mcp.NewTool("load_graph",
		mcp.WithDescription("Parse an agent SOP markdown file. Extracts the mermaid graph for the system prompt and stores node prompts for progressive delivery via goto_node."),
		mcp.WithString("sop_file", mcp.Required(), mcp.Description("Path or agent name of the SOP document to load")),
		mcp.WithOutputSchema[LoadGraphResult](),
	)
	s.mcpServer.AddTool(loadTool, mcp.NewStructuredToolHandler(s.handleLoadGraph))

	gotoTool := mcp.NewTool("goto_node",
		mcp.WithDescription("Move to a node in the SOP graph. Always call this before acting — full instructions, tools, and policy are delivered here, not from the mermaid graph. Returns prompt, tools, examples, and valid next edges. Validates the transition is legal from the current position."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Target node ID")),
		mcp.WithOutputSchema[GotoNodeResult](),
	)
	s.mcpServer.AddTool(gotoTool, mcp.NewStructuredToolHandler(s.handleGotoNode))

	todoTool := mcp.NewTool("todo",
		mcp.WithDescription("Create and manage a structured task list for the current session. Always resend all items, not just changes. Use notes for context, dependencies, or findings; use task_completion_node to bind a task to its expected terminal node."),
		mcp.WithArray("todos", mcp.Required(), mcp.Description("The updated todo list — always resend all items, not just changes")),
	)
	s.mcpServer.AddTool(todoTool, s.handleTodo)
}

func (s *Server) handleLoadGraph(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (LoadGraphResult, error) {
	sopFile, _ := args["sop_file"].(string)
	sid := s.sessionID(ctx)
	params := map[string]any{"sop_file": sopFile}

	doc, err := s.resolver.Resolve(ctx, sopFile)
	if err != nil {
		s.store.Record(ctx, sid, "load_graph", params, fmt.Sprintf("error: %v", err), nil)
		s.metrics.ObserveToolCall("load_graph", false)
		return LoadGraphResult{}, fmt.Errorf("SOP file not found: %s", sopFile)
	}

	g := mermaid.Parse(doc.Mermaid)
	if len(g.Nodes) == 0 {
		s.store.Record(ctx, sid, "load_graph", params, "error: no nodes in mermaid source", nil)
		s.metrics.ObserveToolCall("load_graph", false)
		return LoadGraphResult{}, fmt.Errorf("%w: no nodes found in %s", domain.ErrMalformedSource, sopFile)
	}
	if hint := doc.Front.EntryNode; hint != "" {
		g.OverrideEntry(hint)
	}

	agent := doc.Front.Agent
	if agent == "" {
		agent = "default"
	}
	version := doc.Front.Version
	if version == "" {
		version = "1.0"
	}

	err = s.store.Update(ctx, sid, func(sess *session.TraversalSession) error {
		sess.LoadGraph(agent, &domain.GraphEntry{
			Graph:   g,
			Source:  doc.Mermaid,
			Prompts: doc.Prompts,
		})
		return nil
	})
	if err != nil {
		s.metrics.ObserveToolCall("load_graph", false)
		return LoadGraphResult{}, err
	}

	known := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n.ID] = true
	}

	result := LoadGraphResult{
		Agent:      agent,
		Version:    version,
		EntryNode:  g.EntryNode,
		Model:      doc.Front.Model,
		MCPServers: doc.Front.MCPServers,
		Graph: GraphSummary{
			NodeCount:        g.ActionNodeCount(),
			DecisionNodes:    orEmpty(g.DecisionNodes),
			TerminalNodes:    orEmpty(g.TerminalNodes),
			NodesWithPrompts: orEmpty(doc.NodesWithPrompts(known)),
		},
		SystemPromptSections: doc.SectionTitles(),
		SystemPrompt:         doc.SystemPrompt(),
	}
	s.store.Record(ctx, sid, "load_graph", params, "agent="+agent, result)
	s.metrics.ObserveToolCall("load_graph", true)
	s.logger.Info("load_graph", "session_id", sid, "agent", agent, "nodes", len(g.Nodes))
	return result, nil
}

func (s *Server) handleGotoNode(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (GotoNodeResult, error) {
	nodeID, _ := args["node_id"].(string)
	sid := s.sessionID(ctx)
	params := map[string]any{"node_id": nodeID}

	var (
		move  session.MoveResult
		entry *domain.GraphEntry
		todos []domain.TodoItem
	)
	err := s.store.Update(ctx, sid, func(sess *session.TraversalSession) error {
		move = sess.Move(nodeID, s.store.Strict())
		entry, _ = sess.CurrentGraph()
		todos = sess.Todos()
		return nil
	})
	if err != nil {
		s.metrics.ObserveToolCall("goto_node", false)
		return GotoNodeResult{}, err
	}

	if !move.Valid {
		result := GotoNodeResult{
			Valid:          false,
			Error:          moveErrorMessage(move, nodeID),
			CurrentNode:    move.CurrentNode,
			ValidNextNodes: move.ValidNext,
		}
		s.store.Record(ctx, sid, "goto_node", params, fmt.Sprintf("invalid transition from %q", move.CurrentNode), result)
		s.metrics.ObserveToolCall("goto_node", false)
		s.logger.Info("goto_node rejected", "session_id", sid, "node_id", nodeID, "err", move.Err)
		return result, nil
	}

	result := GotoNodeResult{
		Valid:     true,
		Node:      nodePayload(move.Node, entry),
		Edges:     edgesOut(move.Edges),
		PathTrace: strings.Join(move.PathTrace, " -> "),
	}
	if move.AtTerminal {
		result.Todos = todos
		result.SystemReminder = fmt.Sprintf(
			"Reached completion node %s: Update todos, SHARE AN UPDATE WITH USER and proceed to next task.", nodeID)
	}
	s.store.Record(ctx, sid, "goto_node", params, fmt.Sprintf("path_len=%d", len(move.PathTrace)), result)
	s.metrics.ObserveToolCall("goto_node", true)
	s.logger.Info("goto_node", "session_id", sid, "node_id", nodeID, "path_len", len(move.PathTrace))
	return result, nil
}

func (s *Server) handleTodo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sid := s.sessionID(ctx)

	var input struct {
		Todos []domain.TodoItem `mapstructure:"todos"`
	}
	if err := mapstructure.Decode(request.GetArguments(), &input); err != nil {
		s.metrics.ObserveToolCall("todo", false)
		return mcp.NewToolResultError(fmt.Sprintf("invalid todos payload: %v", err)), nil
	}
	for _, item := range input.Todos {
		if err := item.Validate(); err != nil {
			s.metrics.ObserveToolCall("todo", false)
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	var summary domain.TodoSummary
	err := s.store.Update(ctx, sid, func(sess *session.TraversalSession) error {
		summary = sess.SetTodos(input.Todos)
		return nil
	})
	if err != nil {
		s.metrics.ObserveToolCall("todo", false)
		return nil, err
	}

	msg := fmt.Sprintf("Todos created successfully: %d pending, %d in progress, %d completed",
		summary.Pending, summary.InProgress, summary.Completed)

	brief := make([]map[string]any, len(input.Todos))
	for i, item := range input.Todos {
		desc := item.Desc
		if len(desc) > 80 {
			desc = desc[:80]
		}
		brief[i] = map[string]any{"desc": desc, "status": item.Status}
	}
	s.store.Record(ctx, sid, "todo", map[string]any{"todos": brief},
		fmt.Sprintf("pending=%d in_progress=%d completed=%d", summary.Pending, summary.InProgress, summary.Completed),
		msg)
	s.metrics.ObserveToolCall("todo", true)
	return mcp.NewToolResultText(msg), nil
}

// nodePayload builds the instruction block for a node: the authored
// prompt when one exists, otherwise the mermaid label.
func nodePayload(node *mermaid.Node, entry *domain.GraphEntry) *NodePayload {
	payload := &NodePayload{
		ID:               node.ID,
		NodeInstructions: node.Label,
	}
	if payload.NodeInstructions == "" {
		payload.NodeInstructions = node.ID
	}
	if entry == nil {
		return payload
	}
	if prompt, ok := entry.Prompts[node.ID]; ok {
		if p := strings.TrimSpace(prompt.Prompt); p != "" {
			payload.NodeInstructions = p
		}
		payload.ToolHints = prompt.Tools
		payload.Examples = prompt.Examples
	}
	return payload
}

func edgesOut(edges []mermaid.Edge) []EdgeOut {
	out := make([]EdgeOut, len(edges))
	for i, e := range edges {
		condition := e.Label
		if condition == "" {
			condition = "always"
		}
		out[i] = EdgeOut{To: e.Target, Condition: condition}
	}
	return out
}

func moveErrorMessage(move session.MoveResult, nodeID string) string {
	switch {
	case move.Err == domain.ErrGraphNotLoaded:
		return "Graph not loaded. Call load_graph first."
	case move.Err == domain.ErrUnknownNode:
		return fmt.Sprintf("Node not found: %s", nodeID)
	case move.CurrentNode == "":
		return fmt.Sprintf("Initial transition must be to the entry node, not %q", nodeID)
	default:
		return fmt.Sprintf("Cannot reach %s from %s", nodeID, move.CurrentNode)
	}
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
