// Package http serves the inspection and editing API: session listings
// with their tool-call logs, agent document CRUD, health, and metrics.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sopnav/sopnav/internal/logging"
	"github.com/sopnav/sopnav/pkg/domain"
	"github.com/sopnav/sopnav/pkg/mermaid"
	"github.com/sopnav/sopnav/pkg/session"
	"github.com/sopnav/sopnav/pkg/workflowdoc"
)

// Server exposes the session store and agent documents over HTTP.
type Server struct {
	store    *session.Store
	resolver *workflowdoc.DirResolver
	logger   *slog.Logger
	registry *prometheus.Registry
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsRegistry mounts /metrics for the given registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// NewHandler builds the HTTP handler for the inspection API.
func NewHandler(store *session.Store, resolver *workflowdoc.DirResolver, opts ...Option) http.Handler {
	s := &Server{
		store:    store,
		resolver: resolver,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/connections", s.listConnections)
		r.Get("/connections/{sessionID}", s.getConnectionDetail)
		r.Delete("/connections/{sessionID}", s.deleteConnection)

		r.Get("/agents", s.listAgents)
		r.Get("/agents/{agentName}", s.getAgentContent)
		r.Post("/agents/{agentName}/save", s.saveAgentContent)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// listConnections handles GET /api/connections.
func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":     s.store.ListSummaries(),
		"total_events": s.store.EventCount(),
	})
}

// graphState is the per-graph view in a session detail response.
type graphState struct {
	MermaidSource string         `json:"mermaid_source"`
	Path          []string       `json:"path"`
	CurrentNode   string         `json:"current_node,omitempty"`
	EntryNode     string         `json:"entry_node"`
	Graph         *mermaid.Graph `json:"graph_json"`
}

// getConnectionDetail handles GET /api/connections/{sessionID}.
func (s *Server) getConnectionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	snap, err := s.store.Snapshot(sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		msg := err.Error()
		if errors.Is(err, domain.ErrSessionNotFound) {
			status = http.StatusNotFound
			msg = "Session not found"
		}
		writeJSON(w, status, map[string]any{
			"error":      msg,
			"session_id": sessionID,
		})
		return
	}

	states := make(map[string]graphState, len(snap.State.Graphs))
	for gid, entry := range snap.State.Graphs {
		if entry == nil || entry.Graph == nil {
			continue
		}
		path := snap.State.Path[gid]
		current := ""
		if len(path) > 0 {
			current = path[len(path)-1]
		}
		// Recompute layout hints so viewers can draw the graph directly.
		g := mermaid.Parse(entry.Source)
		mermaid.ComputeLayout(g, mermaid.DefaultLayoutDX, mermaid.DefaultLayoutDY)
		states[gid] = graphState{
			MermaidSource: entry.Source,
			Path:          path,
			CurrentNode:   current,
			EntryNode:     entry.Graph.EntryNode,
			Graph:         g,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  snap.SessionID,
		"created_ts":  snap.CreatedTS,
		"updated_ts":  snap.UpdatedTS,
		"events":      snap.Events,
		"graph_state": states,
		"todos":       snap.State.Todos,
	})
}

// deleteConnection handles DELETE /api/connections/{sessionID}.
func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "session_id required"})
		return
	}
	if err := s.store.Delete(r.Context(), sessionID); err != nil {
		s.logger.Warn("session delete failed", "session_id", sessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      fmt.Sprintf("delete failed: %v", err),
			"session_id": sessionID,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "session_id": sessionID})
}

// listAgents handles GET /api/agents.
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.resolver.ListAgents(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// getAgentContent handles GET /api/agents/{agentName}.
func (s *Server) getAgentContent(w http.ResponseWriter, r *http.Request) {
	agentName := chi.URLParam(r, "agentName")
	if !workflowdoc.SafeAgentName(agentName) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "Invalid agent name",
			"agent_name": agentName,
		})
		return
	}

	doc, err := s.resolver.Resolve(r.Context(), agentName)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":      "Agent not found",
			"agent_name": agentName,
		})
		return
	}

	g := mermaid.Parse(doc.Mermaid)
	mermaid.ComputeLayout(g, mermaid.DefaultLayoutDX, mermaid.DefaultLayoutDY)

	writeJSON(w, http.StatusOK, map[string]any{
		"agent_name":   agentName,
		"frontmatter":  doc.RawFrontmatter,
		"rest_md":      doc.Prose,
		"mermaid":      doc.Mermaid,
		"node_prompts": doc.Prompts,
		"graph_json":   g,
	})
}

// saveAgentRequest is the editing payload: either raw mermaid or a graph
// model to serialize back to mermaid.
type saveAgentRequest struct {
	Frontmatter string            `json:"frontmatter"`
	RestMD      string            `json:"rest_md"`
	Mermaid     string            `json:"mermaid"`
	Graph       *mermaid.Graph    `json:"graph_json"`
	NodePrompts map[string]string `json:"node_prompts"`
}

// saveAgentContent handles POST /api/agents/{agentName}/save.
func (s *Server) saveAgentContent(w http.ResponseWriter, r *http.Request) {
	agentName := chi.URLParam(r, "agentName")
	if !workflowdoc.SafeAgentName(agentName) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "Invalid agent name",
			"agent_name": agentName,
		})
		return
	}

	path, err := s.resolver.DocumentPath(agentName)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":      "Agent not found",
			"agent_name": agentName,
		})
		return
	}

	var body saveAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      fmt.Sprintf("Invalid JSON: %v", err),
			"agent_name": agentName,
		})
		return
	}

	mermaidSrc := body.Mermaid
	if body.Graph != nil {
		mermaidSrc = mermaid.Render(body.Graph)
	}

	content := workflowdoc.Compose(body.Frontmatter, body.RestMD, mermaidSrc, body.NodePrompts)
	if err := workflowdoc.WriteDocument(path, content); err != nil {
		s.logger.Error("agent save failed", "agent_name", agentName, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      fmt.Sprintf("Failed to write file: %v", err),
			"agent_name": agentName,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agent_name": agentName})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
