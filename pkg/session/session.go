package session

import (
	"github.com/sopnav/sopnav/pkg/domain"
	"github.com/sopnav/sopnav/pkg/mermaid"
)

// TraversalSession is one workflow instance bound to one conversation.
// It holds the loaded graphs, the visited path of the current graph, and
// the todo list. Methods are not safe for concurrent use; the Store
// serializes access per session.
type TraversalSession struct {
	id    string
	state *domain.SessionState
}

// NewTraversalSession creates an empty session for the given identifier.
func NewTraversalSession(id string) *TraversalSession {
	return &TraversalSession{
		id:    id,
		state: domain.NewSessionState(),
	}
}

// Restore rebuilds a session from a persisted snapshot state.
func Restore(id string, state *domain.SessionState) *TraversalSession {
	if state == nil {
		state = domain.NewSessionState()
	}
	if state.Graphs == nil {
		state.Graphs = make(map[string]*domain.GraphEntry)
	}
	if state.Path == nil {
		state.Path = make(map[string][]string)
	}
	return &TraversalSession{id: id, state: state}
}

// ID returns the session identifier.
func (s *TraversalSession) ID() string { return s.id }

// State exposes the raw state for snapshotting.
func (s *TraversalSession) State() *domain.SessionState { return s.state }

// LoadGraph registers a parsed workflow under graphID, makes it the
// session's current graph, and clears any previous traversal of that id.
// Reloading an id overwrites the stored graph and loses its path history.
func (s *TraversalSession) LoadGraph(graphID string, entry *domain.GraphEntry) {
	s.state.Graphs[graphID] = entry
	s.state.Path[graphID] = nil
	s.state.CurrentGraphID = graphID
}

// CurrentGraph returns the graph navigation currently targets.
func (s *TraversalSession) CurrentGraph() (*domain.GraphEntry, bool) {
	entry, ok := s.state.Graphs[s.state.CurrentGraphID]
	return entry, ok && entry != nil && entry.Graph != nil
}

// Path returns a copy of the visited node sequence for the current graph.
func (s *TraversalSession) Path() []string {
	p := s.state.Path[s.state.CurrentGraphID]
	out := make([]string, len(p))
	copy(out, p)
	return out
}

// CurrentNode returns the last visited node of the current graph, or ""
// when no move has happened since the graph was loaded.
func (s *TraversalSession) CurrentNode() string {
	p := s.state.Path[s.state.CurrentGraphID]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Todos returns a copy of the session's todo list.
func (s *TraversalSession) Todos() []domain.TodoItem {
	out := make([]domain.TodoItem, len(s.state.Todos))
	copy(out, s.state.Todos)
	return out
}

// SetTodos replaces the todo list wholesale and returns status counts.
func (s *TraversalSession) SetTodos(items []domain.TodoItem) domain.TodoSummary {
	if items == nil {
		items = []domain.TodoItem{}
	}
	s.state.Todos = items
	return domain.SummarizeTodos(items)
}

// MoveResult is the outcome of a single traversal step. On success Node,
// Edges, and PathTrace describe the new position; on failure Err carries
// the classification and CurrentNode/ValidNext tell the caller how to
// self-correct.
type MoveResult struct {
	Valid       bool
	Node        *mermaid.Node
	Edges       []mermaid.Edge
	PathTrace   []string
	AtTerminal  bool
	Err         error
	CurrentNode string
	ValidNext   []string
}

// ValidNext enumerates the legal targets from the current position:
// the successors of the current node, or just the entry node when no
// move has happened yet. The entry node and (from a terminal) every
// node are also legal, but this list is the guidance surfaced on a
// rejected move.
func (s *TraversalSession) ValidNext() []string {
	entry, ok := s.CurrentGraph()
	if !ok {
		return nil
	}
	current := s.CurrentNode()
	if current == "" {
		return []string{entry.Graph.EntryNode}
	}
	return entry.Graph.SuccessorIDs(current)
}

// Move attempts to advance the traversal to nodeID. In strict mode the
// move must be the entry node, a self-transition, a direct successor, or
// a branch-out from a terminal node; in lenient mode any node present in
// the graph is accepted. Rejected moves mutate nothing.
func (s *TraversalSession) Move(nodeID string, strict bool) MoveResult {
	entry, ok := s.CurrentGraph()
	if !ok {
		return MoveResult{
			Valid: false,
			Err:   domain.ErrGraphNotLoaded,
		}
	}
	g := entry.Graph

	node := g.NodeByID(nodeID)
	if node == nil {
		return MoveResult{
			Valid:       false,
			Err:         domain.ErrUnknownNode,
			CurrentNode: s.CurrentNode(),
			ValidNext:   s.ValidNext(),
		}
	}

	if strict && !s.legalMove(g, nodeID) {
		return MoveResult{
			Valid:       false,
			Err:         domain.ErrInvalidTransition,
			CurrentNode: s.CurrentNode(),
			ValidNext:   s.ValidNext(),
		}
	}

	gid := s.state.CurrentGraphID
	switch {
	case nodeID == g.EntryNode:
		// Re-entering the workflow restarts the trace.
		s.state.Path[gid] = []string{nodeID}
	case nodeID == s.CurrentNode():
		// Self-transition is idempotent.
	default:
		s.state.Path[gid] = append(s.state.Path[gid], nodeID)
	}

	return MoveResult{
		Valid:      true,
		Node:       node,
		Edges:      g.Successors(nodeID),
		PathTrace:  s.Path(),
		AtTerminal: g.IsTerminal(nodeID),
	}
}

func (s *TraversalSession) legalMove(g *mermaid.Graph, nodeID string) bool {
	if nodeID == g.EntryNode {
		return true
	}
	current := s.CurrentNode()
	if current == "" {
		return false
	}
	if nodeID == current {
		return true
	}
	if g.IsTerminal(current) {
		return true
	}
	for _, id := range g.SuccessorIDs(current) {
		if id == nodeID {
			return true
		}
	}
	return false
}
