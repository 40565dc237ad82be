package mermaid

// Shape is the bracket syntax a node was declared with.
type Shape string

const (
	ShapeRectangle     Shape = "rectangle"
	ShapeStadium       Shape = "stadium"
	ShapeRhombus       Shape = "rhombus"
	ShapeParallelogram Shape = "parallelogram"
)

// NodeType is the semantic classification derived from Shape.
// It drives UI highlighting and traversal rules (terminal branch-out).
type NodeType string

const (
	NodeTypeTerminal NodeType = "terminal"
	NodeTypeNormal   NodeType = "normal"
	NodeTypeDecision NodeType = "decision"
)

// Classify maps a shape to its node type. Unknown shapes are normal.
func Classify(s Shape) NodeType {
	switch s {
	case ShapeStadium:
		return NodeTypeTerminal
	case ShapeRhombus:
		return NodeTypeDecision
	default:
		return NodeTypeNormal
	}
}

// Node is a single flowchart node. X/Y are layout hints recomputed by
// ComputeLayout; they carry no semantic weight and are never authoritative.
type Node struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Shape Shape    `json:"shape"`
	Type  NodeType `json:"node_type"`
	X     int      `json:"x"`
	Y     int      `json:"y"`
}

// Edge is a directed connection between two nodes. Parallel edges between
// the same pair with different labels are distinct (e.g. decision branches).
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// Graph is the parsed model of one flowchart.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// EntryNode is the inferred traversal start. When multiple zero-indegree
	// candidates exist and none is named START, the choice is the first
	// candidate in declaration order; callers can override via an entry hint.
	EntryNode     string   `json:"entry_node"`
	DecisionNodes []string `json:"decision_nodes"`
	TerminalNodes []string `json:"terminal_nodes"`
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// HasNode reports whether the id is part of the graph.
func (g *Graph) HasNode(id string) bool {
	return g.NodeByID(id) != nil
}

// Successors returns the outgoing edges of a node in declaration order.
func (g *Graph) Successors(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// SuccessorIDs returns the target ids of a node's outgoing edges.
func (g *Graph) SuccessorIDs(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e.Target)
		}
	}
	return out
}

// IsTerminal reports whether the node is a workflow completion point.
func (g *Graph) IsTerminal(id string) bool {
	for _, t := range g.TerminalNodes {
		if t == id {
			return true
		}
	}
	return false
}

// OverrideEntry re-points the inferred entry node, e.g. from a document
// frontmatter hint, and recomputes the terminal set so the entry stays
// excluded from it. Unknown ids are ignored.
func (g *Graph) OverrideEntry(id string) bool {
	if !g.HasNode(id) {
		return false
	}
	g.EntryNode = id
	terminals := g.TerminalNodes[:0]
	for _, n := range g.Nodes {
		if n.Shape == ShapeStadium && n.ID != id {
			terminals = append(terminals, n.ID)
		}
	}
	g.TerminalNodes = terminals
	return true
}

// NodeIDs returns all node ids in declaration order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// ActionNodeCount counts the nodes an agent can act on, i.e. everything
// except parallelogram (input/output annotation) nodes.
func (g *Graph) ActionNodeCount() int {
	count := 0
	for _, n := range g.Nodes {
		if n.Shape != ShapeParallelogram {
			count++
		}
	}
	return count
}
