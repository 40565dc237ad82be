package mermaid

import (
	"fmt"
	"strings"
)

// Render serializes a Graph back to flowchart TD source. The output is not
// byte-identical to arbitrary hand-written input, but it is round-trip
// stable: parsing the result reproduces the same node ids, the same
// id-to-shape mapping, and the same (source, target, label) edge multiset.
//
// Edges are emitted with full node segments (not bare ids) so shapes
// survive re-parsing even for nodes that only appear inside chains.
func Render(g *Graph) string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	for _, n := range g.Nodes {
		if n.ID == "" {
			continue
		}
		sb.WriteString("    ")
		sb.WriteString(nodeSegment(g, n.ID))
		sb.WriteString("\n")
	}

	for _, e := range g.Edges {
		src := e.Source
		if g.HasNode(src) {
			src = nodeSegment(g, src)
		}
		tgt := e.Target
		if g.HasNode(tgt) {
			tgt = nodeSegment(g, tgt)
		}
		if label := strings.TrimSpace(e.Label); label != "" {
			sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", src, escapeLabel(label), tgt))
		} else {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", src, tgt))
		}
	}

	return sb.String()
}

// nodeSegment formats one node as id plus shape brackets so a re-parse
// recovers both shape and label.
func nodeSegment(g *Graph, id string) string {
	n := g.NodeByID(id)
	label := id
	shape := ShapeRectangle
	if n != nil {
		shape = n.Shape
		if n.Label != "" {
			label = n.Label
		}
	}
	escaped := escapeLabel(label)

	switch shape {
	case ShapeStadium:
		return fmt.Sprintf(`%s(["%s"])`, id, escaped)
	case ShapeRhombus:
		return fmt.Sprintf("%s{%s}", id, escaped)
	case ShapeParallelogram:
		return fmt.Sprintf(`%s[/"%s"/]`, id, escaped)
	default:
		return fmt.Sprintf(`%s["%s"]`, id, escaped)
	}
}

// escapeLabel sanitizes text for embedding inside bracket syntax: quotes
// become the mermaid #quot; entity and newlines collapse to spaces.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return " "
	}
	return s
}
