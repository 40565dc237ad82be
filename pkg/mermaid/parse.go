package mermaid

import (
	"regexp"
	"strings"
)

var (
	arrowSplitRe = regexp.MustCompile(`\s*(?:-->|-\.->)\s*`)
	nodeIDRe     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)

	// Pure node declaration: one id followed by one bracketed shape and nothing else.
	nodeDeclRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\s*(?:\(\[.*\]\)|\[/.*/\]|\{.*\}|\[.*\])$`)

	stadiumLabelRe      = regexp.MustCompile(`\(\s*\[(.*?)\]\s*\)`)
	rectQuotedLabelRe   = regexp.MustCompile(`\["([^"]*)"\]`)
	rectBacktickLabelRe = regexp.MustCompile("\\[`([^`]*)`\\]")
	rhombusLabelRe      = regexp.MustCompile(`\{([^{}]*)\}`)
	parallelLabelRe     = regexp.MustCompile(`\[/(.*?)/\]`)
	rectBareLabelRe     = regexp.MustCompile("\\[([^\\]\\[`\"]+)\\]")
)

// parser accumulates node and edge facts across lines. Node order is
// declaration order; the first segment carrying explicit shape syntax wins
// for a node's shape and label, and bare references never downgrade it.
type parser struct {
	order    []string
	shapes   map[string]Shape
	labels   map[string]string
	explicit map[string]bool
	edges    []Edge
}

// Parse converts flowchart TD source into a Graph. It is a total function:
// malformed constructs are skipped, never rejected, and the result is the
// best-effort extraction of nodes, shapes, labels and edges.
func Parse(source string) *Graph {
	p := &parser{
		shapes:   make(map[string]Shape),
		labels:   make(map[string]string),
		explicit: make(map[string]bool),
	}

	for _, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		if strings.Contains(line, "-->") || strings.Contains(line, "-.->") {
			p.parseChain(line)
			continue
		}
		// Standalone declarations keep isolated nodes (and their shapes)
		// alive through a render/parse cycle.
		if nodeDeclRe.MatchString(line) {
			p.parseSegment(line)
		}
	}

	return p.build()
}

// parseChain splits an arrow line into segments and links consecutive
// segments: "A --> B --> C" yields (A,B) and (B,C). A segment's leading
// |label| belongs to the edge entering it.
func (p *parser) parseChain(line string) {
	parts := arrowSplitRe.Split(line, -1)
	if len(parts) < 2 {
		return
	}
	prev := ""
	for _, part := range parts {
		edgeLabel, id, ok := p.parseSegment(part)
		if !ok {
			continue
		}
		if prev != "" {
			p.edges = append(p.edges, Edge{Source: prev, Target: id, Label: edgeLabel})
		}
		prev = id
	}
}

// parseSegment extracts the optional edge label, the node id, and any shape
// or label syntax from one segment. Returns ok=false when no id is found.
func (p *parser) parseSegment(seg string) (edgeLabel, id string, ok bool) {
	seg = strings.TrimSpace(seg)
	if strings.HasPrefix(seg, "|") {
		if end := strings.Index(seg[1:], "|"); end >= 0 {
			edgeLabel = unescapeLabel(strings.TrimSpace(seg[1 : end+1]))
			seg = strings.TrimSpace(seg[end+2:])
		}
	}

	id = nodeIDRe.FindString(seg)
	if id == "" {
		return "", "", false
	}
	p.record(id, seg)
	return edgeLabel, id, true
}

// record registers a node mention. Explicit shape syntax wins once; later
// mentions refine nothing and a bare reference only defaults the shape.
func (p *parser) record(id, seg string) {
	if _, seen := p.shapes[id]; !seen {
		p.order = append(p.order, id)
	}

	shape, hasSyntax := detectShape(seg)
	if hasSyntax && !p.explicit[id] {
		p.explicit[id] = true
		p.shapes[id] = shape
		if label := extractLabel(seg); label != "" {
			p.labels[id] = label
		} else {
			p.labels[id] = id
		}
		return
	}
	if _, seen := p.shapes[id]; !seen {
		p.shapes[id] = ShapeRectangle
	}
}

// detectShape inspects a segment for bracket syntax. Order matters:
// stadium "([" and parallelogram "[/" both contain "[", so they are
// checked before the plain rectangle form.
func detectShape(seg string) (Shape, bool) {
	switch {
	case strings.Contains(seg, "([") || strings.Contains(seg, "])"):
		return ShapeStadium, true
	case strings.Contains(seg, "[/") || strings.Contains(seg, "/]"):
		return ShapeParallelogram, true
	case strings.Contains(seg, "{") && strings.Contains(seg, "}"):
		return ShapeRhombus, true
	case strings.Contains(seg, "[") && strings.Contains(seg, "]"):
		return ShapeRectangle, true
	}
	return ShapeRectangle, false
}

// extractLabel pulls the display text out of the bracket syntax and strips
// surrounding quotes. The bracket forms are tried in a fixed order, not
// keyed off the detected shape: a rectangle label that happens to contain
// braces would otherwise be clipped to the brace contents. The rhombus
// form goes last for the same reason. Empty labels fall back to the node
// id at build time.
func extractLabel(seg string) string {
	m := stadiumLabelRe.FindStringSubmatch(seg)
	if m == nil {
		m = parallelLabelRe.FindStringSubmatch(seg)
	}
	if m == nil {
		m = rectQuotedLabelRe.FindStringSubmatch(seg)
	}
	if m == nil {
		m = rectBacktickLabelRe.FindStringSubmatch(seg)
	}
	if m == nil {
		m = rectBareLabelRe.FindStringSubmatch(seg)
	}
	if m == nil {
		m = rhombusLabelRe.FindStringSubmatch(seg)
	}
	if m == nil {
		return ""
	}
	label := strings.TrimSpace(m[1])
	label = strings.Trim(label, `"'`)
	return unescapeLabel(strings.TrimSpace(label))
}

// build finalizes the graph: entry inference, classification, derived sets.
func (p *parser) build() *Graph {
	g := &Graph{}

	inDegree := make(map[string]int, len(p.order))
	for _, id := range p.order {
		inDegree[id] = 0
	}
	for _, e := range p.edges {
		inDegree[e.Target]++
	}

	var zeroIn []string
	hasStart := false
	for _, id := range p.order {
		if inDegree[id] == 0 {
			zeroIn = append(zeroIn, id)
		}
		if id == "START" {
			hasStart = true
		}
	}

	// A unique source wins; otherwise a literal START; otherwise the first
	// candidate in declaration order. The last case is a genuine ambiguity
	// of the notation, not something we paper over.
	switch {
	case len(zeroIn) == 1:
		g.EntryNode = zeroIn[0]
	case hasStart:
		g.EntryNode = "START"
	case len(zeroIn) > 0:
		g.EntryNode = zeroIn[0]
	}

	for _, id := range p.order {
		shape := p.shapes[id]
		label := p.labels[id]
		if label == "" {
			label = id
		}
		g.Nodes = append(g.Nodes, Node{
			ID:    id,
			Label: label,
			Shape: shape,
			Type:  Classify(shape),
		})
		switch shape {
		case ShapeRhombus:
			g.DecisionNodes = append(g.DecisionNodes, id)
		case ShapeStadium:
			if id != g.EntryNode {
				g.TerminalNodes = append(g.TerminalNodes, id)
			}
		}
	}
	g.Edges = p.edges

	return g
}

func unescapeLabel(s string) string {
	return strings.ReplaceAll(s, "#quot;", `"`)
}
