package mermaid

// Default spacing for layout coordinates, matching the viewer's grid.
const (
	DefaultLayoutDX = 260
	DefaultLayoutDY = 100
)

// ComputeLayout assigns X/Y positions to every node using BFS leveling:
// the frontier of nodes with zero remaining in-degree forms a level, its
// out-edges are removed, and the next frontier follows. Nodes that are
// never reached (cyclic components) are placed one level below the deepest
// reached level so every node always gets a position.
//
// Positions are presentation hints only; callers recompute them on demand.
func ComputeLayout(g *Graph, dx, dy int) {
	if dx <= 0 {
		dx = DefaultLayoutDX
	}
	if dy <= 0 {
		dy = DefaultLayoutDY
	}

	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		inDegree[e.Target]++
	}

	levels := make(map[string]int, len(g.Nodes))
	var frontier []string
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			frontier = append(frontier, n.ID)
		}
	}

	level := 0
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			levels[id] = level
		}
		for _, id := range frontier {
			for _, e := range g.Edges {
				if e.Source != id {
					continue
				}
				inDegree[e.Target]--
				if inDegree[e.Target] == 0 {
					next = append(next, e.Target)
				}
			}
		}
		frontier = next
		level++
	}

	// Cycle members never hit zero in-degree; park them below everything.
	for _, n := range g.Nodes {
		if _, ok := levels[n.ID]; !ok {
			levels[n.ID] = level
		}
	}

	column := make(map[int]int)
	for i := range g.Nodes {
		lv := levels[g.Nodes[i].ID]
		g.Nodes[i].X = column[lv] * dx
		g.Nodes[i].Y = lv * dy
		column[lv]++
	}
}
