package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sopnav/sopnav/pkg/mermaid"
	"github.com/sopnav/sopnav/pkg/workflowdoc"
)

// ValidateDocument checks a workflow document for structural problems:
// an empty or unparseable flowchart, edges pointing at undeclared nodes,
// nodes unreachable from the entry, and prompt sections that reference
// node ids absent from the graph.
func ValidateDocument(doc *workflowdoc.Document) error {
	if strings.TrimSpace(doc.Mermaid) == "" {
		return fmt.Errorf("document has no flowchart section")
	}

	g := mermaid.Parse(doc.Mermaid)
	if len(g.Nodes) == 0 {
		return fmt.Errorf("flowchart contains no nodes")
	}

	entry := g.EntryNode
	if doc.Front.EntryNode != "" && g.OverrideEntry(doc.Front.EntryNode) {
		entry = doc.Front.EntryNode
	}

	var errors []string

	// Edge endpoints must be declared nodes. The parser auto-declares
	// bare ids, so a dangling endpoint means a parse-level defect.
	for _, e := range g.Edges {
		if g.NodeByID(e.Source) == nil {
			errors = append(errors, fmt.Sprintf("edge source '%s' is not a declared node", e.Source))
		}
		if g.NodeByID(e.Target) == nil {
			errors = append(errors, fmt.Sprintf("edge target '%s' is not a declared node", e.Target))
		}
	}

	// Crawl from the entry and flag anything the traversal can never reach.
	visited := map[string]bool{}
	queue := []string{entry}
	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		for _, next := range g.SuccessorIDs(currentID) {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for _, n := range g.Nodes {
		if !visited[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}
	sort.Strings(unreachable)
	for _, id := range unreachable {
		errors = append(errors, fmt.Sprintf("node '%s' is unreachable from entry '%s'", id, entry))
	}

	var orphanPrompts []string
	for id := range doc.Prompts {
		if g.NodeByID(id) == nil {
			orphanPrompts = append(orphanPrompts, id)
		}
	}
	sort.Strings(orphanPrompts)
	for _, id := range orphanPrompts {
		errors = append(errors, fmt.Sprintf("prompt section for unknown node '%s'", id))
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}

	return nil
}
