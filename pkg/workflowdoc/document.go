package workflowdoc

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sopnav/sopnav/pkg/domain"
	"gopkg.in/yaml.v3"
)

const (
	flowchartHeader   = "## SOP Flowchart"
	nodePromptsHeader = "## Node Prompts"
)

// Frontmatter is the typed YAML header of a workflow document.
type Frontmatter struct {
	Agent   string `yaml:"agent"`
	Version string `yaml:"version"`

	// EntryNode optionally disambiguates the traversal start when the
	// flowchart has more than one zero-indegree candidate.
	EntryNode string `yaml:"entry_node"`

	Model      ModelConfig       `yaml:"model"`
	MCPServers []MCPServerConfig `yaml:"mcp_servers"`
}

// ModelConfig names the model an agent runs the workflow with.
type ModelConfig struct {
	Provider    string   `yaml:"provider" json:"provider"`
	Name        string   `yaml:"name" json:"name"`
	Temperature *float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens" json:"max_tokens"`
}

// MCPServerConfig is one downstream tool server the agent should connect to.
type MCPServerConfig struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Document is a parsed workflow document: YAML frontmatter, the prose
// sections, the mermaid flowchart, and per-node prompt sections.
type Document struct {
	// RawFrontmatter is the original frontmatter block including the ---
	// fences, kept verbatim for the editing round-trip.
	RawFrontmatter string

	// Front is the typed view of the frontmatter. Zero-valued when the
	// document has none or it fails to parse.
	Front Frontmatter

	// Prose is everything between the frontmatter and the flowchart
	// section: role, global rules, domain reference.
	Prose string

	// Mermaid is the flowchart source from the fenced block under the
	// "## SOP Flowchart" header.
	Mermaid string

	// Prompts maps node ids to their instruction entries.
	Prompts map[string]domain.NodePrompt

	// RawPrompts preserves each node's section text for composition.
	RawPrompts map[string]string
}

var promptSectionRe = regexp.MustCompile(`(?i)\n###\s+`)

// Parse splits document content into frontmatter, prose, mermaid, and node
// prompt sections. It never fails: missing sections simply come back empty.
func Parse(content string) *Document {
	doc := &Document{
		Prompts:    make(map[string]domain.NodePrompt),
		RawPrompts: make(map[string]string),
	}

	body := content
	if start := strings.Index(body, "---"); start >= 0 {
		if end := strings.Index(body[start+3:], "---"); end >= 0 {
			doc.RawFrontmatter = strings.TrimSpace(body[start : start+3+end+3])
			body = strings.TrimLeft(body[start+3+end+3:], "\n")
		}
	}
	doc.Front = parseFrontmatter(doc.RawFrontmatter)

	if idx := strings.Index(body, flowchartHeader); idx >= 0 {
		doc.Prose = strings.TrimSpace(body[:idx])
		body = body[idx:]
	} else {
		doc.Prose = strings.TrimSpace(body)
		return doc
	}

	if start := strings.Index(body, "```mermaid"); start >= 0 {
		if nl := strings.Index(body[start:], "\n"); nl >= 0 {
			rest := body[start+nl+1:]
			if end := strings.Index(rest, "```"); end >= 0 {
				doc.Mermaid = strings.TrimSpace(rest[:end])
			}
		}
	}

	if idx := strings.Index(body, nodePromptsHeader); idx >= 0 {
		doc.parsePromptSections(body[idx+len(nodePromptsHeader):])
	}

	return doc
}

// parsePromptSections walks "### <node_id>" blocks. Each block body is kept
// raw and additionally decoded as a YAML prompt entry when possible.
func (d *Document) parsePromptSections(section string) {
	for i, block := range promptSectionRe.Split(section, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.SplitN(block, "\n", 2)
		nodeID := strings.TrimSpace(lines[0])
		if nodeID == "" || (i == 0 && strings.EqualFold(nodeID, "node prompts")) {
			continue
		}
		content := ""
		if len(lines) > 1 {
			content = strings.TrimSpace(lines[1])
		}
		d.RawPrompts[nodeID] = content
		d.Prompts[nodeID] = decodePrompt(content)
	}
}

// decodePrompt reads a section body as a YAML prompt entry. Plain text
// bodies (no YAML mapping) become the prompt verbatim.
func decodePrompt(content string) domain.NodePrompt {
	if content == "" {
		return domain.NodePrompt{}
	}
	var entry domain.NodePrompt
	if err := yaml.Unmarshal([]byte(content), &entry); err == nil && entry.Prompt != "" {
		entry.Prompt = strings.TrimSpace(entry.Prompt)
		return entry
	}
	return domain.NodePrompt{Prompt: content}
}

// parseFrontmatter strips the --- fences and decodes the YAML inside.
// Invalid YAML yields a zero Frontmatter, never an error: the document is
// still usable without its header.
func parseFrontmatter(raw string) Frontmatter {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Frontmatter{}
	}
	s = strings.TrimPrefix(s, "---")
	if idx := strings.LastIndex(s, "---"); idx >= 0 {
		s = s[:idx]
	}
	var front Frontmatter
	if err := yaml.Unmarshal([]byte(s), &front); err != nil {
		return Frontmatter{}
	}
	return front
}

// SystemPrompt builds the full system prompt: the prose sections followed
// by the flowchart embedded as a fenced mermaid block.
func (d *Document) SystemPrompt() string {
	var parts []string
	if prose := strings.TrimSpace(d.Prose); prose != "" {
		parts = append(parts, prose)
	}
	mermaidSrc := strings.TrimSpace(d.Mermaid)
	if mermaidSrc == "" {
		mermaidSrc = "flowchart TD"
	}
	parts = append(parts, flowchartHeader, "", "```mermaid", mermaidSrc, "```")
	return strings.Join(parts, "\n\n")
}

// SectionTitles lists the "##" headers of the prose for prompt summaries.
// Falls back to the conventional section names when the prose has none.
func (d *Document) SectionTitles() []string {
	var titles []string
	for _, line := range strings.Split(d.Prose, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "## ") {
			continue
		}
		title := strings.TrimSpace(line[3:])
		if title != "" && !strings.EqualFold(title, "Node Prompts") {
			titles = append(titles, title)
		}
	}
	if len(titles) == 0 {
		return []string{"Role", "Global Rules", "Domain Reference", "SOP Flowchart"}
	}
	return titles
}

// PromptFor returns the instruction entry for a node, with ok=false when
// the document has no section for it.
func (d *Document) PromptFor(nodeID string) (domain.NodePrompt, bool) {
	p, ok := d.Prompts[nodeID]
	return p, ok
}

// NodesWithPrompts returns the prompt node ids that actually occur in the
// given node set, sorted for stable output.
func (d *Document) NodesWithPrompts(known map[string]bool) []string {
	var ids []string
	for id := range d.Prompts {
		if known[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Compose rebuilds document text from parts, the inverse of Parse for the
// editing API. Prompt sections are emitted in sorted node-id order.
func Compose(rawFrontmatter, prose, mermaidSrc string, rawPrompts map[string]string) string {
	var out []string
	if fm := strings.TrimSpace(rawFrontmatter); fm != "" {
		if !strings.HasPrefix(fm, "---") {
			fm = fmt.Sprintf("---\n%s\n---", fm)
		}
		out = append(out, fm, "")
	}
	if p := strings.TrimSpace(prose); p != "" {
		out = append(out, p, "")
	}
	src := strings.TrimSpace(mermaidSrc)
	if src == "" {
		src = "flowchart TD"
	}
	out = append(out, flowchartHeader, "", "```mermaid", src, "```", "", nodePromptsHeader, "")

	ids := make([]string, 0, len(rawPrompts))
	for id := range rawPrompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, "### "+id, "", strings.TrimSpace(rawPrompts[id]), "")
	}

	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}
