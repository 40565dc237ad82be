// Package workflowdoc loads and composes agent workflow documents: a YAML
// frontmatter, prose sections, a fenced mermaid flowchart under
// "## SOP Flowchart", and per-node instruction sections under
// "## Node Prompts". The engine consumes documents through the
// ports.DocumentResolver interface; DirResolver is the filesystem
// implementation used by the server and the CLI.
package workflowdoc
