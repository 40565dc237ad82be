package domain

import (
	"time"

	"github.com/sopnav/sopnav/pkg/mermaid"
)

// NodePrompt carries the progressive-delivery instructions for one node:
// the prompt text, optional tool hints, and few-shot examples.
type NodePrompt struct {
	Prompt   string          `json:"prompt" yaml:"prompt" mapstructure:"prompt"`
	Tools    []string        `json:"tools,omitempty" yaml:"tools" mapstructure:"tools"`
	Examples []PromptExample `json:"examples,omitempty" yaml:"examples" mapstructure:"examples"`
}

// PromptExample is one user/agent exchange illustrating a node's behavior.
type PromptExample struct {
	User  string `json:"user" yaml:"user" mapstructure:"user"`
	Agent string `json:"agent" yaml:"agent" mapstructure:"agent"`
}

// GraphEntry is one loaded workflow inside a session: the parsed model,
// the source it came from, and the per-node instruction map.
type GraphEntry struct {
	Graph   *mermaid.Graph        `json:"graph"`
	Source  string                `json:"mermaid_source"`
	Prompts map[string]NodePrompt `json:"node_prompts,omitempty"`
}

// SessionState is the mutable traversal state of one session: loaded
// graphs keyed by graph id, the visited path per graph, the todo list,
// and which graph navigation currently targets.
type SessionState struct {
	Graphs         map[string]*GraphEntry `json:"graphs"`
	Path           map[string][]string    `json:"path"`
	Todos          []TodoItem             `json:"todos"`
	CurrentGraphID string                 `json:"current_graph_id,omitempty"`
}

// NewSessionState returns an empty state ready for its first load_graph.
func NewSessionState() *SessionState {
	return &SessionState{
		Graphs: make(map[string]*GraphEntry),
		Path:   make(map[string][]string),
		Todos:  []TodoItem{},
	}
}

// SessionSnapshot is the durable record persisted after every mutating
// call. It is sufficient to rebuild a session and replay its event history
// without re-parsing the original mermaid source.
type SessionSnapshot struct {
	SessionID string        `json:"session_id"`
	CreatedTS time.Time     `json:"created_ts"`
	UpdatedTS time.Time     `json:"updated_ts"`
	Events    []Event       `json:"events"`
	State     *SessionState `json:"session_state"`
}
