package domain

import "fmt"

// TodoStatus is the lifecycle of a single task item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// TodoItem is one entry in a session's task list. The list is replaced
// wholesale on every update; there are no partial patch semantics.
type TodoItem struct {
	// Desc is what needs to be done. Must be non-empty.
	Desc string `json:"desc" mapstructure:"desc"`

	// Status tracks progress (pending -> in_progress -> completed).
	Status TodoStatus `json:"status" mapstructure:"status"`

	// Note is a scratchpad for context, dependencies, or findings.
	Note string `json:"note" mapstructure:"note"`

	// CompletionNode is the terminal (stadium) node id expected to mark this
	// task done, or empty when the task is not bound to a node.
	CompletionNode string `json:"task_completion_node" mapstructure:"task_completion_node"`
}

// Validate checks the item shape: non-empty desc and a known status.
func (t TodoItem) Validate() error {
	if t.Desc == "" {
		return fmt.Errorf("todo item: desc must not be empty")
	}
	switch t.Status {
	case TodoPending, TodoInProgress, TodoCompleted:
		return nil
	default:
		return fmt.Errorf("todo item %q: unknown status %q", t.Desc, t.Status)
	}
}

// TodoSummary counts items by status.
type TodoSummary struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// SummarizeTodos tallies a todo list by status.
func SummarizeTodos(items []TodoItem) TodoSummary {
	var s TodoSummary
	for _, t := range items {
		switch t.Status {
		case TodoPending:
			s.Pending++
		case TodoInProgress:
			s.InProgress++
		case TodoCompleted:
			s.Completed++
		}
	}
	return s
}
