package ports

import (
	"context"

	"github.com/sopnav/sopnav/pkg/workflowdoc"
)

// DocumentResolver turns an opaque reference (a path or an agent name)
// into a parsed workflow document. The engine is indifferent to how the
// document is fetched or stored.
type DocumentResolver interface {
	// Resolve fetches and parses the document behind ref.
	Resolve(ctx context.Context, ref string) (*workflowdoc.Document, error)

	// ListAgents returns the names resolvable by this resolver, for
	// discovery UIs. Implementations without enumerable sources may return
	// an empty list.
	ListAgents(ctx context.Context) ([]string, error)
}
