package ports

import (
	"context"

	"github.com/sopnav/sopnav/pkg/domain"
)

// SnapshotStore persists per-session durable records so a process restart
// can rehydrate every session with its event history intact.
//
// Implementations must be safe for concurrent use. Callers treat writes as
// best-effort: a failed Save is logged by the session store and never
// propagated to the operation that triggered it.
type SnapshotStore interface {
	// Save writes or overwrites the snapshot for a session.
	Save(ctx context.Context, sessionID string, snap *domain.SessionSnapshot) error

	// Load retrieves the snapshot for a session.
	// Returns domain.ErrSessionNotFound if no record exists.
	Load(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error)

	// Delete removes the snapshot. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the ids of all persisted sessions.
	List(ctx context.Context) ([]string, error)
}
