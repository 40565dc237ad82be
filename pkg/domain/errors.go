package domain

import "errors"

// Recoverable traversal failures. Adapters surface these as structured
// tool results carrying enough context for the caller to self-correct;
// none of them are fatal to the store or to other sessions.
var (
	// ErrGraphNotLoaded is returned when an operation requires a graph that
	// has not been loaded for this session yet.
	ErrGraphNotLoaded = errors.New("graph not loaded")

	// ErrUnknownNode is returned when the referenced node id is absent from
	// the current graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrInvalidTransition is returned in strict mode when the requested
	// move does not follow an edge, a self-loop, or a terminal branch-out.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrMalformedSource is returned when a resolved document yields no
	// usable graph (zero nodes). The session's current graph is unchanged.
	ErrMalformedSource = errors.New("malformed workflow source")

	// ErrSessionNotFound is returned when a session id cannot be found in
	// the snapshot store.
	ErrSessionNotFound = errors.New("session not found")
)
