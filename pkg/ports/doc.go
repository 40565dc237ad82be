// Package ports defines the boundary interfaces of the navigation engine:
// durable snapshot persistence and workflow document resolution. Adapters
// implement these; the core depends only on the contracts, which keeps the
// engine testable with in-memory fakes and swappable backends.
package ports
