package sopnav

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sopnav/sopnav/internal/logging"
	"github.com/sopnav/sopnav/pkg/adapters/file"
	httpadapter "github.com/sopnav/sopnav/pkg/adapters/http"
	mcpadapter "github.com/sopnav/sopnav/pkg/adapters/mcp"
	"github.com/sopnav/sopnav/pkg/observability"
	"github.com/sopnav/sopnav/pkg/ports"
	"github.com/sopnav/sopnav/pkg/session"
	"github.com/sopnav/sopnav/pkg/workflowdoc"

	"github.com/prometheus/client_golang/prometheus"
	nethttp "net/http"
)

// Version is the library version, stamped at release time.
var Version = "0.1.0"

// Engine is the high-level entry point: it wires the document resolver,
// the session store, persistence, and the protocol adapters.
type Engine struct {
	store    *session.Store
	resolver ports.DocumentResolver
	dir      *workflowdoc.DirResolver
	metrics  *observability.Metrics
	registry *prometheus.Registry
	logger   *slog.Logger

	strict      bool
	snapshots   ports.SnapshotStore
	sessionsDir string
	eventCapPer int
	eventCapAll int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStrictMode toggles strict transition validation.
func WithStrictMode(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithSnapshotStore injects a durable persistence backend, bypassing the
// default file store.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(e *Engine) {
		e.snapshots = store
	}
}

// WithSessionsDir points the default file persistence at a directory.
// Ignored when WithSnapshotStore is used; empty disables persistence.
func WithSessionsDir(dir string) Option {
	return func(e *Engine) {
		e.sessionsDir = dir
	}
}

// WithResolver injects a custom document resolver.
func WithResolver(r ports.DocumentResolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEventCaps overrides the per-session and global event-log bounds.
func WithEventCaps(perSession, global int) Option {
	return func(e *Engine) {
		e.eventCapPer = perSession
		e.eventCapAll = global
	}
}

// New initializes an Engine over the given agents directory. agentsDir
// may be empty when WithResolver is provided.
func New(agentsDir string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.resolver == nil {
		if agentsDir == "" {
			return nil, fmt.Errorf("agentsDir is required when no custom resolver is provided")
		}
		absPath, err := filepath.Abs(agentsDir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		dir := workflowdoc.NewDirResolver(absPath)
		eng.resolver = dir
		eng.dir = dir
	}

	if eng.snapshots == nil && eng.sessionsDir != "" {
		fs, err := file.NewStore(eng.sessionsDir)
		if err != nil {
			return nil, fmt.Errorf("session persistence: %w", err)
		}
		eng.snapshots = fs
	}

	storeOpts := []session.Option{
		session.WithStrictMode(eng.strict),
		session.WithLogger(eng.logger),
	}
	if eng.snapshots != nil {
		storeOpts = append(storeOpts, session.WithSnapshotStore(eng.snapshots))
	}
	if eng.eventCapPer > 0 || eng.eventCapAll > 0 {
		storeOpts = append(storeOpts, session.WithEventCaps(eng.eventCapPer, eng.eventCapAll))
	}
	eng.store = session.NewStore(storeOpts...)

	eng.registry = prometheus.NewRegistry()
	eng.metrics = observability.NewMetrics(eng.registry, eng.store.SessionCount, eng.store.DroppedEvents)

	return eng, nil
}

// LoadPersisted rehydrates sessions from the persistence backend.
// Call once before serving traffic.
func (e *Engine) LoadPersisted(ctx context.Context) error {
	return e.store.LoadPersisted(ctx)
}

// Store exposes the session store.
func (e *Engine) Store() *session.Store { return e.store }

// Resolver exposes the document resolver.
func (e *Engine) Resolver() ports.DocumentResolver { return e.resolver }

// MCPServer builds the MCP tool server over this engine.
func (e *Engine) MCPServer() *mcpadapter.Server {
	return mcpadapter.NewServer(e.store, e.resolver, Version,
		mcpadapter.WithLogger(e.logger),
		mcpadapter.WithMetrics(e.metrics),
	)
}

// HTTPHandler builds the inspection and editing API handler. Returns an
// error when the engine was built with a resolver that has no backing
// directory, since the editing routes need one.
func (e *Engine) HTTPHandler() (nethttp.Handler, error) {
	if e.dir == nil {
		return nil, fmt.Errorf("http api requires a directory-backed resolver")
	}
	return httpadapter.NewHandler(e.store, e.dir,
		httpadapter.WithLogger(e.logger),
		httpadapter.WithMetricsRegistry(e.registry),
	), nil
}
