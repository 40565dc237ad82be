package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sopnav/sopnav/internal/logging"
	"github.com/sopnav/sopnav/pkg/domain"
	"github.com/sopnav/sopnav/pkg/ports"
)

const (
	// DefaultSessionEventCap bounds the event log kept per session.
	DefaultSessionEventCap = 500
	// DefaultGlobalEventCap bounds the event count across all sessions.
	DefaultGlobalEventCap = 10000
)

// lockEntry holds the per-session mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

type storedEvent struct {
	seq uint64
	ev  domain.Event
}

// Store owns every live TraversalSession. It serializes access per
// session with reference-counted locks, records a capped event log per
// call, and writes a snapshot through to the configured SnapshotStore
// after each mutation. Persistence is best-effort: failures are logged
// and never surfaced to the caller of the triggering operation.
type Store struct {
	mu    sync.Mutex // guards locks
	locks map[string]*lockEntry

	dataMu      sync.Mutex // guards sessions, events, created, counters
	sessions    map[string]*TraversalSession
	events      map[string][]storedEvent
	created     map[string]time.Time
	updated     map[string]time.Time
	eventSeq    uint64
	globalCount int
	dropped     uint64

	strict     bool
	sessionCap int
	globalCap  int
	snapshots  ports.SnapshotStore
	logger     *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithStrictMode toggles strict transition validation for every session
// the store serves.
func WithStrictMode(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

// WithSnapshotStore enables durable write-through persistence.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(s *Store) { s.snapshots = store }
}

// WithLogger configures a logger for deferred errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithEventCaps overrides the per-session and global event-log bounds.
// Non-positive values keep the defaults.
func WithEventCaps(perSession, global int) Option {
	return func(s *Store) {
		if perSession > 0 {
			s.sessionCap = perSession
		}
		if global > 0 {
			s.globalCap = global
		}
	}
}

// NewStore creates a session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		locks:      make(map[string]*lockEntry),
		sessions:   make(map[string]*TraversalSession),
		events:     make(map[string][]storedEvent),
		created:    make(map[string]time.Time),
		updated:    make(map[string]time.Time),
		sessionCap: DefaultSessionEventCap,
		globalCap:  DefaultGlobalEventCap,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strict reports whether the store validates transitions strictly.
func (s *Store) Strict() bool { return s.strict }

// acquire gets or creates a lock entry and increments its reference
// count. The caller must Lock entry.mu and call release after unlocking.
func (s *Store) acquire(sessionID string) *lockEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.locks[sessionID]
	if !ok {
		entry = &lockEntry{}
		s.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and drops the entry at zero.
func (s *Store) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.locks[sessionID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(s.locks, sessionID)
	}
}

// getOrCreate returns the live session for id, creating it on first use.
func (s *Store) getOrCreate(sessionID string) *TraversalSession {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = NewTraversalSession(sessionID)
		s.sessions[sessionID] = sess
		s.created[sessionID] = time.Now().UTC()
		s.updated[sessionID] = s.created[sessionID]
	}
	return sess
}

// Update runs fn while holding the session's lock, then persists the
// resulting snapshot outside the lock. fn receives the live session and
// may mutate it; returning an error skips persistence.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(sess *TraversalSession) error) error {
	entry := s.acquire(sessionID)
	entry.mu.Lock()

	sess := s.getOrCreate(sessionID)
	err := fn(sess)
	var snap *domain.SessionSnapshot
	if err == nil {
		snap = s.snapshot(sessionID, sess)
	}

	entry.mu.Unlock()
	s.release(sessionID)

	if err != nil {
		return err
	}
	s.persist(ctx, snap)
	return nil
}

// View runs fn while holding the session's lock, without persisting.
// The session must already exist.
func (s *Store) View(sessionID string, fn func(sess *TraversalSession) error) error {
	entry := s.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		s.release(sessionID)
	}()

	s.dataMu.Lock()
	sess, ok := s.sessions[sessionID]
	s.dataMu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	return fn(sess)
}

// Record appends a call event to the session's log, enforcing the
// per-session cap (drop oldest) and the global cap (drop oldest across
// all sessions), then writes the snapshot through so the durable record
// carries the event of the call that produced it.
func (s *Store) Record(ctx context.Context, sessionID, tool string, params map[string]any, summary string, result any) {
	entry := s.acquire(sessionID)
	entry.mu.Lock()

	sess := s.getOrCreate(sessionID)

	s.dataMu.Lock()
	s.eventSeq++
	ev := storedEvent{
		seq: s.eventSeq,
		ev: domain.Event{
			ID:            fmt.Sprintf("evt-%d", s.eventSeq),
			Timestamp:     time.Now().UTC(),
			Tool:          tool,
			Params:        params,
			SessionID:     sessionID,
			ResultSummary: summary,
			Result:        result,
		},
	}

	log := append(s.events[sessionID], ev)
	s.globalCount++
	if len(log) > s.sessionCap {
		drop := len(log) - s.sessionCap
		log = append([]storedEvent(nil), log[drop:]...)
		s.globalCount -= drop
		s.dropped += uint64(drop)
	}
	s.events[sessionID] = log
	s.updated[sessionID] = ev.ev.Timestamp

	for s.globalCount > s.globalCap {
		s.dropOldestLocked()
	}
	s.dataMu.Unlock()

	snap := s.snapshot(sessionID, sess)

	entry.mu.Unlock()
	s.release(sessionID)

	s.persist(ctx, snap)
}

// dropOldestLocked evicts the globally oldest event. Caller holds dataMu.
func (s *Store) dropOldestLocked() {
	oldestID := ""
	var oldestSeq uint64
	for id, log := range s.events {
		if len(log) == 0 {
			continue
		}
		if oldestID == "" || log[0].seq < oldestSeq {
			oldestID = id
			oldestSeq = log[0].seq
		}
	}
	if oldestID == "" {
		s.globalCount = 0
		return
	}
	s.events[oldestID] = append([]storedEvent(nil), s.events[oldestID][1:]...)
	s.globalCount--
	s.dropped++
}

// DroppedEvents returns how many events eviction has discarded.
func (s *Store) DroppedEvents() uint64 {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return s.dropped
}

// SessionCount returns the number of live sessions.
func (s *Store) SessionCount() int {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return len(s.sessions)
}

// Events returns a copy of the session's event log in append order.
func (s *Store) Events(sessionID string) []domain.Event {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	log := s.events[sessionID]
	out := make([]domain.Event, len(log))
	for i, ev := range log {
		out[i] = ev.ev
	}
	return out
}

// EventCount returns the total number of retained events across sessions.
func (s *Store) EventCount() int {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return s.globalCount
}

// List returns the live session ids, sorted.
func (s *Store) List() []string {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summary describes one session for listings.
type Summary struct {
	SessionID   string    `json:"session_id"`
	GraphIDs    []string  `json:"graph_ids"`
	CurrentNode string    `json:"current_node,omitempty"`
	EventCount  int       `json:"event_count"`
	TodoCount   int       `json:"todo_count"`
	CreatedTS   time.Time `json:"created_ts"`
	UpdatedTS   time.Time `json:"updated_ts"`
}

// ListSummaries returns a per-session overview, sorted by session id.
// Each session is read under its own lock so a concurrent Update cannot
// race with the summary build; sessions deleted mid-listing are skipped.
func (s *Store) ListSummaries() []Summary {
	ids := s.List()

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		var sum Summary
		err := s.View(id, func(sess *TraversalSession) error {
			graphIDs := make([]string, 0, len(sess.state.Graphs))
			for gid := range sess.state.Graphs {
				graphIDs = append(graphIDs, gid)
			}
			sort.Strings(graphIDs)

			s.dataMu.Lock()
			eventCount := len(s.events[id])
			created := s.created[id]
			updated := s.updated[id]
			s.dataMu.Unlock()

			sum = Summary{
				SessionID:   id,
				GraphIDs:    graphIDs,
				CurrentNode: sess.CurrentNode(),
				EventCount:  eventCount,
				TodoCount:   len(sess.state.Todos),
				CreatedTS:   created,
				UpdatedTS:   updated,
			}
			return nil
		})
		if err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out
}

// Delete removes the session, its event log, and its persisted record.
// Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	entry := s.acquire(sessionID)
	entry.mu.Lock()

	s.dataMu.Lock()
	delete(s.sessions, sessionID)
	s.globalCount -= len(s.events[sessionID])
	delete(s.events, sessionID)
	delete(s.created, sessionID)
	delete(s.updated, sessionID)
	s.dataMu.Unlock()

	entry.mu.Unlock()
	s.release(sessionID)

	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("delete session record: %w", err)
		}
	}
	return nil
}

// Snapshot builds the durable record for a session. The session must
// already exist.
func (s *Store) Snapshot(sessionID string) (*domain.SessionSnapshot, error) {
	var snap *domain.SessionSnapshot
	err := s.View(sessionID, func(sess *TraversalSession) error {
		snap = s.snapshot(sessionID, sess)
		return nil
	})
	return snap, err
}

func (s *Store) snapshot(sessionID string, sess *TraversalSession) *domain.SessionSnapshot {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	log := s.events[sessionID]
	events := make([]domain.Event, len(log))
	for i, ev := range log {
		events[i] = ev.ev
	}
	return &domain.SessionSnapshot{
		SessionID: sessionID,
		CreatedTS: s.created[sessionID],
		UpdatedTS: s.updated[sessionID],
		Events:    events,
		State:     cloneState(sess.state),
	}
}

// persist writes the snapshot through to durable storage. Failures are
// logged and swallowed so a persistence outage never breaks navigation.
func (s *Store) persist(ctx context.Context, snap *domain.SessionSnapshot) {
	if s.snapshots == nil || snap == nil {
		return
	}
	if err := s.snapshots.Save(ctx, snap.SessionID, snap); err != nil {
		s.logger.Warn("session snapshot write failed",
			"session_id", snap.SessionID,
			"err", err,
		)
	}
}

// LoadPersisted rehydrates every persisted session into the store.
// Called once at startup, before the store serves traffic.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	ids, err := s.snapshots.List(ctx)
	if err != nil {
		return fmt.Errorf("list session records: %w", err)
	}

	for _, id := range ids {
		snap, err := s.snapshots.Load(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable session record", "session_id", id, "err", err)
			continue
		}
		s.dataMu.Lock()
		s.sessions[id] = Restore(id, snap.State)
		s.created[id] = snap.CreatedTS
		s.updated[id] = snap.UpdatedTS
		log := make([]storedEvent, len(snap.Events))
		for i, ev := range snap.Events {
			s.eventSeq++
			log[i] = storedEvent{seq: s.eventSeq, ev: ev}
		}
		s.globalCount -= len(s.events[id])
		s.events[id] = log
		s.globalCount += len(log)
		s.dataMu.Unlock()
	}
	return nil
}

// cloneState deep-copies the mutable parts of a session state so the
// snapshot is stable after the session lock is released.
func cloneState(state *domain.SessionState) *domain.SessionState {
	out := domain.NewSessionState()
	out.CurrentGraphID = state.CurrentGraphID
	for gid, entry := range state.Graphs {
		out.Graphs[gid] = entry
	}
	for gid, path := range state.Path {
		out.Path[gid] = append([]string(nil), path...)
	}
	out.Todos = append([]domain.TodoItem{}, state.Todos...)
	return out
}
