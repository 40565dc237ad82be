// Package file provides a ports.SnapshotStore that keeps one JSON file
// per session under a base directory. It is the default durable backend
// for single-process deployments.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sopnav/sopnav/pkg/domain"
)

const fileExt = ".json"

// unsafeChars matches everything that may not appear in a session file
// name. Session ids arrive from the transport layer and can contain
// path separators or other hostile characters.
var unsafeChars = regexp.MustCompile(`[^\w-]`)

// Store implements ports.SnapshotStore on the local filesystem.
type Store struct {
	dir string
}

// NewStore creates a file store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// safeName maps a session id to a filesystem-safe file stem.
func safeName(sessionID string) string {
	name := unsafeChars.ReplaceAllString(sessionID, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	if name == "" {
		name = "_"
	}
	return name
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, safeName(sessionID)+fileExt)
}

// Save writes the snapshot atomically: temp file then rename, so a
// crash mid-write never leaves a truncated record.
func (s *Store) Save(ctx context.Context, sessionID string, snap *domain.SessionSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	target := s.path(sessionID)
	tmp, err := os.CreateTemp(s.dir, safeName(sessionID)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load retrieves and decodes the snapshot for a session.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap domain.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %q: %w", sessionID, err)
	}
	return &snap, nil
}

// Delete removes the session file. Missing files are not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// List returns the persisted session ids, sorted. Ids are read from the
// records themselves so the original (pre-sanitization) id survives.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var snap domain.SessionSnapshot
		if err := json.Unmarshal(data, &snap); err != nil || snap.SessionID == "" {
			continue
		}
		ids = append(ids, snap.SessionID)
	}
	sort.Strings(ids)
	return ids, nil
}
