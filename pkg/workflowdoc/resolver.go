package workflowdoc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DocumentFileName is the canonical per-agent document file.
const DocumentFileName = "AGENTS.md"

// DirResolver resolves agent names and paths against a directory of agent
// folders, each holding an AGENTS.md. It implements ports.DocumentResolver.
type DirResolver struct {
	// Root is the agents directory (one subdirectory per agent).
	Root string
}

// NewDirResolver creates a resolver rooted at the given agents directory.
func NewDirResolver(root string) *DirResolver {
	return &DirResolver{Root: root}
}

// Resolve maps a reference to a document file and parses it. Accepted
// forms: an absolute file path, an absolute agent directory, a path
// relative to the root, or a bare agent name.
func (r *DirResolver) Resolve(ctx context.Context, ref string) (*Document, error) {
	path, err := r.resolvePath(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow document %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

func (r *DirResolver) resolvePath(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("workflow document reference is empty")
	}

	if filepath.IsAbs(ref) {
		if isFile(ref) {
			return ref, nil
		}
		if p := filepath.Join(ref, DocumentFileName); isFile(p) {
			return p, nil
		}
		return "", fmt.Errorf("workflow document not found: %s", ref)
	}

	// Relative references stay inside the root.
	if strings.Contains(ref, "..") {
		return "", fmt.Errorf("invalid workflow document reference: %q", ref)
	}

	under := filepath.Join(r.Root, ref)
	if isFile(under) {
		return under, nil
	}
	if p := filepath.Join(under, DocumentFileName); isFile(p) {
		return p, nil
	}
	return "", fmt.Errorf("workflow document not found: %s", ref)
}

// ListAgents returns the subdirectory names that contain an AGENTS.md.
func (r *DirResolver) ListAgents(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list agents in %s: %w", r.Root, err)
	}

	var agents []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if isFile(filepath.Join(r.Root, e.Name(), DocumentFileName)) {
			agents = append(agents, e.Name())
		}
	}
	sort.Strings(agents)
	return agents, nil
}

// DocumentPath returns the file an agent name resolves to, for callers
// that write documents back (the editing API).
func (r *DirResolver) DocumentPath(name string) (string, error) {
	if !SafeAgentName(name) {
		return "", fmt.Errorf("invalid agent name: %q", name)
	}
	path := filepath.Join(r.Root, name, DocumentFileName)
	if !isFile(path) {
		return "", fmt.Errorf("agent %q: %w", name, os.ErrNotExist)
	}
	return path, nil
}

// WriteDocument saves document text atomically: temp file then rename,
// so a crash mid-write never leaves a truncated document.
func WriteDocument(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".agents-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

// SafeAgentName allows only directory-name-safe references: alphanumerics,
// underscore and dash, no separators, no leading dot. Guards against path
// traversal from caller-supplied names.
func SafeAgentName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
