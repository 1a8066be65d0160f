// Package workspace provides the per-run scratch arena. Every intermediate
// artifact of one comparison run lives under a single uniquely named
// directory that is torn down exactly once at run end, on every exit path.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Workspace is an exclusively owned scratch directory for one run. The
// shared root is append-only: uniqueness of the run ID makes cross-run
// locking unnecessary.
type Workspace struct {
	root string

	mu      sync.Mutex
	removed bool
}

// New creates the run's directory under root, creating root itself if
// this is the first run on a fresh host.
func New(root string, runID uuid.UUID) (*Workspace, error) {
	dir := filepath.Join(root, runID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return &Workspace{root: dir}, nil
}

// Path resolves a name inside the workspace.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.root}, elem...)...)
}

// Dir creates and returns a subdirectory inside the workspace.
func (w *Workspace) Dir(name string) (string, error) {
	dir := filepath.Join(w.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace subdir %s: %w", dir, err)
	}
	return dir, nil
}

// Root returns the workspace directory itself.
func (w *Workspace) Root() string {
	return w.root
}

// Remove deletes the workspace and everything in it. Idempotent: the run
// coordinator tears down unconditionally and a second call is a no-op.
func (w *Workspace) Remove() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return nil
	}
	w.removed = true
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.root, err)
	}
	return nil
}
