// Package workspace manages isolated temporary working copies, one per
// request. A Workspace is never shared: Acquire allocates a collision-free
// directory and Release deletes it exactly once, on every exit path.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maruel/ksid"
)

// Workspace is an exclusively-owned temporary directory seeded with a
// branch checkout and bound to one request's lifetime.
type Workspace struct {
	id        ksid.ID
	root      string
	branch    string
	createdAt time.Time

	releaseOnce sync.Once
}

// Acquire creates a fresh, uniquely named directory and populates it with
// the given file tree. The directory name embeds a ksid so concurrent
// requests can never collide even within the same clock tick. On any seeding
// failure, the partial directory is removed before returning.
func Acquire(tree map[string][]byte, branch string) (*Workspace, error) {
	id := ksid.NewID()
	root, err := os.MkdirTemp("", "morphd-"+id.String()+"-")
	if err != nil {
		return nil, fmt.Errorf("allocate workspace: %w", err)
	}
	w := &Workspace{id: id, root: root, branch: branch, createdAt: time.Now().UTC()}
	if err := w.seed(tree); err != nil {
		w.Release()
		return nil, err
	}
	slog.Info("workspace acquired", "id", id.String(), "branch", branch, "files", len(tree))
	return w, nil
}

// seed writes every file of tree under the workspace root, creating parent
// directories as needed. Paths that are absolute or escape the root are
// rejected.
func (w *Workspace) seed(tree map[string][]byte) error {
	for path, content := range tree {
		if !filepath.IsLocal(filepath.FromSlash(path)) {
			return fmt.Errorf("seed workspace: unsafe path %q", path)
		}
		dst := filepath.Join(w.root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return fmt.Errorf("seed workspace: %w", err)
		}
		if err := os.WriteFile(dst, content, 0o600); err != nil {
			return fmt.Errorf("seed workspace: %w", err)
		}
	}
	return nil
}

// Root returns the absolute path of the workspace directory.
func (w *Workspace) Root() string { return w.root }

// Branch returns the branch reference the workspace was seeded from.
func (w *Workspace) Branch() string { return w.branch }

// ID returns the workspace identifier.
func (w *Workspace) ID() ksid.ID { return w.id }

// Release deletes the workspace directory. Idempotent; deletion failures
// are logged and never surfaced so they cannot mask the primary result or
// error of the request.
func (w *Workspace) Release() {
	w.releaseOnce.Do(func() {
		if err := os.RemoveAll(w.root); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to delete workspace", "id", w.id.String(), "root", w.root, "err", err)
			return
		}
		slog.Info("workspace released", "id", w.id.String(), "age", time.Since(w.createdAt).Round(time.Millisecond))
	})
}
