// Package snapshot records point-in-time views of a workspace tree and
// computes the file-level change set between two of them.
package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Snapshot is an immutable mapping from slash-separated relative path to
// file content. Take returns a fresh map; callers must not mutate it once
// a diff against it may still be computed.
type Snapshot map[string][]byte

// Take walks root and records every regular file's relative path and full
// content. The .git directory is excluded at any depth. Symlinks and other
// irregular entries are skipped so a path can never escape root or alias
// another entry.
func Take(root string) (Snapshot, error) {
	s := Snapshot{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type() != 0 {
			// Symlink, device, socket, etc.
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		s[rel] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}
	return s, nil
}
