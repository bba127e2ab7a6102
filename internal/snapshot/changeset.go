package snapshot

import (
	"bytes"
	"sort"
)

// Edit holds the old and new content of a modified file.
type Edit struct {
	Before []byte
	After  []byte
}

// ChangeSet is the three-way partition of the paths touched between two
// snapshots. The three maps are disjoint: every path present in either
// snapshot appears in exactly one of them, or in none when its content is
// byte-identical on both sides.
type ChangeSet struct {
	Added    map[string][]byte // present in after only
	Modified map[string]Edit   // present in both with differing content
	Deleted  map[string][]byte // present in before only; value is the old content
}

// Diff partitions before/after into a ChangeSet. Comparison is by content
// equality only; modification times and file modes are ignored so that an
// agent touching a file without changing its bytes produces no entry.
func Diff(before, after Snapshot) ChangeSet {
	cs := ChangeSet{
		Added:    map[string][]byte{},
		Modified: map[string]Edit{},
		Deleted:  map[string][]byte{},
	}
	for path, old := range before {
		cur, ok := after[path]
		if !ok {
			cs.Deleted[path] = old
			continue
		}
		if !bytes.Equal(old, cur) {
			cs.Modified[path] = Edit{Before: old, After: cur}
		}
	}
	for path, cur := range after {
		if _, ok := before[path]; !ok {
			cs.Added[path] = cur
		}
	}
	return cs
}

// Empty reports whether the change set contains no entries.
func (cs ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Deleted) == 0
}

// SortedKeys returns the keys of m in lexicographic order. Rendering and
// response assembly both depend on this ordering being stable.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
