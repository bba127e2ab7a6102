package snapshot

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestTake(t *testing.T) {
	t.Run("RecordsRegularFiles", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"main.go":            "package main\n",
			"docs/readme.md":     "hello\n",
			"docs/sub/deep.txt":  "deep\n",
			".hidden":            "dot\n",
			".github/ci.yml":     "on: push\n",
			".git/config":        "[core]\n",
			".git/objects/ab/cd": "blob",
			"vendor/.git/HEAD":   "ref: refs/heads/main\n",
		})

		s, err := Take(root)
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]string{
			"main.go":           "package main\n",
			"docs/readme.md":    "hello\n",
			"docs/sub/deep.txt": "deep\n",
			".hidden":           "dot\n",
			".github/ci.yml":    "on: push\n",
		}
		if len(s) != len(want) {
			t.Fatalf("got %d entries %v, want %d", len(s), SortedKeys(s), len(want))
		}
		for path, content := range want {
			if got := string(s[path]); got != content {
				t.Errorf("%s = %q, want %q", path, got, content)
			}
		}
	})
	t.Run("SkipsSymlinks", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}
		root := t.TempDir()
		writeTree(t, root, map[string]string{"real.txt": "data\n"})
		outside := filepath.Join(t.TempDir(), "secret.txt")
		if err := os.WriteFile(outside, []byte("secret\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(outside, filepath.Join(root, "link.txt")); err != nil {
			t.Fatal(err)
		}

		s, err := Take(root)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := s["link.txt"]; ok {
			t.Error("symlink was recorded")
		}
		if len(s) != 1 {
			t.Errorf("got %d entries, want 1", len(s))
		}
	})
	t.Run("EmptyDir", func(t *testing.T) {
		s, err := Take(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		if len(s) != 0 {
			t.Errorf("got %d entries, want 0", len(s))
		}
	})
	t.Run("MissingRoot", func(t *testing.T) {
		if _, err := Take(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestDiff(t *testing.T) {
	t.Run("Added", func(t *testing.T) {
		before := Snapshot{"keep.txt": []byte("same\n")}
		after := Snapshot{"keep.txt": []byte("same\n"), "new.txt": []byte("fresh\n")}
		cs := Diff(before, after)
		if got := string(cs.Added["new.txt"]); got != "fresh\n" {
			t.Errorf("added[new.txt] = %q", got)
		}
		if len(cs.Added) != 1 || len(cs.Modified) != 0 || len(cs.Deleted) != 0 {
			t.Errorf("got %d/%d/%d, want 1/0/0", len(cs.Added), len(cs.Modified), len(cs.Deleted))
		}
	})
	t.Run("Modified", func(t *testing.T) {
		before := Snapshot{"cfg.toml": []byte("x = 1\n")}
		after := Snapshot{"cfg.toml": []byte("x = 2\n")}
		cs := Diff(before, after)
		edit, ok := cs.Modified["cfg.toml"]
		if !ok {
			t.Fatal("cfg.toml not classified as modified")
		}
		if string(edit.Before) != "x = 1\n" || string(edit.After) != "x = 2\n" {
			t.Errorf("edit = %q -> %q", edit.Before, edit.After)
		}
	})
	t.Run("Deleted", func(t *testing.T) {
		before := Snapshot{"gone.txt": []byte("old content\n")}
		cs := Diff(before, Snapshot{})
		if got := string(cs.Deleted["gone.txt"]); got != "old content\n" {
			t.Errorf("deleted[gone.txt] = %q", got)
		}
	})
	t.Run("UnchangedProducesNoEntry", func(t *testing.T) {
		s := Snapshot{"a.txt": []byte("x\n"), "b.bin": {0, 1, 2}}
		cs := Diff(s, Snapshot{"a.txt": []byte("x\n"), "b.bin": {0, 1, 2}})
		if !cs.Empty() {
			t.Errorf("change set not empty: %+v", cs)
		}
	})
	t.Run("Disjoint", func(t *testing.T) {
		before := Snapshot{
			"mod.txt":  []byte("1\n"),
			"del.txt":  []byte("2\n"),
			"same.txt": []byte("3\n"),
		}
		after := Snapshot{
			"mod.txt":  []byte("one\n"),
			"add.txt":  []byte("4\n"),
			"same.txt": []byte("3\n"),
		}
		cs := Diff(before, after)
		seen := map[string]int{}
		for p := range cs.Added {
			seen[p]++
		}
		for p := range cs.Modified {
			seen[p]++
		}
		for p := range cs.Deleted {
			seen[p]++
		}
		for p, n := range seen {
			if n != 1 {
				t.Errorf("%s classified %d times", p, n)
			}
		}
		if seen["same.txt"] != 0 {
			t.Error("unchanged file classified")
		}
		if len(seen) != 3 {
			t.Errorf("got %d classified paths, want 3", len(seen))
		}
	})
	t.Run("BothEmpty", func(t *testing.T) {
		if cs := Diff(Snapshot{}, Snapshot{}); !cs.Empty() {
			t.Errorf("change set not empty: %+v", cs)
		}
	})
}

// A file replaced by a directory containing files shows up as one deletion
// plus additions for the new children.
func TestDiffFileBecomesDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"conf": "flat\n"})
	before, err := Take(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "conf")); err != nil {
		t.Fatal(err)
	}
	writeTree(t, root, map[string]string{"conf/app.yml": "nested\n"})
	after, err := Take(root)
	if err != nil {
		t.Fatal(err)
	}

	cs := Diff(before, after)
	if _, ok := cs.Deleted["conf"]; !ok {
		t.Error("conf not classified as deleted")
	}
	if _, ok := cs.Added["conf/app.yml"]; !ok {
		t.Error("conf/app.yml not classified as added")
	}
	if len(cs.Modified) != 0 {
		t.Errorf("modified = %v, want none", SortedKeys(cs.Modified))
	}
}

func TestSortedKeys(t *testing.T) {
	m := map[string][]byte{"z.go": nil, "a/b.go": nil, "a.go": nil}
	got := SortedKeys(m)
	want := []string{"a.go", "a/b.go", "z.go"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		dst := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(dst, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}
