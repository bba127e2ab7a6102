package repo

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeGitHub is a minimal in-memory GitHub REST API for one repository.
type fakeGitHub struct {
	t             *testing.T
	defaultBranch string
	branches      map[string]string            // branch -> commit sha
	blobs         map[string][]byte            // blob sha -> content
	trees         map[string][]treeEntry       // tree sha -> entries
	commits       map[string]string            // commit sha -> tree sha
	contents      map[string]map[string][]byte // branch -> path -> content
	createdRefs   []string
	pushed        []string
	deleted       []string
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

func (f *fakeGitHub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			f.t.Errorf("Authorization = %q", got)
		}
		key := r.Method + " " + r.URL.Path
		switch {
		case key == "GET /repos/acme/widgets":
			writeJSON(w, map[string]string{"default_branch": f.defaultBranch})
		case r.Method == http.MethodGet && matchSuffix(r, "/git/ref/heads/", &key):
			sha, ok := f.branches[key]
			if !ok {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			writeJSON(w, map[string]any{"object": map[string]string{"sha": sha}})
		case key == "POST /repos/acme/widgets/git/refs":
			var body struct {
				Ref string `json:"ref"`
				SHA string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				f.t.Error(err)
				http.Error(w, `{"message":"bad body"}`, http.StatusBadRequest)
				return
			}
			branch := body.Ref[len("refs/heads/"):]
			if _, exists := f.branches[branch]; exists {
				http.Error(w, `{"message":"Reference already exists"}`, http.StatusUnprocessableEntity)
				return
			}
			f.branches[branch] = body.SHA
			f.createdRefs = append(f.createdRefs, body.Ref)
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, map[string]string{"ref": body.Ref})
		case r.Method == http.MethodGet && matchSuffix(r, "/git/commits/", &key):
			writeJSON(w, map[string]any{"tree": map[string]string{"sha": f.commits[key]}})
		case r.Method == http.MethodGet && matchSuffix(r, "/git/trees/", &key):
			writeJSON(w, map[string]any{"tree": f.trees[key], "truncated": false})
		case r.Method == http.MethodGet && matchSuffix(r, "/git/blobs/", &key):
			content, ok := f.blobs[key]
			if !ok {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			writeJSON(w, map[string]string{
				"content":  base64.StdEncoding.EncodeToString(content),
				"encoding": "base64",
			})
		case matchSuffix(r, "/contents/", &key):
			f.handleContents(w, r, key)
		default:
			f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		}
	})
}

func (f *fakeGitHub) handleContents(w http.ResponseWriter, r *http.Request, path string) {
	branch := r.URL.Query().Get("ref")
	switch r.Method {
	case http.MethodGet:
		content, ok := f.contents[branch][path]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]string{"sha": "sha-" + path, "content": base64.StdEncoding.EncodeToString(content)})
	case http.MethodPut:
		f.pushed = append(f.pushed, path)
		writeJSON(w, map[string]any{})
	case http.MethodDelete:
		f.deleted = append(f.deleted, path)
		writeJSON(w, map[string]any{})
	default:
		http.Error(w, `{"message":"Method Not Allowed"}`, http.StatusMethodNotAllowed)
	}
}

// matchSuffix reports whether the path contains marker and stores the part
// after it into rest.
func matchSuffix(r *http.Request, marker string, rest *string) bool {
	_, after, ok := strings.Cut(r.URL.Path, marker)
	if ok {
		*rest = after
	}
	return ok
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newFake(t *testing.T) (*fakeGitHub, *GitHub) {
	t.Helper()
	f := &fakeGitHub{
		t:             t,
		defaultBranch: "main",
		branches:      map[string]string{"main": "commit-main"},
		commits:       map[string]string{"commit-main": "tree-main"},
		trees: map[string][]treeEntry{
			"tree-main": {
				{Path: "README.md", Type: "blob", SHA: "blob-readme"},
				{Path: "src/app.py", Type: "blob", SHA: "blob-app"},
				{Path: "src", Type: "tree", SHA: "tree-src"},
			},
		},
		blobs: map[string][]byte{
			"blob-readme": []byte("# Widgets\n"),
			"blob-app":    []byte("print('hi')\n"),
		},
		contents: map[string]map[string][]byte{
			"feature": {"src/app.py": []byte("print('hi')\n")},
		},
	}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	g := NewGitHub("test-token")
	g.BaseURL = srv.URL
	return f, g
}

func TestEnsureBranch(t *testing.T) {
	t.Run("CreatesFromDefault", func(t *testing.T) {
		f, g := newFake(t)
		if err := g.EnsureBranch(t.Context(), "acme/widgets", "feature"); err != nil {
			t.Fatal(err)
		}
		if len(f.createdRefs) != 1 || f.createdRefs[0] != "refs/heads/feature" {
			t.Errorf("createdRefs = %v", f.createdRefs)
		}
		if f.branches["feature"] != "commit-main" {
			t.Errorf("feature -> %q, want commit-main", f.branches["feature"])
		}
	})
	t.Run("AlreadyExists", func(t *testing.T) {
		f, g := newFake(t)
		f.branches["feature"] = "commit-old"
		if err := g.EnsureBranch(t.Context(), "acme/widgets", "feature"); err != nil {
			t.Fatal(err)
		}
		if len(f.createdRefs) != 0 {
			t.Errorf("createdRefs = %v, want none", f.createdRefs)
		}
	})
}

func TestFetchTree(t *testing.T) {
	t.Run("FullTree", func(t *testing.T) {
		_, g := newFake(t)
		tree, err := g.FetchTree(t.Context(), "acme/widgets", "main")
		if err != nil {
			t.Fatal(err)
		}
		if len(tree) != 2 {
			t.Fatalf("got %d entries, want 2", len(tree))
		}
		if got := string(tree["src/app.py"]); got != "print('hi')\n" {
			t.Errorf("src/app.py = %q", got)
		}
		if got := string(tree["README.md"]); got != "# Widgets\n" {
			t.Errorf("README.md = %q", got)
		}
	})
	t.Run("BranchNotFound", func(t *testing.T) {
		_, g := newFake(t)
		_, err := g.FetchTree(t.Context(), "acme/widgets", "ghost")
		if !errors.Is(err, ErrBranchNotFound) {
			t.Fatalf("err = %v, want ErrBranchNotFound", err)
		}
	})
}

func TestPushFiles(t *testing.T) {
	f, g := newFake(t)
	files := map[string][]byte{
		"src/app.py": []byte("print('bye')\n"), // exists: update
		"new.txt":    []byte("fresh\n"),        // absent: create
	}
	err := g.PushFiles(t.Context(), "acme/widgets", "feature", "apply changes", files, []string{"src/app.py", "missing.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.pushed) != 2 {
		t.Errorf("pushed = %v, want 2 paths", f.pushed)
	}
	// missing.txt has no content SHA, so only src/app.py is deleted.
	if len(f.deleted) != 1 || f.deleted[0] != "src/app.py" {
		t.Errorf("deleted = %v, want [src/app.py]", f.deleted)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	g := NewGitHub("bad-token")
	g.BaseURL = srv.URL
	err := g.EnsureBranch(t.Context(), "acme/widgets", "feature")
	if err == nil {
		t.Fatal("expected error")
	}
	want := fmt.Sprintf("github: %d Bad credentials", http.StatusUnauthorized)
	var ae *apiError
	if !errors.As(err, &ae) || ae.Error() != want {
		t.Errorf("err = %v, want %s", err, want)
	}
}
