package repo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GitHub implements Client against the GitHub REST v3 API.
type GitHub struct {
	// BaseURL overrides the API endpoint; defaults to https://api.github.com.
	BaseURL string
	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	token string
}

var _ Client = (*GitHub)(nil)

// NewGitHub returns a client authenticating with the given access token.
func NewGitHub(token string) *GitHub {
	return &GitHub{token: token}
}

// apiError carries the HTTP status and GitHub's error message.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github: %d %s", e.Status, e.Message)
}

// EnsureBranch creates branchName pointing at the default branch head.
// A "Reference already exists" response is treated as success so repeated
// requests against the same branch work.
func (g *GitHub) EnsureBranch(ctx context.Context, repoName, branchName string) error {
	var repoInfo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := g.get(ctx, "/repos/"+repoName, &repoInfo); err != nil {
		return fmt.Errorf("resolve repository %s: %w", repoName, err)
	}
	sha, err := g.refSHA(ctx, repoName, repoInfo.DefaultBranch)
	if err != nil {
		return fmt.Errorf("resolve default branch %s: %w", repoInfo.DefaultBranch, err)
	}

	body := map[string]string{
		"ref": "refs/heads/" + branchName,
		"sha": sha,
	}
	err = g.send(ctx, http.MethodPost, "/repos/"+repoName+"/git/refs", body, nil)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusUnprocessableEntity && strings.Contains(ae.Message, "Reference already exists") {
		slog.Info("branch already exists", "repo", repoName, "branch", branchName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create branch %s: %w", branchName, err)
	}
	return nil
}

// FetchTree returns branchName's full tree. Blobs are fetched individually
// and base64-decoded so binary content survives byte-for-byte.
func (g *GitHub) FetchTree(ctx context.Context, repoName, branchName string) (Tree, error) {
	commitSHA, err := g.refSHA(ctx, repoName, branchName)
	if err != nil {
		return nil, err
	}
	var commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	if err := g.get(ctx, "/repos/"+repoName+"/git/commits/"+commitSHA, &commit); err != nil {
		return nil, fmt.Errorf("resolve commit %s: %w", commitSHA, err)
	}

	var tree struct {
		Entries []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			SHA  string `json:"sha"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := g.get(ctx, "/repos/"+repoName+"/git/trees/"+commit.Tree.SHA+"?recursive=1", &tree); err != nil {
		return nil, fmt.Errorf("fetch tree: %w", err)
	}
	if tree.Truncated {
		slog.Warn("tree listing truncated by API", "repo", repoName, "branch", branchName)
	}

	out := Tree{}
	for _, e := range tree.Entries {
		if e.Type != "blob" {
			continue
		}
		content, err := g.blob(ctx, repoName, e.SHA)
		if err != nil {
			return nil, fmt.Errorf("fetch blob %s: %w", e.Path, err)
		}
		out[e.Path] = content
	}
	return out, nil
}

// PushFiles writes each file via the contents API (create when absent,
// update with the current SHA when present) and deletes the given paths.
func (g *GitHub) PushFiles(ctx context.Context, repoName, branchName, message string, files map[string][]byte, deleted []string) error {
	for path, content := range files {
		sha, err := g.contentSHA(ctx, repoName, branchName, path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		body := map[string]string{
			"message": message,
			"content": base64.StdEncoding.EncodeToString(content),
			"branch":  branchName,
		}
		if sha != "" {
			body["sha"] = sha
		}
		if err := g.send(ctx, http.MethodPut, "/repos/"+repoName+"/contents/"+escapePath(path), body, nil); err != nil {
			return fmt.Errorf("push %s: %w", path, err)
		}
	}
	for _, path := range deleted {
		sha, err := g.contentSHA(ctx, repoName, branchName, path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if sha == "" {
			continue // Already gone.
		}
		body := map[string]string{
			"message": message,
			"sha":     sha,
			"branch":  branchName,
		}
		if err := g.send(ctx, http.MethodDelete, "/repos/"+repoName+"/contents/"+escapePath(path), body, nil); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}
	return nil
}

// refSHA resolves heads/<branch> to a commit SHA. Maps 404 to
// ErrBranchNotFound.
func (g *GitHub) refSHA(ctx context.Context, repoName, branchName string) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	err := g.get(ctx, "/repos/"+repoName+"/git/ref/heads/"+url.PathEscape(branchName), &ref)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
		return "", fmt.Errorf("%s: %w", branchName, ErrBranchNotFound)
	}
	if err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

// blob fetches one blob's raw bytes.
func (g *GitHub) blob(ctx context.Context, repoName, sha string) ([]byte, error) {
	var b struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := g.get(ctx, "/repos/"+repoName+"/git/blobs/"+sha, &b); err != nil {
		return nil, err
	}
	if b.Encoding != "base64" {
		return []byte(b.Content), nil
	}
	// GitHub inserts newlines into base64 payloads.
	return base64.StdEncoding.DecodeString(strings.ReplaceAll(b.Content, "\n", ""))
}

// contentSHA returns the blob SHA of path on branch, or "" when the file
// does not exist.
func (g *GitHub) contentSHA(ctx context.Context, repoName, branchName, path string) (string, error) {
	var c struct {
		SHA string `json:"sha"`
	}
	err := g.get(ctx, "/repos/"+repoName+"/contents/"+escapePath(path)+"?ref="+url.QueryEscape(branchName), &c)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.SHA, nil
}

func (g *GitHub) get(ctx context.Context, path string, out any) error {
	return g.send(ctx, http.MethodGet, path, nil, out)
}

// send performs one API call. Non-2xx responses become *apiError.
func (g *GitHub) send(ctx context.Context, method, path string, body, out any) error {
	base := g.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := g.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ghErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &ghErr)
		return &apiError{Status: resp.StatusCode, Message: ghErr.Message}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// escapePath escapes each path segment while keeping separators.
func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
