// Package task drives one code-generation request end to end: branch setup,
// workspace provisioning, snapshotting around the agent run, change-set
// classification, patch rendering, and result delivery.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/morphlabs/morphd/internal/agent"
	"github.com/morphlabs/morphd/internal/patch"
	"github.com/morphlabs/morphd/internal/repo"
	"github.com/morphlabs/morphd/internal/snapshot"
	"github.com/morphlabs/morphd/internal/workspace"
)

// Request holds one request's inputs. The access token is never written to
// snapshots, change sets, or logs.
type Request struct {
	AccessToken string
	RepoName    string
	BranchName  string
	Prompt      string
	CallbackURL string // Optional; empty means no callback delivery.
	Push        bool   // Commit the resulting change set back to the branch.
}

// ProvisionError wraps failures that occur before the agent ran: branch or
// repository not resolvable, tree fetch interrupted, or workspace
// allocation failure. No partial workspace is left behind.
type ProvisionError struct {
	Err error
}

func (e *ProvisionError) Error() string { return "provision: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *ProvisionError) Unwrap() error { return e.Err }

// Pipeline processes requests. Many requests may be in flight concurrently;
// each owns its Workspace, snapshot pair, and ChangeSet exclusively, so a
// Pipeline carries no per-request state.
type Pipeline struct {
	Repos    repo.Factory  // Required. Builds a repository client per access token.
	Agent    agent.Backend // Required. The code-generation capability.
	MaxTurns int           // Agentic turn bound passed to the agent; 0 means unlimited.

	// CallbackClient posts results to callback URLs; defaults to a client
	// with a 30 second timeout.
	CallbackClient *http.Client
}

// Process runs the full pipeline for one request. It returns a
// *ProvisionError when setup fails before the agent ran; agent failures are
// recovered into a failure Result that still reports whatever changes were
// written, since partial output is often informative. The workspace is
// released on every exit path.
func (p *Pipeline) Process(ctx context.Context, req *Request) (*Result, error) {
	client := p.Repos(req.AccessToken)

	if err := client.EnsureBranch(ctx, req.RepoName, req.BranchName); err != nil {
		return nil, &ProvisionError{Err: err}
	}
	tree, err := client.FetchTree(ctx, req.RepoName, req.BranchName)
	if err != nil {
		return nil, &ProvisionError{Err: fmt.Errorf("fetch tree: %w", err)}
	}
	ws, err := workspace.Acquire(tree, req.BranchName)
	if err != nil {
		return nil, &ProvisionError{Err: err}
	}
	defer ws.Release()

	before, err := snapshot.Take(ws.Root())
	if err != nil {
		return nil, &ProvisionError{Err: err}
	}

	msgs, runErr := p.runAgent(ctx, ws.Root(), req.Prompt)

	// The agent may have been abandoned mid-flight (failure, timeout,
	// cancellation); the workspace state at that point is still diffed and
	// reported.
	after, err := snapshot.Take(ws.Root())
	if err != nil {
		return nil, fmt.Errorf("snapshot after agent run: %w", err)
	}
	cs := snapshot.Diff(before, after)

	result := assemble(req.BranchName, cs, patch.Render(cs), msgs)
	if runErr != nil {
		result.Status = StatusFailure
		result.Error = runErr.Error()
		slog.Warn("agent execution failed", "repo", req.RepoName, "branch", req.BranchName, "err", runErr)
	}

	if req.Push && result.Status == StatusSuccess && !cs.Empty() {
		if err := p.push(ctx, client, req, cs); err != nil {
			result.Status = StatusFailure
			result.Error = err.Error()
		}
	}

	if req.CallbackURL != "" {
		// Detached: delivery must never hold back or fail the primary
		// response.
		go p.deliver(context.WithoutCancel(ctx), req.CallbackURL, result)
	}
	return result, nil
}

// runAgent executes the code-generation capability against dir and collects
// the ordered message sequence.
func (p *Pipeline) runAgent(ctx context.Context, dir, prompt string) ([]agent.Message, error) {
	msgCh := make(chan agent.Message, 256)
	var msgs []agent.Message
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range msgCh {
			msgs = append(msgs, m)
		}
	}()

	_, runErr := p.Agent.Run(ctx, agent.Options{
		Dir:      dir,
		Prompt:   prompt,
		MaxTurns: p.MaxTurns,
	}, msgCh, nil)
	close(msgCh)
	<-done
	return msgs, runErr
}

// push commits the change set back to the branch.
func (p *Pipeline) push(ctx context.Context, client repo.Client, req *Request, cs snapshot.ChangeSet) error {
	files := make(map[string][]byte, len(cs.Added)+len(cs.Modified))
	for path, content := range cs.Added {
		files[path] = content
	}
	for path, edit := range cs.Modified {
		files[path] = edit.After
	}
	message := commitMessage(req.Prompt)
	if err := client.PushFiles(ctx, req.RepoName, req.BranchName, message, files, snapshot.SortedKeys(cs.Deleted)); err != nil {
		return fmt.Errorf("push changes: %w", err)
	}
	slog.Info("pushed changes", "repo", req.RepoName, "branch", req.BranchName, "files", len(files), "deleted", len(cs.Deleted))
	return nil
}

// commitMessage derives a short commit message from the prompt's first line.
func commitMessage(prompt string) string {
	line, _, _ := strings.Cut(prompt, "\n")
	const max = 72
	if len(line) > max {
		line = line[:max-3] + "..."
	}
	if line == "" {
		line = "automated change"
	}
	return line
}

// deliver POSTs the result payload to the callback URL, best effort. A
// failed delivery is logged and never propagated.
func (p *Pipeline) deliver(ctx context.Context, callbackURL string, result *Result) {
	hc := p.CallbackClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if err := postJSON(ctx, hc, callbackURL, result); err != nil {
		slog.Warn("callback delivery failed", "url", callbackURL, "err", err)
		return
	}
	slog.Info("callback delivered", "url", callbackURL)
}
