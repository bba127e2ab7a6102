// Package repo is the boundary to the remote repository capability:
// resolving branches, fetching a branch's file tree, and writing a file set
// back to a branch.
package repo

import (
	"context"
	"errors"
)

// Tree maps slash-separated repo-relative paths to file content.
type Tree map[string][]byte

// ErrBranchNotFound is returned when a branch reference cannot be resolved.
var ErrBranchNotFound = errors.New("branch not found")

// Client addresses a remote repository by (repoName, branchName).
// Implementations are credential-scoped: one client per access token.
type Client interface {
	// EnsureBranch creates branchName from the repository's default branch
	// head. An already-existing branch is not an error.
	EnsureBranch(ctx context.Context, repoName, branchName string) error

	// FetchTree returns the complete file tree of branchName.
	FetchTree(ctx context.Context, repoName, branchName string) (Tree, error)

	// PushFiles commits the given file contents (create or update) and
	// deletions to branchName with one commit message.
	PushFiles(ctx context.Context, repoName, branchName, message string, files map[string][]byte, deleted []string) error
}

// Factory builds a Client scoped to an access token. The pipeline receives
// a Factory so tests can substitute an in-memory repository.
type Factory func(accessToken string) Client
