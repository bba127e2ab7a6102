package task

import (
	"encoding/json"
	"log/slog"

	"github.com/morphlabs/morphd/internal/agent"
	"github.com/morphlabs/morphd/internal/patch"
	"github.com/morphlabs/morphd/internal/snapshot"
)

// Outcome tags for Result.Status.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// BinaryMarker replaces undecodable content in the changed-file maps.
const BinaryMarker = "[Binary file]"

// DeletedMarker is the value recorded for every deleted path. The old
// content is not echoed back; it is recoverable from the patch hunks.
const DeletedMarker = "[deleted]"

// ChangedFiles is the classified view of a ChangeSet in the response
// payload. All three maps are always present, empty when nothing matches.
type ChangedFiles struct {
	Added    map[string]string `json:"added"`
	Modified map[string]string `json:"modified"`
	Deleted  map[string]string `json:"deleted"`
}

// Result is the response contract for one processed request. The shape is
// fixed regardless of whether changes are empty: an empty ChangeSet still
// yields a well-formed empty patch and empty maps.
type Result struct {
	Status         string            `json:"status"`
	BranchName     string            `json:"branch_name"`
	Patch          string            `json:"patch"`
	ChangedFiles   ChangedFiles      `json:"changed_files"`
	ClaudeMessages []json.RawMessage `json:"claude_messages"`
	Error          string            `json:"error,omitempty"`
}

// assemble packages the classified changes, rendered patch, and agent
// message sequence into the response contract.
func assemble(branch string, cs snapshot.ChangeSet, patchText string, msgs []agent.Message) *Result {
	r := &Result{
		Status:     StatusSuccess,
		BranchName: branch,
		Patch:      patchText,
		ChangedFiles: ChangedFiles{
			Added:    map[string]string{},
			Modified: map[string]string{},
			Deleted:  map[string]string{},
		},
		ClaudeMessages: []json.RawMessage{},
	}
	for path, content := range cs.Added {
		r.ChangedFiles.Added[path] = contentOrMarker(content)
	}
	for path, edit := range cs.Modified {
		r.ChangedFiles.Modified[path] = contentOrMarker(edit.After)
	}
	for path := range cs.Deleted {
		r.ChangedFiles.Deleted[path] = DeletedMarker
	}
	for _, m := range msgs {
		data, err := agent.MarshalMessage(m)
		if err != nil {
			slog.Warn("dropping unmarshalable agent message", "type", m.Type(), "err", err)
			continue
		}
		r.ClaudeMessages = append(r.ClaudeMessages, data)
	}
	return r
}

// contentOrMarker returns content as a string, or the binary sentinel when
// it cannot be represented as text.
func contentOrMarker(content []byte) string {
	if patch.IsBinary(content) {
		return BinaryMarker
	}
	return string(content)
}
