// Package agent is the boundary to the code-generation capability. The core
// pipeline only requires Backend.Run: given a working directory and an
// instruction, mutate files in that directory and yield an ordered message
// sequence. The workspace after Run may have arbitrary additions,
// modifications, deletions, or be unchanged.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
)

// Options configures a single agent run.
type Options struct {
	Dir      string // Working directory the agent mutates. Required.
	Prompt   string // Natural-language instruction.
	MaxTurns int    // 0 means unlimited.
	Model    string // Model alias; empty means the CLI default.
}

// Backend runs the code-generation capability against a workspace. Run
// blocks for the duration of generation with no guarantee on elapsed time;
// intermediate messages are sent to msgCh as they arrive and the terminal
// result is returned.
type Backend interface {
	Harness() Harness
	Run(ctx context.Context, opts Options, msgCh chan<- Message, logW io.Writer) (*ResultMessage, error)
}

// Session manages a running agent process. Use start on a prepared command.
type Session struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	logW      io.Writer
	mu        sync.Mutex // serializes stdin writes
	closeOnce sync.Once
	done      chan struct{} // closed when readMessages goroutine exits
	result    *ResultMessage
	err       error
}

// NewSession creates a Session from an already-started command. Messages
// read from stdout are sent to msgCh. logW receives raw NDJSON lines (may
// be nil).
func NewSession(cmd *exec.Cmd, stdin io.WriteCloser, stdout io.Reader, msgCh chan<- Message, logW io.Writer) *Session {
	s := &Session{
		cmd:   cmd,
		stdin: stdin,
		logW:  logW,
		done:  make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		result, parseErr := readMessages(stdout, msgCh, logW)
		waitErr := cmd.Wait()
		s.result = result
		switch {
		case result != nil:
			// Got a proper result; exit status no longer matters.
		case parseErr != nil:
			s.err = fmt.Errorf("parse: %w", parseErr)
		case waitErr != nil:
			s.err = fmt.Errorf("agent exited: %w", waitErr)
		default:
			s.err = errors.New("agent exited without a result message")
		}
	}()

	return s
}

// Send writes a user message to the agent's stdin. Safe for concurrent use.
// The first call typically provides the initial task prompt.
func (s *Session) Send(prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeMessage(s.stdin, prompt, s.logW)
}

// Close closes stdin so the agent process can exit. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
	})
}

// Wait blocks until the agent process exits and returns the result.
func (s *Session) Wait() (*ResultMessage, error) {
	<-s.done
	return s.result, s.err
}

// userInputMessage is the NDJSON message sent to the agent via stdin.
type userInputMessage struct {
	Type    string           `json:"type"`
	Message userInputContent `json:"message"`
}

type userInputContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// writeMessage writes a single user message NDJSON line to w. If logW is
// non-nil, the same line is also written to the log.
func writeMessage(w io.Writer, prompt string, logW io.Writer) error {
	msg := userInputMessage{
		Type:    "user",
		Message: userInputContent{Role: "user", Content: prompt},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return err
	}
	if logW != nil {
		_, _ = logW.Write(data)
	}
	return nil
}

// readMessages reads NDJSON lines from r, dispatches to msgCh, and returns
// the terminal ResultMessage. If logW is non-nil, each raw line is written
// to it.
func readMessages(r io.Reader, msgCh chan<- Message, logW io.Writer) (*ResultMessage, error) {
	scanner := bufio.NewScanner(r)
	// The agent can produce long lines (e.g., base64 images in tool results).
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	var result *ResultMessage
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if logW != nil {
			_, _ = logW.Write(line)
			_, _ = logW.Write([]byte{'\n'})
		}
		msg, err := ParseMessage(line)
		if err != nil {
			slog.Warn("skipping unparseable message", "err", err, "line", string(line))
			continue
		}
		if msgCh != nil {
			msgCh <- msg
		}
		if rm, ok := msg.(*ResultMessage); ok {
			result = rm
		}
	}
	return result, scanner.Err()
}

// ParseMessage decodes a single NDJSON line into a typed Message.
func ParseMessage(line []byte) (Message, error) {
	var envelope struct {
		Type    string `json:"type"`
		Subtype string `json:"subtype"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	var msg Message
	switch envelope.Type {
	case "system":
		if envelope.Subtype == "init" {
			msg = &SystemInitMessage{}
		} else {
			msg = &SystemMessage{}
		}
	case "assistant":
		msg = &AssistantMessage{}
	case "user":
		msg = &UserMessage{}
	case "result":
		msg = &ResultMessage{}
	default:
		// stream_event, tool_progress, etc. pass through as raw.
		return &RawMessage{MessageType: envelope.Type, Raw: append([]byte(nil), line...)}, nil
	}
	if err := json.Unmarshal(line, msg); err != nil {
		return nil, err
	}
	msg.(rawCarrier).setRaw(line)
	return msg, nil
}
