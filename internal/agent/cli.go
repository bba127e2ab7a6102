package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// CLI implements Backend for the Claude Code command-line interface, run
// locally against the workspace directory via the stream-json protocol.
type CLI struct {
	// Path is the agent executable; defaults to "claude".
	Path string
}

var _ Backend = (*CLI)(nil)

// Harness returns the harness identifier.
func (c *CLI) Harness() Harness { return Claude }

// Run launches the agent process in opts.Dir, sends the prompt, closes
// stdin, and blocks until the terminal result message arrives or the
// process exits.
func (c *CLI) Run(ctx context.Context, opts Options, msgCh chan<- Message, logW io.Writer) (*ResultMessage, error) {
	s, err := c.start(ctx, opts, msgCh, logW)
	if err != nil {
		return nil, err
	}
	if err := s.Send(opts.Prompt); err != nil {
		s.Close()
		_, _ = s.Wait()
		return nil, fmt.Errorf("write prompt: %w", err)
	}
	s.Close()
	return s.Wait()
}

// start builds and launches the agent command.
func (c *CLI) start(ctx context.Context, opts Options, msgCh chan<- Message, logW io.Writer) (*Session, error) {
	if opts.Dir == "" {
		return nil, errors.New("opts.Dir is required")
	}
	path := c.Path
	if path == "" {
		path = "claude"
	}
	args := []string{
		"-p",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	cmd := exec.CommandContext(ctx, path, args...) //nolint:gosec // args are not user-controlled.
	cmd.Dir = opts.Dir
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = nil // Errors come via JSON on stdout.
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}
	return NewSession(cmd, stdin, stdout, msgCh, logW), nil
}
