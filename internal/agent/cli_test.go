package agent

import (
	"os/exec"
	"runtime"
	"testing"
)

// startShell starts a shell script wired like a real agent process: it reads
// one stdin line then emits NDJSON messages on stdout.
func startShell(t *testing.T, script string, msgCh chan<- Message) *Session {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	cmd := exec.Command("sh", "-c", script)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	return NewSession(cmd, stdin, stdout, msgCh, nil)
}

func TestSession(t *testing.T) {
	t.Run("FullRun", func(t *testing.T) {
		script := `read line
echo '{"type":"system","subtype":"init","session_id":"test-session","cwd":"/workspace","model":"fake-model","claude_code_version":"0.0.0-test"}'
echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"I completed the requested task."}]}}'
echo '{"type":"result","subtype":"success","result":"All done.","num_turns":1,"total_cost_usd":0.01,"duration_ms":500}'
`
		msgCh := make(chan Message, 16)
		s := startShell(t, script, msgCh)
		if err := s.Send("do the thing"); err != nil {
			t.Fatal(err)
		}
		s.Close()
		result, err := s.Wait()
		close(msgCh)
		if err != nil {
			t.Fatal(err)
		}
		if result.Result != "All done." {
			t.Errorf("result = %q", result.Result)
		}
		var types []string
		for m := range msgCh {
			types = append(types, m.Type())
		}
		if len(types) != 3 || types[2] != "result" {
			t.Errorf("types = %v", types)
		}
	})
	t.Run("ExitWithoutResult", func(t *testing.T) {
		s := startShell(t, "read line\nexit 0\n", nil)
		if err := s.Send("hello"); err != nil {
			t.Fatal(err)
		}
		s.Close()
		if _, err := s.Wait(); err == nil {
			t.Fatal("expected error for missing result message")
		}
	})
	t.Run("ProcessFailure", func(t *testing.T) {
		s := startShell(t, "read line\nexit 3\n", nil)
		if err := s.Send("hello"); err != nil {
			t.Fatal(err)
		}
		s.Close()
		if _, err := s.Wait(); err == nil {
			t.Fatal("expected exit error")
		}
	})
	t.Run("CloseIdempotent", func(t *testing.T) {
		s := startShell(t, "read line\necho '{\"type\":\"result\",\"subtype\":\"success\",\"result\":\"x\",\"num_turns\":1}'\n", nil)
		if err := s.Send("hi"); err != nil {
			t.Fatal(err)
		}
		s.Close()
		s.Close()
		if _, err := s.Wait(); err != nil {
			t.Fatal(err)
		}
	})
}
