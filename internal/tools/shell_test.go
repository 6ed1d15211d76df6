package tools

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clawbox/internal/command"
	"github.com/nextlevelbuilder/clawbox/internal/sandbox"
)

// fakeSandbox records exec calls and returns a scripted result.
type fakeSandbox struct {
	result   *sandbox.ExecResult
	err      error
	calls    int
	lastArgv []string
	lastID   string
}

func (f *fakeSandbox) Exec(_ context.Context, conversationID string, argv []string, _ time.Duration) (*sandbox.ExecResult, error) {
	f.calls++
	f.lastArgv = argv
	f.lastID = conversationID
	return f.result, f.err
}

func (f *fakeSandbox) ContainerID(string) (string, bool) {
	return "abc123def456", true
}

func TestShellExecute_HappyPath(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.ExecResult{ExitCode: 0, Output: "file.txt\n", Duration: 12 * time.Millisecond}}
	tool := NewShellTool(sb, 30*time.Second)

	ctx := WithConversationID(context.Background(), "cli-11112222")
	res := tool.Execute(ctx, map[string]interface{}{"command": "ls -la /workspace"})

	if res.IsError {
		t.Fatalf("expected success, got: %s", res.ForLLM)
	}
	if res.ForLLM != "file.txt\n" {
		t.Errorf("output = %q", res.ForLLM)
	}
	if !reflect.DeepEqual(sb.lastArgv, []string{"ls", "-la", "/workspace"}) {
		t.Errorf("argv = %v", sb.lastArgv)
	}
	if sb.lastID != "cli-11112222" {
		t.Errorf("conversation id = %q", sb.lastID)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("exit code = %v", res.ExitCode)
	}
	if res.ContainerID != "abc123def456" {
		t.Errorf("container id = %q", res.ContainerID)
	}
}

func TestShellExecute_RejectedNeverReachesSandbox(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.ExecResult{}}
	tool := NewShellTool(sb, 0)

	tests := []struct {
		cmd  string
		kind string
	}{
		{"cat /etc/passwd | grep root", string(command.KindForbiddenPattern)},
		{"curl http://example.com", string(command.KindNotAllowed)},
		{"", string(command.KindEmptyCommand)},
		{"sh -x script", string(command.KindBadShellForm)},
	}
	for _, tt := range tests {
		res := tool.Execute(context.Background(), map[string]interface{}{"command": tt.cmd})
		if !res.IsError {
			t.Errorf("command %q: expected rejection", tt.cmd)
			continue
		}
		if res.Kind != tt.kind {
			t.Errorf("command %q: kind = %q, want %q", tt.cmd, res.Kind, tt.kind)
		}
	}
	if sb.calls != 0 {
		t.Errorf("sandbox received %d execs for rejected commands", sb.calls)
	}
}

func TestShellExecute_NonzeroExitIsNotAnError(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.ExecResult{ExitCode: 1, Output: "grep: no match\n"}}
	tool := NewShellTool(sb, 0)

	res := tool.Execute(context.Background(), map[string]interface{}{"command": "grep needle haystack.txt"})
	if res.IsError {
		t.Fatal("nonzero exit must be a normal result")
	}
	if !strings.Contains(res.ForLLM, "(exit code 1)") {
		t.Errorf("output %q missing exit code marker", res.ForLLM)
	}
	if res.ExitCode == nil || *res.ExitCode != 1 {
		t.Errorf("exit code = %v", res.ExitCode)
	}
}

func TestShellExecute_NonzeroExitNoOutput(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.ExecResult{ExitCode: 2}}
	tool := NewShellTool(sb, 0)

	res := tool.Execute(context.Background(), map[string]interface{}{"command": "ls /nope"})
	if res.IsError {
		t.Fatal("nonzero exit must be a normal result")
	}
	if res.ForLLM != "command exited with code 2" {
		t.Errorf("output = %q", res.ForLLM)
	}
}

func TestShellExecute_EmptyOutput(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.ExecResult{ExitCode: 0}}
	tool := NewShellTool(sb, 0)

	res := tool.Execute(context.Background(), map[string]interface{}{"command": "touch a.txt"})
	if res.ForLLM != "(command completed with no output)" {
		t.Errorf("output = %q", res.ForLLM)
	}
}

func TestShellExecute_Timeout(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.ExecResult{ExitCode: -1, Output: "partial", TimedOut: true}}
	tool := NewShellTool(sb, 30*time.Second)

	res := tool.Execute(context.Background(), map[string]interface{}{"command": "find / -name x"})
	if !res.IsError {
		t.Fatal("timeout should be an error result")
	}
	if res.Kind != string(sandbox.KindExecTimeout) {
		t.Errorf("kind = %q, want %q", res.Kind, sandbox.KindExecTimeout)
	}
	if !strings.Contains(res.ForLLM, "timed out after 30s") {
		t.Errorf("message = %q", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "partial") {
		t.Errorf("captured output missing from %q", res.ForLLM)
	}
	if !res.TimedOut {
		t.Error("timed out flag not set")
	}
	if res.ExitCode != nil {
		t.Errorf("exit code should be absent on timeout, got %d", *res.ExitCode)
	}
}

func TestShellExecute_TruncatedOutput(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.ExecResult{ExitCode: 0, Output: "big", Truncated: true}}
	tool := NewShellTool(sb, 0)

	res := tool.Execute(context.Background(), map[string]interface{}{"command": "cat big.log"})
	if !strings.Contains(res.ForLLM, "...[output truncated]") {
		t.Errorf("output %q missing truncation marker", res.ForLLM)
	}
	if !res.Truncated {
		t.Error("truncated flag not set")
	}
}

func TestShellExecute_SandboxUnavailable(t *testing.T) {
	sb := &fakeSandbox{err: &sandbox.Error{Kind: sandbox.KindUnavailable, Detail: "docker daemon unreachable"}}
	tool := NewShellTool(sb, 0)

	res := tool.Execute(context.Background(), map[string]interface{}{"command": "pwd"})
	if !res.IsError {
		t.Fatal("expected error when sandbox is down")
	}
	if res.Kind != string(sandbox.KindUnavailable) {
		t.Errorf("kind = %q, want %q", res.Kind, sandbox.KindUnavailable)
	}
}
