package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/clawbox/internal/command"
	"github.com/nextlevelbuilder/clawbox/internal/sandbox"
)

// Sandbox is the container surface the shell tool needs.
// *sandbox.Manager satisfies it; tests substitute a fake.
type Sandbox interface {
	Exec(ctx context.Context, conversationID string, argv []string, timeout time.Duration) (*sandbox.ExecResult, error)
	ContainerID(conversationID string) (string, bool)
}

// ShellTool executes allowlisted commands inside the conversation's
// sandbox container. Commands pass the validator before anything touches
// the container; rejected commands never reach the engine.
type ShellTool struct {
	sandbox Sandbox
	timeout time.Duration
}

func NewShellTool(sb Sandbox, timeout time.Duration) *ShellTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShellTool{sandbox: sb, timeout: timeout}
}

func (t *ShellTool) Name() string { return "shell_exec" }

func (t *ShellTool) Description() string {
	return "Execute a shell command in an isolated sandbox container. " +
		"Only a fixed allowlist of commands is permitted (file inspection, text processing, " +
		"filesystem operations); pipes, redirection and command chaining are rejected. " +
		"Files persist in /workspace across commands. No network access."
}

func (t *ShellTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The command to execute, e.g. 'ls -la' or 'grep -r pattern .'",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	cmd, _ := args["command"].(string)

	argv, err := command.Validate(cmd)
	if err != nil {
		var verr *command.Error
		if errors.As(err, &verr) {
			return KindedError(string(verr.Kind), fmt.Sprintf("command rejected: %v", err)).WithError(err)
		}
		return ErrorResult(fmt.Sprintf("command rejected: %v", err)).WithError(err)
	}

	conversationID := ConversationIDFromCtx(ctx)
	res, err := t.sandbox.Exec(ctx, conversationID, argv, t.timeout)
	if err != nil {
		var serr *sandbox.Error
		if errors.As(err, &serr) {
			return t.withExecMeta(KindedError(string(serr.Kind), fmt.Sprintf("sandbox: %v", err)).WithError(err), conversationID, argv, res)
		}
		return t.withExecMeta(ErrorResult(fmt.Sprintf("sandbox: %v", err)).WithError(err), conversationID, argv, res)
	}

	output := res.Output
	if res.Truncated {
		output += "\n...[output truncated]"
	}

	if res.TimedOut {
		msg := fmt.Sprintf("command timed out after %s", t.timeout)
		if output != "" {
			msg += "\n" + output
		}
		r := KindedError(string(sandbox.KindExecTimeout), msg)
		return t.withExecMeta(r, conversationID, argv, res)
	}

	// Nonzero exits are normal results the model should see, not errors.
	if res.ExitCode != 0 {
		if output == "" {
			output = fmt.Sprintf("command exited with code %d", res.ExitCode)
		} else {
			output += fmt.Sprintf("\n(exit code %d)", res.ExitCode)
		}
	} else if output == "" {
		output = "(command completed with no output)"
	}

	return t.withExecMeta(NewResult(output), conversationID, argv, res)
}

// withExecMeta attaches the exec metadata used by the dispatch log record
// and the run trace.
func (t *ShellTool) withExecMeta(r *Result, conversationID string, argv []string, res *sandbox.ExecResult) *Result {
	r.Argv = argv
	if id, ok := t.sandbox.ContainerID(conversationID); ok {
		r.ContainerID = id
	}
	if res != nil {
		if !res.TimedOut {
			code := res.ExitCode
			r.ExitCode = &code
		}
		r.Duration = res.Duration
		r.Truncated = res.Truncated
		r.TimedOut = res.TimedOut
	}
	return r
}
