// Package sandbox runs tool commands inside per-conversation Docker
// containers.
//
// Each conversation owns one container, named "runner-<conversation id>",
// created lazily on first exec and kept warm for subsequent commands.
// Every container is locked down the same way: read-only root filesystem,
// no network interface, all capabilities dropped, an unprivileged user,
// and pid/memory/cpu limits. The only writable surfaces are the
// conversation's workspace bind mount and a small tmpfs at /tmp.
//
// A container that times out, disappears, or turns unhealthy is removed
// and forgotten; the next exec for that conversation recreates it.
package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Kind classifies sandbox failures.
type Kind string

const (
	// KindUnavailable means the container engine is unreachable or the
	// container vanished mid-exec.
	KindUnavailable Kind = "sandbox-unavailable"
	// KindStartFailed means the container could not be created or started.
	KindStartFailed Kind = "container-start-failed"
	// KindExecTimeout labels results whose command hit the wall-clock limit.
	KindExecTimeout Kind = "exec-timeout"
)

// Error is a sandbox failure with a machine-readable kind.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Config configures container creation and exec limits.
type Config struct {
	Image          string  `json:"image"`
	MemoryMiB      int     `json:"mem_mib"`
	CPUs           float64 `json:"cpus"`
	PidsLimit      int     `json:"pids"`
	TimeoutSec     int     `json:"exec_timeout_s"`
	OutputCapBytes int     `json:"output_cap_bytes"`
	WorkspaceRoot  string  `json:"workspace_root,omitempty"`
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		Image:          "debian:bookworm-slim",
		MemoryMiB:      512,
		CPUs:           1.0,
		PidsLimit:      128,
		TimeoutSec:     30,
		OutputCapBytes: 64 * 1024,
	}
}

// Timeout returns the exec wall-clock limit as a duration.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// ExecResult is the outcome of one command run inside a container.
// Output holds combined stdout+stderr, capped at OutputCapBytes.
// ExitCode is meaningful only when TimedOut is false.
type ExecResult struct {
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated"`
	TimedOut  bool          `json:"timed_out"`
}

// CheckAvailable verifies that the Docker CLI and daemon are reachable.
func CheckAvailable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "docker", "info", "--format", "{{.ServerVersion}}").CombinedOutput()
	if err != nil {
		return &Error{
			Kind:   KindUnavailable,
			Detail: fmt.Sprintf("docker not available (output: %s)", strings.TrimSpace(string(out))),
			Err:    err,
		}
	}
	return nil
}
