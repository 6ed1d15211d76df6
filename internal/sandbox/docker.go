package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// namePrefix identifies containers owned by this process family.
// CleanupAll reaps every container carrying it, including orphans
// left behind by prior crashes.
const namePrefix = "runner-"

// tmpfsSizeMiB caps the in-memory scratch mount at /tmp.
const tmpfsSizeMiB = 64

// container is one warm runner plus its bookkeeping.
type container struct {
	id        string // engine-assigned id, shortened to 12 chars
	name      string
	workspace string
	createdAt time.Time

	mu       sync.Mutex // protects lastUsed
	lastUsed time.Time
}

func (c *container) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

func (c *container) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// Manager creates, reuses and destroys per-conversation containers.
// Execs within one conversation are serialised by the session layer,
// so the manager only guards its own map; execs across conversations
// run in parallel.
type Manager struct {
	cfg Config

	mu         sync.RWMutex
	containers map[string]*container
}

// NewManager returns a manager with no containers started.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:        cfg,
		containers: make(map[string]*container),
	}
}

// ContainerID reports the engine id of the conversation's container,
// if one is currently running.
func (m *Manager) ContainerID(conversationID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.containers[conversationID]
	if !ok {
		return "", false
	}
	return c.id, true
}

// Exec runs argv inside the conversation's container, creating it first
// if needed. The argv is passed straight to the runtime with no shell in
// between. A nonzero exit is a normal result, not an error. When the
// wall-clock limit expires the container is destroyed (the only reliable
// way to kill the inner process through the CLI) and the result carries
// TimedOut; the next exec starts fresh.
//
// timeout <= 0 selects the configured default.
func (m *Manager) Exec(ctx context.Context, conversationID string, argv []string, timeout time.Duration) (*ExecResult, error) {
	if len(argv) == 0 {
		return nil, &Error{Kind: KindUnavailable, Detail: "empty argv"}
	}
	if timeout <= 0 {
		timeout = m.cfg.Timeout()
	}

	c, err := m.ensure(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	c.touch()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"exec", "-w", "/workspace", c.id}
	args = append(args, argv...)
	cmd := exec.CommandContext(execCtx, "docker", args...)

	// One buffer for both streams keeps interleaving faithful to what a
	// terminal would show; exec.Cmd serialises writes when Stdout == Stderr.
	out := &limitedBuffer{max: m.cfg.OutputCapBytes}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	res := &ExecResult{
		Output:    out.String(),
		Duration:  elapsed,
		Truncated: out.truncated,
	}

	if execCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		m.forget(conversationID)
		destroyCtx, destroyCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer destroyCancel()
		if err := removeContainer(destroyCtx, c.name); err != nil {
			slog.Warn("failed to remove timed-out container", "container", c.name, "error", err)
		}
		slog.Info("exec timed out", "conversation_id", conversationID, "container_id", c.id, "timeout", timeout)
		return res, nil
	}

	if ctx.Err() != nil {
		// Killing the docker exec client does not stop the process inside
		// the container, so a cancelled exec destroys the container too.
		m.forget(conversationID)
		destroyCtx, destroyCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer destroyCancel()
		if err := removeContainer(destroyCtx, c.name); err != nil {
			slog.Warn("failed to remove cancelled container", "container", c.name, "error", err)
		}
		return nil, ctx.Err()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// The docker client itself failed: the container is gone, stuck, or
		// the engine is unreachable. Remove by name in case it is stuck and
		// forget the handle so the next exec recreates from scratch.
		m.forget(conversationID)
		destroyCtx, destroyCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer destroyCancel()
		if err := removeContainer(destroyCtx, c.name); err != nil {
			slog.Debug("post-failure container removal", "container", c.name, "error", err)
		}
		return nil, &Error{Kind: KindUnavailable, Detail: "docker exec failed", Err: runErr}
	}

	return res, nil
}

// Reset destroys the conversation's container if one exists. Calling it
// for an unknown or already-reset conversation is a no-op. The container
// is removed by name so that orphans from earlier runs are caught too.
func (m *Manager) Reset(ctx context.Context, conversationID string) error {
	m.forget(conversationID)

	name := namePrefix + sanitizeID(conversationID)
	if err := removeContainer(ctx, name); err != nil {
		slog.Warn("reset: container removal failed", "container", name, "error", err)
		return err
	}
	return nil
}

// CleanupAll force-removes every container named with the runner prefix,
// whether or not this manager started it. Run it at startup to reap
// orphans from prior crashes and again at shutdown.
func (m *Manager) CleanupAll(ctx context.Context) error {
	m.mu.Lock()
	m.containers = make(map[string]*container)
	m.mu.Unlock()

	names, err := listRunnerNames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			if err := removeContainer(gctx, name); err != nil {
				slog.Warn("cleanup: container removal failed", "container", name, "error", err)
				return err
			}
			slog.Info("cleanup: container removed", "container", name)
			return nil
		})
	}
	return g.Wait()
}

// sweepIdle removes containers whose last exec is older than the cutoff.
// Returns the number removed.
func (m *Manager) sweepIdle(ctx context.Context, idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)

	m.mu.RLock()
	var stale []string
	for id, c := range m.containers {
		if c.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		m.mu.Lock()
		c, ok := m.containers[id]
		if ok {
			delete(m.containers, id)
		}
		m.mu.Unlock()
		if !ok {
			continue
		}
		if err := removeContainer(ctx, c.name); err != nil {
			slog.Warn("sweep: container removal failed", "container", c.name, "error", err)
			continue
		}
		slog.Info("sweep: idle container removed", "conversation_id", id, "container", c.name)
		removed++
	}
	return removed
}

// ensure returns the conversation's container, creating and starting it
// under the standard isolation flags if absent.
func (m *Manager) ensure(ctx context.Context, conversationID string) (*container, error) {
	m.mu.RLock()
	if c, ok := m.containers[conversationID]; ok {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check: another goroutine may have created it meanwhile.
	if c, ok := m.containers[conversationID]; ok {
		return c, nil
	}

	workspace, err := m.ensureWorkspace(conversationID)
	if err != nil {
		return nil, &Error{Kind: KindStartFailed, Detail: "workspace directory", Err: err}
	}

	name := namePrefix + sanitizeID(conversationID)

	// A leftover container under this name (from a crashed run) would
	// collide; remove it before creating.
	_ = removeContainer(ctx, name)

	args := []string{
		"run", "-d",
		"--name", name,
		"--label", "clawbox.runner=true",
		"--read-only",
		"--cap-drop", "ALL",
		"--network", "none",
		"--user", "1000:1000",
		"--security-opt", "no-new-privileges",
		"--pids-limit", fmt.Sprintf("%d", m.cfg.PidsLimit),
		"--memory", fmt.Sprintf("%dm", m.cfg.MemoryMiB),
		"--cpus", fmt.Sprintf("%.1f", m.cfg.CPUs),
		"--tmpfs", fmt.Sprintf("/tmp:size=%dm", tmpfsSizeMiB),
		"-v", workspace + ":/workspace:rw",
		"-w", "/workspace",
		m.cfg.Image, "sleep", "infinity",
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &Error{
			Kind:   KindStartFailed,
			Detail: fmt.Sprintf("docker run failed: %s", strings.TrimSpace(stderr.String())),
			Err:    err,
		}
	}

	id := strings.TrimSpace(stdout.String())
	if len(id) > 12 {
		id = id[:12]
	}

	now := time.Now()
	c := &container{
		id:        id,
		name:      name,
		workspace: workspace,
		createdAt: now,
		lastUsed:  now,
	}
	m.containers[conversationID] = c

	slog.Info("container started",
		"conversation_id", conversationID,
		"container_id", id,
		"container", name,
		"image", m.cfg.Image)
	return c, nil
}

// ensureWorkspace creates the conversation's host workspace directory.
func (m *Manager) ensureWorkspace(conversationID string) (string, error) {
	root := m.cfg.WorkspaceRoot
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		root = filepath.Join(home, ".clawbox", "workspace")
	}
	dir := filepath.Join(root, sanitizeID(conversationID))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func (m *Manager) forget(conversationID string) {
	m.mu.Lock()
	delete(m.containers, conversationID)
	m.mu.Unlock()
}

func removeContainer(ctx context.Context, name string) error {
	out, err := exec.CommandContext(ctx, "docker", "rm", "-f", name).CombinedOutput()
	if err != nil {
		msg := string(out)
		if strings.Contains(msg, "No such container") {
			return nil
		}
		return fmt.Errorf("docker rm %s: %w (output: %s)", name, err, strings.TrimSpace(msg))
	}
	return nil
}

func listRunnerNames(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "docker", "ps", "-a", "--format", "{{.Names}}").CombinedOutput()
	if err != nil {
		return nil, &Error{
			Kind:   KindUnavailable,
			Detail: fmt.Sprintf("docker ps failed (output: %s)", strings.TrimSpace(string(out))),
			Err:    err,
		}
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if strings.HasPrefix(name, namePrefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

// sanitizeID makes a conversation id safe for container names and
// directory names.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	safe := b.String()
	if safe == "" {
		safe = "default"
	}
	if len(safe) > 50 {
		safe = safe[:50]
	}
	return safe
}

// limitedBuffer stops accepting writes after max bytes, keeping command
// output from exhausting memory.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (lb *limitedBuffer) Write(p []byte) (int, error) {
	if lb.truncated {
		return len(p), nil // discard silently
	}
	remaining := lb.max - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		lb.buf.Write(p[:remaining])
		lb.truncated = true
		return len(p), nil
	}
	return lb.buf.Write(p)
}

func (lb *limitedBuffer) String() string {
	return lb.buf.String()
}
