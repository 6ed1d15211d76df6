package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/clawbox/internal/command"
	"github.com/nextlevelbuilder/clawbox/internal/providers"
	"github.com/nextlevelbuilder/clawbox/internal/sessions"
	"github.com/nextlevelbuilder/clawbox/internal/tools"
)

// SkillsSummarizer supplies the enabled-skills digest injected into the
// system prompt. Queried per request so hot-reloaded skills show up
// without a restart.
type SkillsSummarizer interface {
	Summary() string
}

// SandboxController is the slice of the sandbox manager the coordinator
// needs: the container weak reference for session bookkeeping, and
// teardown on reset.
type SandboxController interface {
	ContainerID(conversationID string) (string, bool)
	Reset(ctx context.Context, conversationID string) error
}

// Coordinator ties sessions, the loop, and the system prompt together:
// one inbound message in, one terminal result out. Requests for the same
// conversation id are strictly serialised; different ids run in parallel.
type Coordinator struct {
	sessions  *sessions.Manager
	loop      *Loop
	tools     *tools.Registry
	sandbox   SandboxController
	skills    SkillsSummarizer
	workspace string
}

// CoordinatorConfig configures a Coordinator. Sandbox and Skills may be
// nil; the related bookkeeping is skipped.
type CoordinatorConfig struct {
	Sessions  *sessions.Manager
	Loop      *Loop
	Tools     *tools.Registry
	Sandbox   SandboxController
	Skills    SkillsSummarizer
	Workspace string
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		sessions:  cfg.Sessions,
		loop:      cfg.Loop,
		tools:     cfg.Tools,
		sandbox:   cfg.Sandbox,
		skills:    cfg.Skills,
		workspace: cfg.Workspace,
	}
}

// HandleMessage runs one user message through the loop to termination.
// The per-conversation mutex is held for the entire call.
func (c *Coordinator) HandleMessage(ctx context.Context, conversationID, text string) *RunResult {
	mu := c.sessions.Lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	c.sessions.GetOrCreate(conversationID)

	var skillsSummary string
	if c.skills != nil {
		skillsSummary = c.skills.Summary()
	}
	system := providers.Message{
		Role: "system",
		Content: BuildSystemPrompt(SystemPromptConfig{
			Tools:           c.tools.List(),
			AllowedCommands: command.Allowed(),
			Workspace:       c.workspace,
			SkillsSummary:   skillsSummary,
		}),
	}
	userMsg := providers.Message{Role: "user", Content: text}

	history := c.sessions.History(conversationID)
	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, userMsg)

	res := c.loop.Run(ctx, RunRequest{ConversationID: conversationID, Messages: messages})

	// The system prompt is rebuilt per request and never stored.
	persist := make([]providers.Message, 0, len(res.NewMessages)+1)
	persist = append(persist, userMsg)
	persist = append(persist, res.NewMessages...)
	c.sessions.AppendMessages(conversationID, persist...)

	if c.sandbox != nil {
		if id, ok := c.sandbox.ContainerID(conversationID); ok {
			c.sessions.SetContainerID(conversationID, id)
		}
	}

	slog.Info("loop finished",
		"conversation_id", conversationID,
		"stop_reason", res.StopReason,
		"turns", res.Turns,
		"duration_ms", time.Since(start).Milliseconds())

	return res
}

// Reset drops the conversation's history and tears down its container.
// Safe to call for ids that were never seen.
func (c *Coordinator) Reset(ctx context.Context, conversationID string) error {
	mu := c.sessions.Lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	c.sessions.Delete(conversationID)
	if c.sandbox != nil {
		return c.sandbox.Reset(ctx, conversationID)
	}
	return nil
}
