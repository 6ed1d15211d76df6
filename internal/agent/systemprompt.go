package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/clawbox/internal/tools"
)

// SystemPromptConfig carries everything the system prompt mentions.
// Rebuilt per request so it picks up hot-reloaded skills and the current
// date without restarting.
type SystemPromptConfig struct {
	Tools           []tools.Tool
	AllowedCommands []string
	Workspace       string
	SkillsSummary   string
	Now             time.Time
}

// BuildSystemPrompt renders the system message sent on every request.
func BuildSystemPrompt(cfg SystemPromptConfig) string {
	toolsDesc := "No tools available."
	if len(cfg.Tools) > 0 {
		var lines []string
		for _, t := range cfg.Tools {
			lines = append(lines, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
		}
		toolsDesc = strings.Join(lines, "\n")
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	b.WriteString("You are clawbox, a helpful assistant that can execute commands safely in a sandboxed environment.\n\n")
	fmt.Fprintf(&b, "Current date: %s\n", now.Format("2006-01-02"))
	if cfg.Workspace != "" {
		fmt.Fprintf(&b, "Workspace: %s (mounted at /workspace in the sandbox)\n", cfg.Workspace)
	}
	b.WriteString("\nYou have access to the following tools:\n")
	b.WriteString(toolsDesc)
	b.WriteString("\n\nWhen you need to use a tool, respond with a tool call. Always explain what you're doing before executing commands.\n")
	b.WriteString("\nImportant:\n")
	b.WriteString("- Commands run in an isolated Docker container\n")
	if len(cfg.AllowedCommands) > 0 {
		fmt.Fprintf(&b, "- Only these commands are available: %s\n", strings.Join(cfg.AllowedCommands, ", "))
	}
	b.WriteString("- No network access from the container\n")
	b.WriteString("- Files persist in /workspace during the session\n")
	b.WriteString("- Be careful with destructive operations\n")

	if cfg.SkillsSummary != "" {
		b.WriteString("\n")
		b.WriteString(cfg.SkillsSummary)
		b.WriteString("\n")
	}

	b.WriteString("\nIf you cannot complete a task with the available tools, explain why.")
	return b.String()
}
