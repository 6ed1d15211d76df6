package telegram

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
)

const helpText = `I run your requests in a sandboxed shell and report back.

Commands:
/start - Show the welcome message
/help - Show this help
/reset - Clear the conversation and start fresh

Anything else you send is handed to the assistant.`

const welcomeText = `Hi! I'm clawbox. Send me a task and I'll work on it in an isolated sandbox.

Type /help to see what I can do.`

// menuCommands is registered with Telegram so the commands show up in
// the chat menu.
var menuCommands = []telego.BotCommand{
	{Command: "start", Description: "Show the welcome message"},
	{Command: "help", Description: "Show help"},
	{Command: "reset", Description: "Clear the conversation"},
}

// parseCommand extracts the command name from a message, stripping the
// bot mention and any arguments: "/Reset@my_bot now" → "/reset". Returns
// the empty string when the text is not a command.
func parseCommand(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.SplitN(text, " ", 2)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0]
	return strings.ToLower(cmd)
}

// handleCommand dispatches bot commands. Returns false when the text is
// not a command so the caller passes it to the agent.
func (c *Channel) handleCommand(ctx context.Context, chatID int64, text string) bool {
	cmd := parseCommand(text)
	if cmd == "" {
		return false
	}

	switch cmd {
	case "/start":
		c.send(ctx, chatID, welcomeText)
	case "/help":
		c.send(ctx, chatID, helpText)
	case "/reset":
		if err := c.responder.Reset(ctx, conversationID(chatID)); err != nil {
			slog.Warn("telegram reset failed", "chat_id", chatID, "error", err)
			c.send(ctx, chatID, "Reset failed. Please try again.")
			return true
		}
		c.send(ctx, chatID, "Conversation history has been reset.")
	default:
		c.send(ctx, chatID, "Unknown command. Type /help to see what I understand.")
	}
	return true
}

// syncMenuCommands replaces the bot's command menu. Telegram caches the
// menu client-side, so stale entries are deleted first.
func (c *Channel) syncMenuCommands(ctx context.Context) {
	if err := c.bot.DeleteMyCommands(ctx, &telego.DeleteMyCommandsParams{}); err != nil {
		slog.Debug("delete telegram menu commands failed", "error", err)
	}
	err := c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: menuCommands})
	if err != nil {
		slog.Warn("set telegram menu commands failed", "error", err)
		return
	}
	slog.Debug("telegram menu commands synced", "count", len(menuCommands))
}
