package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbox/internal/agent"
	"github.com/nextlevelbuilder/clawbox/internal/sandbox"
)

const (
	chatRuleWidth    = 60
	chatPreviewWidth = 48
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat (the default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runChat()
		},
	}
}

func runChat() {
	// Warn level keeps per-request log lines off the REPL unless --verbose.
	initLogging(slog.LevelWarn)
	cfg := mustLoadConfig()

	ctx := context.Background()
	if err := sandbox.CheckAvailable(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close(ctx)

	conversationID := newConversationID()
	printBanner(cfg.LLM.Model, conversationID)

	// Stdin is read on its own goroutine so Ctrl-C can be answered even
	// while the prompt is idle.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		fmt.Print("you> ")
		select {
		case <-sigCh:
			fmt.Print("\nExit? (y/n): ")
			select {
			case answer, ok := <-lines:
				if !ok || strings.EqualFold(strings.TrimSpace(answer), "y") {
					goodbye(ctx, a)
					return
				}
			case <-sigCh:
				fmt.Println()
				goodbye(ctx, a)
				return
			}
		case line, ok := <-lines:
			if !ok {
				fmt.Println()
				goodbye(ctx, a)
				return
			}
			input := strings.TrimSpace(line)
			switch {
			case input == "":
				continue
			case input == "/exit" || input == "/quit" || input == "exit" || input == "quit":
				goodbye(ctx, a)
				return
			case input == "/help":
				printChatHelp()
				continue
			case input == "/reset":
				if err := a.coordinator.Reset(ctx, conversationID); err != nil {
					fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
				}
				conversationID = newConversationID()
				fmt.Printf("✓ Session reset. New chat_id: %s\n\n", conversationID)
				continue
			case strings.HasPrefix(input, "/"):
				// Unknown commands are ignored rather than sent to the model.
				continue
			}

			res := runInterruptible(ctx, a, sigCh, conversationID, input)
			printRun(res)
		}
	}
}

func newConversationID() string {
	return "cli-" + uuid.NewString()[:8]
}

// runInterruptible runs one message through the coordinator; a Ctrl-C
// while it is in flight cancels the run instead of killing the process.
func runInterruptible(ctx context.Context, a *app, sigCh <-chan os.Signal, conversationID, input string) *agent.RunResult {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\ninterrupted, cancelling run")
			cancel()
		case <-runCtx.Done():
		}
	}()
	return a.coordinator.HandleMessage(runCtx, conversationID, input)
}

func goodbye(ctx context.Context, a *app) {
	// Reap every runner container on the way out; workspace files stay.
	if err := a.sandbox.CleanupAll(ctx); err != nil {
		slog.Warn("container cleanup failed", "error", err)
	}
	fmt.Println("👋 Goodbye!")
}

func printBanner(model, conversationID string) {
	rows := []string{
		"clawbox — sandboxed AI assistant",
		"model:   " + model,
		"chat_id: " + conversationID,
	}
	width := 0
	for _, row := range rows {
		if w := runewidth.StringWidth(row); w > width {
			width = w
		}
	}
	fmt.Println("╭─" + strings.Repeat("─", width) + "─╮")
	for _, row := range rows {
		pad := strings.Repeat(" ", width-runewidth.StringWidth(row))
		fmt.Println("│ " + row + pad + " │")
	}
	fmt.Println("╰─" + strings.Repeat("─", width) + "─╯")
	fmt.Println("Type /help for commands.")
	fmt.Println()
}

func printChatHelp() {
	fmt.Println(`Commands:
  /reset        start a fresh conversation (drops history and container)
  /help         show this help
  /exit, /quit  leave the chat (also: exit, quit)`)
	fmt.Println()
}

// printRun renders one finished run: tool call lines from the trace, the
// final answer, and a warning when a circuit breaker stopped the loop.
func printRun(res *agent.RunResult) {
	rule := strings.Repeat("─", chatRuleWidth)
	fmt.Println(rule)
	for _, turn := range res.Trace {
		for _, call := range turn.Calls {
			status := "ok"
			if !call.Success {
				status = call.ErrorKind
				if status == "" {
					status = "error"
				}
			}
			preview := runewidth.Truncate(flattenPreview(call.Excerpt), chatPreviewWidth, "…")
			fmt.Printf("  [%s] %s %dms  %s\n", call.Tool, status, call.DurationMS, preview)
		}
	}
	if res.FinalText != "" {
		fmt.Println(res.FinalText)
	}
	if res.StopReason != agent.StopCompleted {
		fmt.Printf("⚠ Stopped: %s (turns: %d)\n", res.StopReason, res.Turns)
	}
	fmt.Println(rule)
	fmt.Println()
}

// flattenPreview collapses an excerpt onto one line for the tool trace
// display.
func flattenPreview(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
