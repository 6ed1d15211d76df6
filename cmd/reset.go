package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbox/internal/sandbox"
)

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <conversation-id>",
		Short: "Remove a conversation's sandbox container",
		Long: "Removes the Docker container backing a conversation (e.g. cli-a1b2c3d4 or\n" +
			"tg-12345). Workspace files are kept. A running chat or telegram process\n" +
			"recreates the container on the next command.",
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runReset(args[0])
		},
	}
}

func runReset(conversationID string) {
	initLogging(slog.LevelWarn)
	cfg := loadConfig()

	ctx := context.Background()
	if err := sandbox.CheckAvailable(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	sandboxCfg := cfg.Sandbox
	sandboxCfg.WorkspaceRoot = cfg.WorkspaceRoot()
	m := sandbox.NewManager(sandboxCfg)
	if err := m.Reset(ctx, conversationID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Reset conversation %s: container removed.\n", conversationID)
}
