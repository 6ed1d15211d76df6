package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbox/internal/channels/telegram"
	"github.com/nextlevelbuilder/clawbox/internal/sandbox"
)

func telegramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Run the Telegram bot front-end",
		Run: func(cmd *cobra.Command, args []string) {
			runTelegram()
		},
	}
}

func runTelegram() {
	initLogging(slog.LevelInfo)
	cfg := mustLoadConfig()
	if cfg.Telegram.Token == "" {
		fmt.Fprintln(os.Stderr, "Error: telegram.token is not configured (set CLAWBOX_TELEGRAM_TOKEN or run clawbox onboard)")
		os.Exit(1)
	}

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

	// Reap containers orphaned by a previous crash.
	if err := a.sandbox.CleanupAll(ctx); err != nil {
		slog.Warn("startup container cleanup failed", "error", err)
	}

	channel, err := telegram.New(cfg.Telegram, a.coordinator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := channel.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = channel.Stop(shutdownCtx)
	if err := a.sandbox.CleanupAll(shutdownCtx); err != nil {
		slog.Warn("shutdown container cleanup failed", "error", err)
	}
	a.close(shutdownCtx)
}
