package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbox/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("clawbox doctor")
	fmt.Printf("  %-12s %s\n", "Version:", Version)
	fmt.Printf("  %-12s %s/%s\n", "OS:", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  %-12s %s\n", "Go:", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  %-12s %s", "Config:", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  %-12s INVALID (%s)\n", "Validate:", err)
	}

	fmt.Println()
	fmt.Println("  LLM:")
	fmt.Printf("    %-12s %s\n", "Endpoint:", cfg.LLM.Endpoint)
	fmt.Printf("    %-12s %s\n", "Model:", cfg.LLM.Model)
	checkAPIKey(cfg.LLM.APIKey)

	fmt.Println()
	fmt.Println("  Sandbox:")
	checkDocker()
	checkImage(cfg.Sandbox.Image)

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Telegram.Enabled, cfg.Telegram.Token != "")

	fmt.Println()
	checkWorkspace(cfg.WorkspaceRoot())
	checkSkills(cfg)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkAPIKey(apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured, run: clawbox onboard)\n", "API key:")
		return
	}
	masked := strings.Repeat("*", len(apiKey))
	if len(apiKey) > 8 {
		masked = apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
	}
	fmt.Printf("    %-12s %s\n", "API key:", masked)
}

func checkDocker() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "docker", "version", "--format", "{{.Server.Version}}").Output()
	if err != nil {
		fmt.Printf("    %-12s NOT AVAILABLE (is the daemon running?)\n", "Docker:")
		return
	}
	fmt.Printf("    %-12s %s\n", "Docker:", strings.TrimSpace(string(out)))
}

func checkImage(image string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "image", "inspect", image).Run(); err != nil {
		fmt.Printf("    %-12s %s (not pulled, run: docker pull %s)\n", "Image:", image, image)
		return
	}
	fmt.Printf("    %-12s %s (OK)\n", "Image:", image)
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func checkWorkspace(root string) {
	fmt.Printf("  %-12s %s", "Workspace:", root)
	if err := os.MkdirAll(root, 0755); err != nil {
		fmt.Printf(" (NOT WRITABLE: %s)\n", err)
		return
	}
	probe, err := os.CreateTemp(root, ".doctor-*")
	if err != nil {
		fmt.Printf(" (NOT WRITABLE: %s)\n", err)
		return
	}
	probe.Close()
	os.Remove(probe.Name())
	fmt.Println(" (writable)")
}

func checkSkills(cfg *config.Config) {
	loader := newSkillsLoader(cfg)
	loader.Discover()
	all := loader.List(true)
	enabled := loader.List(false)
	fmt.Printf("  %-12s %d enabled, %d disabled\n", "Skills:", len(enabled), len(all)-len(enabled))
}
