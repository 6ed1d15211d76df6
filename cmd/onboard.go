package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/titanous/json5"
	"github.com/zalando/go-keyring"

	"github.com/nextlevelbuilder/clawbox/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		// A broken file should not block re-onboarding.
		fmt.Fprintf(os.Stderr, "Warning: existing config not readable (%v), starting from defaults\n", err)
		cfg = config.Default()
	}

	endpoint := cfg.LLM.Endpoint
	apiKey := ""
	model := cfg.LLM.Model
	image := cfg.Sandbox.Image

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("LLM endpoint").
				Description("Base URL of an OpenAI-compatible chat completions API").
				Value(&endpoint).
				Validate(validateEndpoint),
			huh.NewInput().
				Title("API key").
				Description("Stored in the system keyring when available; leave empty to keep the current key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Model").
				Value(&model),
			huh.NewInput().
				Title("Sandbox image").
				Description("Docker image commands run in").
				Value(&image),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg.LLM.Endpoint = strings.TrimSpace(endpoint)
	cfg.LLM.Model = strings.TrimSpace(model)
	cfg.Sandbox.Image = strings.TrimSpace(image)

	// Load resolves the key from env and keyring too; only the file's own
	// key may be written back, or secrets would leak into the file.
	cfg.LLM.APIKey = rawFileAPIKey(path)

	if key := strings.TrimSpace(apiKey); key != "" {
		if err := keyring.Set(config.KeyringService, config.KeyringKey, key); err != nil {
			fmt.Printf("Keyring unavailable (%v); storing the key in %s instead.\n", err, path)
			cfg.LLM.APIKey = key
		} else {
			fmt.Println("API key stored in the system keyring.")
			cfg.LLM.APIKey = ""
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config saved to %s\n", path)
	fmt.Println("Run 'clawbox doctor' to verify the setup, then 'clawbox' to chat.")
}

func validateEndpoint(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

// rawFileAPIKey reads the api_key straight from the config file, without
// the env and keyring resolution Load performs.
func rawFileAPIKey(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var raw struct {
		LLM struct {
			APIKey string `json:"api_key"`
		} `json:"llm"`
	}
	if err := json5.Unmarshal(data, &raw); err != nil {
		return ""
	}
	return raw.LLM.APIKey
}
