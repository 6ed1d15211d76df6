package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
	"github.com/zalando/go-keyring"
)

// Keyring coordinates for the LLM API key. Onboarding writes here; Load
// reads it back as the last resort.
const (
	KeyringService = "clawbox"
	KeyringKey     = "llm_api_key"
)

// DefaultPath resolves the config file location: $CLAWBOX_CONFIG if set,
// else ~/.clawbox/config.json.
func DefaultPath() string {
	if v := os.Getenv("CLAWBOX_CONFIG"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clawbox", "config.json")
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; defaults plus env apply. The API key resolves in
// order env, file, OS keyring.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			cfg.resolveAPIKey()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.resolveAPIKey()
	return cfg, nil
}

// ApplyEnvOverrides overlays CLAWBOX_* env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) ApplyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("CLAWBOX_LLM_ENDPOINT", &c.LLM.Endpoint)
	envStr("CLAWBOX_LLM_API_KEY", &c.LLM.APIKey)
	envStr("CLAWBOX_LLM_MODEL", &c.LLM.Model)
	envStr("CLAWBOX_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("CLAWBOX_SANDBOX_IMAGE", &c.Sandbox.Image)
	envStr("CLAWBOX_WORKSPACE_ROOT", &c.Workspace.Root)
	envStr("CLAWBOX_SKILLS_DIR", &c.Skills.Dir)
	envStr("CLAWBOX_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)

	// A token provided via env implies the channel is wanted.
	if os.Getenv("CLAWBOX_TELEGRAM_TOKEN") != "" {
		c.Telegram.Enabled = true
	}
}

// resolveAPIKey falls back to the OS keyring when neither env nor file
// provided a key. Keyring errors mean "no key stored" here.
func (c *Config) resolveAPIKey() {
	if c.LLM.APIKey != "" {
		return
	}
	if key, err := keyring.Get(KeyringService, KeyringKey); err == nil {
		c.LLM.APIKey = key
	}
}

// Save writes the config to disk. Secrets that live in the keyring should
// be stripped by the caller before saving.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
