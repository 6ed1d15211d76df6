package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/clawbox/internal/fetch"
	"github.com/nextlevelbuilder/clawbox/internal/sandbox"
)

// FlexibleInt64Slice accepts both [123] and ["123"] in config files, since
// chat ids get pasted in either form.
type FlexibleInt64Slice []int64

func (f *FlexibleInt64Slice) UnmarshalJSON(data []byte) error {
	var nums []int64
	if err := json.Unmarshal(data, &nums); err == nil {
		*f = nums
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case float64:
			out = append(out, int64(val))
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", val)
			}
			out = append(out, n)
		default:
			return fmt.Errorf("invalid chat id: %v", v)
		}
	}
	*f = out
	return nil
}

// Config is the root configuration. Everything is read once at startup;
// nothing is hot-reloaded.
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Agent     AgentConfig     `json:"agent"`
	Sandbox   sandbox.Config  `json:"sandbox"`
	Fetch     fetch.Config    `json:"fetch"`
	Workspace WorkspaceConfig `json:"workspace"`
	Telegram  TelegramConfig  `json:"telegram"`
	Skills    SkillsConfig    `json:"skills"`
	Sweep     SweepConfig     `json:"sweep"`
	Tracing   TracingConfig   `json:"tracing"`
}

// LLMConfig points at an OpenAI-compatible chat completions API.
type LLMConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// AgentConfig carries the loop circuit-breaker limits.
type AgentConfig struct {
	MaxTurns             int `json:"max_turns"`
	MaxRepeated          int `json:"max_repeated"`
	MaxConsecutiveErrors int `json:"max_consecutive_errors"`
}

type WorkspaceConfig struct {
	Root string `json:"root"`
}

type TelegramConfig struct {
	Enabled        bool               `json:"enabled"`
	Token          string             `json:"token"`
	AllowedChatIDs FlexibleInt64Slice `json:"allowed_chat_ids"`
}

type SkillsConfig struct {
	Dir   string `json:"dir"`
	Watch bool   `json:"watch"`
}

type SweepConfig struct {
	Schedule string `json:"schedule"`
	IdleMin  int    `json:"idle_min"`
}

type TracingConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Endpoint: "https://api.groq.com/openai/v1",
			Model:    "llama-3.3-70b-versatile",
		},
		Agent: AgentConfig{
			MaxTurns:             10,
			MaxRepeated:          2,
			MaxConsecutiveErrors: 3,
		},
		Sandbox:   sandbox.DefaultConfig(),
		Fetch:     fetch.DefaultConfig(),
		Workspace: WorkspaceConfig{Root: "~/.clawbox/workspace"},
		Skills:    SkillsConfig{Dir: "~/.clawbox/skills", Watch: true},
		Sweep:     SweepConfig{Schedule: "*/5 * * * *", IdleMin: 30},
	}
}

// Validate rejects configurations the rest of the program cannot run on.
// Called once at startup; a failure is fatal (exit code 1).
func (c *Config) Validate() error {
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint must not be empty")
	}
	u, err := url.Parse(c.LLM.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("llm.endpoint is not an http(s) URL: %s", c.LLM.Endpoint)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be at least 1")
	}
	if c.Agent.MaxRepeated < 1 {
		return fmt.Errorf("agent.max_repeated must be at least 1")
	}
	if c.Agent.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("agent.max_consecutive_errors must be at least 1")
	}
	if c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image must not be empty")
	}
	if c.Sandbox.TimeoutSec < 1 {
		return fmt.Errorf("sandbox.exec_timeout_s must be at least 1")
	}
	if c.Sandbox.OutputCapBytes < 1 {
		return fmt.Errorf("sandbox.output_cap_bytes must be at least 1")
	}
	if c.Fetch.MaxBytes < 1 {
		return fmt.Errorf("fetch.max_bytes must be at least 1")
	}
	if c.Fetch.TimeoutSec < 1 {
		return fmt.Errorf("fetch.timeout_s must be at least 1")
	}
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must not be negative")
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.enabled requires telegram.token")
	}
	return nil
}

const secretMask = "***"

// MaskedCopy returns a deep copy with secrets replaced by the mask, for
// doctor-style display.
func (c *Config) MaskedCopy() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}
	maskNonEmpty(&cp.LLM.APIKey)
	maskNonEmpty(&cp.Telegram.Token)
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// WorkspaceRoot returns the expanded workspace root.
func (c *Config) WorkspaceRoot() string {
	return ExpandHome(c.Workspace.Root)
}

// SkillsDir returns the expanded user skills directory.
func (c *Config) SkillsDir() string {
	return ExpandHome(c.Skills.Dir)
}
