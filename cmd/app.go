package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/clawbox/internal/agent"
	"github.com/nextlevelbuilder/clawbox/internal/config"
	"github.com/nextlevelbuilder/clawbox/internal/fetch"
	"github.com/nextlevelbuilder/clawbox/internal/providers"
	"github.com/nextlevelbuilder/clawbox/internal/sandbox"
	"github.com/nextlevelbuilder/clawbox/internal/sessions"
	"github.com/nextlevelbuilder/clawbox/internal/skills"
	"github.com/nextlevelbuilder/clawbox/internal/tools"
	"github.com/nextlevelbuilder/clawbox/internal/tracing"
)

// app bundles the long-lived pieces behind the chat and telegram commands.
type app struct {
	cfg         *config.Config
	sessions    *sessions.Manager
	sandbox     *sandbox.Manager
	coordinator *agent.Coordinator
	skills      *skills.Loader
	watcher     *skills.Watcher
	sweeper     *sandbox.Sweeper

	shutdownTracing func(context.Context) error
}

// buildApp wires provider, sandbox, tools, skills and the agent loop from
// a validated config. The idle sweeper is started here; close undoes
// everything.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	shutdown, err := tracing.Init(ctx, cfg.Tracing.OTLPEndpoint, Version)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	workspaceRoot := cfg.WorkspaceRoot()
	if err := os.MkdirAll(workspaceRoot, 0755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	sandboxCfg := cfg.Sandbox
	sandboxCfg.WorkspaceRoot = workspaceRoot
	sb := sandbox.NewManager(sandboxCfg)

	sweeper, err := sandbox.NewSweeper(sb, cfg.Sweep.Schedule, cfg.Sweep.IdleMin)
	if err != nil {
		return nil, err
	}
	sweeper.Start()

	reg := tools.NewRegistry()
	reg.Register(tools.NewShellTool(sb, cfg.Sandbox.Timeout()))
	reg.Register(tools.NewWebFetchTool(fetch.NewFetcher(cfg.Fetch)))

	loader := newSkillsLoader(cfg)
	loader.Discover()

	var watcher *skills.Watcher
	if cfg.Skills.Watch {
		watcher, err = skills.NewWatcher(loader)
		if err != nil {
			slog.Warn("skills watcher unavailable", "error", err)
			watcher = nil
		} else {
			watcher.Start()
		}
	}

	if cfg.LLM.APIKey == "" {
		slog.Warn("no llm api key configured, llm calls may fail (run 'clawbox onboard')")
	}
	provider := providers.NewOpenAIProvider("openai", cfg.LLM.APIKey, cfg.LLM.Endpoint, cfg.LLM.Model)

	sess := sessions.NewManager()
	loop := agent.NewLoop(agent.LoopConfig{
		Provider:             provider,
		Tools:                reg,
		Model:                cfg.LLM.Model,
		MaxTurns:             cfg.Agent.MaxTurns,
		MaxRepeated:          cfg.Agent.MaxRepeated,
		MaxConsecutiveErrors: cfg.Agent.MaxConsecutiveErrors,
	})
	coordinator := agent.NewCoordinator(agent.CoordinatorConfig{
		Sessions:  sess,
		Loop:      loop,
		Tools:     reg,
		Sandbox:   sb,
		Skills:    loader,
		Workspace: workspaceRoot,
	})

	return &app{
		cfg:             cfg,
		sessions:        sess,
		sandbox:         sb,
		coordinator:     coordinator,
		skills:          loader,
		watcher:         watcher,
		sweeper:         sweeper,
		shutdownTracing: shutdown,
	}, nil
}

// close releases background resources in reverse start order.
func (a *app) close(ctx context.Context) {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			slog.Debug("skills watcher close failed", "error", err)
		}
	}
	a.sweeper.Stop()
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}
}

// newSkillsLoader builds the loader over the three skill roots: bundled
// (extracted from the binary next to the config file), user (config
// skills.dir), workspace (./skills in the current directory).
func newSkillsLoader(cfg *config.Config) *skills.Loader {
	bundledDir := filepath.Join(filepath.Dir(resolveConfigPath()), "bundled_skills")
	if _, err := skills.EnsureBundled(bundledDir); err != nil {
		slog.Debug("bundled skills extraction failed", "error", err)
	}
	return skills.NewLoader(skills.LoaderConfig{
		BundledDir:   bundledDir,
		UserDir:      cfg.SkillsDir(),
		WorkspaceDir: "skills",
		StatePath:    skillsStatePath(),
	})
}

// skillsStatePath keeps the enable/disable state next to the config file.
func skillsStatePath() string {
	return filepath.Join(filepath.Dir(resolveConfigPath()), "skills_state.json")
}
