package skills

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Source identifies the root a skill was discovered in.
type Source string

const (
	SourceBundled   Source = "bundled"
	SourceUser      Source = "user"
	SourceWorkspace Source = "workspace"
)

// Skill is one discovered skill: the SKILL.md frontmatter plus provenance.
// Enabled mirrors the frontmatter flag; a skill disabled there cannot be
// re-enabled from the CLI. CLI-level disabling lives in State instead.
type Skill struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Version     string   `yaml:"version"`
	Tags        []string `yaml:"tags"`
	Enabled     bool     `yaml:"enabled"`

	Source  Source    `yaml:"-"`
	Path    string    `yaml:"-"`
	ModTime time.Time `yaml:"-"`
}

var (
	ErrNotFound     = errors.New("skill not found")
	ErrHardDisabled = errors.New("skill is disabled in its SKILL.md")
)

// State holds the persisted CLI-managed skill state. It lives in its own
// file (not the main config) so enable/disable never rewrites user edits.
type State struct {
	DisabledSkills []string `json:"disabled_skills"`
}

func loadState(path string) *State {
	st := &State{}
	if path == "" {
		return st
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	if err := json.Unmarshal(raw, st); err != nil {
		slog.Warn("skills state unreadable, starting fresh", "path", path, "error", err)
		return &State{}
	}
	return st
}

func (s *State) save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

func (s *State) disabled(name string) bool {
	for _, n := range s.DisabledSkills {
		if n == name {
			return true
		}
	}
	return false
}

func (s *State) add(name string) {
	if !s.disabled(name) {
		s.DisabledSkills = append(s.DisabledSkills, name)
	}
}

func (s *State) remove(name string) {
	out := s.DisabledSkills[:0]
	for _, n := range s.DisabledSkills {
		if n != name {
			out = append(out, n)
		}
	}
	s.DisabledSkills = out
}

type rootDir struct {
	source Source
	dir    string
}

// Loader discovers skills from up to three roots, in order bundled, user,
// workspace. Later roots shadow earlier ones by name, so a workspace skill
// overrides a bundled one.
type Loader struct {
	roots     []rootDir
	statePath string

	mu     sync.RWMutex
	skills map[string]Skill
	state  *State
}

// LoaderConfig lists the source roots. Empty dirs are skipped.
type LoaderConfig struct {
	BundledDir   string
	UserDir      string
	WorkspaceDir string
	StatePath    string
}

func NewLoader(cfg LoaderConfig) *Loader {
	l := &Loader{
		statePath: cfg.StatePath,
		skills:    make(map[string]Skill),
		state:     loadState(cfg.StatePath),
	}
	if cfg.BundledDir != "" {
		l.roots = append(l.roots, rootDir{SourceBundled, cfg.BundledDir})
	}
	if cfg.UserDir != "" {
		l.roots = append(l.roots, rootDir{SourceUser, cfg.UserDir})
	}
	if cfg.WorkspaceDir != "" {
		l.roots = append(l.roots, rootDir{SourceWorkspace, cfg.WorkspaceDir})
	}
	return l
}

// Discover rescans every root. A skill is a directory containing SKILL.md.
// Missing roots are normal; a malformed SKILL.md is logged and skipped.
func (l *Loader) Discover() {
	found := make(map[string]Skill)
	for _, r := range l.roots {
		entries, err := os.ReadDir(r.dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(r.dir, e.Name(), "SKILL.md")
			sk, err := parseSkillFile(path)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					slog.Warn("skipping malformed skill", "path", path, "error", err)
				}
				continue
			}
			sk.Source = r.source
			found[sk.Name] = sk
		}
	}

	l.mu.Lock()
	l.skills = found
	l.mu.Unlock()
}

func parseSkillFile(path string) (Skill, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}
	parts := strings.SplitN(string(raw), "---", 3)
	if len(parts) < 3 {
		return Skill{}, fmt.Errorf("missing frontmatter")
	}
	sk := Skill{Enabled: true}
	if err := yaml.Unmarshal([]byte(parts[1]), &sk); err != nil {
		return Skill{}, fmt.Errorf("parsing frontmatter: %w", err)
	}
	if sk.Name == "" {
		return Skill{}, fmt.Errorf("frontmatter has no name")
	}
	sk.Path = path
	if fi, err := os.Stat(path); err == nil {
		sk.ModTime = fi.ModTime()
	}
	return sk, nil
}

// Get returns a skill by name regardless of its enabled state.
func (l *Loader) Get(name string) (Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sk, ok := l.skills[name]
	return sk, ok
}

// List returns skills sorted by name. Without includeDisabled, skills
// disabled in frontmatter or in state are filtered out.
func (l *Loader) List(includeDisabled bool) []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Skill, 0, len(l.skills))
	for _, sk := range l.skills {
		if !includeDisabled && (!sk.Enabled || l.state.disabled(sk.Name)) {
			continue
		}
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StateDisabled reports whether a skill is disabled via the CLI.
func (l *Loader) StateDisabled(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.disabled(name)
}

// Enable clears a skill's CLI-disabled state. The bool reports whether
// anything changed; enabling a skill that its own SKILL.md disables fails
// with ErrHardDisabled.
func (l *Loader) Enable(name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sk, ok := l.skills[name]
	if !ok {
		return false, ErrNotFound
	}
	if !sk.Enabled {
		return false, ErrHardDisabled
	}
	if !l.state.disabled(name) {
		return false, nil
	}
	l.state.remove(name)
	return true, l.state.save(l.statePath)
}

// Disable marks a skill disabled in state. The bool reports whether
// anything changed.
func (l *Loader) Disable(name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.skills[name]; !ok {
		return false, ErrNotFound
	}
	if l.state.disabled(name) {
		return false, nil
	}
	l.state.add(name)
	return true, l.state.save(l.statePath)
}

const (
	summaryMaxCount = 20
	summaryMaxChars = 14000 // ~3500 tokens at 4 chars per token
)

// Summary renders the enabled-skills digest injected into the system
// prompt. Small sets inline name and description; past the limits it
// degrades to a bare name list so the prompt stays bounded.
func (l *Loader) Summary() string {
	enabled := l.List(false)
	if len(enabled) == 0 {
		return ""
	}

	totalChars := 0
	for _, sk := range enabled {
		totalChars += len(sk.Name) + len(sk.Description) + 10
	}

	var b strings.Builder
	b.WriteString("<available_skills>\n")
	if len(enabled) <= summaryMaxCount && totalChars <= summaryMaxChars {
		for _, sk := range enabled {
			fmt.Fprintf(&b, "  <skill name=%q description=%q/>\n", sk.Name, sk.Description)
		}
	} else {
		names := make([]string, 0, len(enabled))
		for _, sk := range enabled {
			names = append(names, sk.Name)
		}
		fmt.Fprintf(&b, "  %s\n", strings.Join(names, ", "))
	}
	b.WriteString("</available_skills>")
	return b.String()
}
