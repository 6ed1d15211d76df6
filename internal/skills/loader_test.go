package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, root, dir, frontmatter string) {
	t.Helper()
	d := filepath.Join(root, dir)
	if err := os.MkdirAll(d, 0755); err != nil {
		t.Fatal(err)
	}
	content := "---\n" + frontmatter + "---\n\nInstructions go here.\n"
	if err := os.WriteFile(filepath.Join(d, "SKILL.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover_FindsSkills(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "git-helper", "name: git-helper\ndescription: Git workflows\nversion: 1.0.0\ntags: [git, vcs]\n")
	writeSkill(t, root, "json-tools", "name: json-tools\ndescription: JSON munging\n")

	l := NewLoader(LoaderConfig{UserDir: root})
	l.Discover()

	all := l.List(true)
	if len(all) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(all))
	}
	if all[0].Name != "git-helper" || all[1].Name != "json-tools" {
		t.Errorf("expected sorted names, got %s, %s", all[0].Name, all[1].Name)
	}
	gh := all[0]
	if gh.Description != "Git workflows" || gh.Version != "1.0.0" {
		t.Errorf("frontmatter not parsed: %+v", gh)
	}
	if len(gh.Tags) != 2 || gh.Tags[0] != "git" {
		t.Errorf("tags not parsed: %v", gh.Tags)
	}
	if gh.Source != SourceUser {
		t.Errorf("expected user source, got %s", gh.Source)
	}
	if !gh.Enabled {
		t.Error("enabled should default to true")
	}
}

func TestDiscover_LaterRootsShadow(t *testing.T) {
	user := t.TempDir()
	workspace := t.TempDir()
	writeSkill(t, user, "deploy", "name: deploy\ndescription: user version\n")
	writeSkill(t, workspace, "deploy", "name: deploy\ndescription: workspace version\n")

	l := NewLoader(LoaderConfig{UserDir: user, WorkspaceDir: workspace})
	l.Discover()

	sk, ok := l.Get("deploy")
	if !ok {
		t.Fatal("skill not found")
	}
	if sk.Description != "workspace version" || sk.Source != SourceWorkspace {
		t.Errorf("workspace skill should shadow the user one: %+v", sk)
	}
}

func TestDiscover_SkipsMalformed(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "good", "name: good\ndescription: fine\n")

	// No frontmatter at all.
	bad := filepath.Join(root, "bad")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, "SKILL.md"), []byte("just text"), 0644); err != nil {
		t.Fatal(err)
	}
	// Directory without SKILL.md.
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(LoaderConfig{UserDir: root})
	l.Discover()

	if got := l.List(true); len(got) != 1 || got[0].Name != "good" {
		t.Errorf("expected only the good skill, got %+v", got)
	}
}

func TestList_FiltersDisabled(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "on", "name: on\ndescription: active\n")
	writeSkill(t, root, "off", "name: off\ndescription: inactive\nenabled: false\n")

	l := NewLoader(LoaderConfig{UserDir: root})
	l.Discover()

	if got := l.List(false); len(got) != 1 || got[0].Name != "on" {
		t.Errorf("frontmatter-disabled skill should be filtered: %+v", got)
	}
	if got := l.List(true); len(got) != 2 {
		t.Errorf("includeDisabled should return both, got %d", len(got))
	}
}

func TestEnableDisable(t *testing.T) {
	root := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "skills_state.json")
	writeSkill(t, root, "fmt", "name: fmt\ndescription: formatting\n")

	l := NewLoader(LoaderConfig{UserDir: root, StatePath: statePath})
	l.Discover()

	changed, err := l.Disable("fmt")
	if err != nil || !changed {
		t.Fatalf("disable failed: changed=%v err=%v", changed, err)
	}
	if got := l.List(false); len(got) != 0 {
		t.Errorf("disabled skill still listed: %+v", got)
	}
	if !l.StateDisabled("fmt") {
		t.Error("state should record the disable")
	}

	changed, err = l.Disable("fmt")
	if err != nil || changed {
		t.Errorf("second disable should be a no-op: changed=%v err=%v", changed, err)
	}

	changed, err = l.Enable("fmt")
	if err != nil || !changed {
		t.Fatalf("enable failed: changed=%v err=%v", changed, err)
	}
	changed, err = l.Enable("fmt")
	if err != nil || changed {
		t.Errorf("second enable should be a no-op: changed=%v err=%v", changed, err)
	}

	if _, err := l.Enable("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := l.Disable("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnable_HardDisabled(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "locked", "name: locked\ndescription: nope\nenabled: false\n")

	l := NewLoader(LoaderConfig{UserDir: root})
	l.Discover()

	if _, err := l.Enable("locked"); !errors.Is(err, ErrHardDisabled) {
		t.Errorf("expected ErrHardDisabled, got %v", err)
	}
}

func TestState_PersistsAcrossLoaders(t *testing.T) {
	root := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "skills_state.json")
	writeSkill(t, root, "fmt", "name: fmt\ndescription: formatting\n")

	a := NewLoader(LoaderConfig{UserDir: root, StatePath: statePath})
	a.Discover()
	if _, err := a.Disable("fmt"); err != nil {
		t.Fatal(err)
	}

	b := NewLoader(LoaderConfig{UserDir: root, StatePath: statePath})
	b.Discover()
	if !b.StateDisabled("fmt") {
		t.Error("disable should survive a new loader")
	}
}

func TestSummary(t *testing.T) {
	root := t.TempDir()

	l := NewLoader(LoaderConfig{UserDir: root})
	l.Discover()
	if got := l.Summary(); got != "" {
		t.Errorf("no skills should produce an empty summary, got %q", got)
	}

	writeSkill(t, root, "git-helper", "name: git-helper\ndescription: Git workflows\n")
	writeSkill(t, root, "hidden", "name: hidden\ndescription: secret\nenabled: false\n")
	l.Discover()

	got := l.Summary()
	if !strings.Contains(got, "<available_skills>") || !strings.Contains(got, "</available_skills>") {
		t.Errorf("summary missing wrapper: %q", got)
	}
	if !strings.Contains(got, `name="git-helper"`) || !strings.Contains(got, `description="Git workflows"`) {
		t.Errorf("summary missing skill entry: %q", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("disabled skill leaked into summary: %q", got)
	}
}

func TestSummary_DegradesToNames(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < summaryMaxCount+5; i++ {
		name := fmt.Sprintf("skill%02d", i)
		writeSkill(t, root, name, fmt.Sprintf("name: %s\ndescription: filler\n", name))
	}

	l := NewLoader(LoaderConfig{UserDir: root})
	l.Discover()

	got := l.Summary()
	if strings.Contains(got, "description=") {
		t.Errorf("oversized set should drop descriptions: %q", got)
	}
	if !strings.Contains(got, "skill00") || !strings.Contains(got, "skill24") {
		t.Errorf("name list incomplete: %q", got)
	}
}
