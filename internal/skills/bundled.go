package skills

import (
	"embed"
	"os"
	"path/filepath"
)

//go:embed bundled/*/SKILL.md
var bundledFS embed.FS

// bundledNames lists the skills shipped inside the binary.
var bundledNames = []string{
	"file-organizer",
	"text-analysis",
}

// EnsureBundled extracts the built-in skills into dir, one subdirectory
// per skill. Existing files are never overwritten, so local edits survive
// upgrades. Returns the paths written.
func EnsureBundled(dir string) ([]string, error) {
	var created []string
	for _, name := range bundledNames {
		content, err := bundledFS.ReadFile(filepath.Join("bundled", name, "SKILL.md"))
		if err != nil {
			return created, err
		}
		target := filepath.Join(dir, name, "SKILL.md")
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return created, err
		}
		if err := os.WriteFile(target, content, 0644); err != nil {
			return created, err
		}
		created = append(created, target)
	}
	return created, nil
}
