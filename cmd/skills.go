package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbox/internal/skills"
)

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Manage skills",
	}
	cmd.AddCommand(skillsListCmd(), skillsInfoCmd(), skillsEnableCmd(), skillsDisableCmd())
	return cmd
}

func skillsListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available skills",
		Run: func(cmd *cobra.Command, args []string) {
			runSkillsList(all)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include disabled skills")
	return cmd
}

func skillsInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show detailed skill info",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runSkillsInfo(args[0])
		},
	}
}

func skillsEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Enable a skill",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runSkillsEnable(args[0])
		},
	}
}

func skillsDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a skill",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runSkillsDisable(args[0])
		},
	}
}

func discoverSkills() *skills.Loader {
	loader := newSkillsLoader(loadConfig())
	loader.Discover()
	return loader
}

const (
	ansiReset   = "\033[0m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
)

func colorSource(s skills.Source) string {
	switch s {
	case skills.SourceBundled:
		return ansiBlue + string(s) + ansiReset
	case skills.SourceUser:
		return ansiGreen + string(s) + ansiReset
	case skills.SourceWorkspace:
		return ansiMagenta + string(s) + ansiReset
	}
	return string(s)
}

func colorStatus(l *skills.Loader, sk skills.Skill) string {
	switch {
	case !sk.Enabled:
		return ansiRed + "disabled (in SKILL.md)" + ansiReset
	case l.StateDisabled(sk.Name):
		return ansiYellow + "disabled (in config)" + ansiReset
	}
	return ansiGreen + "enabled" + ansiReset
}

func runSkillsList(all bool) {
	loader := discoverSkills()
	list := loader.List(all)
	if len(list) == 0 {
		fmt.Println("No skills found.")
		return
	}

	fmt.Printf("\n%-20s %-12s %-28s Description\n", "Name", "Source", "Status")
	fmt.Println(strings.Repeat("-", 80))
	for _, sk := range list {
		desc := sk.Description
		if r := []rune(desc); len(r) > 35 {
			desc = string(r[:32]) + "..."
		}
		// The colored cells carry 9 invisible escape bytes each, so their
		// pad widths grow by 9 to stay aligned with the header.
		fmt.Printf("%-20s %-21s %-37s %s\n", sk.Name, colorSource(sk.Source), colorStatus(loader, sk), desc)
	}
	fmt.Printf("\nTotal: %d skill(s)\n", len(list))
}

func runSkillsInfo(name string) {
	loader := discoverSkills()
	sk, ok := loader.Get(name)
	if !ok {
		fmt.Printf("Error: Skill '%s' not found.\n", name)
		os.Exit(1)
	}

	fmt.Printf("\nSkill: %s\n", sk.Name)
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Description: %s\n", sk.Description)
	fmt.Printf("Version: %s\n", sk.Version)
	fmt.Printf("Source: %s\n", colorSource(sk.Source))
	fmt.Printf("Status: %s\n", colorStatus(loader, sk))
	if len(sk.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(sk.Tags, ", "))
	}
	if sk.Path != "" {
		fmt.Printf("Path: %s\n", sk.Path)
	}
	if !sk.ModTime.IsZero() {
		fmt.Printf("Last modified: %s\n", sk.ModTime.Format("2006-01-02 15:04:05"))
	}
}

func runSkillsEnable(name string) {
	loader := discoverSkills()
	changed, err := loader.Enable(name)
	switch {
	case errors.Is(err, skills.ErrNotFound):
		fmt.Printf("Error: Skill '%s' not found.\n", name)
		os.Exit(1)
	case errors.Is(err, skills.ErrHardDisabled):
		fmt.Printf("Error: Skill '%s' is disabled in its SKILL.md (enabled: false).\n", name)
		fmt.Println("Edit the SKILL.md to enable it.")
		os.Exit(1)
	case err != nil:
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	case !changed:
		fmt.Printf("Skill '%s' is already enabled.\n", name)
	default:
		fmt.Printf("Enabled skill: %s\n", name)
	}
}

func runSkillsDisable(name string) {
	loader := discoverSkills()
	changed, err := loader.Disable(name)
	switch {
	case errors.Is(err, skills.ErrNotFound):
		fmt.Printf("Error: Skill '%s' not found.\n", name)
		os.Exit(1)
	case err != nil:
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	case !changed:
		fmt.Printf("Skill '%s' is already disabled.\n", name)
	default:
		fmt.Printf("Disabled skill: %s\n", name)
	}
}
