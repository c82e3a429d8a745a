package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/skills"
	"github.com/jingkaihe/skillkit/pkg/utils"
	"github.com/jingkaihe/skillkit/pkg/version"
)

// SkillInstallConfig holds configuration for the skill install command
type SkillInstallConfig struct {
	Global bool
	Dir    string
}

// NewSkillInstallConfig creates a new SkillInstallConfig with default values
func NewSkillInstallConfig() *SkillInstallConfig {
	return &SkillInstallConfig{
		Global: false,
		Dir:    "",
	}
}

func getSkillInstallConfigFromFlags(cmd *cobra.Command) *SkillInstallConfig {
	config := NewSkillInstallConfig()
	if global, err := cmd.Flags().GetBool("global"); err == nil {
		config.Global = global
	}
	if dir, err := cmd.Flags().GetString("dir"); err == nil {
		config.Dir = dir
	}
	return config
}

// NewSkillCommand returns the "skill" command for a binary whose SKILL.md
// is doc. The document is validated when the command runs.
func NewSkillCommand(doc []byte) *cobra.Command {
	skillCmd := &cobra.Command{
		Use:   "skill",
		Short: "Print the skill documentation",
		Long:  `Print the SKILL.md document that describes this skill to an agent.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := skills.Parse(doc); err != nil {
				return err
			}
			_, err := cmd.OutOrStdout().Write(doc)
			return err
		},
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install the skill into a skills directory",
		Long: `Write SKILL.md to ./.claude/skills/<name>/ so agents working in this
repository discover it. Use -g to install into ~/.claude/skills instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return installSkill(cmd, doc, getSkillInstallConfigFromFlags(cmd))
		},
	}
	defaults := NewSkillInstallConfig()
	installCmd.Flags().BoolP("global", "g", defaults.Global, "Install to the global ~/.claude/skills directory instead of ./.claude/skills")
	installCmd.Flags().String("dir", defaults.Dir, "Install into this skills directory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List installed skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listSkills(cmd)
		},
	}

	skillCmd.AddCommand(installCmd, listCmd)
	return skillCmd
}

func installSkill(cmd *cobra.Command, doc []byte, config *SkillInstallConfig) error {
	skill, err := skills.Parse(doc)
	if err != nil {
		return err
	}

	dir := config.Dir
	if dir == "" {
		dir, err = skills.InstallDir(config.Global)
		if err != nil {
			return err
		}
	}

	result, err := skills.Install(skill, dir)
	if err != nil {
		return err
	}

	p := Printer(cmd)
	switch {
	case result.Unchanged:
		p.Info(fmt.Sprintf("Skill '%s' is already up to date at %s", skill.Name, result.Path))
	case result.Updated:
		p.Success(fmt.Sprintf("Updated skill '%s' at %s", skill.Name, result.Path))
	default:
		p.Success(fmt.Sprintf("Installed skill '%s' to %s", skill.Name, result.Path))
	}
	return nil
}

func listSkills(cmd *cobra.Command) error {
	discovery, err := skills.NewDiscovery()
	if err != nil {
		return err
	}
	installed, err := discovery.DiscoverSkills()
	if err != nil {
		return err
	}
	if len(installed) == 0 {
		Printer(cmd).Info("No skills installed")
		return nil
	}

	names, err := discovery.ListSkillNames()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDIRECTORY\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t---------\t-----------")
	for _, name := range names {
		skill := installed[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", skill.Name, skill.Directory, utils.Truncate(skill.Description, 60))
	}
	return tw.Flush()
}

// NewVersionCommand returns the "version" command.
func NewVersionCommand(skill string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  `Print the version information in JSON format.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := version.For(skill).JSON()
			if err != nil {
				return err
			}
			Linef(cmd, "%s", out)
			return nil
		},
	}
}
