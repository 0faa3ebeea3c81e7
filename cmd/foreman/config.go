package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwaldrip/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration and where it came from.

Values are merged from built-in defaults, the user config file,
a project-level .foreman.yaml, and FOREMAN_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User config:    %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Fprintf(out, "Project config: %s\n\n", project)

		fmt.Fprintf(out, "defaults.mode:           %s\n", cfg.Defaults.Mode)
		fmt.Fprintf(out, "defaults.target:         %s\n", cfg.Defaults.Target)
		fmt.Fprintf(out, "defaults.max_parallel:   %d\n", cfg.Defaults.MaxParallel)
		fmt.Fprintf(out, "defaults.poll_interval:  %s\n", cfg.Defaults.PollInterval)
		fmt.Fprintf(out, "defaults.failure_policy: %s\n", cfg.Defaults.FailurePolicy)
		fmt.Fprintf(out, "defaults.max_retries:    %d\n", cfg.Defaults.MaxRetries)
		fmt.Fprintf(out, "sandbox.image:           %s\n", cfg.Sandbox.Image)
		fmt.Fprintf(out, "agent.command:           %s\n", cfg.Agent.Command)
		fmt.Fprintf(out, "agent.context_file:      %s\n", cfg.Agent.ContextFile)
		fmt.Fprintf(out, "tui.refresh_rate:        %s\n", cfg.TUI.RefreshRate)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current configuration to the user config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", config.GetUserConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
