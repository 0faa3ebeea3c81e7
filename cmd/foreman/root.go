package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/mwaldrip/foreman/internal/config"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

// CheckAgentCLI verifies that the configured agent binary is available
// in PATH. Sandboxed agents run inside containers, so the check only
// matters for local targets.
func CheckAgentCLI(command string) error {
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("agent command %q not found in PATH\n\n"+
			"Foreman launches a coding agent for each task. Install the\n"+
			"agent CLI or point foreman at another binary with\n"+
			"  foreman --help  (agent.command in config)", command)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Parallel coding-agent orchestrator",
	Long: `Foreman orchestrates parallel coding agents on a repository.

It reads tasks from a task file (markdown checklist or spec-kit
tasks.md), groups independent tasks, and runs one agent per group in
an isolated git worktree, optionally inside a Docker sandbox.

Core capabilities:
- Decides execution mode, isolation target, and parallelism per batch
- Builds a validated workflow plan for every agent
- Walks each agent through a checkpointed state machine
- Polls sandboxed agents and applies a failure policy (retry/skip/abort)
- Records runs, agents, and checkpoints in a local SQLite database`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
