package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwaldrip/foreman/internal/backend"
	"github.com/mwaldrip/foreman/internal/executor"
	"github.com/mwaldrip/foreman/internal/handler"
	"github.com/mwaldrip/foreman/internal/plan"
	"github.com/mwaldrip/foreman/internal/planner"
	"github.com/mwaldrip/foreman/internal/workflow"
	"github.com/mwaldrip/foreman/pkg/models"
)

var (
	runRepo          string
	runMode          string
	runTarget        string
	runBranch        string
	runSandboxName   string
	runContextFile   string
	runForce         bool
	runDryRun        bool
	runSkipIsolation bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a single task with one agent",
	Long: `Run a single task: build a workflow plan, walk it through the
state machine, and start one agent.

Targets:
  sandbox    Docker sandbox with a git worktree mounted (default)
  container  repo-provided container (Dockerfile/devcontainer)
  local      no isolation; the agent runs directly in a worktree

Local autonomous runs modify your checkout without any isolation, so
they require --dangerously-skip-isolation.

Examples:
  foreman run "Fix the flaky parser test"
  foreman run --target local --mode interactive "Refactor config"
  foreman run --dry-run "Add retry logic"      # print plan and commands`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runRepo, "repo", "", "Repository path or clone URL (default: current directory)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Execution mode: autonomous or interactive")
	runCmd.Flags().StringVar(&runTarget, "target", "", "Isolation target: sandbox, container, or local")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "Branch for the agent worktree (default: agent/<repo>)")
	runCmd.Flags().StringVar(&runSandboxName, "sandbox", "", "Sandbox name (default: foreman-<repo>)")
	runCmd.Flags().StringVar(&runContextFile, "context-file", "", "File injected into the agent's initial state")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Recreate the sandbox if it already exists")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the plan and the commands that would run")
	runCmd.Flags().BoolVar(&runSkipIsolation, "dangerously-skip-isolation", false, "Allow autonomous agents on the local target")
}

func runTask(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	repo := runRepo
	if repo == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		repo = cwd
	}

	mode := models.Mode(pick(runMode, cfg.Defaults.Mode))
	target := models.Target(pick(runTarget, cfg.Defaults.Target))

	contextFile := runContextFile
	if contextFile == "" {
		contextFile = cfg.Agent.ContextFile
	}

	p, err := planner.CreatePlan(planner.Input{
		Repo:        repo,
		Task:        task,
		Mode:        mode,
		Target:      target,
		Branch:      runBranch,
		ContextFile: contextFile,
		SandboxName: runSandboxName,
		Force:       runForce,
	})
	if err != nil {
		return err
	}

	if runDryRun {
		return dryRunPlan(cmd, p)
	}

	if target == models.TargetLocal {
		if mode == models.ModeAutonomous && !runSkipIsolation {
			return fmt.Errorf("autonomous agents on the local target modify your checkout directly; pass --dangerously-skip-isolation to confirm")
		}
		if err := CheckAgentCLI(agentCommand()); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := executor.New(handler.New(handler.NewContext(ctx, realBackends())))
	result := exec.Run(p)

	for _, stepID := range result.CompletedSteps {
		fmt.Printf("%s %s\n", color.GreenString("[ok]"), stepID)
	}
	if result.FailedStep != "" {
		fmt.Printf("%s %s: %s\n", color.RedString("[failed]"),
			result.FailedStep, result.StepResults[result.FailedStep].Message)
	}

	if result.State != workflow.StateAgentRunning && result.State != workflow.StateCompleted {
		return fmt.Errorf("run failed at step %s: %s", result.FailedStep, result.Error)
	}

	if target == models.TargetLocal {
		fmt.Println("Agent finished.")
	} else {
		fmt.Printf("Agent running in %s. Check on it with 'foreman status'.\n", planEnvName(p))
	}
	return nil
}

// dryRunPlan prints the plan, then replays it against dry-run backends
// to show the commands a real run would execute.
func dryRunPlan(cmd *cobra.Command, p *plan.Plan) error {
	out, err := p.ToJSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)

	rec := &backend.CommandLog{}
	backends := &backend.Set{
		Git:      &backend.DryRunGit{Log: rec},
		Sandbox:  &backend.DryRunSandbox{Log: rec},
		Auth:     &backend.DryRunAuth{Log: rec},
		Terminal: &backend.DryRunTerminal{Log: rec},
	}

	exec := executor.New(handler.New(handler.NewContext(context.Background(), backends)))
	result := exec.Run(p)
	if result.Error != "" {
		return fmt.Errorf("dry run failed at step %s: %s", result.FailedStep, result.Error)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Commands that would run:")
	for _, c := range rec.Commands {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", c)
	}
	return nil
}

// planEnvName reads the sandbox or container name from plan metadata.
func planEnvName(p *plan.Plan) string {
	if v, ok := p.Metadata["sandbox_name"].(string); ok && v != "" {
		return v
	}
	if v, ok := p.Metadata["container_name"].(string); ok && v != "" {
		return v
	}
	return ""
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func agentCommand() string {
	if cfg != nil && cfg.Agent.Command != "" {
		return cfg.Agent.Command
	}
	return backend.DefaultAgentCommand
}

// realBackends builds real backends with config applied.
func realBackends() *backend.Set {
	backends := backend.New(backend.Real)
	if cfg == nil {
		return backends
	}
	if sb, ok := backends.Sandbox.(*backend.DockerSandbox); ok && cfg.Sandbox.Image != "" {
		sb.Image = cfg.Sandbox.Image
	}
	if term, ok := backends.Terminal.(*backend.SystemTerminal); ok && cfg.Agent.Command != "" {
		term.AgentCommand = cfg.Agent.Command
	}
	return backends
}
