package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwaldrip/foreman/internal/plan"
	"github.com/mwaldrip/foreman/internal/planner"
	"github.com/mwaldrip/foreman/pkg/models"
)

var (
	planRepo        string
	planMode        string
	planTarget      string
	planBranch      string
	planSandboxName string
	planContextFile string
	planFormat      string
	planOut         string
	planValidate    string
)

var planCmd = &cobra.Command{
	Use:   "plan <task>",
	Short: "Build a workflow plan without running it",
	Long: `Build the workflow plan for a task and print it, or validate an
existing plan file.

The emitted plan round-trips losslessly: 'foreman plan' output can be
edited and later validated or executed from the file.

Examples:
  foreman plan "Add retry logic"
  foreman plan --format yaml --out plan.yaml "Add retry logic"
  foreman plan --validate plan.yaml`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planRepo, "repo", "", "Repository path or clone URL (default: current directory)")
	planCmd.Flags().StringVar(&planMode, "mode", "", "Execution mode: autonomous or interactive")
	planCmd.Flags().StringVar(&planTarget, "target", "", "Isolation target: sandbox, container, or local")
	planCmd.Flags().StringVar(&planBranch, "branch", "", "Branch for the agent worktree")
	planCmd.Flags().StringVar(&planSandboxName, "sandbox", "", "Sandbox name")
	planCmd.Flags().StringVar(&planContextFile, "context-file", "", "File injected into the agent's initial state")
	planCmd.Flags().StringVar(&planFormat, "format", "json", "Output format: json or yaml")
	planCmd.Flags().StringVar(&planOut, "out", "", "Write the plan to a file instead of stdout")
	planCmd.Flags().StringVar(&planValidate, "validate", "", "Validate a plan file and exit")
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planValidate != "" {
		return validatePlanFile(cmd, planValidate)
	}

	if len(args) == 0 {
		return fmt.Errorf("a task description is required (or pass --validate <file>)")
	}
	task := strings.Join(args, " ")

	repo := planRepo
	if repo == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		repo = cwd
	}

	p, err := planner.CreatePlan(planner.Input{
		Repo:        repo,
		Task:        task,
		Mode:        models.Mode(pick(planMode, cfg.Defaults.Mode)),
		Target:      models.Target(pick(planTarget, cfg.Defaults.Target)),
		Branch:      planBranch,
		ContextFile: planContextFile,
		SandboxName: planSandboxName,
	})
	if err != nil {
		return err
	}

	var out string
	switch planFormat {
	case "json":
		out, err = p.ToJSON()
	case "yaml":
		out, err = p.ToYAML()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", planFormat)
	}
	if err != nil {
		return err
	}

	if planOut != "" {
		if err := os.WriteFile(planOut, []byte(out), 0644); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Plan written to %s\n", planOut)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func validatePlanFile(cmd *cobra.Command, path string) error {
	p, err := plan.LoadFile(path)
	if err != nil {
		return err
	}
	if errs := p.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", e)
		}
		return fmt.Errorf("plan %s has %d error(s)", path, len(errs))
	}

	order, err := p.ExecutionOrder()
	if err != nil {
		return err
	}
	ids := make([]string, len(order))
	for i, s := range order {
		ids[i] = s.ID
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Plan %s is valid. Execution order: %s\n", path, strings.Join(ids, " -> "))
	return nil
}
