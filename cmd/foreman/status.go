package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwaldrip/foreman/internal/state"
)

var (
	statusRun   string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent orchestration runs",
	Long: `Display recent orchestration runs from the state database.

With --run, shows the agents of one run and their checkpoint trails.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRun, "run", "", "Show agents and checkpoints for one run id")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	dbPath := state.GlobalDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs recorded. Start one with 'foreman orchestrate'.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	if statusRun != "" {
		return showRun(db, statusRun)
	}

	runs, err := db.ListRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded. Start one with 'foreman orchestrate'.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  %s/%s  %s\n",
			run.ID, colorStatus(run.Status), run.Mode, run.Target, run.Repo)
		fmt.Printf("  started %s", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			fmt.Printf(", took %s", roundDuration(run.FinishedAt.Sub(run.StartedAt)))
		}
		fmt.Printf("  agents=%d completed=%d failed=%d skipped=%d\n",
			run.AgentsSpawned, run.CompletedTasks, run.FailedTasks, run.SkippedTasks)
	}
	return nil
}

func showRun(db *state.DB, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("run %s not found: %w", runID, err)
	}

	fmt.Printf("Run %s  %s  %s/%s\n", run.ID, colorStatus(run.Status), run.Mode, run.Target)
	fmt.Printf("Repo: %s\n", run.Repo)

	agents, err := db.ListAgents(runID)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		fmt.Println("No agents recorded for this run.")
		return nil
	}

	for _, a := range agents {
		location := "local"
		if a.SandboxName != "" {
			location = a.SandboxName
		}
		fmt.Printf("\n%s  %s  in %s  (tasks: %s)\n",
			a.ID, colorStatus(a.Status), location, strings.Join(a.TaskNames, ", "))

		checkpoints, err := db.LoadCheckpoints(runID, a.ID)
		if err != nil {
			return fmt.Errorf("load checkpoints for %s: %w", a.ID, err)
		}
		for _, cp := range checkpoints {
			marker := color.GreenString("ok")
			if !cp.Success {
				marker = color.RedString("failed")
			}
			fmt.Printf("  %-20s %-20s %s\n", cp.StepID, cp.State, marker)
		}
	}
	return nil
}

func colorStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "running":
		return color.CyanString(status)
	default:
		return status
	}
}

func roundDuration(d time.Duration) time.Duration {
	return d.Round(time.Second)
}
