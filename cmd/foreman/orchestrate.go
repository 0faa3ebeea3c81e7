package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwaldrip/foreman/internal/orchestrator"
	"github.com/mwaldrip/foreman/internal/report"
	"github.com/mwaldrip/foreman/internal/source"
	"github.com/mwaldrip/foreman/internal/state"
	"github.com/mwaldrip/foreman/internal/strategy"
	"github.com/mwaldrip/foreman/internal/tui"
	"github.com/mwaldrip/foreman/internal/workflow"
	"github.com/mwaldrip/foreman/pkg/models"
)

var (
	orchRepo          string
	orchSource        string
	orchTask          string
	orchMode          string
	orchTarget        string
	orchMaxParallel   int
	orchPollInterval  time.Duration
	orchFailurePolicy string
	orchMaxRetries    int
	orchExplain       bool
	orchTUI           bool
	orchDebugLog      string
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run a batch of tasks with parallel agents",
	Long: `Run every ready task from a task source with parallel agents.

Task sources (auto-detected by default):
  speckit    spec-kit tasks.md with [T001] ids, [P] markers, phases
  markdown   plain markdown checklist (tasks.md or TODO.md)
  single     one ad-hoc task given with --task

Independent tasks are grouped by dependency, one agent per group.
The strategy layer decides mode, isolation target, and parallelism
from the batch and the repository; --mode, --target, and
--max-parallel override it.

Failure policies:
  skip    mark the group failed and keep going (default)
  retry   re-run the group up to --max-retries times, then skip
  abort   stop spawning, skip everything still pending

Examples:
  foreman orchestrate                        # auto-detect tasks.md
  foreman orchestrate --explain              # print the decision, run nothing
  foreman orchestrate --tui                  # live progress display
  foreman orchestrate --source single --task "Upgrade deps"`,
	RunE: runOrchestrate,
}

func init() {
	orchestrateCmd.Flags().StringVar(&orchRepo, "repo", "", "Repository path or clone URL (default: current directory)")
	orchestrateCmd.Flags().StringVar(&orchSource, "source", "auto", "Task source: auto, speckit, markdown, or single")
	orchestrateCmd.Flags().StringVar(&orchTask, "task", "", "Task description for --source single")
	orchestrateCmd.Flags().StringVar(&orchMode, "mode", "", "Override the decided execution mode")
	orchestrateCmd.Flags().StringVar(&orchTarget, "target", "", "Override the decided isolation target")
	orchestrateCmd.Flags().IntVar(&orchMaxParallel, "max-parallel", 0, "Override the decided parallelism cap")
	orchestrateCmd.Flags().DurationVar(&orchPollInterval, "poll-interval", 0, "Sleep between scheduler iterations")
	orchestrateCmd.Flags().StringVar(&orchFailurePolicy, "failure-policy", "", "Failure policy: retry, skip, or abort")
	orchestrateCmd.Flags().IntVar(&orchMaxRetries, "max-retries", 0, "Re-spawns per group under the retry policy")
	orchestrateCmd.Flags().BoolVar(&orchExplain, "explain", false, "Print the strategy decision and exit")
	orchestrateCmd.Flags().BoolVar(&orchTUI, "tui", false, "Show a live progress TUI")
	orchestrateCmd.Flags().StringVar(&orchDebugLog, "debug-log", "", "Append scheduler debug output to a file")
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	repo := orchRepo
	if repo == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		repo = cwd
	}

	src := source.Detect(repo, orchSource, orchTask)
	if src == nil {
		return fmt.Errorf("no task source found in %s; create a tasks.md or pass --source single --task <description>", repo)
	}
	// File-backed sources get an fsnotify cache so mid-run edits to
	// the task file are picked up on the next poll.
	if fb, ok := src.(source.FileBacked); ok {
		cached, err := source.NewCachedSource(fb)
		if err == nil {
			defer cached.Close()
			src = cached
		}
	}

	tasks, err := src.Tasks()
	if err != nil {
		return fmt.Errorf("read tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks to run.")
		return nil
	}

	repoInfo, err := strategy.ScanRepo(repo)
	if err != nil {
		return fmt.Errorf("scan repository: %w", err)
	}

	decision := strategy.New(maxParallel()).Decide(taskInfos(tasks), repoInfo, overrides())

	if orchExplain {
		fmt.Fprintln(cmd.OutOrStdout(), strategy.Explain(decision))
		for i, group := range decision.TaskGroups {
			names := make([]string, len(group))
			for j, t := range group {
				names[j] = t.Name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %d: %s\n", i+1, strings.Join(names, ", "))
		}
		return nil
	}

	if decision.Target == models.TargetLocal {
		if err := CheckAgentCLI(agentCommand()); err != nil {
			return err
		}
	}

	db, err := state.OpenGlobal()
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	runID, err := db.CreateRun(repo, string(decision.Mode), string(decision.Target))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	logger, err := orchestrator.NewDebugLogger(orchDebugLog)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := orchestrator.Options{
		Source:        src,
		MaxParallel:   decision.Parallelism,
		PollInterval:  pollInterval(),
		FailurePolicy: failurePolicy(),
		MaxRetries:    maxRetries(),
		Logger:        logger,
	}

	var result *orchestrator.Result
	if orchTUI {
		result, err = runWithTUI(ctx, stop, db, runID, decision, repo, opts)
		if err != nil {
			return err
		}
	} else {
		rep := &dbReporter{inner: report.NewTerminal(), db: db, runID: runID}
		opts.Reporter = rep
		opts.CheckpointSink = rep.StashCheckpoints
		orch := orchestrator.New(realBackends(), opts)
		result = orch.Run(ctx, decision, repo)
	}

	status := "completed"
	if len(result.FailedTasks) > 0 || len(result.Errors) > 0 {
		status = "failed"
	}
	if finishErr := db.FinishRun(runID, status, result.AgentsSpawned,
		len(result.CompletedTasks), len(result.FailedTasks), len(result.SkippedTasks)); finishErr != nil {
		fmt.Fprintf(os.Stderr, "warning: record run outcome: %v\n", finishErr)
	}

	if status == "failed" {
		return fmt.Errorf("%d task(s) failed", len(result.FailedTasks))
	}
	return nil
}

// runWithTUI runs the orchestrator in the background and blocks on the
// progress TUI. Quitting the TUI cancels the orchestration context.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, db *state.DB, runID string,
	decision strategy.Decision, repo string, opts orchestrator.Options) (*orchestrator.Result, error) {

	program, _ := tui.NewProgram()
	rep := &dbReporter{inner: tui.NewReporter(program), db: db, runID: runID}
	opts.Reporter = rep
	opts.CheckpointSink = rep.StashCheckpoints
	orch := orchestrator.New(realBackends(), opts)

	resultCh := make(chan *orchestrator.Result, 1)
	go func() {
		result := orch.Run(ctx, decision, repo)
		resultCh <- result
		program.Send(tui.DoneMsg{})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-resultCh
		return nil, fmt.Errorf("tui: %w", err)
	}
	// TUI quit before the run finished means the user cancelled.
	cancel()
	return <-resultCh, nil
}

// taskInfos converts source tasks into strategy inputs. Complexity and
// destructiveness come from task labels when present.
func taskInfos(tasks []models.Task) []strategy.TaskInfo {
	infos := make([]strategy.TaskInfo, len(tasks))
	for i, t := range tasks {
		info := strategy.TaskInfo{
			Name:      t.TaskID,
			DependsOn: t.Dependencies,
			Labels:    t.Labels,
		}
		switch t.Labels["complexity"] {
		case "simple", "moderate", "complex":
			info.Complexity = t.Labels["complexity"]
		}
		if t.Labels["destructive"] == "true" {
			info.IsDestructive = true
		}
		infos[i] = info
	}
	return infos
}

func overrides() strategy.Overrides {
	var o strategy.Overrides
	if orchMode != "" {
		m := models.Mode(orchMode)
		o.Mode = &m
	}
	if orchTarget != "" {
		t := models.Target(orchTarget)
		o.Target = &t
	}
	if orchMaxParallel > 0 {
		o.Parallelism = &orchMaxParallel
	}
	return o
}

func maxParallel() int {
	if orchMaxParallel > 0 {
		return orchMaxParallel
	}
	if cfg != nil && cfg.Defaults.MaxParallel > 0 {
		return cfg.Defaults.MaxParallel
	}
	return strategy.DefaultMaxParallel
}

func pollInterval() time.Duration {
	if orchPollInterval > 0 {
		return orchPollInterval
	}
	if cfg != nil && cfg.Defaults.PollInterval > 0 {
		return cfg.Defaults.PollInterval
	}
	return 0
}

func failurePolicy() orchestrator.FailurePolicy {
	policy := orchFailurePolicy
	if policy == "" && cfg != nil {
		policy = cfg.Defaults.FailurePolicy
	}
	return orchestrator.FailurePolicy(policy)
}

func maxRetries() int {
	if orchMaxRetries > 0 {
		return orchMaxRetries
	}
	if cfg != nil && cfg.Defaults.MaxRetries > 0 {
		return cfg.Defaults.MaxRetries
	}
	return 0
}

// dbReporter records agent lifecycle events in the state database on
// top of another reporter. Checkpoint trails arrive through
// StashCheckpoints before the agent row exists, so they are held until
// OnAgentStarted inserts it.
type dbReporter struct {
	inner   report.Reporter
	db      *state.DB
	runID   string
	stashed map[string][]workflow.Checkpoint
}

// StashCheckpoints holds an agent's checkpoint trail until the agent
// row is recorded. Trails from failed spawns never get a row and are
// dropped.
func (r *dbReporter) StashCheckpoints(agentID string, checkpoints []workflow.Checkpoint) {
	if r.stashed == nil {
		r.stashed = make(map[string][]workflow.Checkpoint)
	}
	r.stashed[agentID] = checkpoints
}

func (r *dbReporter) OnAgentStarted(agentID string, taskNames []string, sandboxName string) {
	err := r.db.RecordAgent(state.AgentRecord{
		ID:          agentID,
		RunID:       r.runID,
		TaskNames:   taskNames,
		SandboxName: sandboxName,
		Status:      "running",
		StartedAt:   time.Now(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: record agent %s: %v\n", agentID, err)
	}
	if checkpoints, ok := r.stashed[agentID]; ok {
		delete(r.stashed, agentID)
		if err := r.db.SaveCheckpoints(r.runID, agentID, checkpoints); err != nil {
			fmt.Fprintf(os.Stderr, "warning: save checkpoints for %s: %v\n", agentID, err)
		}
	}
	r.inner.OnAgentStarted(agentID, taskNames, sandboxName)
}

func (r *dbReporter) OnAgentCompleted(agentID string, taskNames []string, duration time.Duration) {
	if err := r.db.FinishAgent(r.runID, agentID, "completed"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: record agent %s: %v\n", agentID, err)
	}
	r.inner.OnAgentCompleted(agentID, taskNames, duration)
}

func (r *dbReporter) OnAgentFailed(agentID string, taskNames []string, errMsg string) {
	if err := r.db.FinishAgent(r.runID, agentID, "failed"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: record agent %s: %v\n", agentID, err)
	}
	r.inner.OnAgentFailed(agentID, taskNames, errMsg)
}

func (r *dbReporter) OnProgress(running, completed, pending, failed int) {
	r.inner.OnProgress(running, completed, pending, failed)
}

func (r *dbReporter) Summarize(completed, failed, skipped []string, agentsSpawned int, totalTime time.Duration, errs []string) string {
	return r.inner.Summarize(completed, failed, skipped, agentsSpawned, totalTime, errs)
}

var _ report.Reporter = (*dbReporter)(nil)
