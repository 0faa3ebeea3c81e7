// Package orchestrator spawns, monitors, and coordinates multiple
// agents in parallel. It sits above the executor layer: an execution
// decision goes in, agents run through the planner, executor, and
// backends, and a summary result comes out.
//
// The scheduler is a single cooperative loop. All mutation of the
// pending queue, the running set, and the result accumulator happens
// inside the loop, so there is exactly one writer and no locking. The
// only suspension point is the poll-interval sleep between iterations.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mwaldrip/foreman/internal/backend"
	"github.com/mwaldrip/foreman/internal/executor"
	"github.com/mwaldrip/foreman/internal/handler"
	"github.com/mwaldrip/foreman/internal/planner"
	"github.com/mwaldrip/foreman/internal/report"
	"github.com/mwaldrip/foreman/internal/source"
	"github.com/mwaldrip/foreman/internal/strategy"
	"github.com/mwaldrip/foreman/internal/workflow"
	"github.com/mwaldrip/foreman/pkg/models"
)

// FailurePolicy controls how a failed agent affects the rest of the
// run.
type FailurePolicy string

const (
	// Retry re-enqueues the failed group until retries are exhausted.
	Retry FailurePolicy = "retry"
	// Skip records the failure and moves on. The default.
	Skip FailurePolicy = "skip"
	// Abort stops spawning and reclassifies not-yet-spawned work as
	// skipped. Already-running agents are not cancelled.
	Abort FailurePolicy = "abort"
)

// AgentStatus is the polled state of a spawned agent.
type AgentStatus string

const (
	StatusRunning   AgentStatus = "running"
	StatusCompleted AgentStatus = "completed"
	StatusFailed    AgentStatus = "failed"
)

// AgentHandle tracks one spawned agent.
type AgentHandle struct {
	ID        string
	TaskGroup []strategy.TaskInfo
	// SandboxName is empty for local-target agents.
	SandboxName     string
	StartedAt       time.Time
	ExecutionResult *executor.Result
	RetryCount      int
}

// Result is the final outcome of an orchestration run. Every task
// name the run ever knew appears in exactly one of the three lists.
type Result struct {
	CompletedTasks []string
	FailedTasks    []string
	SkippedTasks   []string
	AgentsSpawned  int
	TotalTime      time.Duration
	Errors         []string
}

// pendingGroup is a task group waiting for an agent.
type pendingGroup struct {
	tasks      []strategy.TaskInfo
	retryCount int
}

// agentStatusCmd probes the agent completion markers inside a
// sandbox. Exit 1 means the agent is still running; exit 0 prints the
// agent's recorded exit code.
const agentStatusCmd = "test -f /tmp/.agent-done && cat /tmp/.agent-exit-code || exit 1"

// Options configures an Orchestrator.
type Options struct {
	// Source supplies and tracks tasks. Optional; without one, task
	// status updates and mid-run unblock detection are disabled.
	Source source.TaskSource
	// Reporter receives lifecycle events. Defaults to a recording
	// reporter that discards nothing but displays nothing.
	Reporter report.Reporter
	// MaxParallel caps concurrently running agents. Defaults to 3.
	MaxParallel int
	// PollInterval is the sleep between scheduler iterations.
	// Defaults to 5s.
	PollInterval time.Duration
	// FailurePolicy defaults to Skip.
	FailurePolicy FailurePolicy
	// MaxRetries bounds re-spawns per group under the Retry policy.
	// Defaults to 1.
	MaxRetries int
	// Logger receives debug output. Defaults to a no-op logger.
	Logger *DebugLogger
	// CheckpointSink, when set, receives every agent's checkpoint
	// trail after its plan executes, including failed spawns.
	CheckpointSink func(agentID string, checkpoints []workflow.Checkpoint)
}

// Orchestrator runs agents for task groups up to a parallelism cap,
// polls them to completion, and applies the failure policy.
type Orchestrator struct {
	backends      *backend.Set
	taskSource    source.TaskSource
	reporter      report.Reporter
	maxParallel   int
	pollInterval  time.Duration
	failurePolicy FailurePolicy
	maxRetries    int
	logger        *DebugLogger
	checkpoints   func(agentID string, checkpoints []workflow.Checkpoint)

	agentCounter int
}

// New creates an Orchestrator over the given backends.
func New(backends *backend.Set, opts Options) *Orchestrator {
	if opts.Reporter == nil {
		opts.Reporter = report.NewRecording()
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = Skip
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 1
	}
	if opts.Logger == nil {
		opts.Logger = NopLogger()
	}
	return &Orchestrator{
		backends:      backends,
		taskSource:    opts.Source,
		reporter:      opts.Reporter,
		maxParallel:   opts.MaxParallel,
		pollInterval:  opts.PollInterval,
		failurePolicy: opts.FailurePolicy,
		maxRetries:    opts.MaxRetries,
		logger:        opts.Logger,
		checkpoints:   opts.CheckpointSink,
	}
}

func (o *Orchestrator) nextAgentID() string {
	o.agentCounter++
	return fmt.Sprintf("agent-%d", o.agentCounter)
}

// Run executes the orchestration loop: spawn agents for task groups
// up to the parallelism cap, poll for completion, pick up tasks the
// source reports as newly unblocked, and apply the failure policy.
// Cancelling the context stops new spawns and polling; tasks that
// never finished are reported as skipped.
func (o *Orchestrator) Run(ctx context.Context, decision strategy.Decision, repo string) *Result {
	start := time.Now()
	result := &Result{}

	var pending []*pendingGroup
	for _, g := range decision.TaskGroups {
		pending = append(pending, &pendingGroup{tasks: append([]strategy.TaskInfo{}, g...)})
	}
	running := make(map[string]*AgentHandle)
	allNames := make(map[string]bool)
	for _, g := range decision.TaskGroups {
		for _, t := range g {
			allNames[t.Name] = true
		}
	}
	aborted := false

	o.logger.Log("run started: %d groups, max_parallel=%d, policy=%s",
		len(pending), o.maxParallel, o.failurePolicy)

	for (len(pending) > 0 || len(running) > 0) && !aborted && ctx.Err() == nil {
		// Spawn up to the parallelism limit.
		for len(pending) > 0 && len(running) < o.maxParallel && !aborted {
			pg := pending[0]
			pending = pending[1:]
			handle := o.spawnAgent(ctx, pg, decision, repo)
			names := taskNames(pg.tasks)
			if handle != nil {
				running[handle.ID] = handle
				result.AgentsSpawned++
				o.logger.Log("spawned %s (tasks: %s)", handle.ID, strings.Join(names, ", "))
				o.reporter.OnAgentStarted(handle.ID, names, handle.SandboxName)
			} else {
				for _, t := range pg.tasks {
					result.FailedTasks = append(result.FailedTasks, t.Name)
					o.updateStatus(t.Name, models.TaskFailed)
				}
				result.Errors = append(result.Errors,
					fmt.Sprintf("Failed to spawn agent for: %s", strings.Join(names, ", ")))
				o.logger.Log("spawn failed (tasks: %s)", strings.Join(names, ", "))
			}
		}

		if len(running) == 0 {
			break
		}

		// Poll all running agents.
		type doneAgent struct {
			id     string
			status AgentStatus
		}
		var done []doneAgent
		for id, handle := range running {
			status := o.checkAgentStatus(ctx, handle, decision.Target)
			if status != StatusRunning {
				done = append(done, doneAgent{id: id, status: status})
			}
		}

		for _, d := range done {
			handle := running[d.id]
			delete(running, d.id)
			names := taskNames(handle.TaskGroup)
			duration := time.Since(handle.StartedAt)

			if d.status == StatusCompleted {
				for _, t := range handle.TaskGroup {
					result.CompletedTasks = append(result.CompletedTasks, t.Name)
					o.updateStatus(t.Name, models.TaskCompleted)
				}
				o.logger.Log("%s completed in %s", d.id, duration)
				o.reporter.OnAgentCompleted(d.id, names, duration)

				// Work the completion may have unblocked gets its own
				// groups, so it is picked up without restarting the run.
				for _, group := range o.findNewlyUnblocked(allNames) {
					pending = append(pending, &pendingGroup{tasks: group})
					for _, t := range group {
						allNames[t.Name] = true
					}
				}
			} else {
				errMsg := fmt.Sprintf("Agent %s failed", d.id)
				o.logger.Log("%s failed", d.id)
				o.reporter.OnAgentFailed(d.id, names, errMsg)
				if o.handleFailure(handle, result, &pending) {
					aborted = true
				}
			}
		}

		pendingCount := 0
		for _, pg := range pending {
			pendingCount += len(pg.tasks)
		}
		o.reporter.OnProgress(len(running), len(result.CompletedTasks), pendingCount, len(result.FailedTasks))

		if len(running) > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.pollInterval):
			}
		}
	}

	// On abort, everything still queued is skipped.
	if aborted {
		for _, pg := range pending {
			for _, t := range pg.tasks {
				result.SkippedTasks = append(result.SkippedTasks, t.Name)
			}
		}
		pending = nil
	}

	result.TotalTime = time.Since(start)

	// Any task never recorded anywhere was skipped, covering groups
	// that never got a chance to spawn.
	accounted := make(map[string]bool)
	for _, n := range result.CompletedTasks {
		accounted[n] = true
	}
	for _, n := range result.FailedTasks {
		accounted[n] = true
	}
	for _, n := range result.SkippedTasks {
		accounted[n] = true
	}
	for name := range allNames {
		if !accounted[name] {
			result.SkippedTasks = append(result.SkippedTasks, name)
		}
	}

	o.reporter.Summarize(result.CompletedTasks, result.FailedTasks, result.SkippedTasks,
		result.AgentsSpawned, result.TotalTime, result.Errors)
	o.logger.Log("run finished: %d completed, %d failed, %d skipped, %d agents",
		len(result.CompletedTasks), len(result.FailedTasks), len(result.SkippedTasks), result.AgentsSpawned)

	return result
}

// spawnAgent builds and executes a plan for the group. A nil return
// means the spawn itself failed and no agent exists.
func (o *Orchestrator) spawnAgent(ctx context.Context, pg *pendingGroup, decision strategy.Decision, repo string) *AgentHandle {
	agentID := o.nextAgentID()
	descriptions := make([]string, len(pg.tasks))
	for i, t := range pg.tasks {
		descriptions[i] = t.Name
	}
	sandboxName := "ralph-" + agentID

	p, err := planner.CreatePlan(planner.Input{
		Repo:        repo,
		Task:        strings.Join(descriptions, "; "),
		Mode:        decision.Mode,
		Target:      decision.Target,
		SandboxName: sandboxName,
	})
	if err != nil {
		o.logger.Log("plan for %s rejected: %v", agentID, err)
		return nil
	}

	execCtx := handler.NewContext(ctx, o.backends)
	exec := executor.New(handler.New(execCtx))
	execResult := exec.Run(p)
	if o.checkpoints != nil {
		o.checkpoints(agentID, exec.Checkpoints())
	}
	if execResult.State == workflow.StateFailed {
		o.logger.Log("executor for %s failed at %s: %s", agentID, execResult.FailedStep, execResult.Error)
		return nil
	}

	if decision.Target == models.TargetLocal {
		sandboxName = ""
	}
	return &AgentHandle{
		ID:              agentID,
		TaskGroup:       pg.tasks,
		SandboxName:     sandboxName,
		StartedAt:       time.Now(),
		ExecutionResult: execResult,
		RetryCount:      pg.retryCount,
	}
}

// checkAgentStatus polls the agent's environment. Local agents ran
// synchronously inside the executor call, so an existing handle means
// they already finished.
func (o *Orchestrator) checkAgentStatus(ctx context.Context, handle *AgentHandle, target models.Target) AgentStatus {
	if target == models.TargetLocal || handle.SandboxName == "" {
		return StatusCompleted
	}

	exitCode, output, err := o.backends.Sandbox.Exec(ctx, handle.SandboxName, agentStatusCmd)
	if err != nil || exitCode != 0 {
		return StatusRunning
	}

	output = strings.TrimSpace(output)
	if output == "" || output == "0" {
		return StatusCompleted
	}
	return StatusFailed
}

// handleFailure applies the failure policy. Returns true when the run
// should abort.
func (o *Orchestrator) handleFailure(handle *AgentHandle, result *Result, pending *[]*pendingGroup) bool {
	if o.failurePolicy == Retry && handle.RetryCount < o.maxRetries {
		*pending = append(*pending, &pendingGroup{
			tasks:      handle.TaskGroup,
			retryCount: handle.RetryCount + 1,
		})
		o.logger.Log("%s re-enqueued (retry %d of %d)", handle.ID, handle.RetryCount+1, o.maxRetries)
		return false
	}

	names := taskNames(handle.TaskGroup)
	for _, t := range handle.TaskGroup {
		result.FailedTasks = append(result.FailedTasks, t.Name)
		o.updateStatus(t.Name, models.TaskFailed)
	}
	result.Errors = append(result.Errors,
		fmt.Sprintf("Agent %s failed (tasks: %s)", handle.ID, strings.Join(names, ", ")))

	return o.failurePolicy == Abort
}

// findNewlyUnblocked asks the task source for ready tasks not already
// known to this run. Each new task becomes its own group.
func (o *Orchestrator) findNewlyUnblocked(known map[string]bool) [][]strategy.TaskInfo {
	if o.taskSource == nil {
		return nil
	}
	ready, err := o.taskSource.ReadyTasks()
	if err != nil {
		o.logger.Log("ready-task query failed: %v", err)
		return nil
	}

	var groups [][]strategy.TaskInfo
	for _, t := range ready {
		if known[t.TaskID] {
			continue
		}
		groups = append(groups, []strategy.TaskInfo{{Name: t.TaskID}})
	}
	return groups
}

func (o *Orchestrator) updateStatus(taskID string, status models.TaskStatus) {
	if o.taskSource == nil {
		return
	}
	if err := o.taskSource.UpdateStatus(taskID, status); err != nil {
		o.logger.Log("status update for %s failed: %v", taskID, err)
	}
}

func taskNames(tasks []strategy.TaskInfo) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}
