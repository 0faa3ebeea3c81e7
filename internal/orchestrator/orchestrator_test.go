package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwaldrip/foreman/internal/backend"
	"github.com/mwaldrip/foreman/internal/report"
	"github.com/mwaldrip/foreman/internal/strategy"
	"github.com/mwaldrip/foreman/internal/workflow"
	"github.com/mwaldrip/foreman/pkg/models"
)

// fakeSource is an in-memory task source for orchestrator tests.
type fakeSource struct {
	tasks    map[string]*models.Task
	statuses map[string]models.TaskStatus
}

func newFakeSource(tasks ...models.Task) *fakeSource {
	s := &fakeSource{
		tasks:    make(map[string]*models.Task),
		statuses: make(map[string]models.TaskStatus),
	}
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.TaskID] = &t
	}
	return s
}

func (s *fakeSource) Tasks() ([]models.Task, error) {
	var out []models.Task
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (s *fakeSource) ReadyTasks() ([]models.Task, error) {
	completed := make(map[string]bool)
	for _, t := range s.tasks {
		if t.Status == models.TaskCompleted {
			completed[t.TaskID] = true
		}
	}
	var ready []models.Task
	for _, t := range s.tasks {
		if t.Status != models.TaskCompleted && !t.Blocked(completed) {
			ready = append(ready, *t)
		}
	}
	return ready, nil
}

func (s *fakeSource) UpdateStatus(taskID string, status models.TaskStatus) error {
	s.statuses[taskID] = status
	if t, ok := s.tasks[taskID]; ok {
		t.Status = status
	}
	return nil
}

func (s *fakeSource) ClaimTask(taskID string) (bool, error) { return true, nil }

func testRepo(t *testing.T) string {
	t.Helper()
	repo := filepath.Join(t.TempDir(), "widget")
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatal(err)
	}
	return repo
}

func singleGroups(names ...string) [][]strategy.TaskInfo {
	groups := make([][]strategy.TaskInfo, len(names))
	for i, n := range names {
		groups[i] = []strategy.TaskInfo{{Name: n}}
	}
	return groups
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

func TestRunLocalAgentsRespectParallelismCap(t *testing.T) {
	backends := backend.New(backend.Mock)
	rec := report.NewRecording()
	orch := New(backends, Options{
		Reporter:     rec,
		MaxParallel:  2,
		PollInterval: time.Millisecond,
	})

	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetLocal,
		TaskGroups: singleGroups("T1", "T2", "T3"),
	}
	result := orch.Run(context.Background(), decision, testRepo(t))

	if len(result.CompletedTasks) != 3 {
		t.Fatalf("expected 3 completed, got %v", result.CompletedTasks)
	}
	for _, name := range []string{"T1", "T2", "T3"} {
		if !contains(result.CompletedTasks, name) {
			t.Errorf("expected %s completed", name)
		}
	}
	if result.AgentsSpawned != 3 {
		t.Errorf("expected 3 agents, got %d", result.AgentsSpawned)
	}
	if len(result.FailedTasks) != 0 || len(result.SkippedTasks) != 0 {
		t.Errorf("expected clean run, got failed=%v skipped=%v", result.FailedTasks, result.SkippedTasks)
	}
	for _, e := range rec.ByType("progress") {
		if running := e.Data["running"].(int); running > 2 {
			t.Errorf("running %d exceeded max_parallel 2", running)
		}
	}
	if len(rec.Summaries) != 1 {
		t.Errorf("summarize must be called exactly once, got %d", len(rec.Summaries))
	}
}

func TestRunAbortSkipsRemainingGroups(t *testing.T) {
	backends := backend.New(backend.Mock)
	// agent-1's status probe reports done with a non-zero exit code.
	backends.Sandbox.(*backend.MockSandbox).ExecScript["ralph-agent-1"] = []backend.ExecResult{
		{ExitCode: 0, Output: "1\n"},
	}
	rec := report.NewRecording()
	orch := New(backends, Options{
		Reporter:      rec,
		MaxParallel:   1,
		PollInterval:  time.Millisecond,
		FailurePolicy: Abort,
	})

	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetSandbox,
		TaskGroups: singleGroups("T1", "T2", "T3"),
	}
	result := orch.Run(context.Background(), decision, testRepo(t))

	if len(result.FailedTasks) != 1 || result.FailedTasks[0] != "T1" {
		t.Errorf("expected only T1 failed, got %v", result.FailedTasks)
	}
	if len(result.SkippedTasks) != 2 || !contains(result.SkippedTasks, "T2") || !contains(result.SkippedTasks, "T3") {
		t.Errorf("expected T2 and T3 skipped, got %v", result.SkippedTasks)
	}
	if result.AgentsSpawned != 1 {
		t.Errorf("expected 1 agent spawned, got %d", result.AgentsSpawned)
	}
	if len(rec.ByType("failed")) != 1 {
		t.Errorf("expected one failure event, got %v", rec.ByType("failed"))
	}
}

func TestRunRetriesUntilExhausted(t *testing.T) {
	backends := backend.New(backend.Mock)
	sandbox := backends.Sandbox.(*backend.MockSandbox)
	// Every attempt's probe reports agent failure immediately.
	for _, name := range []string{"ralph-agent-1", "ralph-agent-2", "ralph-agent-3"} {
		sandbox.ExecScript[name] = []backend.ExecResult{{ExitCode: 0, Output: "2\n"}}
	}
	rec := report.NewRecording()
	orch := New(backends, Options{
		Reporter:      rec,
		MaxParallel:   1,
		PollInterval:  time.Millisecond,
		FailurePolicy: Retry,
		MaxRetries:    2,
	})

	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetSandbox,
		TaskGroups: singleGroups("T1"),
	}
	result := orch.Run(context.Background(), decision, testRepo(t))

	// One initial spawn plus two retries.
	if result.AgentsSpawned != 3 {
		t.Errorf("expected 3 agents, got %d", result.AgentsSpawned)
	}
	if len(result.FailedTasks) != 1 || result.FailedTasks[0] != "T1" {
		t.Errorf("expected T1 failed after retries, got %v", result.FailedTasks)
	}
	if len(result.SkippedTasks) != 0 {
		t.Errorf("expected nothing skipped, got %v", result.SkippedTasks)
	}
}

func TestRunSpawnFailureMarksGroupFailed(t *testing.T) {
	backends := backend.New(backend.Mock)
	backends.Sandbox.(*backend.MockSandbox).FailOn = "prepare"
	src := newFakeSource(
		models.Task{TaskID: "T1", Title: "T1"},
		models.Task{TaskID: "T2", Title: "T2"},
	)
	orch := New(backends, Options{
		Source:       src,
		PollInterval: time.Millisecond,
	})

	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetSandbox,
		TaskGroups: [][]strategy.TaskInfo{{{Name: "T1"}, {Name: "T2"}}},
	}
	result := orch.Run(context.Background(), decision, testRepo(t))

	if result.AgentsSpawned != 0 {
		t.Errorf("expected no agents, got %d", result.AgentsSpawned)
	}
	if len(result.FailedTasks) != 2 {
		t.Errorf("expected both tasks failed, got %v", result.FailedTasks)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected one error recorded, got %v", result.Errors)
	}
	if src.statuses["T1"] != models.TaskFailed || src.statuses["T2"] != models.TaskFailed {
		t.Errorf("expected task source updated, got %v", src.statuses)
	}
}

func TestRunPicksUpNewlyUnblockedTasks(t *testing.T) {
	backends := backend.New(backend.Mock)
	src := newFakeSource(
		models.Task{TaskID: "T1", Title: "T1"},
		models.Task{TaskID: "T2", Title: "T2", Dependencies: []string{"T1"}},
	)
	orch := New(backends, Options{
		Source:       src,
		PollInterval: time.Millisecond,
	})

	// Only T1 is scheduled up front; T2 unblocks when T1 completes.
	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetLocal,
		TaskGroups: singleGroups("T1"),
	}
	result := orch.Run(context.Background(), decision, testRepo(t))

	if !contains(result.CompletedTasks, "T1") || !contains(result.CompletedTasks, "T2") {
		t.Fatalf("expected T1 and T2 completed, got %v", result.CompletedTasks)
	}
	if result.AgentsSpawned != 2 {
		t.Errorf("expected 2 agents, got %d", result.AgentsSpawned)
	}
	if src.statuses["T2"] != models.TaskCompleted {
		t.Errorf("expected T2 marked completed in source, got %v", src.statuses)
	}
}

func TestRunPartitionInvariant(t *testing.T) {
	backends := backend.New(backend.Mock)
	backends.Sandbox.(*backend.MockSandbox).ExecScript["ralph-agent-2"] = []backend.ExecResult{
		{ExitCode: 0, Output: "1\n"},
	}
	backends.Sandbox.(*backend.MockSandbox).ExecScript["ralph-agent-1"] = []backend.ExecResult{
		{ExitCode: 0, Output: "0\n"},
	}
	orch := New(backends, Options{
		MaxParallel:  2,
		PollInterval: time.Millisecond,
	})

	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetSandbox,
		TaskGroups: singleGroups("T1", "T2"),
	}
	result := orch.Run(context.Background(), decision, testRepo(t))

	seen := make(map[string]int)
	for _, n := range result.CompletedTasks {
		seen[n]++
	}
	for _, n := range result.FailedTasks {
		seen[n]++
	}
	for _, n := range result.SkippedTasks {
		seen[n]++
	}
	if len(seen) != 2 {
		t.Fatalf("expected both tasks accounted for, got %v", seen)
	}
	for name, count := range seen {
		if count != 1 {
			t.Errorf("task %s recorded %d times across the partition", name, count)
		}
	}
}

func TestRunSandboxCompletionViaProbe(t *testing.T) {
	backends := backend.New(backend.Mock)
	// First probe: still running. Second probe: done with exit 0.
	backends.Sandbox.(*backend.MockSandbox).ExecScript["ralph-agent-1"] = []backend.ExecResult{
		{ExitCode: 1},
		{ExitCode: 0, Output: "0\n"},
	}
	rec := report.NewRecording()
	orch := New(backends, Options{
		Reporter:     rec,
		PollInterval: time.Millisecond,
	})

	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetSandbox,
		TaskGroups: singleGroups("T1"),
	}
	result := orch.Run(context.Background(), decision, testRepo(t))

	if !contains(result.CompletedTasks, "T1") {
		t.Fatalf("expected T1 completed, got %v", result.CompletedTasks)
	}
	started := rec.ByType("started")
	if len(started) != 1 || started[0].Data["sandbox_name"] != "ralph-agent-1" {
		t.Errorf("expected sandbox name reported, got %v", started)
	}
	// The probe ran the documented status command.
	execs := backends.Sandbox.(*backend.MockSandbox).Execs
	if len(execs) < 2 || execs[0][1] != agentStatusCmd {
		t.Errorf("expected status probes, got %v", execs)
	}
}

func TestRunCancelledContextSkipsUnfinishedWork(t *testing.T) {
	backends := backend.New(backend.Mock)
	// No exec script: the sandbox agent polls as running forever.
	ctx, cancel := context.WithCancel(context.Background())
	orch := New(backends, Options{
		PollInterval: time.Millisecond,
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetSandbox,
		TaskGroups: singleGroups("T1"),
	}
	result := orch.Run(ctx, decision, testRepo(t))

	if len(result.CompletedTasks) != 0 {
		t.Errorf("expected nothing completed, got %v", result.CompletedTasks)
	}
	if !contains(result.SkippedTasks, "T1") {
		t.Errorf("expected T1 skipped on cancellation, got %v", result.SkippedTasks)
	}
}

func TestRunCheckpointSinkReceivesTrails(t *testing.T) {
	backends := backend.New(backend.Mock)
	trails := make(map[string]int)
	orch := New(backends, Options{
		PollInterval: time.Millisecond,
		CheckpointSink: func(agentID string, checkpoints []workflow.Checkpoint) {
			trails[agentID] = len(checkpoints)
		},
	})

	decision := strategy.Decision{
		Mode:       models.ModeAutonomous,
		Target:     models.TargetLocal,
		TaskGroups: singleGroups("T1"),
	}
	orch.Run(context.Background(), decision, testRepo(t))

	// Local plans have four steps, one checkpoint each.
	if trails["agent-1"] != 4 {
		t.Errorf("expected 4 checkpoints for agent-1, got %d", trails["agent-1"])
	}
}
