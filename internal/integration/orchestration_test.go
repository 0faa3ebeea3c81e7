//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwaldrip/foreman/internal/backend"
	"github.com/mwaldrip/foreman/internal/orchestrator"
	"github.com/mwaldrip/foreman/internal/report"
	"github.com/mwaldrip/foreman/internal/source"
	"github.com/mwaldrip/foreman/internal/strategy"
	"github.com/mwaldrip/foreman/pkg/models"
)

// writeTaskRepo creates a repo directory with a markdown task file:
// two independent tasks plus one nested under the first.
func writeTaskRepo(t *testing.T) string {
	t.Helper()
	repo := filepath.Join(t.TempDir(), "widget")
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatalf("mkdir repo: %v", err)
	}
	content := `# Tasks

- [ ] Add parser
  - [ ] Add parser tests
- [ ] Update docs
`
	if err := os.WriteFile(filepath.Join(repo, "tasks.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write tasks.md: %v", err)
	}
	return repo
}

func taskInfos(tasks []models.Task) []strategy.TaskInfo {
	infos := make([]strategy.TaskInfo, len(tasks))
	for i, task := range tasks {
		infos[i] = strategy.TaskInfo{
			Name:      task.TaskID,
			DependsOn: task.Dependencies,
			Labels:    task.Labels,
		}
	}
	return infos
}

// TestMarkdownOrchestration drives the full pipeline: detect the task
// source, decide a strategy, orchestrate with mock backends, and check
// that completions land back in the markdown file.
func TestMarkdownOrchestration(t *testing.T) {
	repo := writeTaskRepo(t)

	src := source.Detect(repo, "auto", "")
	if src == nil {
		t.Fatal("expected markdown source to be detected")
	}

	tasks, err := src.Tasks()
	if err != nil {
		t.Fatalf("read tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}

	repoInfo, err := strategy.ScanRepo(repo)
	if err != nil {
		t.Fatalf("scan repo: %v", err)
	}

	decision := strategy.New(4).Decide(taskInfos(tasks), repoInfo, strategy.Overrides{})
	if decision.Mode != models.ModeAutonomous {
		t.Fatalf("expected autonomous mode, got %s", decision.Mode)
	}
	// Plain repo, no auth or container indicators.
	if decision.Target != models.TargetLocal {
		t.Fatalf("expected local target, got %s", decision.Target)
	}
	if len(decision.TaskGroups) != 2 {
		t.Fatalf("expected 2 dependency groups, got %d", len(decision.TaskGroups))
	}

	backends := backend.New(backend.Mock)
	recording := report.NewRecording()
	orch := orchestrator.New(backends, orchestrator.Options{
		Source:       src,
		Reporter:     recording,
		MaxParallel:  decision.Parallelism,
		PollInterval: time.Millisecond,
	})

	result := orch.Run(context.Background(), decision, repo)

	if len(result.CompletedTasks) != 3 {
		t.Fatalf("expected 3 completed tasks, got %v", result.CompletedTasks)
	}
	if len(result.FailedTasks) != 0 || len(result.SkippedTasks) != 0 {
		t.Fatalf("unexpected failures %v or skips %v", result.FailedTasks, result.SkippedTasks)
	}
	if result.AgentsSpawned != 2 {
		t.Errorf("expected 2 agents, got %d", result.AgentsSpawned)
	}

	// Every agent ran locally through the terminal backend.
	terminal := backends.Terminal.(*backend.MockTerminal)
	if len(terminal.LocalRuns) != 2 {
		t.Errorf("expected 2 local agent runs, got %d", len(terminal.LocalRuns))
	}

	// Completions were written back as checked boxes.
	data, err := os.ReadFile(filepath.Join(repo, "tasks.md"))
	if err != nil {
		t.Fatalf("re-read tasks.md: %v", err)
	}
	if got := strings.Count(string(data), "[x]"); got != 3 {
		t.Errorf("expected 3 checked tasks, got %d in:\n%s", got, data)
	}

	if len(recording.Summaries) != 1 {
		t.Errorf("expected exactly one summary, got %d", len(recording.Summaries))
	}
}

// TestSandboxOrchestrationPolling runs a single task against mock
// backends on the sandbox target and verifies the poll probe drives
// completion.
func TestSandboxOrchestrationPolling(t *testing.T) {
	repo := writeTaskRepo(t)

	src := source.NewSingleSource("Upgrade dependencies")
	tasks, err := src.Tasks()
	if err != nil {
		t.Fatalf("read tasks: %v", err)
	}

	sandbox := models.TargetSandbox
	repoInfo, err := strategy.ScanRepo(repo)
	if err != nil {
		t.Fatalf("scan repo: %v", err)
	}
	decision := strategy.New(2).Decide(taskInfos(tasks), repoInfo, strategy.Overrides{Target: &sandbox})

	backends := backend.New(backend.Mock)
	mockSandbox := backends.Sandbox.(*backend.MockSandbox)
	// First poll still running, second poll finished cleanly.
	mockSandbox.ExecScript["ralph-agent-1"] = []backend.ExecResult{
		{ExitCode: 1},
		{ExitCode: 0, Output: "0\n"},
	}

	orch := orchestrator.New(backends, orchestrator.Options{
		Source:       src,
		Reporter:     report.NewRecording(),
		PollInterval: time.Millisecond,
	})
	result := orch.Run(context.Background(), decision, repo)

	if len(result.CompletedTasks) != 1 {
		t.Fatalf("expected 1 completed task, got %v (failed: %v)", result.CompletedTasks, result.Errors)
	}
	if len(mockSandbox.Prepared) != 1 || mockSandbox.Prepared[0] != "ralph-agent-1" {
		t.Errorf("expected sandbox ralph-agent-1 prepared, got %v", mockSandbox.Prepared)
	}
	if len(mockSandbox.Execs) < 2 {
		t.Errorf("expected at least 2 status probes, got %d", len(mockSandbox.Execs))
	}
}
