package executor

import (
	"testing"

	"github.com/mwaldrip/foreman/internal/plan"
	"github.com/mwaldrip/foreman/internal/workflow"
)

// scriptedHandler succeeds every step except those listed in failOn,
// and records the order steps were executed in.
type scriptedHandler struct {
	failOn map[string]string
	data   map[string]map[string]any
	calls  []string
}

func (h *scriptedHandler) Execute(step *plan.Step) StepResult {
	h.calls = append(h.calls, step.ID)
	if msg, ok := h.failOn[step.ID]; ok {
		return StepResult{Success: false, StepID: step.ID, Message: msg}
	}
	return StepResult{Success: true, StepID: step.ID, Data: h.data[step.ID]}
}

func sandboxPlan() *plan.Plan {
	chain := []string{
		"validate_repo", "create_worktree", "prepare_sandbox",
		"authenticate", "initialize_state", "start_agent",
	}
	steps := make([]*plan.Step, len(chain))
	for i, action := range chain {
		s := &plan.Step{ID: action, Action: action, Params: map[string]any{}}
		if i > 0 {
			s.DependsOn = []string{chain[i-1]}
		}
		steps[i] = s
	}
	return plan.New(steps, nil)
}

func localPlan() *plan.Plan {
	chain := []string{
		"validate_repo", "create_worktree", "initialize_state", "start_agent",
	}
	steps := make([]*plan.Step, len(chain))
	for i, action := range chain {
		s := &plan.Step{ID: action, Action: action, Params: map[string]any{}}
		if i > 0 {
			s.DependsOn = []string{chain[i-1]}
		}
		steps[i] = s
	}
	return plan.New(steps, nil)
}

func TestRunFullSandboxPlan(t *testing.T) {
	handler := &scriptedHandler{}
	result := New(handler).Run(sandboxPlan())

	if result.State != workflow.StateAgentRunning {
		t.Fatalf("expected AGENT_RUNNING, got %s (error: %s)", result.State, result.Error)
	}
	if len(result.CompletedSteps) != 6 {
		t.Fatalf("expected 6 completed steps, got %v", result.CompletedSteps)
	}
	if result.FailedStep != "" || result.Error != "" {
		t.Errorf("expected clean result, got failed_step=%q error=%q", result.FailedStep, result.Error)
	}
}

func TestRunStopsAtFailedStep(t *testing.T) {
	handler := &scriptedHandler{failOn: map[string]string{"prepare_sandbox": "docker daemon unreachable"}}
	result := New(handler).Run(sandboxPlan())

	if result.State != workflow.StateFailed {
		t.Fatalf("expected FAILED, got %s", result.State)
	}
	if result.FailedStep != "prepare_sandbox" {
		t.Errorf("expected failed step prepare_sandbox, got %q", result.FailedStep)
	}
	if result.Error != "docker daemon unreachable" {
		t.Errorf("expected handler message surfaced, got %q", result.Error)
	}
	want := []string{"validate_repo", "create_worktree"}
	if len(result.CompletedSteps) != len(want) {
		t.Fatalf("expected completed steps %v, got %v", want, result.CompletedSteps)
	}
	for i := range want {
		if result.CompletedSteps[i] != want[i] {
			t.Fatalf("expected completed steps %v, got %v", want, result.CompletedSteps)
		}
	}
	// No step after the failure may have been attempted.
	if len(handler.calls) != 3 {
		t.Errorf("expected 3 handler calls, got %v", handler.calls)
	}
}

func TestRunLocalPlanSkipsThroughIntermediateStates(t *testing.T) {
	handler := &scriptedHandler{}
	exec := New(handler)
	result := exec.Run(localPlan())

	if result.State != workflow.StateAgentRunning {
		t.Fatalf("expected AGENT_RUNNING, got %s (error: %s)", result.State, result.Error)
	}

	// The jump from CREATING_WORKTREE to INITIALIZING_STATE passes
	// through the sandbox and auth states, so checkpoints record the
	// target state of each step, not the skipped intermediates.
	checkpoints := exec.Checkpoints()
	if len(checkpoints) != 4 {
		t.Fatalf("expected 4 checkpoints, got %d", len(checkpoints))
	}
	if checkpoints[2].State != "INITIALIZING_STATE" {
		t.Errorf("expected third checkpoint in INITIALIZING_STATE, got %s", checkpoints[2].State)
	}
}

func TestRunNoHandler(t *testing.T) {
	result := New(nil).Run(localPlan())
	if result.State != workflow.StateFailed {
		t.Fatalf("expected FAILED, got %s", result.State)
	}
	if result.Error != "no step handler configured" {
		t.Errorf("unexpected error: %q", result.Error)
	}
}

func TestRunInvalidPlan(t *testing.T) {
	p := plan.New([]*plan.Step{
		{ID: "a", Action: "validate_repo", DependsOn: []string{"b"}},
		{ID: "b", Action: "start_agent", DependsOn: []string{"a"}},
	}, nil)
	handler := &scriptedHandler{}
	result := New(handler).Run(p)

	if result.State != workflow.StateFailed {
		t.Fatalf("expected FAILED, got %s", result.State)
	}
	if len(handler.calls) != 0 {
		t.Errorf("no steps may run for an invalid plan, got calls %v", handler.calls)
	}
}

func TestRunUnknownAction(t *testing.T) {
	p := plan.New([]*plan.Step{
		{ID: "x", Action: "launch_missiles"},
	}, nil)
	result := New(&scriptedHandler{}).Run(p)

	if result.State != workflow.StateFailed {
		t.Fatalf("expected FAILED, got %s", result.State)
	}
	if result.FailedStep != "x" {
		t.Errorf("expected failed step x, got %q", result.FailedStep)
	}
}

func TestRunBackwardTransitionFails(t *testing.T) {
	// start_agent before validate_repo walks the state machine to
	// STARTING_AGENT, after which ENSURING_REPO is behind us.
	p := plan.New([]*plan.Step{
		{ID: "late", Action: "start_agent"},
		{ID: "repo", Action: "validate_repo", DependsOn: []string{"late"}},
	}, nil)
	result := New(&scriptedHandler{}).Run(p)

	if result.State != workflow.StateFailed {
		t.Fatalf("expected FAILED, got %s", result.State)
	}
	if result.FailedStep != "repo" {
		t.Errorf("expected failed step repo, got %q", result.FailedStep)
	}
}

func TestRunCollectsStepOutputs(t *testing.T) {
	handler := &scriptedHandler{data: map[string]map[string]any{
		"create_worktree": {"worktree_path": "/tmp/wt", "branch": "agent/fix"},
		"start_agent":     {"pid": 4242},
	}}
	result := New(handler).Run(sandboxPlan())

	if result.State != workflow.StateAgentRunning {
		t.Fatalf("expected AGENT_RUNNING, got %s", result.State)
	}
	if result.StepOutputs["create_worktree"]["worktree_path"] != "/tmp/wt" {
		t.Errorf("expected worktree output recorded, got %v", result.StepOutputs)
	}
	if _, ok := result.StepOutputs["validate_repo"]; ok {
		t.Error("steps without data must not appear in step outputs")
	}
}

func TestCheckpointsRecordFailureToo(t *testing.T) {
	handler := &scriptedHandler{failOn: map[string]string{"create_worktree": "branch exists"}}
	exec := New(handler)
	exec.Run(sandboxPlan())

	checkpoints := exec.Checkpoints()
	if len(checkpoints) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(checkpoints))
	}
	last := checkpoints[1]
	if last.Success {
		t.Error("expected failing step's checkpoint to record failure")
	}
	if last.StepID != "create_worktree" {
		t.Errorf("expected checkpoint for create_worktree, got %s", last.StepID)
	}
	if len(last.CompletedSteps) != 1 || last.CompletedSteps[0] != "validate_repo" {
		t.Errorf("expected completed snapshot [validate_repo], got %v", last.CompletedSteps)
	}
}
