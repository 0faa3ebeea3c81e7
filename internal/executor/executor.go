// Package executor drives a validated workflow plan through the
// workflow state machine, invoking a StepHandler per step and
// recording checkpoints.
package executor

import (
	"fmt"
	"time"

	"github.com/mwaldrip/foreman/internal/plan"
	"github.com/mwaldrip/foreman/internal/workflow"
)

// StepHandler executes a single workflow step. Implementations own all
// side effects (worktrees, sandboxes, processes); the executor only
// sequences calls and records outcomes. Outputs returned in
// StepResult.Data become visible to later steps through the shared
// output map the executor maintains.
type StepHandler interface {
	Execute(step *plan.Step) StepResult
}

// StepResult is the outcome of executing one workflow step.
type StepResult struct {
	Success bool           `json:"success"`
	StepID  string         `json:"step_id"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Result is the outcome of executing an entire workflow plan. It is
// always fully populated, even on failure, so callers can inspect
// partial progress.
type Result struct {
	// State is the terminal workflow state of the run.
	State workflow.State
	// CompletedSteps lists the IDs of steps that succeeded, in order.
	CompletedSteps []string
	// FailedStep is the ID of the step that failed, if any.
	FailedStep string
	// Error describes the failure, if any.
	Error string
	// StepResults maps step ID to the handler's result for that step.
	StepResults map[string]StepResult
	// StepOutputs maps step ID to the data that step produced. Keys
	// are written once each, strictly in execution order.
	StepOutputs map[string]map[string]any
}

// InvalidTransitionError indicates a plan asked for a state transition
// the workflow state machine does not allow. This is a malformed-plan
// condition, not a runtime failure.
type InvalidTransitionError struct {
	From workflow.State
	To   workflow.State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// actionStates maps a step action to the workflow state entered when
// running that action. An action absent from this table is fatal.
var actionStates = map[string]workflow.State{
	"validate_repo":    workflow.StateEnsuringRepo,
	"create_worktree":  workflow.StateCreatingWorktree,
	"prepare_sandbox":  workflow.StatePreparingSandbox,
	"authenticate":     workflow.StateAuthenticating,
	"initialize_state": workflow.StateInitializingState,
	"start_agent":      workflow.StateStartingAgent,
}

// StateForAction returns the workflow state associated with a step
// action.
func StateForAction(action string) (workflow.State, bool) {
	s, ok := actionStates[action]
	return s, ok
}

// Executor runs one workflow plan. Create a fresh Executor per plan
// run; it accumulates state and checkpoints across its lifetime.
type Executor struct {
	handler     StepHandler
	state       workflow.State
	checkpoints []workflow.Checkpoint
}

// New creates an Executor with the given step handler. A nil handler
// is allowed at construction; Run reports it as a failed result.
func New(handler StepHandler) *Executor {
	return &Executor{
		handler: handler,
		state:   workflow.StateInit,
	}
}

// State returns the executor's current workflow state.
func (e *Executor) State() workflow.State {
	return e.state
}

// Checkpoints returns a copy of the recorded checkpoints.
func (e *Executor) Checkpoints() []workflow.Checkpoint {
	out := make([]workflow.Checkpoint, len(e.checkpoints))
	copy(out, e.checkpoints)
	return out
}

// transition moves to target, advancing through intermediate states
// when the plan skips some (local-mode plans omit PREPARING_SANDBOX
// and AUTHENTICATING). A target at or before the current position is
// an InvalidTransitionError.
func (e *Executor) transition(target workflow.State) error {
	if workflow.ValidTransition(e.state, target) {
		e.state = target
		return nil
	}

	currentIdx := workflow.OrderIndex(e.state)
	targetIdx := workflow.OrderIndex(target)
	if currentIdx >= 0 && targetIdx > currentIdx {
		for i := currentIdx + 1; i <= targetIdx; i++ {
			e.state = workflow.Order[i]
		}
		return nil
	}

	return &InvalidTransitionError{From: e.state, To: target}
}

// saveCheckpoint records a checkpoint for the step, success or failure.
func (e *Executor) saveCheckpoint(step *plan.Step, result StepResult, completed []string) {
	snapshot := make([]string, len(completed))
	copy(snapshot, completed)
	e.checkpoints = append(e.checkpoints, workflow.Checkpoint{
		StepID:         step.ID,
		State:          e.state.String(),
		Success:        result.Success,
		CompletedSteps: snapshot,
		Timestamp:      time.Now().UTC(),
	})
}

// Run executes all steps of the plan in topological order. Failures
// are returned as data on the Result, never panics: an invalid plan, a
// missing handler, an unknown action, an invalid transition, or a
// failed step all produce a Result with State FAILED. Once a step
// fails, no further steps are attempted.
func (e *Executor) Run(p *plan.Plan) *Result {
	result := &Result{
		State:       workflow.StateInit,
		StepResults: make(map[string]StepResult),
		StepOutputs: make(map[string]map[string]any),
	}

	if errs := p.Validate(); len(errs) > 0 {
		result.State = workflow.StateFailed
		result.Error = fmt.Sprintf("invalid plan: %s", joinSemicolon(errs))
		e.state = workflow.StateFailed
		return result
	}

	if e.handler == nil {
		result.State = workflow.StateFailed
		result.Error = "no step handler configured"
		e.state = workflow.StateFailed
		return result
	}

	ordered, err := p.ExecutionOrder()
	if err != nil {
		result.State = workflow.StateFailed
		result.Error = err.Error()
		e.state = workflow.StateFailed
		return result
	}

	for _, step := range ordered {
		target, known := StateForAction(step.Action)
		if !known {
			result.State = workflow.StateFailed
			result.FailedStep = step.ID
			result.Error = fmt.Sprintf("unknown action: %s", step.Action)
			e.state = workflow.StateFailed
			return result
		}

		if err := e.transition(target); err != nil {
			result.State = workflow.StateFailed
			result.FailedStep = step.ID
			result.Error = err.Error()
			e.state = workflow.StateFailed
			return result
		}

		stepResult := e.handler.Execute(step)
		result.StepResults[step.ID] = stepResult
		e.saveCheckpoint(step, stepResult, result.CompletedSteps)

		if !stepResult.Success {
			e.state = workflow.StateFailed
			result.State = workflow.StateFailed
			result.FailedStep = step.ID
			result.Error = stepResult.Message
			return result
		}

		result.CompletedSteps = append(result.CompletedSteps, step.ID)
		if len(stepResult.Data) > 0 {
			result.StepOutputs[step.ID] = stepResult.Data
		}
	}

	// A plan whose last action started the agent settles into
	// AGENT_RUNNING as its natural completion state. Waiting for the
	// agent itself is the orchestrator's job.
	if e.state == workflow.StateStartingAgent {
		if err := e.transition(workflow.StateAgentRunning); err != nil {
			result.State = workflow.StateFailed
			result.Error = err.Error()
			return result
		}
	}

	result.State = e.state
	return result
}

func joinSemicolon(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "; "
		}
		out += p
	}
	return out
}
