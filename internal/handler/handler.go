// Package handler implements the step handler that executes workflow
// steps against real backends. The executor sequences steps; the
// handler owns every side effect.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mwaldrip/foreman/internal/backend"
	"github.com/mwaldrip/foreman/internal/executor"
	"github.com/mwaldrip/foreman/internal/plan"
)

// ExecutionContext carries shared state across the steps of one plan
// run: the backends and the outputs earlier steps produced. One
// context serves exactly one plan run.
type ExecutionContext struct {
	Backends *backend.Set
	Ctx      context.Context

	stepOutputs map[string]map[string]any
}

// NewContext creates an execution context for one plan run.
func NewContext(ctx context.Context, backends *backend.Set) *ExecutionContext {
	return &ExecutionContext{
		Backends:    backends,
		Ctx:         ctx,
		stepOutputs: make(map[string]map[string]any),
	}
}

// Output returns a value a prior step produced.
func (c *ExecutionContext) Output(stepID, key string) (any, bool) {
	if data, ok := c.stepOutputs[stepID]; ok {
		v, ok := data[key]
		return v, ok
	}
	return nil, false
}

// StepHandler executes workflow steps against the context's backends.
type StepHandler struct {
	ctx *ExecutionContext
}

// New creates a StepHandler bound to an execution context.
func New(ctx *ExecutionContext) *StepHandler {
	return &StepHandler{ctx: ctx}
}

// Execute dispatches a step to its action implementation.
func (h *StepHandler) Execute(step *plan.Step) executor.StepResult {
	var data map[string]any
	var err error

	switch step.Action {
	case "validate_repo":
		data, err = h.validateRepo(step)
	case "create_worktree":
		data, err = h.createWorktree(step)
	case "prepare_sandbox":
		data, err = h.prepareSandbox(step)
	case "authenticate":
		data, err = h.authenticate(step)
	case "initialize_state":
		data, err = h.initializeState(step)
	case "start_agent":
		data, err = h.startAgent(step)
	default:
		err = fmt.Errorf("no handler for action %q", step.Action)
	}

	if err != nil {
		return executor.StepResult{Success: false, StepID: step.ID, Message: err.Error()}
	}
	if len(data) > 0 {
		h.ctx.stepOutputs[step.ID] = data
	}
	return executor.StepResult{Success: true, StepID: step.ID, Data: data}
}

func (h *StepHandler) validateRepo(step *plan.Step) (map[string]any, error) {
	repo, _ := step.Params["repo"].(string)
	if repo == "" {
		return nil, fmt.Errorf("validate_repo: missing repo param")
	}
	path, err := h.ctx.Backends.Git.EnsureLocal(h.ctx.Ctx, repo)
	if err != nil {
		return nil, err
	}
	return map[string]any{"repo_path": path}, nil
}

func (h *StepHandler) createWorktree(step *plan.Step) (map[string]any, error) {
	branch, _ := step.Params["branch"].(string)
	repoName, _ := step.Params["repo_name"].(string)
	if branch == "" {
		return nil, fmt.Errorf("create_worktree: missing branch param")
	}

	repoPath, ok := h.ctx.Output("validate_repo", "repo_path")
	if !ok {
		return nil, fmt.Errorf("create_worktree: no repo path from validate_repo")
	}
	repo := repoPath.(string)

	target := backend.WorktreeTarget(repo, repoName, branch)
	if err := h.ctx.Backends.Git.CreateWorktree(h.ctx.Ctx, repo, branch, target); err != nil {
		return nil, err
	}
	return map[string]any{"worktree_path": target, "branch": branch}, nil
}

func (h *StepHandler) prepareSandbox(step *plan.Step) (map[string]any, error) {
	name := envName(step.Params)
	if name == "" {
		return nil, fmt.Errorf("prepare_sandbox: missing sandbox or container name")
	}
	force, _ := step.Params["force"].(bool)
	if err := h.ctx.Backends.Sandbox.Prepare(h.ctx.Ctx, name, force); err != nil {
		return nil, err
	}
	return map[string]any{"sandbox_name": name}, nil
}

func (h *StepHandler) authenticate(step *plan.Step) (map[string]any, error) {
	name := envName(step.Params)
	if name == "" {
		return nil, fmt.Errorf("authenticate: missing sandbox or container name")
	}
	if err := h.ctx.Backends.Auth.Authenticate(h.ctx.Ctx, name); err != nil {
		return nil, err
	}
	return nil, nil
}

// agentState is the file written into the worktree so the agent (and
// a resumed run) can see what it was asked to do.
type agentState struct {
	Task        string    `json:"task"`
	ContextFile string    `json:"context_file,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *StepHandler) initializeState(step *plan.Step) (map[string]any, error) {
	task, _ := step.Params["task"].(string)
	contextFile, _ := step.Params["context_file"].(string)

	worktree, ok := h.ctx.Output("create_worktree", "worktree_path")
	if !ok {
		return nil, fmt.Errorf("initialize_state: no worktree path from create_worktree")
	}

	stateDir := filepath.Join(worktree.(string), ".foreman")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("initialize_state: %w", err)
	}
	state := agentState{Task: task, ContextFile: contextFile, CreatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("initialize_state: %w", err)
	}
	statePath := filepath.Join(stateDir, "state.json")
	if err := os.WriteFile(statePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("initialize_state: %w", err)
	}
	return map[string]any{"state_path": statePath}, nil
}

func (h *StepHandler) startAgent(step *plan.Step) (map[string]any, error) {
	task, _ := step.Params["task"].(string)
	if name := envName(step.Params); name != "" {
		if err := h.ctx.Backends.Terminal.StartInSandbox(h.ctx.Ctx, name, task); err != nil {
			return nil, err
		}
		return map[string]any{"sandbox_name": name}, nil
	}

	worktree, ok := h.ctx.Output("create_worktree", "worktree_path")
	if !ok {
		return nil, fmt.Errorf("start_agent: no worktree path from create_worktree")
	}
	if err := h.ctx.Backends.Terminal.StartLocal(h.ctx.Ctx, worktree.(string), task); err != nil {
		return nil, err
	}
	return nil, nil
}

// envName resolves the isolation environment name from step params,
// accepting either the sandbox or the container key.
func envName(params map[string]any) string {
	if name, _ := params["sandbox_name"].(string); name != "" {
		return name
	}
	name, _ := params["container_name"].(string)
	return name
}

var _ executor.StepHandler = (*StepHandler)(nil)
