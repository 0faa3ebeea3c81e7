// Package planner builds workflow plans. The planner is stateless; it
// maps inputs to a validated plan, and the executor runs it.
package planner

import (
	"fmt"
	"strings"

	"github.com/mwaldrip/foreman/internal/backend"
	"github.com/mwaldrip/foreman/internal/plan"
	"github.com/mwaldrip/foreman/pkg/models"
)

// Input carries everything needed to build a plan for one agent.
type Input struct {
	// Repo is a local path or a clone URL.
	Repo string
	Task string
	Mode models.Mode
	// Target decides which steps the plan contains. Local plans skip
	// sandbox preparation and authentication.
	Target models.Target
	// Branch overrides the default agent/<repo> branch.
	Branch string
	// ContextFile is an optional file injected into the agent's state.
	ContextFile string
	// SandboxName overrides the default foreman-<repo> environment
	// name.
	SandboxName string
	// Force recreates the sandbox even if one already exists.
	Force bool
}

// CreatePlan builds and validates a workflow plan from the inputs.
func CreatePlan(in Input) (*plan.Plan, error) {
	if in.Repo == "" {
		return nil, fmt.Errorf("planner: repo is required")
	}
	if in.Task == "" {
		return nil, fmt.Errorf("planner: task is required")
	}
	if in.Mode != "" && !in.Mode.Valid() {
		return nil, fmt.Errorf("planner: invalid mode %q", in.Mode)
	}
	if in.Target != "" && !in.Target.Valid() {
		return nil, fmt.Errorf("planner: invalid target %q", in.Target)
	}
	mode := in.Mode
	if mode == "" {
		mode = models.ModeAutonomous
	}
	target := in.Target
	if target == "" {
		target = models.TargetSandbox
	}

	repoName := backend.RepoName(in.Repo)
	envName := in.SandboxName
	if envName == "" {
		envName = "foreman-" + repoName
	}
	branch := in.Branch
	if branch == "" {
		branch = "agent/" + repoName
	}

	metadata := map[string]any{
		"repo":      in.Repo,
		"repo_name": repoName,
		"task":      in.Task,
		"mode":      string(mode),
		"target":    string(target),
		"branch":    branch,
	}
	// Container and sandbox targets share the same isolation steps;
	// the metadata key tells the handler which flavor to prepare.
	if target == models.TargetContainer {
		metadata["container_name"] = envName
	} else if target == models.TargetSandbox {
		metadata["sandbox_name"] = envName
	}
	if in.ContextFile != "" {
		metadata["context_file"] = in.ContextFile
	}

	steps := buildSteps(in, target, envName, branch, repoName)
	p := plan.New(steps, metadata)
	if errs := p.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("planner produced invalid plan: %s", strings.Join(errs, "; "))
	}
	return p, nil
}

func buildSteps(in Input, target models.Target, envName, branch, repoName string) []*plan.Step {
	steps := []*plan.Step{
		{
			ID:     "validate_repo",
			Action: "validate_repo",
			Params: map[string]any{
				"repo":   in.Repo,
				"is_url": backend.IsURL(in.Repo),
			},
		},
		{
			ID:     "create_worktree",
			Action: "create_worktree",
			Params: map[string]any{
				"branch":    branch,
				"repo_name": repoName,
			},
			DependsOn: []string{"validate_repo"},
		},
	}

	if target == models.TargetLocal {
		steps = append(steps,
			&plan.Step{
				ID:     "initialize_state",
				Action: "initialize_state",
				Params: map[string]any{
					"task":         in.Task,
					"context_file": in.ContextFile,
				},
				DependsOn: []string{"create_worktree"},
			},
			&plan.Step{
				ID:     "start_agent",
				Action: "start_agent",
				Params: map[string]any{
					"task": in.Task,
				},
				DependsOn: []string{"initialize_state"},
			},
		)
		return steps
	}

	nameKey := "sandbox_name"
	if target == models.TargetContainer {
		nameKey = "container_name"
	}
	steps = append(steps,
		&plan.Step{
			ID:     "prepare_sandbox",
			Action: "prepare_sandbox",
			Params: map[string]any{
				nameKey: envName,
				"force": in.Force,
			},
			DependsOn: []string{"create_worktree"},
		},
		&plan.Step{
			ID:     "authenticate",
			Action: "authenticate",
			Params: map[string]any{
				nameKey: envName,
			},
			DependsOn: []string{"prepare_sandbox"},
		},
		&plan.Step{
			ID:     "initialize_state",
			Action: "initialize_state",
			Params: map[string]any{
				"task":         in.Task,
				"context_file": in.ContextFile,
			},
			DependsOn: []string{"authenticate"},
		},
		&plan.Step{
			ID:     "start_agent",
			Action: "start_agent",
			Params: map[string]any{
				nameKey: envName,
				"task":  in.Task,
			},
			DependsOn: []string{"initialize_state"},
		},
	)
	return steps
}
