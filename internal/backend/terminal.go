package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwaldrip/foreman/internal/exec"
)

// Terminal launches agent processes. Sandboxed agents run detached and
// report completion through marker files the orchestrator polls;
// local agents run synchronously in the calling loop.
type Terminal interface {
	// StartLocal runs the agent in a worktree and blocks until it
	// finishes.
	StartLocal(ctx context.Context, worktree, task string) error
	// StartInSandbox launches the agent detached inside a sandbox.
	StartInSandbox(ctx context.Context, sandboxName, task string) error
}

// DefaultAgentCommand is the agent binary invoked for each task.
const DefaultAgentCommand = "claude"

// agentWrapper runs the agent and records its exit through the marker
// files the orchestrator's status probe reads.
const agentWrapper = `rm -f /tmp/.agent-done /tmp/.agent-exit-code; %s; echo $? > /tmp/.agent-exit-code; touch /tmp/.agent-done`

// SystemTerminal launches real agent processes.
type SystemTerminal struct {
	Runner exec.Runner
	// AgentCommand overrides DefaultAgentCommand when non-empty.
	AgentCommand string
}

func (t *SystemTerminal) agent() string {
	if t.AgentCommand != "" {
		return t.AgentCommand
	}
	return DefaultAgentCommand
}

func (t *SystemTerminal) StartLocal(ctx context.Context, worktree, task string) error {
	out, err := t.Runner.Run(ctx, worktree, t.agent(), "-p", task)
	if err != nil {
		return fmt.Errorf("agent failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (t *SystemTerminal) StartInSandbox(ctx context.Context, sandboxName, task string) error {
	agentCmd := fmt.Sprintf("cd /workspace && %s -p %s", t.agent(), shellQuote(task))
	wrapped := fmt.Sprintf(agentWrapper, agentCmd)
	out, err := t.Runner.Run(ctx, "", "docker", "exec", "-d", sandboxName, "sh", "-c", wrapped)
	if err != nil {
		return fmt.Errorf("start agent in %s: %s", sandboxName, strings.TrimSpace(string(out)))
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ Terminal = (*SystemTerminal)(nil)
