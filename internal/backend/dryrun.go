package backend

import (
	"context"
	"fmt"
)

// DryRunGit records the git commands that would run.
type DryRunGit struct {
	Log *CommandLog
}

func (g *DryRunGit) EnsureLocal(ctx context.Context, repo string) (string, error) {
	g.Log.add(fmt.Sprintf("# ensure local clone of %s", repo))
	return repo, nil
}

func (g *DryRunGit) Clone(ctx context.Context, url, path string) error {
	g.Log.add(fmt.Sprintf("git clone %s %s", url, path))
	return nil
}

func (g *DryRunGit) CreateWorktree(ctx context.Context, repo, branch, target string) error {
	g.Log.add(fmt.Sprintf("git -C %s worktree add %s -b %s", repo, target, branch))
	return nil
}

func (g *DryRunGit) BranchExists(ctx context.Context, repo, branch string) bool {
	g.Log.add(fmt.Sprintf("git -C %s rev-parse --verify refs/heads/%s", repo, branch))
	return false
}

func (g *DryRunGit) ListWorktrees(ctx context.Context, repo string) ([]WorktreeInfo, error) {
	g.Log.add(fmt.Sprintf("git -C %s worktree list --porcelain", repo))
	return nil, nil
}

func (g *DryRunGit) RemoveWorktree(ctx context.Context, repo, worktreePath string) error {
	g.Log.add(fmt.Sprintf("git -C %s worktree remove --force %s", repo, worktreePath))
	return nil
}

func (g *DryRunGit) HasUncommittedChanges(ctx context.Context, worktreePath string) bool {
	g.Log.add(fmt.Sprintf("git -C %s status --porcelain", worktreePath))
	return false
}

// DryRunSandbox records the docker commands that would run. Exec
// reports completion so dry runs terminate immediately.
type DryRunSandbox struct {
	Log *CommandLog
}

func (s *DryRunSandbox) Prepare(ctx context.Context, name string, force bool) error {
	s.Log.add(fmt.Sprintf("docker run -d --name %s %s sleep infinity", name, DefaultSandboxImage))
	return nil
}

func (s *DryRunSandbox) Exec(ctx context.Context, name, command string) (int, string, error) {
	s.Log.add(fmt.Sprintf("docker exec %s sh -c %q", name, command))
	return 0, "0", nil
}

func (s *DryRunSandbox) Remove(ctx context.Context, name string) error {
	s.Log.add(fmt.Sprintf("docker rm -f %s", name))
	return nil
}

func (s *DryRunSandbox) List(ctx context.Context) ([]string, error) {
	s.Log.add("docker ps -a --filter label=" + sandboxLabel)
	return nil, nil
}

// DryRunAuth records the credential copies that would run.
type DryRunAuth struct {
	Log *CommandLog
}

func (a *DryRunAuth) Authenticate(ctx context.Context, sandboxName string) error {
	a.Log.add(fmt.Sprintf("# copy credentials into %s", sandboxName))
	return nil
}

// DryRunTerminal records the agent launches that would run.
type DryRunTerminal struct {
	Log *CommandLog
}

func (t *DryRunTerminal) StartLocal(ctx context.Context, worktree, task string) error {
	t.Log.add(fmt.Sprintf("%s -p %q (in %s)", DefaultAgentCommand, task, worktree))
	return nil
}

func (t *DryRunTerminal) StartInSandbox(ctx context.Context, sandboxName, task string) error {
	t.Log.add(fmt.Sprintf("docker exec -d %s %s -p %q", sandboxName, DefaultAgentCommand, task))
	return nil
}

var _ Git = (*DryRunGit)(nil)
var _ Sandbox = (*DryRunSandbox)(nil)
var _ Auth = (*DryRunAuth)(nil)
var _ Terminal = (*DryRunTerminal)(nil)
