package backend

import (
	"context"
	"fmt"
	"path/filepath"
)

// MockGit returns canned responses and records calls.
type MockGit struct {
	// FailOn names a single method that should fail.
	FailOn string
	// LocalRepos maps repo strings to resolved local paths.
	LocalRepos map[string]string
	// KnownWorktrees is returned from ListWorktrees.
	KnownWorktrees []WorktreeInfo
	// DirtyWorktrees marks worktree paths as having changes.
	DirtyWorktrees map[string]bool

	Cloned    [][2]string
	Worktrees [][3]string
	Removed   []string
}

func NewMockGit() *MockGit {
	return &MockGit{
		LocalRepos:     make(map[string]string),
		DirtyWorktrees: make(map[string]bool),
	}
}

func (g *MockGit) EnsureLocal(ctx context.Context, repo string) (string, error) {
	if g.FailOn == "ensure_local" {
		return "", fmt.Errorf("mock: cannot resolve %s", repo)
	}
	if path, ok := g.LocalRepos[repo]; ok {
		return path, nil
	}
	// Unregistered repos resolve to themselves so simple tests need
	// no setup.
	return repo, nil
}

func (g *MockGit) Clone(ctx context.Context, url, path string) error {
	if g.FailOn == "clone" {
		return fmt.Errorf("mock: clone failed")
	}
	g.Cloned = append(g.Cloned, [2]string{url, path})
	return nil
}

func (g *MockGit) CreateWorktree(ctx context.Context, repo, branch, target string) error {
	if g.FailOn == "create_worktree" {
		return fmt.Errorf("mock: worktree failed")
	}
	g.Worktrees = append(g.Worktrees, [3]string{repo, branch, target})
	return nil
}

func (g *MockGit) BranchExists(ctx context.Context, repo, branch string) bool {
	return false
}

func (g *MockGit) ListWorktrees(ctx context.Context, repo string) ([]WorktreeInfo, error) {
	if g.FailOn == "list_worktrees" {
		return nil, fmt.Errorf("mock: list failed")
	}
	return g.KnownWorktrees, nil
}

func (g *MockGit) RemoveWorktree(ctx context.Context, repo, worktreePath string) error {
	if g.FailOn == "remove_worktree" {
		return fmt.Errorf("mock: remove failed")
	}
	g.Removed = append(g.Removed, worktreePath)
	return nil
}

func (g *MockGit) HasUncommittedChanges(ctx context.Context, worktreePath string) bool {
	return g.DirtyWorktrees[worktreePath]
}

// ExecResult is a scripted response for MockSandbox.Exec.
type ExecResult struct {
	ExitCode int
	Output   string
}

// MockSandbox records sandbox operations and plays back scripted Exec
// results per sandbox name, in order. With no script, Exec reports
// exit code 1 (still running).
type MockSandbox struct {
	FailOn string
	// ExecScript queues Exec responses per sandbox name.
	ExecScript map[string][]ExecResult

	Prepared []string
	Removed  []string
	Execs    [][2]string
}

func NewMockSandbox() *MockSandbox {
	return &MockSandbox{ExecScript: make(map[string][]ExecResult)}
}

func (s *MockSandbox) Prepare(ctx context.Context, name string, force bool) error {
	if s.FailOn == "prepare" {
		return fmt.Errorf("mock: prepare failed")
	}
	s.Prepared = append(s.Prepared, name)
	return nil
}

func (s *MockSandbox) Exec(ctx context.Context, name, command string) (int, string, error) {
	s.Execs = append(s.Execs, [2]string{name, command})
	if queue := s.ExecScript[name]; len(queue) > 0 {
		r := queue[0]
		s.ExecScript[name] = queue[1:]
		return r.ExitCode, r.Output, nil
	}
	return 1, "", nil
}

func (s *MockSandbox) Remove(ctx context.Context, name string) error {
	if s.FailOn == "remove" {
		return fmt.Errorf("mock: remove failed")
	}
	s.Removed = append(s.Removed, name)
	return nil
}

func (s *MockSandbox) List(ctx context.Context) ([]string, error) {
	return append([]string{}, s.Prepared...), nil
}

// MockAuth records authenticate calls.
type MockAuth struct {
	Fail          bool
	Authenticated []string
}

func (a *MockAuth) Authenticate(ctx context.Context, sandboxName string) error {
	if a.Fail {
		return fmt.Errorf("mock: auth failed")
	}
	a.Authenticated = append(a.Authenticated, sandboxName)
	return nil
}

// MockTerminal records agent launches.
type MockTerminal struct {
	FailOn string
	// LocalRuns records (worktree, task) pairs.
	LocalRuns [][2]string
	// SandboxRuns records (sandbox, task) pairs.
	SandboxRuns [][2]string
}

func (t *MockTerminal) StartLocal(ctx context.Context, worktree, task string) error {
	if t.FailOn == "local" {
		return fmt.Errorf("mock: local agent failed")
	}
	t.LocalRuns = append(t.LocalRuns, [2]string{worktree, task})
	return nil
}

func (t *MockTerminal) StartInSandbox(ctx context.Context, sandboxName, task string) error {
	if t.FailOn == "sandbox" {
		return fmt.Errorf("mock: sandbox agent failed")
	}
	t.SandboxRuns = append(t.SandboxRuns, [2]string{sandboxName, task})
	return nil
}

var _ Git = (*MockGit)(nil)
var _ Sandbox = (*MockSandbox)(nil)
var _ Auth = (*MockAuth)(nil)
var _ Terminal = (*MockTerminal)(nil)

// WorktreeTarget computes the path a worktree is created at for a
// repo and branch, a sibling directory of the repo named after both.
func WorktreeTarget(repo, repoName, branch string) string {
	safe := filepath.Base(branch)
	return filepath.Join(filepath.Dir(repo), fmt.Sprintf("%s-%s", repoName, safe))
}
