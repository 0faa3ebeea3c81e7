package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwaldrip/foreman/internal/exec"
)

// WorktreeInfo describes one git worktree.
type WorktreeInfo struct {
	Path   string
	Branch string
}

// Git performs the repository operations the workflow needs.
type Git interface {
	// EnsureLocal resolves a repo string (path or URL) to a local
	// clone, searching for an existing clone when given a URL.
	EnsureLocal(ctx context.Context, repo string) (string, error)
	// Clone clones a remote repository to a local path.
	Clone(ctx context.Context, url, path string) error
	// CreateWorktree creates a worktree with a new branch.
	CreateWorktree(ctx context.Context, repo, branch, target string) error
	// BranchExists reports whether a branch exists locally or on origin.
	BranchExists(ctx context.Context, repo, branch string) bool
	// ListWorktrees lists the worktrees of a repository.
	ListWorktrees(ctx context.Context, repo string) ([]WorktreeInfo, error)
	// RemoveWorktree removes a worktree by path.
	RemoveWorktree(ctx context.Context, repo, worktreePath string) error
	// HasUncommittedChanges reports whether a worktree is dirty.
	HasUncommittedChanges(ctx context.Context, worktreePath string) bool
}

// IsURL reports whether a repo string refers to a remote.
func IsURL(repo string) bool {
	return strings.HasPrefix(repo, "http://") ||
		strings.HasPrefix(repo, "https://") ||
		strings.HasPrefix(repo, "git@")
}

// RepoName extracts a short repository name from a path or URL.
func RepoName(repo string) string {
	if IsURL(repo) {
		name := strings.TrimSuffix(strings.TrimRight(repo, "/"), "/")
		if i := strings.LastIndexAny(name, "/:"); i >= 0 {
			name = name[i+1:]
		}
		return strings.TrimSuffix(name, ".git")
	}
	cleaned := filepath.Clean(repo)
	name := filepath.Base(cleaned)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// SystemGit executes real git commands.
type SystemGit struct {
	Runner exec.Runner
	// SearchPaths override where EnsureLocal looks for existing
	// clones. Defaults to the working directory and the home dir.
	SearchPaths []string
}

func (g *SystemGit) EnsureLocal(ctx context.Context, repo string) (string, error) {
	if IsURL(repo) {
		name := RepoName(repo)
		paths := g.SearchPaths
		if paths == nil {
			cwd, _ := os.Getwd()
			home, _ := os.UserHomeDir()
			paths = []string{cwd, home}
		}
		if found := findLocalClone(name, paths); found != "" {
			return found, nil
		}
		return "", fmt.Errorf("no local clone of %s found", repo)
	}

	if isGitRepo(repo) {
		return repo, nil
	}
	return "", fmt.Errorf("not a git repository: %s", repo)
}

func (g *SystemGit) Clone(ctx context.Context, url, path string) error {
	if out, err := g.Runner.Run(ctx, "", "git", "clone", url, path); err != nil {
		return fmt.Errorf("git clone: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (g *SystemGit) CreateWorktree(ctx context.Context, repo, branch, target string) error {
	out, err := g.Runner.Run(ctx, "", "git", "-C", repo, "worktree", "add", target, "-b", branch)
	if err != nil {
		return fmt.Errorf("git worktree add: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (g *SystemGit) BranchExists(ctx context.Context, repo, branch string) bool {
	if _, err := g.Runner.Run(ctx, "", "git", "-C", repo, "rev-parse", "--verify", "refs/heads/"+branch); err == nil {
		return true
	}
	_, err := g.Runner.Run(ctx, "", "git", "-C", repo, "rev-parse", "--verify", "refs/remotes/origin/"+branch)
	return err == nil
}

func (g *SystemGit) ListWorktrees(ctx context.Context, repo string) ([]WorktreeInfo, error) {
	out, err := g.Runner.Output(ctx, "", "git", "-C", repo, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git worktree list: %w", err)
	}
	return parseWorktreeList(string(out)), nil
}

func (g *SystemGit) RemoveWorktree(ctx context.Context, repo, worktreePath string) error {
	out, err := g.Runner.Run(ctx, "", "git", "-C", repo, "worktree", "remove", "--force", worktreePath)
	if err != nil {
		return fmt.Errorf("git worktree remove: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (g *SystemGit) HasUncommittedChanges(ctx context.Context, worktreePath string) bool {
	out, err := g.Runner.Output(ctx, "", "git", "-C", worktreePath, "status", "--porcelain")
	return err == nil && len(strings.TrimSpace(string(out))) > 0
}

func isGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}

// findLocalClone searches each path directly and one level deeper, to
// cover layouts like ~/projects/repo-name.
func findLocalClone(name string, searchPaths []string) string {
	for _, sp := range searchPaths {
		if sp == "" {
			continue
		}
		candidate := filepath.Join(sp, name)
		if isGitRepo(candidate) {
			return candidate
		}
		entries, err := os.ReadDir(sp)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			candidate := filepath.Join(sp, e.Name(), name)
			if isGitRepo(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func parseWorktreeList(out string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current *WorktreeInfo
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				worktrees = append(worktrees, *current)
			}
			current = &WorktreeInfo{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
			}
		}
	}
	if current != nil {
		worktrees = append(worktrees, *current)
	}
	return worktrees
}

var _ Git = (*SystemGit)(nil)
