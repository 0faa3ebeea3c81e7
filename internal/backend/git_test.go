package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRepoName(t *testing.T) {
	cases := []struct {
		repo string
		want string
	}{
		{"https://github.com/user/my-repo.git", "my-repo"},
		{"https://github.com/user/my-repo", "my-repo"},
		{"https://github.com/user/my-repo/", "my-repo"},
		{"git@github.com:user/my-repo.git", "my-repo"},
		{"/home/dev/projects/widget", "widget"},
		{"./widget", "widget"},
	}
	for _, c := range cases {
		if got := RepoName(c.repo); got != c.want {
			t.Errorf("RepoName(%q) = %q, want %q", c.repo, got, c.want)
		}
	}
}

func TestIsURL(t *testing.T) {
	for _, url := range []string{"https://x/y", "http://x/y", "git@host:y"} {
		if !IsURL(url) {
			t.Errorf("expected %q to be a URL", url)
		}
	}
	if IsURL("/local/path") {
		t.Error("local path must not be a URL")
	}
}

func TestParseWorktreeList(t *testing.T) {
	out := `worktree /home/dev/widget
HEAD abc123
branch refs/heads/main

worktree /home/dev/widget-agent
HEAD def456
branch refs/heads/agent/widget
`
	worktrees := parseWorktreeList(out)
	if len(worktrees) != 2 {
		t.Fatalf("expected 2 worktrees, got %d", len(worktrees))
	}
	if worktrees[0].Branch != "main" {
		t.Errorf("expected branch main, got %q", worktrees[0].Branch)
	}
	if worktrees[1].Path != "/home/dev/widget-agent" || worktrees[1].Branch != "agent/widget" {
		t.Errorf("unexpected second worktree: %+v", worktrees[1])
	}
}

func TestFindLocalClone(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "projects", "widget", ".git")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	if got := findLocalClone("widget", []string{root}); got != filepath.Join(root, "projects", "widget") {
		t.Errorf("expected nested clone found, got %q", got)
	}
	if got := findLocalClone("missing", []string{root}); got != "" {
		t.Errorf("expected no clone, got %q", got)
	}
}

func TestMockSandboxScriptedExec(t *testing.T) {
	s := NewMockSandbox()
	s.ExecScript["box"] = []ExecResult{
		{ExitCode: 1},
		{ExitCode: 0, Output: "0\n"},
	}

	ctx := context.Background()
	code, _, err := s.Exec(ctx, "box", "probe")
	if err != nil || code != 1 {
		t.Fatalf("expected first probe running, got code=%d err=%v", code, err)
	}
	code, out, err := s.Exec(ctx, "box", "probe")
	if err != nil || code != 0 || out != "0\n" {
		t.Fatalf("expected second probe done, got code=%d out=%q err=%v", code, out, err)
	}
}
