package strategy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwaldrip/foreman/pkg/models"
)

func task(name string, deps ...string) TaskInfo {
	return TaskInfo{Name: name, Complexity: "simple", DependsOn: deps}
}

func TestDecideModeDestructiveForcesInteractive(t *testing.T) {
	tasks := []TaskInfo{
		task("safe"),
		{Name: "drop-tables", IsDestructive: true, Complexity: "simple"},
	}
	d := New(0).Decide(tasks, RepoInfo{}, Overrides{})
	if d.Mode != models.ModeInteractive {
		t.Errorf("expected interactive mode, got %s", d.Mode)
	}
	if !strings.Contains(d.Reasoning, "Destructive") {
		t.Errorf("expected destructive reasoning, got %q", d.Reasoning)
	}
}

func TestDecideModeComplexityThreshold(t *testing.T) {
	// 1 + 2 + 4 = 7 >= 6 triggers interactive.
	heavy := []TaskInfo{
		{Name: "a", Complexity: "simple"},
		{Name: "b", Complexity: "moderate"},
		{Name: "c", Complexity: "complex"},
	}
	if d := New(0).Decide(heavy, RepoInfo{}, Overrides{}); d.Mode != models.ModeInteractive {
		t.Errorf("expected interactive for total weight 7, got %s", d.Mode)
	}

	// 1 + 4 = 5 < 6 stays autonomous.
	light := []TaskInfo{
		{Name: "a", Complexity: "simple"},
		{Name: "b", Complexity: "complex"},
	}
	if d := New(0).Decide(light, RepoInfo{}, Overrides{}); d.Mode != models.ModeAutonomous {
		t.Errorf("expected autonomous for total weight 5, got %s", d.Mode)
	}
}

func TestDecideTargetPriority(t *testing.T) {
	// Auth outranks container signals.
	d := New(0).Decide(nil, RepoInfo{NeedsAuth: true, HasDockerfile: true}, Overrides{})
	if d.Target != models.TargetSandbox {
		t.Errorf("expected sandbox when auth is needed, got %s", d.Target)
	}

	d = New(0).Decide(nil, RepoInfo{HasEnvFile: true}, Overrides{})
	if d.Target != models.TargetSandbox {
		t.Errorf("expected sandbox for env files, got %s", d.Target)
	}

	d = New(0).Decide(nil, RepoInfo{HasDockerfile: true}, Overrides{})
	if d.Target != models.TargetContainer {
		t.Errorf("expected container for Dockerfile, got %s", d.Target)
	}

	d = New(0).Decide(nil, RepoInfo{}, Overrides{})
	if d.Target != models.TargetLocal {
		t.Errorf("expected local by default, got %s", d.Target)
	}
}

func TestOverridesReplaceAndAnnotate(t *testing.T) {
	mode := models.ModeInteractive
	target := models.TargetSandbox
	parallelism := 2

	d := New(8).Decide([]TaskInfo{task("a")}, RepoInfo{}, Overrides{
		Mode:        &mode,
		Target:      &target,
		Parallelism: &parallelism,
	})
	if d.Mode != models.ModeInteractive || d.Target != models.TargetSandbox || d.Parallelism != 2 {
		t.Errorf("expected overrides applied, got mode=%s target=%s parallelism=%d", d.Mode, d.Target, d.Parallelism)
	}
	for _, want := range []string{"Mode overridden", "Target overridden", "Parallelism overridden"} {
		if !strings.Contains(d.Reasoning, want) {
			t.Errorf("expected reasoning to mention %q, got %q", want, d.Reasoning)
		}
	}
}

func TestGroupTasksConnectedComponents(t *testing.T) {
	// a <- b, c independent, d <- e forms three groups.
	tasks := []TaskInfo{
		task("a"),
		task("b", "a"),
		task("c"),
		task("d"),
		task("e", "d"),
	}
	groups := GroupTasks(tasks)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}

	names := func(g []TaskInfo) map[string]bool {
		out := make(map[string]bool)
		for _, t := range g {
			out[t.Name] = true
		}
		return out
	}
	// First-seen ordering: a's component, then c, then d's component.
	if g := names(groups[0]); !g["a"] || !g["b"] || len(g) != 2 {
		t.Errorf("expected first group {a,b}, got %v", g)
	}
	if g := names(groups[1]); !g["c"] || len(g) != 1 {
		t.Errorf("expected second group {c}, got %v", g)
	}
	if g := names(groups[2]); !g["d"] || !g["e"] || len(g) != 2 {
		t.Errorf("expected third group {d,e}, got %v", g)
	}
}

func TestGroupTasksTransitiveChain(t *testing.T) {
	tasks := []TaskInfo{task("a"), task("b", "a"), task("c", "b")}
	groups := GroupTasks(tasks)
	if len(groups) != 1 || len(groups[0]) != 3 {
		t.Fatalf("expected one group of 3, got %v", groups)
	}
}

func TestGroupTasksIgnoresExternalDependencies(t *testing.T) {
	tasks := []TaskInfo{task("a", "not-in-batch"), task("b")}
	if groups := GroupTasks(tasks); len(groups) != 2 {
		t.Errorf("expected external deps ignored, got %d groups", len(groups))
	}
}

func TestGroupTasksEmpty(t *testing.T) {
	if groups := GroupTasks(nil); len(groups) != 0 {
		t.Errorf("expected no groups for empty input, got %v", groups)
	}
}

func TestParallelismCappedByMaxAgents(t *testing.T) {
	tasks := []TaskInfo{task("a"), task("b"), task("c"), task("d")}
	d := New(2).Decide(tasks, RepoInfo{}, Overrides{})
	if d.Parallelism != 2 {
		t.Errorf("expected parallelism capped at 2, got %d", d.Parallelism)
	}
	if len(d.TaskGroups) != 4 {
		t.Errorf("expected 4 groups regardless of cap, got %d", len(d.TaskGroups))
	}
}

func TestExplain(t *testing.T) {
	d := Decision{
		Mode:        models.ModeAutonomous,
		Target:      models.TargetLocal,
		Parallelism: 3,
		Reasoning:   "Tasks are well-scoped, using autonomous mode",
		TaskGroups:  [][]TaskInfo{{task("a")}, {task("b")}, {task("c")}},
	}
	out := Explain(d)
	for _, want := range []string{"Mode: autonomous", "Target: local", "Parallelism: 3", "Task groups: 3", "Reasoning:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected explanation to contain %q, got:\n%s", want, out)
		}
	}
}

func TestScanRepo(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Dockerfile", ".env", "go.mod", "package.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ri, err := ScanRepo(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ri.HasDockerfile || !ri.HasEnvFile {
		t.Errorf("expected dockerfile and env file detected: %+v", ri)
	}
	if len(ri.Languages) != 2 {
		t.Errorf("expected go and javascript detected, got %v", ri.Languages)
	}
	// env file + dockerfile + one extra language scores 3.
	if ri.EstimatedComplexity != "complex" {
		t.Errorf("expected complex, got %s", ri.EstimatedComplexity)
	}
}

func TestScanRepoMissingPath(t *testing.T) {
	if _, err := ScanRepo(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing path")
	}
}
