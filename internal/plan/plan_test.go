package plan

import (
	"strings"
	"testing"
)

func step(id string, deps ...string) *Step {
	return &Step{ID: id, Action: "start_agent", Params: map[string]any{}, DependsOn: deps}
}

func TestValidateOK(t *testing.T) {
	p := New([]*Step{step("a"), step("b", "a"), step("c", "a", "b")}, nil)
	if errs := p.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid plan, got errors: %v", errs)
	}
}

func TestValidateDuplicateID(t *testing.T) {
	p := New([]*Step{step("a"), step("a")}, nil)
	errs := p.Validate()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !strings.Contains(errs[0], "duplicate") {
		t.Errorf("expected duplicate error, got %q", errs[0])
	}
}

func TestValidateMissingDependency(t *testing.T) {
	p := New([]*Step{step("a", "ghost")}, nil)
	errs := p.Validate()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !strings.Contains(errs[0], "unknown step") {
		t.Errorf("expected unknown-step error, got %q", errs[0])
	}
}

func TestValidateReportsAllStructuralProblems(t *testing.T) {
	// Duplicate IDs and a missing dependency should both be reported
	// in one call.
	p := New([]*Step{step("a"), step("a"), step("b", "ghost")}, nil)
	errs := p.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestValidateCycle(t *testing.T) {
	p := New([]*Step{step("s1", "s2"), step("s2", "s1")}, nil)
	errs := p.Validate()
	if len(errs) == 0 {
		t.Fatal("expected cycle error")
	}
	found := false
	for _, e := range errs {
		if strings.Contains(e, "cycle") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error mentioning cycle, got %v", errs)
	}
}

func TestValidateSelfCycle(t *testing.T) {
	p := New([]*Step{step("a", "a")}, nil)
	errs := p.Validate()
	if len(errs) == 0 || !strings.Contains(errs[0], "cycle") {
		t.Fatalf("expected self-cycle error, got %v", errs)
	}
}

func TestValidateCycleSkippedWhenStructureBroken(t *testing.T) {
	// With a missing dependency present, the cycle pass must not run.
	p := New([]*Step{step("a", "b", "ghost"), step("b", "a")}, nil)
	for _, e := range p.Validate() {
		if strings.Contains(e, "cycle") {
			t.Errorf("cycle pass should not run over malformed graph: %q", e)
		}
	}
}

func TestExecutionOrderLinearChain(t *testing.T) {
	p := New([]*Step{step("s3", "s2"), step("s1"), step("s2", "s1")}, nil)
	order, err := p.ExecutionOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ids(order)
	want := []string{"s1", "s2", "s3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestExecutionOrderDeterministicTieBreak(t *testing.T) {
	// Independent steps come out in lexicographic ID order.
	p := New([]*Step{step("zeta"), step("alpha"), step("mid")}, nil)
	order, err := p.ExecutionOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ids(order)
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestExecutionOrderRespectsDependencies(t *testing.T) {
	p := New([]*Step{
		step("build", "fetch"),
		step("fetch"),
		step("test", "build"),
		step("lint", "fetch"),
		step("release", "test", "lint"),
	}, nil)
	order, err := p.ExecutionOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[string]int)
	for i, s := range order {
		pos[s.ID] = i
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if pos[dep] >= pos[s.ID] {
				t.Errorf("step %s appears before its dependency %s", s.ID, dep)
			}
		}
	}
}

func TestExecutionOrderInvalidPlan(t *testing.T) {
	p := New([]*Step{step("a", "b"), step("b", "a")}, nil)
	if _, err := p.ExecutionOrder(); err == nil {
		t.Fatal("expected error for cyclic plan")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	p := New([]*Step{
		{ID: "a", Action: "validate_repo", Params: map[string]any{"repo": "/tmp/r", "is_url": false}, DependsOn: []string{}},
		{ID: "b", Action: "create_worktree", Params: map[string]any{"branch": "agent/r"}, DependsOn: []string{"a"}},
	}, map[string]any{"repo": "/tmp/r", "target": "local"})

	out, err := p.ToJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := FromJSON([]byte(out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(parsed.Steps))
	}
	if parsed.Steps[1].DependsOn[0] != "a" {
		t.Errorf("expected dependency preserved, got %v", parsed.Steps[1].DependsOn)
	}
	if parsed.Metadata["target"] != "local" {
		t.Errorf("expected metadata preserved, got %v", parsed.Metadata)
	}

	// Serialize again and compare byte-for-byte.
	again, err := parsed.ToJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != again {
		t.Error("JSON wire format did not round-trip losslessly")
	}
}

func TestFromYAML(t *testing.T) {
	doc := `
steps:
  - id: validate_repo
    action: validate_repo
    params:
      repo: /tmp/repo
    depends_on: []
  - id: start_agent
    action: start_agent
    params:
      task: fix the bug
    depends_on: [validate_repo]
metadata:
  target: local
`
	p, err := FromYAML([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errs := p.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid plan, got %v", errs)
	}
	if p.GetStep("start_agent") == nil {
		t.Fatal("expected start_agent step")
	}
	if p.GetStep("start_agent").Params["task"] != "fix the bug" {
		t.Errorf("expected params preserved, got %v", p.GetStep("start_agent").Params)
	}
}

func ids(steps []*Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID
	}
	return out
}
