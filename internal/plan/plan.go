// Package plan provides the workflow plan model: a DAG of steps with
// validation and deterministic topological ordering.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidPlan indicates the plan failed structural validation.
var ErrInvalidPlan = errors.New("invalid plan")

// Step is a single step in a workflow plan. Steps are immutable once
// placed in a plan; the executor tracks progress externally.
type Step struct {
	// ID uniquely identifies the step within its plan.
	ID string `json:"id"`
	// Action names the handler operation to invoke for this step.
	Action string `json:"action"`
	// Params are opaque values passed through to the step handler.
	Params map[string]any `json:"params"`
	// DependsOn lists step IDs that must complete before this step.
	DependsOn []string `json:"depends_on"`
}

// Plan is a collection of workflow steps with metadata. The dependency
// relation between steps must form a DAG; Validate reports violations.
type Plan struct {
	Steps    []*Step        `json:"steps"`
	Metadata map[string]any `json:"metadata"`

	stepByID map[string]*Step
}

// New creates a plan from the given steps and metadata.
func New(steps []*Step, metadata map[string]any) *Plan {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	p := &Plan{Steps: steps, Metadata: metadata}
	p.rebuildIndex()
	return p
}

func (p *Plan) rebuildIndex() {
	p.stepByID = make(map[string]*Step, len(p.Steps))
	for _, step := range p.Steps {
		p.stepByID[step.ID] = step
	}
}

// GetStep returns the step with the given ID, or nil if not found.
func (p *Plan) GetStep(id string) *Step {
	if p.stepByID == nil {
		p.rebuildIndex()
	}
	return p.stepByID[id]
}

// AddStep appends a step to the plan.
func (p *Plan) AddStep(step *Step) {
	p.Steps = append(p.Steps, step)
	if p.stepByID == nil {
		p.rebuildIndex()
		return
	}
	p.stepByID[step.ID] = step
}

// Validate checks the plan's structure and returns a list of
// human-readable errors, empty if the plan is valid. The duplicate-ID
// and missing-dependency passes both always run so that all structural
// problems surface together. The cycle check runs only when the first
// two passes found nothing, since cycles are meaningless to report
// over an already-malformed graph.
func (p *Plan) Validate() []string {
	var errs []string

	seen := make(map[string]bool, len(p.Steps))
	for _, step := range p.Steps {
		if seen[step.ID] {
			errs = append(errs, fmt.Sprintf("duplicate step ID: %s", step.ID))
		}
		seen[step.ID] = true
	}

	for _, step := range p.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				errs = append(errs, fmt.Sprintf("step %q depends on unknown step %q", step.ID, dep))
			}
		}
	}

	if len(errs) == 0 {
		if cycle := p.findCycle(); cycle != nil {
			errs = append(errs, fmt.Sprintf("dependency cycle detected: %s", joinCycle(cycle)))
		}
	}

	return errs
}

func joinCycle(cycle []string) string {
	out := ""
	for i, id := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}

// DFS colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

// findCycle detects a dependency cycle using three-color DFS over the
// depends-on edges. It returns one cycle path (reconstructed through
// parent pointers), not necessarily the shortest, or nil if the graph
// is acyclic.
func (p *Plan) findCycle() []string {
	if p.stepByID == nil {
		p.rebuildIndex()
	}

	color := make(map[string]int, len(p.Steps))
	parent := make(map[string]string, len(p.Steps))

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		for _, dep := range p.stepByID[id].DependsOn {
			if _, known := p.stepByID[dep]; !known {
				continue
			}
			switch color[dep] {
			case gray:
				// Back edge: walk parent pointers from id back to dep.
				cycle := []string{dep, id}
				cur := id
				for parent[cur] != "" && parent[cur] != dep {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				reverse(cycle)
				return cycle
			case white:
				parent[dep] = id
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, step := range p.Steps {
		if color[step.ID] == white {
			if cycle := visit(step.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// ExecutionOrder returns the plan's steps in topological order using
// Kahn's algorithm. Among steps whose dependencies are all satisfied,
// the lexicographically smallest ID is emitted first; this tie-break
// makes the order deterministic when the DAG has independent steps.
// Returns ErrInvalidPlan if Validate reports any problem.
func (p *Plan) ExecutionOrder() ([]*Step, error) {
	if errs := p.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, joinErrors(errs))
	}
	if p.stepByID == nil {
		p.rebuildIndex()
	}

	inDegree := make(map[string]int, len(p.Steps))
	dependents := make(map[string][]string, len(p.Steps))
	for _, step := range p.Steps {
		inDegree[step.ID] = 0
		dependents[step.ID] = nil
	}
	for _, step := range p.Steps {
		for _, dep := range step.DependsOn {
			inDegree[step.ID]++
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	result := make([]*Step, 0, len(p.Steps))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		result = append(result, p.stepByID[current])

		next := append([]string(nil), dependents[current]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
				sort.Strings(ready)
			}
		}
	}

	return result, nil
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}

// planWire is the JSON/YAML wire shape of a plan.
type planWire struct {
	Steps    []stepWire     `json:"steps" yaml:"steps"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
}

type stepWire struct {
	ID        string         `json:"id" yaml:"id"`
	Action    string         `json:"action" yaml:"action"`
	Params    map[string]any `json:"params" yaml:"params"`
	DependsOn []string       `json:"depends_on" yaml:"depends_on"`
}

func (p *Plan) toWire() planWire {
	w := planWire{
		Steps:    make([]stepWire, 0, len(p.Steps)),
		Metadata: p.Metadata,
	}
	if w.Metadata == nil {
		w.Metadata = map[string]any{}
	}
	for _, step := range p.Steps {
		params := step.Params
		if params == nil {
			params = map[string]any{}
		}
		deps := step.DependsOn
		if deps == nil {
			deps = []string{}
		}
		w.Steps = append(w.Steps, stepWire{
			ID:        step.ID,
			Action:    step.Action,
			Params:    params,
			DependsOn: deps,
		})
	}
	return w
}

func fromWire(w planWire) *Plan {
	steps := make([]*Step, 0, len(w.Steps))
	for _, sw := range w.Steps {
		params := sw.Params
		if params == nil {
			params = map[string]any{}
		}
		deps := sw.DependsOn
		if deps == nil {
			deps = []string{}
		}
		steps = append(steps, &Step{
			ID:        sw.ID,
			Action:    sw.Action,
			Params:    params,
			DependsOn: deps,
		})
	}
	return New(steps, w.Metadata)
}

// ToJSON serializes the plan to its indented JSON wire format. The
// format round-trips losslessly through FromJSON and is used for
// dry-run output and checkpoint persistence.
func (p *Plan) ToJSON() (string, error) {
	data, err := json.MarshalIndent(p.toWire(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}
	return string(data), nil
}

// FromJSON parses a plan from its JSON wire format.
func FromJSON(data []byte) (*Plan, error) {
	var w planWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return fromWire(w), nil
}
