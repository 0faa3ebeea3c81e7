// Package strategy decides how a batch of tasks should be executed:
// which interaction mode, which execution target, how many agents run
// in parallel, and how tasks are grouped per agent.
package strategy

import (
	"fmt"
	"strings"

	"github.com/mwaldrip/foreman/pkg/models"
)

// TaskInfo is the minimal task descriptor the strategy needs. The full
// task model lives behind the TaskSource abstraction.
type TaskInfo struct {
	Name          string
	IsDestructive bool
	// Complexity is one of simple, moderate, complex. Unknown values
	// weigh the same as simple.
	Complexity string
	DependsOn  []string
	// Labels carries source metadata (story, phase, parallel, ...) as
	// key/value pairs, matching the task model.
	Labels map[string]string
}

// Decision is the outcome of a strategy evaluation. Reasoning is
// advisory text for humans and is never parsed.
type Decision struct {
	Mode        models.Mode
	Target      models.Target
	Parallelism int
	Reasoning   string
	TaskGroups  [][]TaskInfo
}

// Overrides replace computed decision values outright when set.
type Overrides struct {
	Mode        *models.Mode
	Target      *models.Target
	Parallelism *int
}

// complexityWeights scores each task for the mode decision.
var complexityWeights = map[string]int{
	"simple":   1,
	"moderate": 2,
	"complex":  4,
}

// interactiveComplexityThreshold is the total weight at which a batch
// is considered too heavy for autonomous mode.
const interactiveComplexityThreshold = 6

// DefaultMaxParallel is the default ceiling on concurrent agents.
const DefaultMaxParallel = 8

// Strategy decides execution parameters for a task batch. The decision
// is a pure function of its inputs, so a Strategy is safe to share.
type Strategy struct {
	maxParallelAgents int
}

// New creates a Strategy with the given parallel-agent ceiling.
// Non-positive values fall back to DefaultMaxParallel.
func New(maxParallelAgents int) *Strategy {
	if maxParallelAgents <= 0 {
		maxParallelAgents = DefaultMaxParallel
	}
	return &Strategy{maxParallelAgents: maxParallelAgents}
}

// Decide evaluates mode, target, grouping, and parallelism for the
// given tasks and repository context, then applies any overrides.
func (s *Strategy) Decide(tasks []TaskInfo, repo RepoInfo, overrides Overrides) Decision {
	var reasons []string

	mode := decideMode(tasks, &reasons)
	if overrides.Mode != nil {
		mode = *overrides.Mode
		reasons = append(reasons, fmt.Sprintf("Mode overridden to %s", mode))
	}

	target := decideTarget(repo, &reasons)
	if overrides.Target != nil {
		target = *overrides.Target
		reasons = append(reasons, fmt.Sprintf("Target overridden to %s", target))
	}

	groups := GroupTasks(tasks)
	parallelism := len(groups)
	if parallelism > s.maxParallelAgents {
		parallelism = s.maxParallelAgents
	}
	if overrides.Parallelism != nil {
		parallelism = *overrides.Parallelism
		reasons = append(reasons, fmt.Sprintf("Parallelism overridden to %d", parallelism))
	}

	return Decision{
		Mode:        mode,
		Target:      target,
		Parallelism: parallelism,
		Reasoning:   strings.Join(reasons, "; "),
		TaskGroups:  groups,
	}
}

// Explain renders a decision for human consumption.
func Explain(d Decision) string {
	lines := []string{
		fmt.Sprintf("Mode: %s", d.Mode),
		fmt.Sprintf("Target: %s", d.Target),
		fmt.Sprintf("Parallelism: %d", d.Parallelism),
		fmt.Sprintf("Task groups: %d", len(d.TaskGroups)),
	}
	if d.Reasoning != "" {
		lines = append(lines, fmt.Sprintf("Reasoning: %s", d.Reasoning))
	}
	return strings.Join(lines, "\n")
}

func decideMode(tasks []TaskInfo, reasons *[]string) models.Mode {
	for _, t := range tasks {
		if t.IsDestructive {
			*reasons = append(*reasons, "Destructive operations detected, using interactive mode")
			return models.ModeInteractive
		}
	}

	total := 0
	for _, t := range tasks {
		weight, ok := complexityWeights[t.Complexity]
		if !ok {
			weight = 1
		}
		total += weight
	}
	if total >= interactiveComplexityThreshold {
		*reasons = append(*reasons, fmt.Sprintf("High total complexity (%d), using interactive mode", total))
		return models.ModeInteractive
	}

	*reasons = append(*reasons, "Tasks are well-scoped, using autonomous mode")
	return models.ModeAutonomous
}

func decideTarget(repo RepoInfo, reasons *[]string) models.Target {
	// Auth and secret isolation outranks container signals.
	if repo.NeedsAuth || repo.HasEnvFile {
		var parts []string
		if repo.NeedsAuth {
			parts = append(parts, "auth requirements")
		}
		if repo.HasEnvFile {
			parts = append(parts, "environment files")
		}
		*reasons = append(*reasons, fmt.Sprintf("Detected %s, using sandbox for persistent auth", strings.Join(parts, " and ")))
		return models.TargetSandbox
	}

	if repo.HasDockerfile || repo.HasDevcontainer {
		*reasons = append(*reasons, "Detected container configuration, using container for isolation")
		return models.TargetContainer
	}

	*reasons = append(*reasons, "No special requirements, using local execution")
	return models.TargetLocal
}

// GroupTasks partitions tasks into connected components of the
// dependency graph. Tasks that depend on each other (directly or
// transitively) share one group and therefore one agent; independent
// tasks each get their own group. Groups come out in first-seen order
// so the result is deterministic for a given task list.
func GroupTasks(tasks []TaskInfo) [][]TaskInfo {
	if len(tasks) == 0 {
		return nil
	}

	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.Name] = true
	}

	parent := make(map[string]string, len(tasks))
	for _, t := range tasks {
		parent[t.Name] = t.Name
	}

	var find func(x string) string
	find = func(x string) string {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			// Dependencies on tasks outside the batch do not group.
			if known[dep] {
				union(t.Name, dep)
			}
		}
	}

	groupIndex := make(map[string]int)
	var groups [][]TaskInfo
	for _, t := range tasks {
		root := find(t.Name)
		i, ok := groupIndex[root]
		if !ok {
			i = len(groups)
			groupIndex[root] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}
