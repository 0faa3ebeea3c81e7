// Package source provides task sources: pluggable backends the
// orchestrator pulls work from. The orchestrator never cares where
// tasks are stored or how they are parsed; any type satisfying
// TaskSource works.
package source

import (
	"path/filepath"

	"github.com/mwaldrip/foreman/pkg/models"
)

// TaskSource is the contract between a task store and the
// orchestrator. A source is owned by exactly one orchestrator for the
// duration of a run.
type TaskSource interface {
	// Tasks returns all tasks from this source.
	Tasks() ([]models.Task, error)
	// ReadyTasks returns tasks that are unblocked and not completed.
	ReadyTasks() ([]models.Task, error)
	// UpdateStatus records a new status in the backing store.
	UpdateStatus(taskID string, status models.TaskStatus) error
	// ClaimTask claims a task for this run. Reports false when
	// another consumer holds it.
	ClaimTask(taskID string) (bool, error)
}

// Named is implemented by sources that identify themselves for
// logging and the --from flag.
type Named interface {
	SourceName() string
}

// Detect picks a task source for a repository.
//
// sourceType is "auto" or an explicit source name. With "auto", the
// repo is checked for a spec-kit tasks.md first, then a plain markdown
// checklist; a provided task description is the final fallback. Detect
// returns nil when no source applies.
func Detect(repoRoot, sourceType, taskDescription string) TaskSource {
	switch sourceType {
	case "single":
		if taskDescription == "" {
			return nil
		}
		return NewSingleSource(taskDescription)
	case "speckit":
		return NewSpecKitSource(filepath.Join(repoRoot, "tasks.md"))
	case "markdown":
		if path := findMarkdownFile(repoRoot); path != "" {
			return NewMarkdownSource(path)
		}
		return nil
	case "auto":
		if specKitDetect(repoRoot) {
			return NewSpecKitSource(filepath.Join(repoRoot, "tasks.md"))
		}
		if path := findMarkdownFile(repoRoot); path != "" {
			return NewMarkdownSource(path)
		}
		if taskDescription != "" {
			return NewSingleSource(taskDescription)
		}
	}
	return nil
}

// readyOf filters tasks to those not completed and not blocked by an
// incomplete dependency. Shared by the file-backed sources.
func readyOf(tasks []models.Task) []models.Task {
	completed := make(map[string]bool)
	for _, t := range tasks {
		if t.Status == models.TaskCompleted {
			completed[t.TaskID] = true
		}
	}
	var ready []models.Task
	for _, t := range tasks {
		if t.Status != models.TaskCompleted && !t.Blocked(completed) {
			ready = append(ready, t)
		}
	}
	return ready
}
