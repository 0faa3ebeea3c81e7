// Package models defines the shared data types used across foreman.
package models

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskPending indicates the task has not started.
	TaskPending TaskStatus = "pending"
	// TaskInProgress indicates the task is being worked on.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCompleted indicates the task completed successfully.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed indicates the task failed.
	TaskFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// Task is the unified task representation across all task sources.
// A TaskSource owns and mutates tasks; the orchestrator only reads
// them and requests status updates.
type Task struct {
	// TaskID is the unique identifier for this task within its source.
	TaskID string `json:"task_id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Dependencies lists task IDs that must complete before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// Labels holds source-specific metadata (story, phase, parallel, ...).
	Labels map[string]string `json:"labels,omitempty"`
	// SourceRef identifies where this task came from (file path, issue id).
	SourceRef string `json:"source_ref,omitempty"`
}

// Blocked reports whether the task has a dependency that is not in
// the given set of completed task IDs.
func (t *Task) Blocked(completed map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return true
		}
	}
	return false
}
