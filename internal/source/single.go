package source

import (
	"crypto/sha256"
	"fmt"

	"github.com/mwaldrip/foreman/pkg/models"
)

// SingleSource wraps one ad-hoc task string, the source behind
// `foreman run --task "..."`. Status updates are no-ops since nothing
// backs it.
type SingleSource struct {
	description string
	taskID      string
}

// NewSingleSource creates a source holding one task.
func NewSingleSource(description string) *SingleSource {
	digest := sha256.Sum256([]byte(description))
	return &SingleSource{
		description: description,
		taskID:      fmt.Sprintf("single-%x", digest[:4]),
	}
}

func (s *SingleSource) SourceName() string { return "single" }

func (s *SingleSource) Tasks() ([]models.Task, error) {
	return []models.Task{{
		TaskID:      s.taskID,
		Title:       s.description,
		Description: s.description,
		Status:      models.TaskPending,
		SourceRef:   "single",
	}}, nil
}

// ReadyTasks returns the task; a single task is always ready.
func (s *SingleSource) ReadyTasks() ([]models.Task, error) {
	return s.Tasks()
}

func (s *SingleSource) UpdateStatus(taskID string, status models.TaskStatus) error {
	return nil
}

func (s *SingleSource) ClaimTask(taskID string) (bool, error) {
	return true, nil
}

var _ TaskSource = (*SingleSource)(nil)
