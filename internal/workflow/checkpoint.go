package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is a recorded snapshot of executor progress after a step
// ran, success or failure. Checkpoints support resuming a workflow and
// post-mortem inspection of partial progress.
type Checkpoint struct {
	// StepID is the step that just executed.
	StepID string `json:"step_id"`
	// State is the workflow state the executor was in for the step.
	State string `json:"state"`
	// Success records whether the step handler reported success.
	Success bool `json:"success"`
	// CompletedSteps is a copy of the completed-step list at the time
	// the checkpoint was taken (before the step's own outcome applied).
	CompletedSteps []string `json:"completed_steps"`
	// Timestamp is when the checkpoint was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointFile is the persisted form of a workflow's checkpoint
// trail, written alongside the run for resume support.
type CheckpointFile struct {
	WorkflowID  string       `json:"workflow_id"`
	Checkpoints []Checkpoint `json:"checkpoints"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SaveCheckpoints writes the checkpoint trail to path as JSON,
// creating parent directories as needed.
func SaveCheckpoints(path, workflowID string, checkpoints []Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	file := CheckpointFile{
		WorkflowID:  workflowID,
		Checkpoints: checkpoints,
		UpdatedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoints: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoints: %w", err)
	}
	return nil
}

// LoadCheckpoints reads a checkpoint trail from path. Returns nil with
// no error if the file does not exist.
func LoadCheckpoints(path string) (*CheckpointFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	var file CheckpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse checkpoints: %w", err)
	}
	return &file, nil
}
