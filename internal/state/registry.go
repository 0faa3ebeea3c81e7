package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mwaldrip/foreman/internal/workflow"
)

// Run is a persisted orchestration run.
type Run struct {
	ID             string
	Repo           string
	Mode           string
	Target         string
	Status         string
	AgentsSpawned  int
	CompletedTasks int
	FailedTasks    int
	SkippedTasks   int
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// AgentRecord is a persisted agent within a run.
type AgentRecord struct {
	ID          string
	RunID       string
	TaskNames   []string
	SandboxName string
	Status      string
	RetryCount  int
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// WorktreeEntry registers a worktree (and its sandbox, if any) so
// cleanup can find everything a run left behind.
type WorktreeEntry struct {
	Name         string
	Repo         string
	Branch       string
	WorktreePath string
	SandboxName  string
	CreatedAt    time.Time
}

// CreateRun inserts a new run and returns its generated id.
func (db *DB) CreateRun(repo, mode, target string) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec(`
		INSERT INTO runs (id, repo, mode, target, status, started_at)
		VALUES (?, ?, ?, ?, 'running', ?)`,
		id, repo, mode, target, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun records a run's terminal status and final counts.
func (db *DB) FinishRun(runID, status string, agentsSpawned, completed, failed, skipped int) error {
	_, err := db.Exec(`
		UPDATE runs
		SET status = ?, agents_spawned = ?, completed_tasks = ?,
		    failed_tasks = ?, skipped_tasks = ?, finished_at = ?
		WHERE id = ?`,
		status, agentsSpawned, completed, failed, skipped, formatTime(time.Now()), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun loads one run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, repo, mode, target, status, agents_spawned,
		       completed_tasks, failed_tasks, skipped_tasks,
		       started_at, finished_at
		FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns runs newest first, up to limit.
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	rows, err := db.Query(`
		SELECT id, repo, mode, target, status, agents_spawned,
		       completed_tasks, failed_tasks, skipped_tasks,
		       started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&run.ID, &run.Repo, &run.Mode, &run.Target, &run.Status,
		&run.AgentsSpawned, &run.CompletedTasks, &run.FailedTasks, &run.SkippedTasks,
		&startedAt, &finishedAt)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// RecordAgent inserts an agent row for a run.
func (db *DB) RecordAgent(a AgentRecord) error {
	var sandbox sql.NullString
	if a.SandboxName != "" {
		sandbox = sql.NullString{String: a.SandboxName, Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO agents (id, run_id, task_names, sandbox_name, status, retry_count, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, strings.Join(a.TaskNames, ","), sandbox,
		a.Status, a.RetryCount, formatTime(a.StartedAt))
	if err != nil {
		return fmt.Errorf("record agent: %w", err)
	}
	return nil
}

// FinishAgent records an agent's terminal status.
func (db *DB) FinishAgent(runID, agentID, status string) error {
	_, err := db.Exec(`
		UPDATE agents SET status = ?, finished_at = ?
		WHERE run_id = ? AND id = ?`,
		status, formatTime(time.Now()), runID, agentID)
	if err != nil {
		return fmt.Errorf("finish agent: %w", err)
	}
	return nil
}

// ListAgents returns the agents of a run in spawn order.
func (db *DB) ListAgents(runID string) ([]*AgentRecord, error) {
	rows, err := db.Query(`
		SELECT id, run_id, task_names, sandbox_name, status, retry_count, started_at, finished_at
		FROM agents WHERE run_id = ? ORDER BY started_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*AgentRecord
	for rows.Next() {
		var a AgentRecord
		var sandbox, finishedAt sql.NullString
		var taskNames, startedAt string
		err := rows.Scan(&a.ID, &a.RunID, &taskNames, &sandbox, &a.Status,
			&a.RetryCount, &startedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if taskNames != "" {
			a.TaskNames = strings.Split(taskNames, ",")
		}
		a.SandboxName = sandbox.String
		if a.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finishedAt.Valid {
			t, err := parseTime(finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
			a.FinishedAt = &t
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// SaveCheckpoints persists an agent's executor checkpoint trail.
func (db *DB) SaveCheckpoints(runID, agentID string, checkpoints []workflow.Checkpoint) error {
	for i, cp := range checkpoints {
		success := 0
		if cp.Success {
			success = 1
		}
		_, err := db.Exec(`
			INSERT OR REPLACE INTO checkpoints (run_id, agent_id, seq, step_id, state, success, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, agentID, i, cp.StepID, cp.State, success, formatTime(cp.Timestamp))
		if err != nil {
			return fmt.Errorf("save checkpoint %d: %w", i, err)
		}
	}
	return nil
}

// LoadCheckpoints returns an agent's checkpoint trail in order.
func (db *DB) LoadCheckpoints(runID, agentID string) ([]workflow.Checkpoint, error) {
	rows, err := db.Query(`
		SELECT step_id, state, success, created_at
		FROM checkpoints WHERE run_id = ? AND agent_id = ? ORDER BY seq`,
		runID, agentID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []workflow.Checkpoint
	for rows.Next() {
		var cp workflow.Checkpoint
		var success int
		var createdAt string
		if err := rows.Scan(&cp.StepID, &cp.State, &success, &createdAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Success = success != 0
		if cp.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// RegisterWorktree adds or replaces a worktree entry, keyed by name.
func (db *DB) RegisterWorktree(e WorktreeEntry) error {
	var sandbox sql.NullString
	if e.SandboxName != "" {
		sandbox = sql.NullString{String: e.SandboxName, Valid: true}
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO worktrees (name, repo, branch, worktree_path, sandbox_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Name, e.Repo, e.Branch, e.WorktreePath, sandbox, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("register worktree: %w", err)
	}
	return nil
}

// ListWorktrees returns all registered worktree entries.
func (db *DB) ListWorktrees() ([]*WorktreeEntry, error) {
	rows, err := db.Query(`
		SELECT name, repo, branch, worktree_path, sandbox_name, created_at
		FROM worktrees ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	defer rows.Close()

	var entries []*WorktreeEntry
	for rows.Next() {
		var e WorktreeEntry
		var sandbox sql.NullString
		var createdAt string
		if err := rows.Scan(&e.Name, &e.Repo, &e.Branch, &e.WorktreePath, &sandbox, &createdAt); err != nil {
			return nil, fmt.Errorf("scan worktree: %w", err)
		}
		e.SandboxName = sandbox.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// RemoveWorktree deletes a worktree entry by name.
func (db *DB) RemoveWorktree(name string) error {
	_, err := db.Exec(`DELETE FROM worktrees WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}
	return nil
}
