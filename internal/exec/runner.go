// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"os/exec"
)

// Runner defines the interface for running external commands. The
// abstraction exists so backends can be exercised in tests without
// touching git, docker, or the filesystem.
type Runner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// Output executes a command and returns stdout only. A non-zero
	// exit status is returned as an *exec.ExitError.
	Output(ctx context.Context, workDir string, name string, args ...string) (stdout []byte, err error)

	// RunShell executes a shell command through "sh -c".
	RunShell(ctx context.Context, workDir string, command string) (output []byte, err error)
}

// SystemRunner implements Runner using os/exec.
type SystemRunner struct{}

// NewRunner creates a new SystemRunner.
func NewRunner() *SystemRunner {
	return &SystemRunner{}
}

// Run executes a command and returns combined stdout/stderr output.
func (r *SystemRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.CombinedOutput()
}

// Output executes a command and returns stdout only.
func (r *SystemRunner) Output(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.Output()
}

// RunShell executes a shell command through "sh -c".
func (r *SystemRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "sh", "-c", command)
}

// Verify SystemRunner implements Runner at compile time.
var _ Runner = (*SystemRunner)(nil)
