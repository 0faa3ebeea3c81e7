// Package backend wraps the external systems the workflow touches:
// git, docker sandboxes, credential injection, and agent processes.
// Every backend comes in three flavors, a real implementation that
// shells out, a mock that records calls for tests, and a dry-run that
// collects the commands it would have run.
package backend

import (
	"github.com/mwaldrip/foreman/internal/exec"
)

// Mode selects which backend flavor a Set is built with.
type Mode int

const (
	// Real backends shell out to git, docker, and the agent binary.
	Real Mode = iota
	// Mock backends return canned responses and record calls.
	Mock
	// DryRun backends collect the commands they would have run.
	DryRun
)

// Set is the container for all backend instances a run needs.
type Set struct {
	Git      Git
	Sandbox  Sandbox
	Auth     Auth
	Terminal Terminal
}

// New creates all backends for the given mode.
func New(mode Mode) *Set {
	switch mode {
	case Mock:
		return &Set{
			Git:      NewMockGit(),
			Sandbox:  NewMockSandbox(),
			Auth:     &MockAuth{},
			Terminal: &MockTerminal{},
		}
	case DryRun:
		rec := &CommandLog{}
		return &Set{
			Git:      &DryRunGit{Log: rec},
			Sandbox:  &DryRunSandbox{Log: rec},
			Auth:     &DryRunAuth{Log: rec},
			Terminal: &DryRunTerminal{Log: rec},
		}
	default:
		runner := exec.NewRunner()
		sandbox := &DockerSandbox{Runner: runner}
		return &Set{
			Git:      &SystemGit{Runner: runner},
			Sandbox:  sandbox,
			Auth:     &SandboxAuth{Sandbox: sandbox},
			Terminal: &SystemTerminal{Runner: runner},
		}
	}
}

// CommandLog accumulates the commands a dry-run would have executed.
type CommandLog struct {
	Commands []string
}

func (l *CommandLog) add(cmd string) {
	l.Commands = append(l.Commands, cmd)
}
