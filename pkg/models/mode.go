package models

// Mode is the interaction mode an agent runs under.
type Mode string

const (
	// ModeInteractive keeps a human in the loop for agent decisions.
	ModeInteractive Mode = "interactive"
	// ModeAutonomous lets the agent run unattended.
	ModeAutonomous Mode = "autonomous"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	return m == ModeInteractive || m == ModeAutonomous
}

// Target is where an agent runs.
type Target string

const (
	// TargetSandbox runs the agent in an isolated Docker sandbox with
	// injected credentials.
	TargetSandbox Target = "sandbox"
	// TargetContainer runs the agent in the repo's own container image.
	TargetContainer Target = "container"
	// TargetLocal runs the agent as a local process with no isolation.
	TargetLocal Target = "local"
)

// Valid returns true if the target is a known value.
func (t Target) Valid() bool {
	return t == TargetSandbox || t == TargetContainer || t == TargetLocal
}
