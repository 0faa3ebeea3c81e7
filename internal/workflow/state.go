// Package workflow defines the fixed state machine an agent workflow
// moves through, from INIT to a terminal COMPLETED or FAILED.
package workflow

// State is one position in the workflow state machine.
type State int

const (
	// StateInit is the starting state before any step has run.
	StateInit State = iota
	// StateEnsuringRepo validates or clones the repository.
	StateEnsuringRepo
	// StateCreatingWorktree creates the agent's git worktree.
	StateCreatingWorktree
	// StatePreparingSandbox provisions the isolated execution sandbox.
	StatePreparingSandbox
	// StateAuthenticating injects credentials into the sandbox.
	StateAuthenticating
	// StateInitializingState writes the agent's state directory.
	StateInitializingState
	// StateStartingAgent launches the agent process.
	StateStartingAgent
	// StateAgentRunning means the agent is executing its task.
	StateAgentRunning
	// StateCompleted is the successful terminal state.
	StateCompleted
	// StateFailed is the unsuccessful terminal state.
	StateFailed
)

var stateNames = map[State]string{
	StateInit:              "INIT",
	StateEnsuringRepo:      "ENSURING_REPO",
	StateCreatingWorktree:  "CREATING_WORKTREE",
	StatePreparingSandbox:  "PREPARING_SANDBOX",
	StateAuthenticating:    "AUTHENTICATING",
	StateInitializingState: "INITIALIZING_STATE",
	StateStartingAgent:     "STARTING_AGENT",
	StateAgentRunning:      "AGENT_RUNNING",
	StateCompleted:         "COMPLETED",
	StateFailed:            "FAILED",
}

// String returns the canonical name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Parse returns the state with the given canonical name.
func Parse(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateFailed, false
}

// Order is the linear progression of non-terminal states. An executor
// walks forward through this order; plans that skip states (local mode
// omits sandbox and auth) advance through the intermediates.
var Order = []State{
	StateInit,
	StateEnsuringRepo,
	StateCreatingWorktree,
	StatePreparingSandbox,
	StateAuthenticating,
	StateInitializingState,
	StateStartingAgent,
	StateAgentRunning,
}

// transitions maps each state to the set of states it may move to
// directly. FAILED is reachable from every non-terminal state; nothing
// transitions into INIT; terminal states have no outgoing edges.
var transitions = map[State][]State{
	StateInit:              {StateEnsuringRepo, StateFailed},
	StateEnsuringRepo:      {StateCreatingWorktree, StateFailed},
	StateCreatingWorktree:  {StatePreparingSandbox, StateFailed},
	StatePreparingSandbox:  {StateAuthenticating, StateFailed},
	StateAuthenticating:    {StateInitializingState, StateFailed},
	StateInitializingState: {StateStartingAgent, StateFailed},
	StateStartingAgent:     {StateAgentRunning, StateFailed},
	StateAgentRunning:      {StateCompleted, StateFailed},
	StateCompleted:         {},
	StateFailed:            {},
}

// ValidTransition reports whether moving from current to target is a
// direct edge in the state machine.
func ValidTransition(current, target State) bool {
	for _, next := range transitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// Next returns the successor of current in the linear order, or
// current itself with ok=false if current is last or terminal.
func Next(current State) (State, bool) {
	for i, s := range Order {
		if s == current {
			if i+1 < len(Order) {
				return Order[i+1], true
			}
			return current, false
		}
	}
	return current, false
}

// IsTerminal reports whether the state has no outgoing transitions.
func IsTerminal(s State) bool {
	return s == StateCompleted || s == StateFailed
}

// OrderIndex returns the position of s in the linear order, or -1 if
// s is not part of it (terminal states).
func OrderIndex(s State) int {
	for i, st := range Order {
		if st == s {
			return i
		}
	}
	return -1
}
