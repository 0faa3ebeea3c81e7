package tui

import (
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwaldrip/foreman/internal/report"
)

// Sender is the subset of tea.Program the reporter needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Reporter forwards orchestration events to a running TUI program.
// tea.Program.Send is concurrency-safe, so the orchestrator goroutine
// can call this directly.
type Reporter struct {
	sender Sender
}

// NewReporter creates a Reporter that sends events to the given program.
func NewReporter(sender Sender) *Reporter {
	return &Reporter{sender: sender}
}

func (r *Reporter) OnAgentStarted(agentID string, taskNames []string, sandboxName string) {
	r.sender.Send(AgentStartedMsg{AgentID: agentID, TaskNames: taskNames, SandboxName: sandboxName})
}

func (r *Reporter) OnAgentCompleted(agentID string, taskNames []string, duration time.Duration) {
	r.sender.Send(AgentCompletedMsg{AgentID: agentID, TaskNames: taskNames, Duration: duration})
}

func (r *Reporter) OnAgentFailed(agentID string, taskNames []string, errMsg string) {
	r.sender.Send(AgentFailedMsg{AgentID: agentID, TaskNames: taskNames, ErrMsg: errMsg})
}

func (r *Reporter) OnProgress(running, completed, pending, failed int) {
	r.sender.Send(ProgressMsg{Running: running, Completed: completed, Pending: pending, Failed: failed})
}

func (r *Reporter) Summarize(completed, failed, skipped []string, agentsSpawned int, totalTime time.Duration, errs []string) string {
	// Render the same text a Terminal reporter would, but route it to
	// the TUI instead of stdout.
	terminal := &report.Terminal{Out: io.Discard}
	summary := terminal.Summarize(completed, failed, skipped, agentsSpawned, totalTime, errs)
	r.sender.Send(SummaryMsg{Text: summary})
	return summary
}

var _ report.Reporter = (*Reporter)(nil)
