// Package tui provides the terminal user interface for foreman's
// orchestrate command.
//
// The TUI is a read-only progress display. The orchestrator runs in a
// background goroutine and its Reporter events are forwarded to the
// Bubbletea program as messages:
//
//	program, _ := tui.NewProgram()
//	reporter := tui.NewReporter(program)
//	go func() {
//	    result := orch.Run(ctx, decision, repo)
//	    program.Send(tui.DoneMsg{Err: firstError(result)})
//	}()
//	program.Run()
//
// Users can only quit with 'q' or Ctrl+C; quitting before the run
// finishes cancels the orchestration context.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AgentStartedMsg is sent when the orchestrator spawns an agent.
type AgentStartedMsg struct {
	AgentID     string
	TaskNames   []string
	SandboxName string
}

// AgentCompletedMsg is sent when an agent's tasks all completed.
type AgentCompletedMsg struct {
	AgentID   string
	TaskNames []string
	Duration  time.Duration
}

// AgentFailedMsg is sent when an agent fails.
type AgentFailedMsg struct {
	AgentID   string
	TaskNames []string
	ErrMsg    string
}

// ProgressMsg carries the task counters after each poll cycle.
type ProgressMsg struct {
	Running   int
	Completed int
	Pending   int
	Failed    int
}

// SummaryMsg carries the final orchestration summary text.
type SummaryMsg struct {
	Text string
}

// DoneMsg is sent when the orchestration run returns.
type DoneMsg struct {
	Err error
}

type agentRow struct {
	id       string
	tasks    []string
	sandbox  string
	status   string // "running", "completed", "failed"
	started  time.Time
	duration time.Duration
	errMsg   string
}

type logEntry struct {
	timestamp time.Time
	message   string
}

// App is the Bubbletea model for the orchestration progress display.
type App struct {
	spinner spinner.Model
	agents  map[string]*agentRow
	order   []string
	logs    []logEntry

	running   int
	completed int
	pending   int
	failed    int

	summary string
	done    bool
	err     error
	width   int

	headerStyle    lipgloss.Style
	labelStyle     lipgloss.Style
	runningStyle   lipgloss.Style
	completedStyle lipgloss.Style
	failedStyle    lipgloss.Style
	logTimeStyle   lipgloss.Style
	dimStyle       lipgloss.Style
}

// NewApp creates a new App model.
func NewApp() *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &App{
		spinner: s,
		agents:  make(map[string]*agentRow),
		width:   80,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		runningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")),

		completedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		failedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		logTimeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init starts the spinner tick loop.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update handles incoming messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case AgentStartedMsg:
		a.agents[msg.AgentID] = &agentRow{
			id:      msg.AgentID,
			tasks:   msg.TaskNames,
			sandbox: msg.SandboxName,
			status:  "running",
			started: time.Now(),
		}
		a.order = append(a.order, msg.AgentID)
		a.log("agent %s started (%s)", msg.AgentID, strings.Join(msg.TaskNames, ", "))

	case AgentCompletedMsg:
		if row, ok := a.agents[msg.AgentID]; ok {
			row.status = "completed"
			row.duration = msg.Duration
		}
		a.log("agent %s completed in %s", msg.AgentID, formatDuration(msg.Duration))

	case AgentFailedMsg:
		if row, ok := a.agents[msg.AgentID]; ok {
			row.status = "failed"
			row.errMsg = msg.ErrMsg
		}
		a.log("agent %s failed: %s", msg.AgentID, msg.ErrMsg)

	case ProgressMsg:
		a.running = msg.Running
		a.completed = msg.Completed
		a.pending = msg.Pending
		a.failed = msg.Failed

	case SummaryMsg:
		a.summary = msg.Text

	case DoneMsg:
		a.done = true
		a.err = msg.Err
	}

	return a, nil
}

// View renders the progress display.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(a.headerStyle.Render("foreman orchestrate"))
	b.WriteString("\n")

	total := a.running + a.completed + a.pending + a.failed
	b.WriteString(a.labelStyle.Render("Tasks:"))
	b.WriteString(fmt.Sprintf("%s completed, %s running, %d pending, %s failed (%d total)",
		a.completedStyle.Render(fmt.Sprintf("%d", a.completed)),
		a.runningStyle.Render(fmt.Sprintf("%d", a.running)),
		a.pending,
		a.failedStyle.Render(fmt.Sprintf("%d", a.failed)),
		total))
	b.WriteString("\n\n")

	b.WriteString(a.renderAgents())
	b.WriteString(a.renderLogs())

	if a.done {
		b.WriteString("\n")
		if a.summary != "" {
			b.WriteString(a.summary)
		}
		if a.err != nil {
			b.WriteString(a.failedStyle.Render(fmt.Sprintf("Error: %v", a.err)))
			b.WriteString("\n")
		}
		b.WriteString(a.dimStyle.Render("Press q to exit"))
	} else {
		b.WriteString("\n")
		b.WriteString(a.dimStyle.Render("Press q to cancel"))
	}
	b.WriteString("\n")

	return b.String()
}

func (a *App) renderAgents() string {
	if len(a.order) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252")).
		Render("Agents"))
	b.WriteString("\n")

	ids := make([]string, len(a.order))
	copy(ids, a.order)
	sort.SliceStable(ids, func(i, j int) bool {
		return a.agents[ids[i]].status == "running" && a.agents[ids[j]].status != "running"
	})

	for _, id := range ids {
		row := a.agents[id]
		tasks := strings.Join(row.tasks, ", ")
		if len(tasks) > 50 {
			tasks = tasks[:47] + "..."
		}

		var marker, status string
		switch row.status {
		case "running":
			marker = a.spinner.View()
			status = a.runningStyle.Render("running")
			if row.sandbox != "" {
				status += a.dimStyle.Render(" in " + row.sandbox)
			}
		case "completed":
			marker = a.completedStyle.Render("ok")
			status = a.completedStyle.Render("completed " + formatDuration(row.duration))
		case "failed":
			marker = a.failedStyle.Render("x")
			status = a.failedStyle.Render("failed")
		}

		b.WriteString(fmt.Sprintf("  %s %-10s %s  %s\n", marker, row.id, status, tasks))
	}
	b.WriteString("\n")

	return b.String()
}

func (a *App) renderLogs() string {
	if len(a.logs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252")).
		Render("Activity"))
	b.WriteString("\n")

	// Show last 8 log entries
	start := 0
	if len(a.logs) > 8 {
		start = len(a.logs) - 8
	}
	for _, entry := range a.logs[start:] {
		ts := a.logTimeStyle.Render(entry.timestamp.Format("15:04:05"))
		b.WriteString(fmt.Sprintf("  %s %s\n", ts, entry.message))
	}

	return b.String()
}

func (a *App) log(format string, args ...any) {
	a.logs = append(a.logs, logEntry{
		timestamp: time.Now(),
		message:   fmt.Sprintf(format, args...),
	})
}

func formatDuration(d time.Duration) string {
	if d >= time.Minute {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.0fs", d.Seconds())
}

// NewProgram creates a new Bubbletea program for the progress TUI.
func NewProgram() (*tea.Program, *App) {
	app := NewApp()
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
