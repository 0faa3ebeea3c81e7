package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestAppTracksAgentLifecycle(t *testing.T) {
	app := NewApp()

	app.Update(AgentStartedMsg{
		AgentID:     "agent-1",
		TaskNames:   []string{"Add parser"},
		SandboxName: "ralph-agent-1",
	})

	row, ok := app.agents["agent-1"]
	if !ok {
		t.Fatal("expected agent-1 to be tracked")
	}
	if row.status != "running" {
		t.Errorf("expected status 'running', got %q", row.status)
	}

	app.Update(AgentCompletedMsg{
		AgentID:   "agent-1",
		TaskNames: []string{"Add parser"},
		Duration:  3 * time.Second,
	})

	if app.agents["agent-1"].status != "completed" {
		t.Errorf("expected status 'completed', got %q", app.agents["agent-1"].status)
	}
}

func TestAppViewShowsCounts(t *testing.T) {
	app := NewApp()
	app.Update(ProgressMsg{Running: 2, Completed: 1, Pending: 3, Failed: 0})

	view := app.View()
	if !strings.Contains(view, "1") || !strings.Contains(view, "pending") {
		t.Errorf("expected counts in view, got:\n%s", view)
	}
	if !strings.Contains(view, "Press q to cancel") {
		t.Error("expected cancel hint while running")
	}
}

func TestAppViewShowsFailedAgent(t *testing.T) {
	app := NewApp()
	app.Update(AgentStartedMsg{AgentID: "agent-1", TaskNames: []string{"T1"}})
	app.Update(AgentFailedMsg{AgentID: "agent-1", TaskNames: []string{"T1"}, ErrMsg: "exit code 2"})

	view := app.View()
	if !strings.Contains(view, "failed") {
		t.Errorf("expected failed marker in view, got:\n%s", view)
	}
	if !strings.Contains(view, "exit code 2") {
		t.Errorf("expected error message in activity log, got:\n%s", view)
	}
}

func TestAppDoneShowsSummary(t *testing.T) {
	app := NewApp()
	app.Update(SummaryMsg{Text: "--- Orchestration Summary ---\nAgents spawned: 2\n"})
	app.Update(DoneMsg{})

	view := app.View()
	if !strings.Contains(view, "Orchestration Summary") {
		t.Errorf("expected summary in view, got:\n%s", view)
	}
	if !strings.Contains(view, "Press q to exit") {
		t.Error("expected exit hint after done")
	}
}

func TestAppQuitKey(t *testing.T) {
	app := NewApp()
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command for 'q'")
	}
}

type fakeSender struct {
	msgs []tea.Msg
}

func (s *fakeSender) Send(msg tea.Msg) {
	s.msgs = append(s.msgs, msg)
}

func TestReporterForwardsEvents(t *testing.T) {
	sender := &fakeSender{}
	r := NewReporter(sender)

	r.OnAgentStarted("agent-1", []string{"T1", "T2"}, "ralph-agent-1")
	r.OnAgentCompleted("agent-1", []string{"T1", "T2"}, 2*time.Second)
	r.OnProgress(0, 2, 0, 0)
	summary := r.Summarize([]string{"T1", "T2"}, nil, nil, 1, 10*time.Second, nil)

	if len(sender.msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(sender.msgs))
	}

	started, ok := sender.msgs[0].(AgentStartedMsg)
	if !ok {
		t.Fatalf("expected AgentStartedMsg, got %T", sender.msgs[0])
	}
	if started.SandboxName != "ralph-agent-1" {
		t.Errorf("unexpected sandbox name %q", started.SandboxName)
	}

	if _, ok := sender.msgs[3].(SummaryMsg); !ok {
		t.Fatalf("expected SummaryMsg, got %T", sender.msgs[3])
	}
	if !strings.Contains(summary, "Agents spawned: 1") {
		t.Errorf("unexpected summary: %q", summary)
	}
}
