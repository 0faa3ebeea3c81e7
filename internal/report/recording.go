package report

import (
	"fmt"
	"time"
)

// Event is one recorded reporter call.
type Event struct {
	Type    string
	AgentID string
	Data    map[string]any
}

// Recording captures reporter events for tests and for replay.
type Recording struct {
	Events    []Event
	Summaries []string
}

// NewRecording creates an empty recording reporter.
func NewRecording() *Recording {
	return &Recording{}
}

func (r *Recording) OnAgentStarted(agentID string, taskNames []string, sandboxName string) {
	r.Events = append(r.Events, Event{
		Type:    "started",
		AgentID: agentID,
		Data:    map[string]any{"task_names": taskNames, "sandbox_name": sandboxName},
	})
}

func (r *Recording) OnAgentCompleted(agentID string, taskNames []string, duration time.Duration) {
	r.Events = append(r.Events, Event{
		Type:    "completed",
		AgentID: agentID,
		Data:    map[string]any{"task_names": taskNames, "duration": duration},
	})
}

func (r *Recording) OnAgentFailed(agentID string, taskNames []string, errMsg string) {
	r.Events = append(r.Events, Event{
		Type:    "failed",
		AgentID: agentID,
		Data:    map[string]any{"task_names": taskNames, "error": errMsg},
	})
}

func (r *Recording) OnProgress(running, completed, pending, failed int) {
	r.Events = append(r.Events, Event{
		Type: "progress",
		Data: map[string]any{
			"running":   running,
			"completed": completed,
			"pending":   pending,
			"failed":    failed,
		},
	})
}

func (r *Recording) Summarize(completed, failed, skipped []string, agentsSpawned int, totalTime time.Duration, errs []string) string {
	summary := fmt.Sprintf("completed=%d failed=%d skipped=%d agents=%d time=%.0fs errors=%d",
		len(completed), len(failed), len(skipped), agentsSpawned, totalTime.Seconds(), len(errs))
	r.Summaries = append(r.Summaries, summary)
	return summary
}

// ByType returns the recorded events of one type, in order.
func (r *Recording) ByType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

var _ Reporter = (*Recording)(nil)
