// Package report defines how orchestration progress reaches the user.
// The orchestrator calls a Reporter as agents start, finish, or fail;
// implementations decide how that is displayed or recorded.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Reporter receives orchestration lifecycle events. Summarize is
// called exactly once, after the run ends.
type Reporter interface {
	OnAgentStarted(agentID string, taskNames []string, sandboxName string)
	OnAgentCompleted(agentID string, taskNames []string, duration time.Duration)
	OnAgentFailed(agentID string, taskNames []string, errMsg string)
	OnProgress(running, completed, pending, failed int)
	Summarize(completed, failed, skipped []string, agentsSpawned int, totalTime time.Duration, errs []string) string
}

// Terminal reports progress as colored lines on a writer.
type Terminal struct {
	Out io.Writer
}

// NewTerminal creates a Terminal reporter writing to stdout.
func NewTerminal() *Terminal {
	return &Terminal{Out: os.Stdout}
}

func (r *Terminal) OnAgentStarted(agentID string, taskNames []string, sandboxName string) {
	location := ""
	if sandboxName != "" {
		location = " in " + sandboxName
	}
	fmt.Fprintf(r.Out, "%s Agent %s%s (tasks: %s)\n",
		color.CyanString("[started]"), agentID, location, strings.Join(taskNames, ", "))
}

func (r *Terminal) OnAgentCompleted(agentID string, taskNames []string, duration time.Duration) {
	fmt.Fprintf(r.Out, "%s Agent %s completed in %s (tasks: %s)\n",
		color.GreenString("[completed]"), agentID, formatDuration(duration), strings.Join(taskNames, ", "))
}

func (r *Terminal) OnAgentFailed(agentID string, taskNames []string, errMsg string) {
	fmt.Fprintf(r.Out, "%s Agent %s FAILED (tasks: %s): %s\n",
		color.RedString("[failed]"), agentID, strings.Join(taskNames, ", "), errMsg)
}

func (r *Terminal) OnProgress(running, completed, pending, failed int) {
	total := running + completed + pending + failed
	fmt.Fprintf(r.Out, "%s %d/%d completed, %d running, %d pending, %d failed\n",
		color.HiBlackString("[progress]"), completed, total, running, pending, failed)
}

func (r *Terminal) Summarize(completed, failed, skipped []string, agentsSpawned int, totalTime time.Duration, errs []string) string {
	var b strings.Builder
	b.WriteString("--- Orchestration Summary ---\n")
	fmt.Fprintf(&b, "Total time: %s\n", formatDuration(totalTime))
	fmt.Fprintf(&b, "Agents spawned: %d\n", agentsSpawned)
	fmt.Fprintf(&b, "Completed: %d tasks\n", len(completed))
	for _, t := range completed {
		fmt.Fprintf(&b, "  - %s\n", t)
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "Failed: %d tasks\n", len(failed))
		for _, t := range failed {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&b, "Skipped: %d tasks\n", len(skipped))
		for _, t := range skipped {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
	}
	if len(errs) > 0 {
		fmt.Fprintf(&b, "Errors (%d):\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	summary := b.String()
	fmt.Fprint(r.Out, summary)
	return summary
}

func formatDuration(d time.Duration) string {
	if d >= time.Minute {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.0fs", d.Seconds())
}

var _ Reporter = (*Terminal)(nil)
