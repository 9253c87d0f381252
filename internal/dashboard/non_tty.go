package dashboard

import (
	"fmt"
	"io"
	"time"

	"github.com/dkoosis/fanout/internal/runner"
)

// RunNonTTY drains updates and streams prefixed output for non-interactive
// environments, then prints a summary. It returns 1 when any instance failed
// or was cancelled.
func RunNonTTY(tasks []*runner.Task, updates <-chan runner.Update, out io.Writer) int {
	for update := range updates {
		task := tasks[update.Index]
		if update.Line != "" {
			fmt.Fprintf(out, "[%s] %s\n", task.Instance.ID, update.Line)
		}
	}
	return renderSummary(out, tasks)
}

func renderSummary(out io.Writer, tasks []*runner.Task) int {
	failures := 0
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	for _, task := range tasks {
		status := "✓"
		switch task.Status {
		case runner.StatusFailed:
			status = "✗"
			failures++
		case runner.StatusCancelled:
			status = "◌"
			failures++
		}
		duration := task.Duration().Round(10 * time.Millisecond)
		fmt.Fprintf(out, "  %s %s (%s)\n", status, task.Instance.ID, duration)
	}
	if failures > 0 {
		fmt.Fprintf(out, "\n%d instance(s) failed\n", failures)
		return 1
	}
	return 0
}
