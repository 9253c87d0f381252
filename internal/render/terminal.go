package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dkoosis/fanout/pkg/gate"
	"github.com/dkoosis/fanout/pkg/matrix"
	"github.com/dkoosis/fanout/pkg/pins"
	"github.com/dkoosis/fanout/pkg/reconcile"
)

var titler = cases.Title(language.English)

// Terminal renders results as styled terminal output via lipgloss.
type Terminal struct {
	theme Theme
}

// NewTerminal creates a terminal renderer with the given theme.
func NewTerminal(theme Theme) *Terminal {
	return &Terminal{theme: theme}
}

// Plan formats the dispatch plan as an aligned table.
func (t *Terminal) Plan(instances []matrix.JobInstance) string {
	var sb strings.Builder
	sb.WriteString(t.theme.Bold.Render(titler.String("dispatch plan")))
	sb.WriteString("\n")
	if len(instances) == 0 {
		sb.WriteString(t.theme.Muted.Render("  (no instances)"))
		sb.WriteString("\n")
		return sb.String()
	}

	maxID := 0
	for _, inst := range instances {
		if w := runewidth.StringWidth(inst.ID); w > maxID {
			maxID = w
		}
	}
	for _, inst := range instances {
		sb.WriteString("  ")
		sb.WriteString(t.theme.Icons.Bullet)
		sb.WriteString(" ")
		sb.WriteString(t.theme.Primary.Render(padRight(inst.ID, maxID)))
		sb.WriteString("  ")
		sb.WriteString(t.theme.Muted.Render(inst.Command))
		if len(inst.Pins) > 0 {
			reqs := make([]string, len(inst.Pins))
			for i, p := range inst.Pins {
				reqs[i] = p.Requirement()
			}
			sb.WriteString(t.theme.Muted.Render("  [" + strings.Join(reqs, " ") + "]"))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(t.theme.Muted.Render(fmt.Sprintf("  %d instances", len(instances))))
	sb.WriteString("\n")
	return sb.String()
}

// Results formats terminal job results and the aggregation verdict.
func (t *Terminal) Results(results []gate.JobResult, aggregate bool) string {
	var sb strings.Builder
	sb.WriteString(t.theme.Bold.Render(titler.String("results")))
	sb.WriteString("\n")

	maxID := 0
	for _, r := range results {
		if w := runewidth.StringWidth(r.InstanceID); w > maxID {
			maxID = w
		}
	}
	for _, r := range results {
		icon, style := t.statusStyle(r.Status)
		sb.WriteString("  ")
		sb.WriteString(style.Render(icon))
		sb.WriteString(" ")
		sb.WriteString(padRight(r.InstanceID, maxID))
		sb.WriteString("  ")
		sb.WriteString(style.Render(r.Status.String()))
		if r.Duration > 0 {
			sb.WriteString(t.theme.Muted.Render("  " + r.Duration.Round(10*time.Millisecond).String()))
		}
		sb.WriteString("\n")
	}

	if aggregate {
		sb.WriteString(t.theme.Success.Render(t.theme.Icons.Pass + " aggregation proceeds"))
	} else {
		sb.WriteString(t.theme.Warning.Render(t.theme.Icons.Skip + " aggregation withheld"))
	}
	sb.WriteString("\n")
	return sb.String()
}

// Reconcile formats a reconciliation result.
func (t *Terminal) Reconcile(res reconcile.Result) string {
	var sb strings.Builder
	icon := t.theme.Icons.Pass
	style := t.theme.Success
	if res.Outcome == reconcile.OutcomeClean {
		icon = t.theme.Icons.Skip
		style = t.theme.Muted
	}
	sb.WriteString(style.Render(fmt.Sprintf("%s %s", icon, res.Outcome)))
	if res.PRNumber > 0 {
		sb.WriteString(t.theme.Muted.Render(fmt.Sprintf("  #%d", res.PRNumber)))
	}
	sb.WriteString("\n")
	for _, s := range res.States {
		sb.WriteString("  ")
		sb.WriteString(t.theme.Muted.Render(t.theme.Icons.Bullet + " " + s.String()))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Versions formats the pinned dependency table.
func (t *Terminal) Versions(ps []pins.Pin) string {
	var sb strings.Builder
	sb.WriteString(t.theme.Bold.Render(titler.String("pinned versions")))
	sb.WriteString("\n")

	maxName := 0
	for _, p := range ps {
		if w := runewidth.StringWidth(p.Package); w > maxName {
			maxName = w
		}
	}
	for _, p := range ps {
		sb.WriteString("  ")
		sb.WriteString(t.theme.Primary.Render(padRight(p.Package, maxName)))
		sb.WriteString("  ")
		sb.WriteString(t.theme.Warning.Render(p.Constraint))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) statusStyle(s gate.Status) (string, lipgloss.Style) {
	switch s {
	case gate.StatusSuccess:
		return t.theme.Icons.Pass, t.theme.Success
	case gate.StatusSkipped:
		return t.theme.Icons.Skip, t.theme.Muted
	case gate.StatusCancelled:
		return t.theme.Icons.Fail, t.theme.Warning
	default:
		return t.theme.Icons.Fail, t.theme.Error
	}
}

func padRight(s string, width int) string {
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}
