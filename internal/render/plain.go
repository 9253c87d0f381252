package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkoosis/fanout/pkg/gate"
	"github.com/dkoosis/fanout/pkg/matrix"
	"github.com/dkoosis/fanout/pkg/pins"
	"github.com/dkoosis/fanout/pkg/reconcile"
)

// Plain renders results as unstyled text for pipes and CI logs.
type Plain struct{}

// NewPlain creates a plain text renderer.
func NewPlain() *Plain {
	return &Plain{}
}

func (p *Plain) Plan(instances []matrix.JobInstance) string {
	var sb strings.Builder
	for _, inst := range instances {
		sb.WriteString(inst.ID)
		sb.WriteString("\t")
		sb.WriteString(inst.Command)
		if len(inst.Pins) > 0 {
			reqs := make([]string, len(inst.Pins))
			for i, pin := range inst.Pins {
				reqs[i] = pin.Requirement()
			}
			sb.WriteString("\t")
			sb.WriteString(strings.Join(reqs, " "))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%d instances\n", len(instances))
	return sb.String()
}

func (p *Plain) Results(results []gate.JobResult, aggregate bool) string {
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(r.InstanceID)
		sb.WriteString("\t")
		sb.WriteString(r.Status.String())
		if r.Duration > 0 {
			sb.WriteString("\t")
			sb.WriteString(r.Duration.Round(10 * time.Millisecond).String())
		}
		sb.WriteString("\n")
	}
	if aggregate {
		sb.WriteString("aggregation proceeds\n")
	} else {
		sb.WriteString("aggregation withheld\n")
	}
	return sb.String()
}

func (p *Plain) Reconcile(res reconcile.Result) string {
	var sb strings.Builder
	sb.WriteString(res.Outcome.String())
	if res.PRNumber > 0 {
		fmt.Fprintf(&sb, "\t#%d", res.PRNumber)
	}
	sb.WriteString("\n")
	for _, s := range res.States {
		sb.WriteString("  ")
		sb.WriteString(s.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (p *Plain) Versions(ps []pins.Pin) string {
	var sb strings.Builder
	for _, pin := range ps {
		sb.WriteString(pin.Package)
		sb.WriteString("\t")
		sb.WriteString(pin.Constraint)
		sb.WriteString("\n")
	}
	return sb.String()
}
