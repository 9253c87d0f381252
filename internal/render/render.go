// Package render provides output renderers for fanout's command results.
package render

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/dkoosis/fanout/pkg/gate"
	"github.com/dkoosis/fanout/pkg/matrix"
	"github.com/dkoosis/fanout/pkg/pins"
	"github.com/dkoosis/fanout/pkg/reconcile"
)

// Renderer formats command results for display.
type Renderer interface {
	Plan(instances []matrix.JobInstance) string
	Results(results []gate.JobResult, aggregate bool) string
	Reconcile(res reconcile.Result) string
	Versions(ps []pins.Pin) string
}

// ForWriter picks a renderer for w: styled with the named theme when w is a
// terminal, plain otherwise.
func ForWriter(w io.Writer, theme string) Renderer {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return NewTerminal(ThemeByName(theme))
	}
	return NewPlain()
}
