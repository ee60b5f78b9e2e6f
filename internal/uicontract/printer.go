package uicontract

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/dolphie-go/dolphie/internal/changemonitor"
)

// LinePrinter is the fallback renderer used when no TUI is attached (daemon
// mode): one colorized line per event plus a one-line connection-status
// summary per snapshot, grounded on the teacher's textFormatter
// severity-to-color mapping (internal/cli/ui/formatter.go).
type LinePrinter struct {
	out io.Writer

	critical func(a ...interface{}) string
	warning  func(a ...interface{}) string
	info     func(a ...interface{}) string
	bold     func(a ...interface{}) string
}

// NewLinePrinter builds a LinePrinter writing to out.
func NewLinePrinter(out io.Writer) *LinePrinter {
	return &LinePrinter{
		out:      out,
		critical: color.New(color.FgRed, color.Bold).SprintFunc(),
		warning:  color.New(color.FgYellow).SprintFunc(),
		info:     color.New(color.FgGreen).SprintFunc(),
		bold:     color.New(color.Bold).SprintFunc(),
	}
}

func (p *LinePrinter) colorFor(sev changemonitor.Severity) func(a ...interface{}) string {
	switch sev {
	case changemonitor.SeverityCritical:
		return p.critical
	case changemonitor.SeverityWarning:
		return p.warning
	default:
		return p.info
	}
}

// PrintSnapshot writes one status line plus one line per event in snap.
func (p *LinePrinter) PrintSnapshot(snap Snapshot) {
	statusColor := p.info
	if snap.Status == StatusReconnecting {
		statusColor = p.warning
	} else if snap.Status == StatusDisconnected {
		statusColor = p.critical
	}

	fmt.Fprintf(p.out, "%s [%s] %s\n",
		p.bold(snap.Endpoint.DisplayTitle),
		statusColor(string(snap.Status)),
		snap.RenderedAt.Format("15:04:05"),
	)

	for _, ev := range snap.Events {
		c := p.colorFor(ev.Severity)
		fmt.Fprintf(p.out, "  %s %s: %s\n", c(string(ev.Severity)), ev.Title, ev.Detail)
	}
}
