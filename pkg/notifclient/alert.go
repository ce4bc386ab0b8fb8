package notifclient

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Alerter presents a platform alert for a newly arrived notification.
// Failures are reported to the controller, which discards them.
type Alerter interface {
	Alert(n Notification) error
}

// TerminalAlerter prints a coloured one-line alert, with a bell when sound is on.
type TerminalAlerter struct {
	out  io.Writer
	bell bool
}

func NewTerminalAlerter(out io.Writer, bell bool) *TerminalAlerter {
	return &TerminalAlerter{out: out, bell: bell}
}

func (a *TerminalAlerter) Alert(n Notification) error {
	if a.out == nil {
		return fmt.Errorf("no alert output configured")
	}
	paint := colorFor(n)
	prefix := ""
	if a.bell {
		prefix = "\a"
	}
	_, err := fmt.Fprintf(a.out, "%s%s %s\n", prefix, paint.Sprintf("[%s]", n.Title), n.Message)
	return err
}

// colorFor maps type and priority onto terminal colours; unknown types stay uncoloured.
func colorFor(n Notification) *color.Color {
	if n.IsUrgent() {
		return color.New(color.FgHiRed, color.Bold)
	}
	switch n.Type {
	case "success":
		return color.New(color.FgGreen)
	case "warning":
		return color.New(color.FgYellow)
	case "error":
		return color.New(color.FgRed)
	case "info", "message":
		return color.New(color.FgCyan)
	case "task", "reminder":
		return color.New(color.FgMagenta)
	case "system":
		return color.New(color.FgBlue)
	default:
		return color.New(color.Reset)
	}
}
