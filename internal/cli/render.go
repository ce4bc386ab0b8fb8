package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"erp-notification-be/pkg/notifclient"

	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.Bold, color.FgCyan)
	unreadMark  = color.New(color.FgYellow, color.Bold).Sprint("●")
	urgentColor = color.New(color.FgHiRed, color.Bold)
	errorColor  = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

func renderList(w io.Writer, st notifclient.State) {
	headerColor.Fprintf(w, "Notifications (%d unread)", st.UnreadCount)
	if st.UnreadOnly {
		dimColor.Fprint(w, " [unread only]")
	}
	fmt.Fprintln(w)

	if len(st.Notifications) == 0 {
		dimColor.Fprintln(w, "  nothing here")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	for _, n := range st.Notifications {
		mark := " "
		if !n.IsRead {
			mark = unreadMark
		}
		title := n.Title
		if n.IsUrgent() {
			title = urgentColor.Sprint(title)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, n.ID, n.Type, title, age(n.CreatedAt))
	}
	tw.Flush()

	if st.HasMore {
		dimColor.Fprintf(w, "  page %d, more available\n", st.Page)
	}
}

func renderBanner(w io.Writer, st notifclient.State) {
	if st.Error == nil {
		return
	}
	errorColor.Fprintf(w, "! %s\n", st.Error.Message)
}

func renderStatus(st notifclient.State) string {
	parts := []string{string(st.Connection), fmt.Sprintf("%d unread", st.UnreadCount)}
	if st.ReconnectAttempts > 0 {
		parts = append(parts, fmt.Sprintf("retry %d/%d", st.ReconnectAttempts, notifclient.MaxReconnectAttempts))
	}
	if st.Preferences.NotificationsMuted {
		parts = append(parts, "muted")
	}
	return strings.Join(parts, " · ")
}

func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}
