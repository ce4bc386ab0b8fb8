package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"erp-notification-be/pkg/notifclient"

	"github.com/spf13/cobra"
)

const watchHelp = `commands: r <id> read · u <id> unread · d <id> delete · a read all · x delete read
          n next page · f toggle unread filter · m toggle mute · c reconnect · l list · q quit`

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow notifications live over the push channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		var (
			mu         sync.Mutex
			lastStatus string
			lastBanner string
		)
		onChange := func(st notifclient.State) {
			mu.Lock()
			defer mu.Unlock()
			if status := renderStatus(st); status != lastStatus {
				lastStatus = status
				dimColor.Fprintf(out, "[%s]\n", status)
			}
			banner := ""
			if st.Error != nil {
				banner = st.Error.Message
			}
			if banner != lastBanner {
				lastBanner = banner
				renderBanner(out, st)
			}
		}

		s, err := newSession(sessionOptions{push: true, onChange: onChange})
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.ctrl.Start(ctx); err != nil {
			renderBanner(out, s.ctrl.State())
		}
		renderList(out, s.ctrl.State())
		fmt.Fprintln(out, watchHelp)

		lines := make(chan string)
		go readLines(cmd.InOrStdin(), lines)

		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					<-ctx.Done()
					return nil
				}
				if quit := runWatchCommand(ctx, out, s.ctrl, line); quit {
					return nil
				}
			}
		}
	},
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func runWatchCommand(ctx context.Context, out io.Writer, c *notifclient.Controller, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	// Failures surface through the banner.
	switch fields[0] {
	case "q", "quit":
		return true
	case "r":
		_ = c.MarkAsRead(ctx, arg)
	case "u":
		_ = c.MarkAsUnread(ctx, arg)
	case "d":
		_ = c.Delete(ctx, arg)
	case "a":
		_ = c.MarkAllAsRead(ctx)
	case "x":
		_ = c.DeleteAllRead(ctx)
	case "n":
		_ = c.LoadMore(ctx)
		renderList(out, c.State())
	case "f":
		_ = c.SetFilter(ctx, !c.State().UnreadOnly)
		renderList(out, c.State())
	case "m":
		if muted, err := c.ToggleMute(); err == nil {
			fmt.Fprintf(out, "muted: %t\n", muted)
		}
	case "c":
		c.Reconnect(ctx)
	case "l":
		renderList(out, c.State())
	default:
		fmt.Fprintln(out, watchHelp)
	}
	return false
}
