package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"erp-notification-be/pkg/notifclient"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change client preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := notifclient.NewFileStore(viper.GetString(keyPrefs)).Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		headerColor.Fprintln(out, "Preferences")
		fmt.Fprintf(out, "  muted:      %t\n", p.NotificationsMuted)
		fmt.Fprintf(out, "  sound:      %t\n", p.SoundEnabled)
		fmt.Fprintf(out, "  page size:  %d\n", p.PaginationLimit)
		fmt.Fprintf(out, "  channels:   %s\n", strings.Join(p.SelectedChannels, ", "))
		return nil
	},
}

var prefsMuteCmd = &cobra.Command{
	Use:       "mute <on|off>",
	Short:     "Drop incoming notifications while muted",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseSwitch(args[0])
		if err != nil {
			return err
		}
		return runSession(cmd.Context(), sessionOptions{anonymous: true}, func(_ context.Context, c *notifclient.Controller) error {
			return c.SetMuted(on)
		})
	},
}

var prefsSoundCmd = &cobra.Command{
	Use:       "sound <on|off>",
	Short:     "Toggle the terminal bell on new notifications",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseSwitch(args[0])
		if err != nil {
			return err
		}
		return runSession(cmd.Context(), sessionOptions{anonymous: true}, func(_ context.Context, c *notifclient.Controller) error {
			return c.SetSoundEnabled(on)
		})
	},
}

var prefsLimitCmd = &cobra.Command{
	Use:   "limit <n>",
	Short: fmt.Sprintf("Set the page size (%d-%d)", notifclient.MinPaginationLimit, notifclient.MaxPaginationLimit),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid page size %q", args[0])
		}
		if err := notifclient.ValidatePaginationLimit(n); err != nil {
			return err
		}
		return withSession(cmd.Context(), func(ctx context.Context, c *notifclient.Controller) error {
			return c.SetPaginationLimit(ctx, n)
		})
	},
}

var prefsChannelsCmd = &cobra.Command{
	Use:   "channels <name>[,<name>...]",
	Short: "Set the delivery channels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var channels []string
		for _, ch := range strings.Split(args[0], ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				channels = append(channels, ch)
			}
		}
		return runSession(cmd.Context(), sessionOptions{anonymous: true}, func(_ context.Context, c *notifclient.Controller) error {
			return c.SetSelectedChannels(channels)
		})
	},
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", v)
}

func init() {
	prefsCmd.AddCommand(prefsMuteCmd)
	prefsCmd.AddCommand(prefsSoundCmd)
	prefsCmd.AddCommand(prefsLimitCmd)
	prefsCmd.AddCommand(prefsChannelsCmd)
}
