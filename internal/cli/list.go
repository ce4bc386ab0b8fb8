package cli

import (
	"context"

	"erp-notification-be/pkg/notifclient"

	"github.com/spf13/cobra"
)

var (
	listUnread bool
	listPages  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, c *notifclient.Controller) error {
			if err := c.SetFilter(ctx, listUnread); err != nil {
				return err
			}
			for i := 1; i < listPages && c.State().HasMore; i++ {
				if err := c.LoadMore(ctx); err != nil {
					return err
				}
			}
			renderList(cmd.OutOrStdout(), c.State())
			return nil
		})
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listUnread, "unread", "u", false, "only unread notifications")
	listCmd.Flags().IntVarP(&listPages, "pages", "p", 1, "number of pages to fetch")
}
