package cli

import (
	"context"
	"fmt"

	"erp-notification-be/pkg/notifclient"

	"github.com/spf13/cobra"
)

func printCount(cmd *cobra.Command, c *notifclient.Controller) {
	fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", c.State().UnreadCount)
}

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, c *notifclient.Controller) error {
			if err := c.MarkAsRead(ctx, args[0]); err != nil {
				return err
			}
			printCount(cmd, c)
			return nil
		})
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread <id>",
	Short: "Mark a notification as unread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, c *notifclient.Controller) error {
			if err := c.MarkAsUnread(ctx, args[0]); err != nil {
				return err
			}
			printCount(cmd, c)
			return nil
		})
	},
}

var readAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, c *notifclient.Controller) error {
			return c.MarkAllAsRead(ctx)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, c *notifclient.Controller) error {
			if err := c.Delete(ctx, args[0]); err != nil {
				return err
			}
			printCount(cmd, c)
			return nil
		})
	},
}

var deleteReadCmd = &cobra.Command{
	Use:   "delete-read",
	Short: "Delete every read notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, c *notifclient.Controller) error {
			return c.DeleteAllRead(ctx)
		})
	},
}
