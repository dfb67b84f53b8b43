package cmd

import (
	"github.com/agora-social/agora-cli/pkg/api"
	"github.com/agora-social/agora-cli/pkg/service"
	"github.com/spf13/cobra"
)

var notifPage int

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Notification commands",
	Long:  "View and follow notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		watcherService, err := newNotificationService(cmd)
		if err != nil {
			return err
		}
		defer watcherService.Close()
		return watcherService.List(cmd.Context(), notifPage)
	},
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for real-time notifications",
	Long:  "Stream notifications pushed through the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		watcherService, err := newNotificationService(cmd)
		if err != nil {
			return err
		}
		defer watcherService.Close()
		return watcherService.WatchNotifications(cmd.Context())
	},
}

var notificationsMarkReadCmd = &cobra.Command{
	Use:   "mark-read",
	Short: "Mark all notifications as read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		watcherService, err := newNotificationService(cmd)
		if err != nil {
			return err
		}
		defer watcherService.Close()
		return watcherService.MarkAllRead(cmd.Context())
	},
}

func newNotificationService(cmd *cobra.Command) (*service.NotificationWatcherService, error) {
	ch, _, err := openChannel(cmd)
	if err != nil {
		return nil, err
	}
	return service.NewNotificationWatcherService(ch, api.Default())
}

func init() {
	notificationsListCmd.Flags().IntVar(&notifPage, "page", 1, "Page number")

	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)
	notificationsCmd.AddCommand(notificationsMarkReadCmd)
}
