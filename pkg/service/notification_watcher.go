package service

import (
	"context"
	"strings"
	"time"

	"github.com/agora-social/agora-cli/pkg/channel"
	"github.com/agora-social/agora-cli/pkg/feed"
	"github.com/agora-social/agora-cli/pkg/formatter"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/agora-social/agora-cli/pkg/output"
)

// NotificationWatcherService lists notifications and watches for pushed ones
type NotificationWatcherService struct {
	*feedService
	now func() time.Time
}

// NewNotificationWatcherService attaches a reconciler for the channel's user
func NewNotificationWatcherService(ch channel.Channel, backend feed.Backend) (*NotificationWatcherService, error) {
	fs, err := newFeedService(ch, backend)
	if err != nil {
		return nil, err
	}
	return &NotificationWatcherService{feedService: fs, now: time.Now}, nil
}

// List fetches one page of notifications and prints it
func (nw *NotificationWatcherService) List(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	logger.Debug("Listing notifications", "page", page)

	if err := nw.rec.FetchNotifications(ctx, page); err != nil {
		return err
	}

	items := nw.rec.Notifications()
	if output.GetOutputFormat() == output.FormatJSON {
		return output.Print("", items)
	}
	if len(items) == 0 {
		output.PrintInfo("No notifications")
		return nil
	}

	now := nw.now()
	for _, n := range items {
		output.Line("%s", formatter.NotificationLine(n, now))
	}
	output.PrintInfo("%d unread", nw.rec.UnreadNotifications())
	if nw.rec.NotificationsHasMore() {
		output.PrintInfo("More notifications: --page %d", page+1)
	}
	return nil
}

// MarkAllRead marks every notification read on the server and locally
func (nw *NotificationWatcherService) MarkAllRead(ctx context.Context) error {
	if err := nw.rec.MarkNotificationsRead(ctx); err != nil {
		return err
	}
	output.PrintSuccess("All notifications marked as read")
	return nil
}

// WatchNotifications prints every pushed notification until ctx is done.
// The first page is loaded so the unread count starts from the server's.
func (nw *NotificationWatcherService) WatchNotifications(ctx context.Context) error {
	logger.Debug("Starting notification watcher")

	if err := nw.rec.FetchNotifications(ctx, 1); err != nil {
		// pushes still work without the backlog
		logger.Warn("Failed to load notifications", "error", err)
		output.PrintWarning("Could not load earlier notifications")
	}

	seen := make(map[string]bool)
	for _, n := range nw.rec.Notifications() {
		seen[n.ID] = true
	}

	output.Line("")
	output.PrintInfo("Watching for real-time notifications (%d unread)", nw.rec.UnreadNotifications())
	output.Line("Press Ctrl+C to stop")
	output.Line("%s\n", strings.Repeat("─", 60))

	for {
		select {
		case <-ctx.Done():
			output.Line("")
			output.PrintSuccess("Notification watcher stopped")
			return nil
		case k := <-nw.changes:
			if k != feed.NotificationsChanged {
				continue
			}
			nw.printNew(seen)
		}
	}
}

// printNew prints unseen notifications oldest first.
func (nw *NotificationWatcherService) printNew(seen map[string]bool) {
	items := nw.rec.Notifications()
	now := nw.now()
	for i := len(items) - 1; i >= 0; i-- {
		n := items[i]
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		output.Line("[%s] %s", now.Format("15:04:05"), formatter.NotificationLine(n, now))
	}
}
