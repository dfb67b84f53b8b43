package api

import (
	"context"
	"net/http"

	"github.com/agora-social/agora-cli/pkg/logger"
)

// Notifications retrieves one page of notifications, newest first
func (c *Client) Notifications(ctx context.Context, page, limit int) ([]Notification, error) {
	logger.Debug("Fetching notifications", "page", page, "limit", limit)

	return do[[]Notification](c.request(ctx).SetQueryParams(pageQuery(page, limit)),
		http.MethodGet, "/api/notifications")
}

// MarkNotificationsRead marks every notification as read
func (c *Client) MarkNotificationsRead(ctx context.Context) error {
	logger.Debug("Marking all notifications as read")

	_, err := do[any](c.request(ctx), http.MethodPut, "/api/notifications/read")
	return err
}
