package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/agora-social/agora-cli/pkg/logger"
)

// Conversations retrieves one page of the conversation list
func (c *Client) Conversations(ctx context.Context, page, limit int) ([]Conversation, error) {
	logger.Debug("Fetching conversations", "page", page, "limit", limit)

	return do[[]Conversation](c.request(ctx).SetQueryParams(pageQuery(page, limit)),
		http.MethodGet, "/api/conversations")
}

// Messages retrieves one page of a conversation's history, newest first
func (c *Client) Messages(ctx context.Context, conversationID string, page, limit int) ([]Message, error) {
	logger.Debug("Fetching messages", "conversation_id", conversationID, "page", page, "limit", limit)

	return do[[]Message](c.request(ctx).SetQueryParams(pageQuery(page, limit)),
		http.MethodGet, "/api/messages/"+url.PathEscape(conversationID))
}

// SendMessage persists a chat message
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	logger.Debug("Sending message", "conversation_id", req.ConversationID, "receiver_id", req.ReceiverID)

	msg, err := do[Message](c.request(ctx).SetBody(req), http.MethodPost, "/api/messages")
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
