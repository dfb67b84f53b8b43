// Package api is the REST collaborator of the feed reconciler. Every endpoint
// answers with a {status, message, data} envelope; list endpoints take page
// and limit query parameters.
package api

import (
	"context"
	"strconv"
	"time"

	"github.com/agora-social/agora-cli/pkg/client"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the response wrapper used by every endpoint
type Envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Participant is the other side of a conversation
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Conversation is one entry of the conversation list
type Conversation struct {
	ID             string      `json:"id"`
	Participant    Participant `json:"participant"`
	LastMessage    string      `json:"lastMessage"`
	LastSenderID   string      `json:"lastSenderId"`
	LastSenderName string      `json:"lastSenderName,omitempty"`
	UnreadCount    int         `json:"unreadCount"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Message is one direct message
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	SenderAvatar   string    `json:"senderAvatar,omitempty"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notification is one entry of the notification list
type Notification struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	SenderID   string    `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	Link       string    `json:"link,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SendMessageRequest persists a message already pushed over the channel
type SendMessageRequest struct {
	ID             string `json:"id,omitempty"`
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
}

// Client calls the REST API through a resty client
type Client struct {
	http *resty.Client
}

// New wraps rc
func New(rc *resty.Client) *Client {
	return &Client{http: rc}
}

// Default uses the shared client from pkg/client
func Default() *Client {
	return New(client.GetClient())
}

func pageQuery(page, limit int) map[string]string {
	return map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	}
}

// do executes req and unwraps the envelope
func do[T any](req *resty.Request, method, path string) (T, error) {
	var zero T

	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, err
	}
	if !resp.IsSuccess() {
		return zero, ParseError(resp)
	}

	var env Envelope[T]
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return zero, &APIError{Code: "invalid_response", Message: err.Error(), StatusCode: resp.StatusCode()}
		}
	}
	if !env.Status {
		logger.Debug("API request failed", "path", path, "message", env.Message)
		return zero, &APIError{Code: "request_failed", Message: env.Message, StatusCode: resp.StatusCode()}
	}
	return env.Data, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}
