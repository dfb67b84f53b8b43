// Package feed keeps the conversation list, the open conversation's history
// and the notification feed consistent with pushed channel events.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agora-social/agora-cli/pkg/api"
	"github.com/agora-social/agora-cli/pkg/channel"
	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/google/uuid"
)

// DefaultPageSize is used when Config.PageSize is not positive.
const DefaultPageSize = 20

// ErrNotOpen is returned by FetchPage for a conversation that is not open.
var ErrNotOpen = errors.New("conversation is not open")

// Backend is the REST side of the reconciler. *api.Client satisfies it.
type Backend interface {
	Conversations(ctx context.Context, page, limit int) ([]api.Conversation, error)
	Messages(ctx context.Context, conversationID string, page, limit int) ([]api.Message, error)
	Notifications(ctx context.Context, page, limit int) ([]api.Notification, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*api.Message, error)
	MarkNotificationsRead(ctx context.Context) error
}

// Config wires a Reconciler.
type Config struct {
	// LocalUserID defaults to Channel.UserID().
	LocalUserID string
	Channel     channel.Channel
	Backend     Backend
	PageSize    int
	// Location places messages on calendar days. Defaults to time.Local.
	Location *time.Location
}

// ChangeKind tells OnChange listeners which view is stale.
type ChangeKind int

const (
	ConversationsChanged ChangeKind = iota
	MessagesChanged
	NotificationsChanged
)

func (k ChangeKind) String() string {
	switch k {
	case ConversationsChanged:
		return "conversations"
	case MessagesChanged:
		return "messages"
	case NotificationsChanged:
		return "notifications"
	}
	return "unknown"
}

// History is a point-in-time copy of the open conversation.
type History struct {
	ConversationID string
	Dates          []string
	Days           map[string][]Message
	HasMore        bool
	PagesFetched   int
}

// Reconciler merges fetched pages and pushed events into in-memory caches.
// All methods are safe for concurrent use; fetches run outside the lock and
// are merged when they complete.
type Reconciler struct {
	localID  string
	ch       channel.Channel
	backend  Backend
	pageSize int
	loc      *time.Location

	mu            sync.Mutex
	conversations *ConversationCache
	notifications *NotificationFeed
	openID        string
	openGen       uint64
	pages         *MessagePages

	cbMu     sync.RWMutex
	onChange func(ChangeKind)
}

// NewReconciler validates cfg and returns a reconciler with empty caches.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Channel == nil {
		return nil, clierrors.ValidationError("channel", "is required")
	}
	if cfg.Backend == nil {
		return nil, clierrors.ValidationError("backend", "is required")
	}
	localID := cfg.LocalUserID
	if localID == "" {
		localID = cfg.Channel.UserID()
	}
	if localID == "" {
		return nil, clierrors.ValidationError("user", "local user id is required")
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Reconciler{
		localID:       localID,
		ch:            cfg.Channel,
		backend:       cfg.Backend,
		pageSize:      pageSize,
		loc:           loc,
		conversations: NewConversationCache(),
		notifications: NewNotificationFeed(),
	}, nil
}

// PageSize is the limit sent with every list request.
func (r *Reconciler) PageSize() int { return r.pageSize }

// OnChange sets the callback run after every cache mutation.
func (r *Reconciler) OnChange(fn func(ChangeKind)) {
	r.cbMu.Lock()
	r.onChange = fn
	r.cbMu.Unlock()
}

// Attach listens for chat messages and notifications. Closing the returned
// scope removes exactly the listeners added here.
func (r *Reconciler) Attach() *channel.Scope {
	scope := channel.NewScope(r.ch)
	scope.On(channel.EventChatMessage, r.HandleEvent)
	scope.On(channel.EventNotify, r.HandleEvent)
	return scope
}

// Open makes id the conversation whose history is tracked. Reopening the
// current conversation keeps its pages.
func (r *Reconciler) Open(id string) {
	r.mu.Lock()
	if r.openID == id && r.pages != nil {
		r.mu.Unlock()
		return
	}
	r.openID = id
	r.openGen++
	r.pages = NewMessagePages(r.pageSize, r.loc)
	r.conversations.MarkRead(id)
	r.mu.Unlock()

	logger.Debug("Conversation opened", "conversation_id", id)
	r.notify(MessagesChanged)
}

// CloseConversation drops the open conversation's history.
func (r *Reconciler) CloseConversation() {
	r.mu.Lock()
	r.openID = ""
	r.openGen++
	r.pages = nil
	r.mu.Unlock()

	r.notify(MessagesChanged)
}

// FetchPage loads one page of the open conversation. A failure leaves the
// cached pages and HasMore as they were. A page that completes after the
// conversation was closed or switched is dropped.
func (r *Reconciler) FetchPage(ctx context.Context, conversationID string, page int) error {
	r.mu.Lock()
	if conversationID == "" || conversationID != r.openID {
		r.mu.Unlock()
		return clierrors.NewCLIError(clierrors.ErrorTypeValidation, "Open the conversation before fetching its history", ErrNotOpen)
	}
	gen := r.openGen
	r.mu.Unlock()

	msgs, err := r.backend.Messages(ctx, conversationID, page, r.pageSize)
	if err != nil {
		logger.Warn("Message page fetch failed", "conversation_id", conversationID, "page", page, "error", err)
		return clierrors.FetchError("messages", page, err)
	}

	converted := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		converted = append(converted, r.fromAPI(m))
	}

	r.mu.Lock()
	if gen != r.openGen {
		r.mu.Unlock()
		logger.Debug("Dropping page for closed conversation", "conversation_id", conversationID, "page", page)
		return nil
	}
	r.pages.AppendPage(converted)
	r.mu.Unlock()

	r.notify(MessagesChanged)
	return nil
}

// FetchConversations loads one page of the conversation list.
func (r *Reconciler) FetchConversations(ctx context.Context, page int) error {
	convs, err := r.backend.Conversations(ctx, page, r.pageSize)
	if err != nil {
		logger.Warn("Conversation page fetch failed", "page", page, "error", err)
		return clierrors.FetchError("conversations", page, err)
	}

	converted := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		entry := Conversation{
			ID:             c.ID,
			Participant:    c.Participant,
			LastMessage:    c.LastMessage,
			LastSenderID:   c.LastSenderID,
			LastSenderName: r.label(c.LastSenderID, c.LastSenderName),
			UnreadCount:    c.UnreadCount,
			UpdatedAt:      c.UpdatedAt,
		}
		converted = append(converted, entry)
	}

	r.mu.Lock()
	r.conversations.Merge(converted, r.pageSize)
	r.mu.Unlock()

	r.notify(ConversationsChanged)
	return nil
}

// FetchNotifications loads one page of notifications.
func (r *Reconciler) FetchNotifications(ctx context.Context, page int) error {
	list, err := r.backend.Notifications(ctx, page, r.pageSize)
	if err != nil {
		logger.Warn("Notification page fetch failed", "page", page, "error", err)
		return clierrors.FetchError("notifications", page, err)
	}

	converted := make([]Notification, 0, len(list))
	for _, n := range list {
		converted = append(converted, Notification(n))
	}

	r.mu.Lock()
	r.notifications.AppendPage(converted, r.pageSize)
	r.mu.Unlock()

	r.notify(NotificationsChanged)
	return nil
}

// HandleEvent applies a pushed event. Events other than chat messages and
// notifications are ignored.
func (r *Reconciler) HandleEvent(ev channel.Event) {
	switch ev := ev.(type) {
	case channel.ChatMessage:
		r.applyMessage(ev)
	case channel.Notify:
		r.mu.Lock()
		r.notifications.Prepend(Notification(ev))
		r.mu.Unlock()
		r.notify(NotificationsChanged)
	}
}

// applyMessage updates the list entry unconditionally and the history only
// when the message belongs to the open conversation.
func (r *Reconciler) applyMessage(ev channel.ChatMessage) {
	if ev.ConversationID == "" {
		logger.Warn("Chat message without conversation", "message_id", ev.ID)
		return
	}
	msg := r.fromEvent(ev)

	r.mu.Lock()
	open := ev.ConversationID == r.openID && r.pages != nil
	unread := !open && !msg.Mine
	r.conversations.Touch(ev.ConversationID, ev.Content, ev.SenderID, msg.Sender, msg.CreatedAt, unread)
	if open {
		r.pages.Prepend(msg)
	}
	r.mu.Unlock()

	r.notify(ConversationsChanged)
	if open {
		r.notify(MessagesChanged)
	}
}

// Send pushes a message to receiverID, persists it and applies it locally.
// A persistence failure is returned after the local apply, since the
// receiver already has the message.
func (r *Reconciler) Send(ctx context.Context, conversationID, receiverID, content string) (Message, error) {
	if conversationID == "" || receiverID == "" {
		return Message{}, clierrors.ValidationError("message", "conversation and receiver are required")
	}
	if content == "" {
		return Message{}, clierrors.ValidationError("content", "must not be empty")
	}

	ev := channel.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       r.localID,
		ReceiverID:     receiverID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.ch.Emit(ev); err != nil {
		return Message{}, clierrors.ChannelError("Failed to send message", err)
	}

	_, persistErr := r.backend.SendMessage(ctx, api.SendMessageRequest{
		ID:             ev.ID,
		ConversationID: conversationID,
		ReceiverID:     receiverID,
		Content:        content,
	})
	if persistErr != nil {
		logger.Warn("Message delivered but not persisted", "message_id", ev.ID, "error", persistErr)
	}

	r.applyMessage(ev)
	if persistErr != nil {
		return r.fromEvent(ev), clierrors.CategorizeError(persistErr)
	}
	return r.fromEvent(ev), nil
}

// MarkNotificationsRead marks every notification read on the server, then
// in the cache.
func (r *Reconciler) MarkNotificationsRead(ctx context.Context) error {
	if err := r.backend.MarkNotificationsRead(ctx); err != nil {
		return clierrors.CategorizeError(err)
	}
	r.mu.Lock()
	r.notifications.MarkAllRead()
	r.mu.Unlock()
	r.notify(NotificationsChanged)
	return nil
}

// OpenConversation returns the id of the open conversation, if any.
func (r *Reconciler) OpenConversation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openID
}

// History copies the open conversation's pages.
func (r *Reconciler) History() History {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pages == nil {
		return History{HasMore: true}
	}
	return History{
		ConversationID: r.openID,
		Dates:          r.pages.Dates(),
		Days:           r.pages.Groups(),
		HasMore:        r.pages.HasMore(),
		PagesFetched:   r.pages.PagesFetched(),
	}
}

// Conversations copies the conversation list.
func (r *Reconciler) Conversations() []Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversations.List()
}

// ConversationsHasMore reports whether another conversation page exists.
func (r *Reconciler) ConversationsHasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversations.HasMore()
}

// Notifications copies the notification feed.
func (r *Reconciler) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifications.Items()
}

// NotificationsHasMore reports whether another notification page exists.
func (r *Reconciler) NotificationsHasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifications.HasMore()
}

// UnreadNotifications counts unread cached notifications.
func (r *Reconciler) UnreadNotifications() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifications.Unread()
}

func (r *Reconciler) label(senderID, name string) string {
	if senderID == r.localID {
		return SelfLabel
	}
	return name
}

func (r *Reconciler) fromEvent(ev channel.ChatMessage) Message {
	return Message{
		ID:             ev.ID,
		ConversationID: ev.ConversationID,
		SenderID:       ev.SenderID,
		Sender:         r.label(ev.SenderID, ev.SenderName),
		SenderAvatar:   ev.SenderAvatar,
		ReceiverID:     ev.ReceiverID,
		Content:        ev.Content,
		CreatedAt:      ev.CreatedAt,
		Mine:           ev.SenderID == r.localID,
	}
}

func (r *Reconciler) fromAPI(m api.Message) Message {
	return r.fromEvent(channel.ChatMessage(m))
}

func (r *Reconciler) notify(kind ChangeKind) {
	r.cbMu.RLock()
	fn := r.onChange
	r.cbMu.RUnlock()
	if fn != nil {
		fn(kind)
	}
}
