package feed

import (
	"time"

	"github.com/agora-social/agora-cli/pkg/api"
)

// Conversation is one cached conversation list entry.
type Conversation struct {
	ID             string
	Participant    api.Participant
	LastMessage    string
	LastSenderID   string
	LastSenderName string
	UnreadCount    int
	UpdatedAt      time.Time
}

// ConversationCache keeps the conversation list in display order.
type ConversationCache struct {
	order   []string
	entries map[string]*Conversation
	hasMore bool
}

func NewConversationCache() *ConversationCache {
	return &ConversationCache{entries: make(map[string]*Conversation), hasMore: true}
}

// Merge applies one fetched page. Known entries are refreshed where they
// are, new ones are appended.
func (c *ConversationCache) Merge(page []Conversation, pageSize int) {
	for _, conv := range page {
		if existing, ok := c.entries[conv.ID]; ok {
			*existing = conv
			continue
		}
		entry := conv
		c.entries[conv.ID] = &entry
		c.order = append(c.order, conv.ID)
	}
	c.hasMore = len(page) >= pageSize
}

// Touch records a new last message for id, updating the entry in place or
// inserting it at the front when the conversation is not cached yet.
func (c *ConversationCache) Touch(id, content, senderID, senderName string, at time.Time, unread bool) {
	entry, ok := c.entries[id]
	if !ok {
		entry = &Conversation{ID: id}
		c.entries[id] = entry
		c.order = append([]string{id}, c.order...)
	}
	entry.LastMessage = content
	entry.LastSenderID = senderID
	entry.LastSenderName = senderName
	entry.UpdatedAt = at
	if unread {
		entry.UnreadCount++
	}
}

// MarkRead clears the unread counter of id.
func (c *ConversationCache) MarkRead(id string) {
	if entry, ok := c.entries[id]; ok {
		entry.UnreadCount = 0
	}
}

// Get returns a copy of the entry for id.
func (c *ConversationCache) Get(id string) (Conversation, bool) {
	entry, ok := c.entries[id]
	if !ok {
		return Conversation{}, false
	}
	return *entry, true
}

func (c *ConversationCache) HasMore() bool { return c.hasMore }

func (c *ConversationCache) Len() int { return len(c.order) }

// List returns copies of the entries in display order.
func (c *ConversationCache) List() []Conversation {
	out := make([]Conversation, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entries[id])
	}
	return out
}
