package feed

import (
	"sort"
	"time"
)

// DateLayout formats the keys of a date-grouped history.
const DateLayout = "2006-01-02"

// SelfLabel replaces the sender name of messages written by the local user.
const SelfLabel = "You"

// Message is one entry of a conversation history as rendered.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Sender         string
	SenderAvatar   string
	ReceiverID     string
	Content        string
	CreatedAt      time.Time
	Mine           bool
}

// MessagePages is the date-keyed history of one conversation. Pushed
// messages are prepended to their day and fetched pages are appended, so
// the two never contend for the same insertion point.
type MessagePages struct {
	pageSize int
	loc      *time.Location
	groups   map[string][]Message
	hasMore  bool
	fetched  int
}

// NewMessagePages creates an empty history. Keys are computed in loc, or
// the local zone when loc is nil.
func NewMessagePages(pageSize int, loc *time.Location) *MessagePages {
	if loc == nil {
		loc = time.Local
	}
	return &MessagePages{
		pageSize: pageSize,
		loc:      loc,
		groups:   make(map[string][]Message),
		hasMore:  true,
	}
}

// DateKey returns the grouping key for t. A zero time falls on today.
func (p *MessagePages) DateKey(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.In(p.loc).Format(DateLayout)
}

// Prepend places a pushed message at the head of its day.
func (p *MessagePages) Prepend(m Message) {
	key := p.DateKey(m.CreatedAt)
	list := p.groups[key]
	out := make([]Message, 0, len(list)+1)
	out = append(out, m)
	p.groups[key] = append(out, list...)
}

// AppendPage merges one fetched page, given newest first. Short pages end
// pagination; a full page keeps it open.
func (p *MessagePages) AppendPage(msgs []Message) {
	for _, m := range msgs {
		key := p.DateKey(m.CreatedAt)
		p.groups[key] = append(p.groups[key], m)
	}
	p.fetched++
	p.hasMore = len(msgs) >= p.pageSize
}

// HasMore reports whether another page is worth requesting.
func (p *MessagePages) HasMore() bool { return p.hasMore }

// PagesFetched counts successful AppendPage calls.
func (p *MessagePages) PagesFetched() int { return p.fetched }

// Dates returns the keys, newest day first.
func (p *MessagePages) Dates() []string {
	keys := make([]string, 0, len(p.groups))
	for k := range p.groups {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

// Day returns a copy of the messages filed under key.
func (p *MessagePages) Day(key string) []Message {
	return append([]Message(nil), p.groups[key]...)
}

// Len counts every cached message.
func (p *MessagePages) Len() int {
	n := 0
	for _, list := range p.groups {
		n += len(list)
	}
	return n
}

// Groups returns a deep copy of the date grouping.
func (p *MessagePages) Groups() map[string][]Message {
	out := make(map[string][]Message, len(p.groups))
	for k, list := range p.groups {
		out[k] = append([]Message(nil), list...)
	}
	return out
}
