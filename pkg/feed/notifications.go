package feed

import "time"

// Notification is one entry of the notification feed.
type Notification struct {
	ID         string
	Type       string
	Message    string
	SenderID   string
	SenderName string
	Link       string
	Read       bool
	CreatedAt  time.Time
}

// NotificationFeed is newest first. Pushes prepend and fetched pages append.
type NotificationFeed struct {
	items   []Notification
	hasMore bool
}

func NewNotificationFeed() *NotificationFeed {
	return &NotificationFeed{hasMore: true}
}

func (f *NotificationFeed) Prepend(n Notification) {
	f.items = append([]Notification{n}, f.items...)
}

func (f *NotificationFeed) AppendPage(page []Notification, pageSize int) {
	f.items = append(f.items, page...)
	f.hasMore = len(page) >= pageSize
}

// MarkAllRead flags every cached item as read.
func (f *NotificationFeed) MarkAllRead() {
	for i := range f.items {
		f.items[i].Read = true
	}
}

// Unread counts unread items.
func (f *NotificationFeed) Unread() int {
	n := 0
	for _, item := range f.items {
		if !item.Read {
			n++
		}
	}
	return n
}

func (f *NotificationFeed) HasMore() bool { return f.hasMore }

func (f *NotificationFeed) Len() int { return len(f.items) }

// Items returns a copy of the feed.
func (f *NotificationFeed) Items() []Notification {
	return append([]Notification(nil), f.items...)
}
