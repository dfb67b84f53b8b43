// Package formatter renders feed and call state as terminal lines.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/agora-social/agora-cli/pkg/call"
	"github.com/agora-social/agora-cli/pkg/feed"
	"github.com/fatih/color"
)

var (
	Bold    = color.New(color.Bold)
	Faint   = color.New(color.Faint)
	Mine    = color.New(color.FgGreen)
	Unread  = color.New(color.FgCyan, color.Bold)
	Warning = color.New(color.FgYellow)
)

// Clock formats t as a wall clock time.
func Clock(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Local().Format("15:04")
}

// Relative describes how long before now t was.
func Relative(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// DayHeader renders the section header of one date key.
func DayHeader(key string) string {
	return Faint.Sprintf("── %s ──", key)
}

// MessageLine renders one chat message.
func MessageLine(m feed.Message) string {
	sender := m.Sender
	if sender == "" {
		sender = m.SenderID
	}
	if m.Mine {
		sender = Mine.Sprint(sender)
	} else {
		sender = Bold.Sprint(sender)
	}
	return fmt.Sprintf("[%s] %s: %s", Clock(m.CreatedAt), sender, m.Content)
}

// HistoryLines renders a history oldest first, as a terminal scrolls.
func HistoryLines(h feed.History) []string {
	var lines []string
	for i := len(h.Dates) - 1; i >= 0; i-- {
		key := h.Dates[i]
		day := h.Days[key]
		lines = append(lines, DayHeader(key))
		for j := len(day) - 1; j >= 0; j-- {
			lines = append(lines, MessageLine(day[j]))
		}
	}
	return lines
}

// NotificationLine renders one notification.
func NotificationLine(n feed.Notification, now time.Time) string {
	marker := " "
	if !n.Read {
		marker = Unread.Sprint("●")
	}
	line := fmt.Sprintf("%s [%s] %s", marker, n.Type, n.Message)
	if rel := Relative(n.CreatedAt, now); rel != "" {
		line += " " + Faint.Sprintf("(%s)", rel)
	}
	return line
}

// ConversationRow is one table row of the conversation list.
func ConversationRow(c feed.Conversation) []string {
	name := c.Participant.Name
	if name == "" {
		name = c.Participant.ID
	}
	last := c.LastMessage
	if c.LastSenderName != "" {
		last = c.LastSenderName + ": " + last
	}
	unread := ""
	if c.UnreadCount > 0 {
		unread = fmt.Sprintf("%d", c.UnreadCount)
	}
	return []string{c.ID, name, truncate(last, 48), unread}
}

// CallStatus summarizes a session from localID's side.
func CallStatus(s call.Session, localID string) string {
	kind := "audio"
	if s.IsVideoCall {
		kind = "video"
	}
	peer := s.RemoteUserID(localID)
	if s.Initiator && s.ReceiverName != "" {
		peer = s.ReceiverName
	} else if !s.Initiator && s.SenderName != "" {
		peer = s.SenderName
	}

	switch s.Phase {
	case call.PhaseRinging:
		if s.Initiator {
			return fmt.Sprintf("Calling %s (%s)...", peer, kind)
		}
		return fmt.Sprintf("Incoming %s call from %s", kind, peer)
	case call.PhaseConnecting:
		return fmt.Sprintf("Connecting %s call with %s...", kind, peer)
	case call.PhaseActive:
		return fmt.Sprintf("In %s call with %s", kind, peer)
	case call.PhaseEnded:
		if s.EndReason != "" {
			return fmt.Sprintf("Call with %s ended (%s)", peer, s.EndReason)
		}
		return fmt.Sprintf("Call with %s ended", peer)
	}
	return "No active call"
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
