package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/agora-social/agora-cli/pkg/api"
	"github.com/agora-social/agora-cli/pkg/call"
	"github.com/agora-social/agora-cli/pkg/feed"
	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestRelative(t *testing.T) {
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
		{time.Time{}, ""},
	}

	for _, tt := range tests {
		if got := Relative(tt.at, now); got != tt.want {
			t.Errorf("Relative(%v): got %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestMessageLineFallsBackToSenderID(t *testing.T) {
	at := time.Date(2026, 5, 2, 9, 30, 0, 0, time.Local)

	got := MessageLine(feed.Message{SenderID: "u2", Content: "hi", CreatedAt: at})
	if got != "[09:30] u2: hi" {
		t.Errorf("got %q", got)
	}

	got = MessageLine(feed.Message{SenderID: "u1", Sender: feed.SelfLabel, Content: "yo", CreatedAt: at, Mine: true})
	if got != "[09:30] You: yo" {
		t.Errorf("got %q", got)
	}
}

func TestHistoryLinesOldestFirst(t *testing.T) {
	day1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	day2 := day1.Add(24 * time.Hour)
	h := feed.History{
		Dates: []string{"2026-05-02", "2026-05-01"},
		Days: map[string][]feed.Message{
			"2026-05-02": {
				{Sender: "bob", Content: "third", CreatedAt: day2.Add(time.Hour)},
				{Sender: "bob", Content: "second", CreatedAt: day2},
			},
			"2026-05-01": {
				{Sender: "bob", Content: "first", CreatedAt: day1},
			},
		},
	}

	lines := HistoryLines(h)
	if len(lines) != 5 {
		t.Fatalf("Expected 5 lines, got %q", lines)
	}
	if !strings.Contains(lines[0], "2026-05-01") || !strings.HasSuffix(lines[1], "first") {
		t.Errorf("Expected oldest day first, got %q", lines)
	}
	if !strings.HasSuffix(lines[3], "second") || !strings.HasSuffix(lines[4], "third") {
		t.Errorf("Expected oldest message first within a day, got %q", lines)
	}
}

func TestNotificationLine(t *testing.T) {
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	n := feed.Notification{Type: "like", Message: "bob liked your post", CreatedAt: now.Add(-2 * time.Minute)}

	got := NotificationLine(n, now)
	if got != "● [like] bob liked your post (2m ago)" {
		t.Errorf("got %q", got)
	}

	n.Read = true
	if got := NotificationLine(n, now); !strings.HasPrefix(got, "  [like]") {
		t.Errorf("Expected no unread marker, got %q", got)
	}
}

func TestConversationRow(t *testing.T) {
	c := feed.Conversation{
		ID:             "c1",
		Participant:    api.Participant{ID: "u2"},
		LastMessage:    "line one\nline two",
		LastSenderName: "You",
		UnreadCount:    3,
	}

	row := ConversationRow(c)
	want := []string{"c1", "u2", "You: line one line two", "3"}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d: got %q, want %q", i, row[i], want[i])
		}
	}

	c.LastMessage = strings.Repeat("x", 80)
	c.UnreadCount = 0
	row = ConversationRow(c)
	if len([]rune(row[2])) != 48 || row[3] != "" {
		t.Errorf("Expected truncated preview and no unread count, got %q", row)
	}
}

func TestCallStatus(t *testing.T) {
	s := call.Session{
		SenderID:     "alice",
		SenderName:   "Alice",
		ReceiverID:   "bob",
		ReceiverName: "Bob",
		IsVideoCall:  true,
		Initiator:    true,
		Phase:        call.PhaseRinging,
	}

	tests := []struct {
		name  string
		edit  func(*call.Session)
		local string
		want  string
	}{
		{"outgoing ringing", func(*call.Session) {}, "alice", "Calling Bob (video)..."},
		{"incoming ringing", func(s *call.Session) { s.Initiator = false; s.IsVideoCall = false }, "bob", "Incoming audio call from Alice"},
		{"active", func(s *call.Session) { s.Phase = call.PhaseActive }, "alice", "In video call with Bob"},
		{"ended", func(s *call.Session) { s.Phase = call.PhaseEnded; s.EndReason = call.EndRemoteHangup }, "alice", "Call with Bob ended (remote-hangup)"},
		{"idle", func(s *call.Session) { s.Phase = call.PhaseIdle }, "alice", "No active call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := s
			tt.edit(&c)
			if got := CallStatus(c, tt.local); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
