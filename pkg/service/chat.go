package service

import (
	"context"
	"strings"

	"github.com/agora-social/agora-cli/pkg/channel"
	"github.com/agora-social/agora-cli/pkg/config"
	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/feed"
	"github.com/agora-social/agora-cli/pkg/formatter"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/agora-social/agora-cli/pkg/output"
	"github.com/agora-social/agora-cli/pkg/prompter"
)

// Chat commands typed at the message prompt.
const (
	CommandMore = "/more"
	CommandQuit = "/quit"
)

// feedService owns a reconciler attached to the channel and forwards its
// change notifications to a buffered channel.
type feedService struct {
	rec     *feed.Reconciler
	scope   *channel.Scope
	changes chan feed.ChangeKind
}

func newFeedService(ch channel.Channel, backend feed.Backend) (*feedService, error) {
	rec, err := feed.NewReconciler(feed.Config{
		Channel:  ch,
		Backend:  backend,
		PageSize: config.GetInt("feed.page_size"),
	})
	if err != nil {
		return nil, err
	}

	s := &feedService{rec: rec, changes: make(chan feed.ChangeKind, 64)}
	rec.OnChange(func(k feed.ChangeKind) {
		select {
		case s.changes <- k:
		default:
			// views diff against full state, so the next tick catches up
		}
	})
	s.scope = rec.Attach()
	return s, nil
}

// Reconciler returns the underlying reconciler.
func (s *feedService) Reconciler() *feed.Reconciler {
	return s.rec
}

// Close removes the channel listeners.
func (s *feedService) Close() {
	s.scope.Close()
}

// ChatService lists conversations and runs an interactive conversation.
type ChatService struct {
	*feedService
}

// NewChatService attaches a reconciler for the channel's user.
func NewChatService(ch channel.Channel, backend feed.Backend) (*ChatService, error) {
	fs, err := newFeedService(ch, backend)
	if err != nil {
		return nil, err
	}
	return &ChatService{fs}, nil
}

// ListConversations fetches one page of conversations and prints it.
func (cs *ChatService) ListConversations(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	logger.Debug("Listing conversations", "page", page)

	if err := cs.rec.FetchConversations(ctx, page); err != nil {
		return err
	}

	convs := cs.rec.Conversations()
	if len(convs) == 0 {
		output.PrintInfo("No conversations found")
		return nil
	}

	rows := make([][]string, 0, len(convs))
	for _, c := range convs {
		rows = append(rows, formatter.ConversationRow(c))
	}
	if err := output.PrintList([]string{"ID", "WITH", "LAST MESSAGE", "UNREAD"}, rows, convs); err != nil {
		return err
	}
	if cs.rec.ConversationsHasMore() {
		output.PrintInfo("More conversations: --page %d", page+1)
	}
	return nil
}

// Chat opens conversationID with receiverID, prints its history and then
// streams pushed messages while sending each line read from p. "/more"
// loads an older page and "/quit" leaves.
func (cs *ChatService) Chat(ctx context.Context, conversationID, receiverID string, p *prompter.Prompter) error {
	if conversationID == "" {
		return clierrors.ValidationError("conversation", "a conversation id is required")
	}
	if receiverID == "" {
		return clierrors.ValidationError("with", "the other participant's user id is required")
	}

	cs.rec.Open(conversationID)
	defer cs.rec.CloseConversation()

	if err := cs.rec.FetchPage(ctx, conversationID, 1); err != nil {
		return err
	}

	view := newHistoryView()
	view.printNew(cs.rec.History(), false)
	output.PrintInfo("Type a message and press Enter. %s loads older messages, %s leaves", CommandMore, CommandQuit)

	done := make(chan struct{})
	defer close(done)
	lines := p.Lines(done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case k := <-cs.changes:
			if k == feed.MessagesChanged {
				view.printNew(cs.rec.History(), false)
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case CommandQuit:
				return nil
			case CommandMore:
				cs.loadMore(ctx, conversationID, view)
				continue
			}
			if _, err := cs.rec.Send(ctx, conversationID, receiverID, line); err != nil {
				output.PrintWarning("%s", clierrors.FormatError(err))
			}
		}
	}
}

// History prints the first pages of conversationID without joining it.
func (cs *ChatService) History(ctx context.Context, conversationID string, pages int) error {
	if conversationID == "" {
		return clierrors.ValidationError("conversation", "a conversation id is required")
	}
	if pages < 1 {
		pages = 1
	}

	cs.rec.Open(conversationID)
	defer cs.rec.CloseConversation()

	for page := 1; page <= pages; page++ {
		if err := cs.rec.FetchPage(ctx, conversationID, page); err != nil {
			return err
		}
		if !cs.rec.History().HasMore {
			break
		}
	}

	h := cs.rec.History()
	if output.GetOutputFormat() == output.FormatJSON {
		return output.Print("", h)
	}
	lines := formatter.HistoryLines(h)
	if len(lines) == 0 {
		output.PrintInfo("No messages yet")
		return nil
	}
	for _, line := range lines {
		output.Line("%s", line)
	}
	if h.HasMore {
		output.PrintInfo("Older messages: --pages %d", h.PagesFetched+1)
	}
	return nil
}

func (cs *ChatService) loadMore(ctx context.Context, conversationID string, view *historyView) {
	h := cs.rec.History()
	if !h.HasMore {
		output.PrintInfo("No older messages")
		return
	}
	if err := cs.rec.FetchPage(ctx, conversationID, h.PagesFetched+1); err != nil {
		output.PrintWarning("%s", clierrors.FormatError(err))
		return
	}
	view.printNew(cs.rec.History(), true)
}

// historyView remembers which messages and day headers were printed so
// each change only prints what is new.
type historyView struct {
	seen map[string]bool
	days map[string]bool
}

func newHistoryView() *historyView {
	return &historyView{seen: make(map[string]bool), days: make(map[string]bool)}
}

func (v *historyView) printNew(h feed.History, older bool) int {
	var lines []string
	for i := len(h.Dates) - 1; i >= 0; i-- {
		key := h.Dates[i]
		day := h.Days[key]
		for j := len(day) - 1; j >= 0; j-- {
			m := day[j]
			if m.ID != "" {
				if v.seen[m.ID] {
					continue
				}
				v.seen[m.ID] = true
			}
			if !v.days[key] {
				v.days[key] = true
				lines = append(lines, formatter.DayHeader(key))
			}
			lines = append(lines, formatter.MessageLine(m))
		}
	}
	if len(lines) == 0 {
		return 0
	}

	if older {
		output.PrintInfo("Earlier messages:")
	}
	for _, line := range lines {
		output.Line("%s", line)
	}
	return len(lines)
}
