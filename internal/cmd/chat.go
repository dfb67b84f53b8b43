package cmd

import (
	"github.com/agora-social/agora-cli/pkg/api"
	"github.com/agora-social/agora-cli/pkg/prompter"
	"github.com/agora-social/agora-cli/pkg/service"
	"github.com/spf13/cobra"
)

var (
	chatWith  string
	chatPage  int
	chatPages int
)

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Chat in a conversation",
	Long: `Open a direct conversation, print its recent history and send each line
you type. Messages pushed by the other participant appear as they arrive.

Type /more to load older messages and /quit to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newChatService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.Chat(cmd.Context(), args[0], chatWith, prompter.Stdio())
	},
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newChatService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.ListConversations(cmd.Context(), chatPage)
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Print a conversation's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newChatService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.History(cmd.Context(), args[0], chatPages)
	},
}

func newChatService(cmd *cobra.Command) (*service.ChatService, error) {
	ch, _, err := openChannel(cmd)
	if err != nil {
		return nil, err
	}
	return service.NewChatService(ch, api.Default())
}

func init() {
	chatCmd.Flags().StringVar(&chatWith, "with", "", "User id of the other participant (required)")
	_ = chatCmd.MarkFlagRequired("with")

	chatListCmd.Flags().IntVar(&chatPage, "page", 1, "Page number")
	chatHistoryCmd.Flags().IntVar(&chatPages, "pages", 1, "Number of pages to load")

	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatHistoryCmd)
}
