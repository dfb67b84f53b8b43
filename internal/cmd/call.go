package cmd

import (
	"github.com/agora-social/agora-cli/pkg/call"
	"github.com/agora-social/agora-cli/pkg/prompter"
	"github.com/agora-social/agora-cli/pkg/service"
	"github.com/spf13/cobra"
)

var (
	callVideo    bool
	callName     string
	callMyName   string
	listenAccept bool
)

var callCmd = &cobra.Command{
	Use:   "call <user-id>",
	Short: "Call a user",
	Long: `Ring a user over the relay and connect an audio call, or an audio and
video call with --video. The call runs until either side hangs up; press
Ctrl+C to hang up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, id, err := openChannel(cmd)
		if err != nil {
			return err
		}

		svc, err := service.NewCallService(ch, prompter.Stdio())
		if err != nil {
			return err
		}
		defer svc.Close()

		myName := callMyName
		if myName == "" {
			myName = id.Name
		}
		_, err = svc.Place(cmd.Context(), call.DialRequest{
			ReceiverID:   args[0],
			ReceiverName: callName,
			SenderName:   myName,
			IsVideoCall:  callVideo,
		})
		return err
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Wait for incoming calls",
	Long:  "Stay connected to the relay and answer incoming calls as they ring",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, _, err := openChannel(cmd)
		if err != nil {
			return err
		}

		svc, err := service.NewCallService(ch, prompter.Stdio())
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.Listen(cmd.Context(), listenAccept)
	},
}

func init() {
	callCmd.Flags().BoolVar(&callVideo, "video", false, "Start a video call (camera and microphone)")
	callCmd.Flags().StringVar(&callName, "name", "", "Display name of the user being called")
	callCmd.Flags().StringVar(&callMyName, "as", "", "Your display name (default: user.name or the saved login)")

	listenCmd.Flags().BoolVarP(&listenAccept, "yes", "y", false, "Accept every incoming call without asking")
}
