package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agora-social/agora-cli/pkg/channel"
	"github.com/agora-social/agora-cli/pkg/client"
	"github.com/agora-social/agora-cli/pkg/config"
	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/agora-social/agora-cli/pkg/output"
	"github.com/agora-social/agora-cli/pkg/service"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	outputFmt  string
	userID     string
	userToken  string
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Agora CLI - calls, chat and notifications from the terminal",
	Long: `Agora CLI talks to the Agora realtime relay and REST API.
Place and answer audio/video calls, chat in direct conversations and
follow your notifications live, or run the relay itself.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		logger.Init(verbose)

		if cmd.Flags().Changed("output") {
			if !output.ValidateOutputFormat(outputFmt) {
				return clierrors.ValidationError("output", "must be one of text, json, table")
			}
			config.Set("output.format", outputFmt)
		}
		if userID != "" {
			config.Set("user.id", userID)
		}
		if userToken != "" {
			config.Set("user.token", userToken)
		}

		client.Init()
		return nil
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so calls hang up and streams stop cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	service.Disconnect()
	if err != nil {
		fmt.Fprint(os.Stderr, clierrors.FormatError(err))
		stop()
		os.Exit(1)
	}
}

// openChannel resolves the configured user and connects them to the relay.
func openChannel(cmd *cobra.Command) (channel.Channel, service.Identity, error) {
	id, err := service.IdentityFromSettings()
	if err != nil {
		return nil, id, err
	}
	logger.Debug("Acting as user", "user_id", id.UserID)
	ch, err := service.Connect(cmd.Context(), id)
	return ch, id, err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/agora/cli/config.toml)")
	rootCmd.PersistentFlags().StringVar(&outputFmt, "output", "text", "Output format: text, json, table")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User id to act as (default: user.id from config)")
	rootCmd.PersistentFlags().StringVar(&userToken, "token", "", "Relay/API token (default: user.token from config)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(versionCmd)
}
