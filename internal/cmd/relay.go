package cmd

import (
	"os"

	"github.com/agora-social/agora-cli/internal/relay"
	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/agora-social/agora-cli/pkg/output"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	relayAddr  string
	relayRedis string
	relayDebug bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run or administer the realtime relay",
}

var relayServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the signaling/event channel",
	Long: `Accept websocket connections on /ws and route call signaling, chat
messages and notifications between connected users. With relay.redis_url
set, several relays share deliveries over Redis pub/sub.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := log.InfoLevel
		if verbose || relayDebug {
			level = log.DebugLevel
		}
		// the relay is a foreground server, so it logs to stderr
		logger.InitWriter(os.Stderr, level)

		cfg := relay.ConfigFromSettings()
		if relayAddr != "" {
			cfg.Addr = relayAddr
		}
		if relayRedis != "" {
			cfg.RedisURL = relayRedis
		}
		cfg.Debug = relayDebug

		var bus relay.Bus
		if cfg.RedisURL != "" {
			rb, err := relay.NewRedisBus(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return clierrors.NewCLIError(clierrors.ErrorTypeConnection, "Could not connect to Redis", err).
					WithSuggestion("Check relay.redis_url or run without it for a single relay")
			}
			bus = rb
		}

		return relay.New(cfg, bus).Run(cmd.Context())
	},
}

var relayTokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Sign a relay token for a user",
	Long:  "Sign an HMAC JWT with relay.jwt_secret that authenticates user-id on the relay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := relay.ConfigFromSettings()
		if cfg.JWTSecret == "" {
			return clierrors.ValidationError("relay.jwt_secret", "is not set; the relay accepts user ids as tokens")
		}
		token, err := relay.NewAuthenticator(cfg.JWTSecret).Sign(args[0])
		if err != nil {
			return err
		}
		output.Line("%s", token)
		return nil
	},
}

func init() {
	relayServeCmd.Flags().StringVar(&relayAddr, "addr", "", "Listen address (default: relay.addr)")
	relayServeCmd.Flags().StringVar(&relayRedis, "redis", "", "Redis URL for multi-instance delivery (default: relay.redis_url)")
	relayServeCmd.Flags().BoolVar(&relayDebug, "debug", false, "Debug logging and gin debug mode")

	relayCmd.AddCommand(relayServeCmd)
	relayCmd.AddCommand(relayTokenCmd)
}
