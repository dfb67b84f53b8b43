package cmd

import (
	"fmt"
	"runtime"

	"github.com/agora-social/agora-cli/pkg/client"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cmd.Version=...".
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Agora CLI v%s (%s, %s/%s)\n", Version, client.UserAgent, runtime.GOOS, runtime.GOARCH)
	},
}
