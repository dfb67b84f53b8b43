package cmd

import (
	"github.com/agora-social/agora-cli/pkg/output"
	"github.com/agora-social/agora-cli/pkg/prompter"
	"github.com/agora-social/agora-cli/pkg/service"
	"github.com/spf13/cobra"
)

var loginName string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the user id and relay token to use",
	Long: `Save a user id, display name and relay token so later commands need no
--user or --token flags. Without --token on a terminal the token is read
without echo; an empty token suits a relay running without a JWT secret.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := prompter.Stdio()

		id := service.Identity{UserID: userID, Name: loginName, Token: userToken}
		if id.UserID == "" {
			var err error
			if id.UserID, err = p.PromptString("User id: "); err != nil {
				return err
			}
		}
		if id.Token == "" && p.IsTerminal() {
			token, err := p.PromptPassword("Relay token (empty for none): ")
			if err != nil {
				return err
			}
			id.Token = token
		}

		creds, err := service.Login(id)
		if err != nil {
			return err
		}

		output.PrintSuccess("Logged in as %s", creds.UserID)
		if !creds.ExpiresAt.IsZero() {
			output.PrintInfo("Token expires %s", creds.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved user and token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := service.Logout()
		if err != nil {
			return err
		}
		if user == "" {
			output.PrintInfo("Not logged in")
			return nil
		}
		output.PrintSuccess("Logged out %s", user)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginName, "name", "", "Display name shown to people you call")
}
