package service

import (
	"context"

	"github.com/agora-social/agora-cli/pkg/channel"
	"github.com/agora-social/agora-cli/pkg/client"
	"github.com/agora-social/agora-cli/pkg/config"
	"github.com/agora-social/agora-cli/pkg/credentials"
	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/logger"
)

// Identity is the user the CLI acts for.
type Identity struct {
	UserID string
	Name   string
	Token  string
}

// IdentityFromSettings reads user.id, user.name and user.token, falling
// back to the credentials saved by "agora login". The token may be empty
// against a relay running without a JWT secret.
func IdentityFromSettings() (Identity, error) {
	id := Identity{
		UserID: config.GetString("user.id"),
		Name:   config.GetString("user.name"),
		Token:  config.GetString("user.token"),
	}
	if id.UserID != "" {
		return id, nil
	}

	creds, err := credentials.Load()
	if err != nil {
		logger.Warn("Failed to read saved credentials", "error", err)
	}
	if creds == nil {
		return id, clierrors.ValidationError("user", "no user id configured").
			WithSuggestion("Run 'agora login --user <id>', pass --user or set AGORA_USER_ID")
	}
	if !creds.IsValid() {
		return id, clierrors.AuthError("Saved relay token has expired").
			WithSuggestion("Run 'agora login' again with a fresh token")
	}

	id.UserID = creds.UserID
	if id.Name == "" {
		id.Name = creds.Name
	}
	if id.Token == "" {
		id.Token = creds.Token
	}
	return id, nil
}

// Login saves id for later commands and returns what was stored.
func Login(id Identity) (*credentials.Credentials, error) {
	if id.UserID == "" {
		return nil, clierrors.ValidationError("user", "a user id is required")
	}
	creds := credentials.New(id.UserID, id.Name, id.Token)
	if creds.IsExpired() {
		return nil, clierrors.AuthError("Token has already expired")
	}
	if err := credentials.Save(creds); err != nil {
		return nil, err
	}
	logger.Info("Logged in", "user_id", id.UserID)
	return creds, nil
}

// Logout forgets the saved identity. Closing the registry channel only has
// an effect when Logout runs in the process that opened it; a fresh
// "agora logout" process has none open.
func Logout() (string, error) {
	creds, err := credentials.Load()
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", nil
	}
	channel.Default().Logout(creds.UserID)
	if err := credentials.Delete(); err != nil {
		return "", err
	}
	return creds.UserID, nil
}

// Connect opens the realtime channel for id through the shared registry and
// authenticates the REST client with the same token.
func Connect(ctx context.Context, id Identity) (channel.Channel, error) {
	client.SetAuthToken(id.Token)

	ch, err := channel.Default().Acquire(ctx, id.UserID, id.Token)
	if err != nil {
		logger.Error("Failed to open channel", "user_id", id.UserID, "error", err)
		return nil, clierrors.ChannelError("Could not connect to the relay", err).
			WithSuggestion("Check ws.url and that the relay is running")
	}
	return ch, nil
}

// Disconnect closes every channel opened by Connect.
func Disconnect() {
	channel.Default().CloseAll()
}
