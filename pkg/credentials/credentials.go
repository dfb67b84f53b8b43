package credentials

import (
	"errors"
	"os"
	"time"

	"github.com/agora-social/agora-cli/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Credentials is the identity saved by "agora login".
type Credentials struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Token  string `json:"token,omitempty"`
	// ExpiresAt is read from the token's exp claim; zero means no expiry.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// New builds credentials for userID, taking the expiry from token when it
// is a JWT. The signature is not checked here; the relay does that.
func New(userID, name, token string) *Credentials {
	c := &Credentials{UserID: userID, Name: name, Token: token}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			c.ExpiresAt = exp.Time
		}
	}
	return c
}

// Load loads credentials from disk
func Load() (*Credentials, error) {
	data, err := os.ReadFile(config.GetCredentialsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // not logged in
		}
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Save saves credentials to disk
func Save(creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	// Write with restricted permissions (owner read/write only)
	return os.WriteFile(config.GetCredentialsPath(), data, 0600)
}

// Delete deletes credentials from disk. A missing file is not an error.
func Delete() error {
	err := os.Remove(config.GetCredentialsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// IsExpired checks if the token is expired
func (c *Credentials) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// IsValid checks if credentials are usable
func (c *Credentials) IsValid() bool {
	return c.UserID != "" && !c.IsExpired()
}
