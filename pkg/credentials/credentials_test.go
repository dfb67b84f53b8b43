package credentials

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agora-social/agora-cli/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

func initConfig(t *testing.T) {
	t.Helper()
	if err := config.Init(filepath.Join(t.TempDir(), "config.toml")); err != nil {
		t.Fatal(err)
	}
}

// TestCredentialsIsExpired validates token expiration check
func TestCredentialsIsExpired(t *testing.T) {
	testCases := []struct {
		expiresAt time.Time
		expect    bool
		name      string
	}{
		{time.Now().Add(-1 * time.Hour), true, "past expiration"},
		{time.Now().Add(1 * time.Hour), false, "future expiration"},
		{time.Now().Add(-1 * time.Minute), true, "recently expired"},
		{time.Time{}, false, "no expiry"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			creds := &Credentials{UserID: "alice", ExpiresAt: tc.expiresAt}
			if got := creds.IsExpired(); got != tc.expect {
				t.Errorf("Expected IsExpired=%v, got %v", tc.expect, got)
			}
		})
	}
}

// TestCredentialsIsValid validates credential validity check
func TestCredentialsIsValid(t *testing.T) {
	testCases := []struct {
		userID    string
		expiresAt time.Time
		expect    bool
		name      string
	}{
		{"alice", time.Now().Add(1 * time.Hour), true, "valid credentials"},
		{"alice", time.Time{}, true, "dev token without expiry"},
		{"", time.Now().Add(1 * time.Hour), false, "empty user id"},
		{"alice", time.Now().Add(-1 * time.Hour), false, "expired token"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			creds := &Credentials{UserID: tc.userID, ExpiresAt: tc.expiresAt}
			if got := creds.IsValid(); got != tc.expect {
				t.Errorf("Expected IsValid=%v, got %v", tc.expect, got)
			}
		})
	}
}

func TestNewReadsJWTExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "alice",
		"exp":     exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	creds := New("alice", "Alice", token)
	if !creds.ExpiresAt.Equal(exp) {
		t.Errorf("Expected expiry %v, got %v", exp, creds.ExpiresAt)
	}

	plain := New("alice", "", "alice")
	if !plain.ExpiresAt.IsZero() {
		t.Errorf("Expected no expiry for a plain token, got %v", plain.ExpiresAt)
	}
}

func TestSaveLoadDelete(t *testing.T) {
	initConfig(t)

	creds, err := Load()
	if err != nil || creds != nil {
		t.Fatalf("Expected no credentials, got %+v, %v", creds, err)
	}

	if err := Save(&Credentials{UserID: "alice", Name: "Alice", Token: "tok"}); err != nil {
		t.Fatal(err)
	}

	creds, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if creds.UserID != "alice" || creds.Name != "Alice" || creds.Token != "tok" {
		t.Errorf("Unexpected credentials: %+v", creds)
	}

	if err := Delete(); err != nil {
		t.Fatal(err)
	}
	if err := Delete(); err != nil {
		t.Errorf("Second delete should be a no-op, got %v", err)
	}
}
