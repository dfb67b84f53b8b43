package client

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/agora-social/agora-cli/pkg/config"
)

// TestGetClientSingleton validates that GetClient returns same instance
func TestGetClientSingleton(t *testing.T) {
	httpClient = nil

	client1 := GetClient()
	client2 := GetClient()

	if client1 == nil {
		t.Fatal("GetClient should not return nil")
	}
	if client1 != client2 {
		t.Error("GetClient should return same instance")
	}
}

// TestInitReadsConfig validates base URL and timeout come from configuration
func TestInitReadsConfig(t *testing.T) {
	t.Setenv("AGORA_API_BASE_URL", "https://api.agora.example")
	t.Setenv("AGORA_API_TIMEOUT", "7")
	if err := config.Init(filepath.Join(t.TempDir(), "config.toml")); err != nil {
		t.Fatalf("config init: %v", err)
	}

	httpClient = nil
	c := GetClient()

	if c.BaseURL != "https://api.agora.example" {
		t.Errorf("Expected base URL from config, got %s", c.BaseURL)
	}
	if c.GetClient().Timeout != 7*time.Second {
		t.Errorf("Expected 7s timeout, got %v", c.GetClient().Timeout)
	}
}

// TestNewSendsHeaders validates the User-Agent and bearer token reach the server
func TestNewSendsHeaders(t *testing.T) {
	var gotAgent, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	c.SetAuthToken("tok-123")

	if _, err := c.R().Get("/ping"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if gotAgent != UserAgent {
		t.Errorf("Expected User-Agent %s, got %s", UserAgent, gotAgent)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Expected bearer token, got %q", gotAuth)
	}
}

// TestClearAuthToken validates the token is dropped
func TestClearAuthToken(t *testing.T) {
	httpClient = nil
	SetAuthToken("test_token")
	if GetClient().Token != "test_token" {
		t.Fatal("token should be set")
	}

	ClearAuthToken()

	if GetClient().Token != "" {
		t.Errorf("Expected empty token after clear, got %q", GetClient().Token)
	}
}

// TestSetAuthTokenIgnoresEmpty validates an empty token is not installed
func TestSetAuthTokenIgnoresEmpty(t *testing.T) {
	httpClient = nil
	SetAuthToken("")

	if GetClient().Token != "" {
		t.Error("empty token should not be set")
	}
}
