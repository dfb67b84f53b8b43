package channel

import (
	"time"

	"github.com/agora-social/agora-cli/pkg/config"
)

// Config holds channel client configuration
type Config struct {
	URL                  string
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int // negative means unlimited
}

// DefaultConfig returns a development configuration
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:8788/ws",
		ConnectTimeout:       15 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseDelay:   2 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: -1,
	}
}

// ConfigFromSettings reads the ws.* keys from the loaded configuration.
func ConfigFromSettings() Config {
	cfg := DefaultConfig()
	if url := config.GetString("ws.url"); url != "" {
		cfg.URL = url
	}
	if ms := config.GetInt("ws.connect_timeout_ms"); ms > 0 {
		cfg.ConnectTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms := config.GetInt("ws.heartbeat_interval_ms"); ms > 0 {
		cfg.HeartbeatInterval = time.Duration(ms) * time.Millisecond
	}
	if ms := config.GetInt("ws.reconnect_base_delay_ms"); ms > 0 {
		cfg.ReconnectBaseDelay = time.Duration(ms) * time.Millisecond
	}
	if ms := config.GetInt("ws.reconnect_max_delay_ms"); ms > 0 {
		cfg.ReconnectMaxDelay = time.Duration(ms) * time.Millisecond
	}
	cfg.MaxReconnectAttempts = config.GetInt("ws.max_reconnect_attempts")
	return cfg
}
