package channel

import (
	"context"
	"sync"

	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/logger"
)

// Registry owns at most one connection per user. The first Acquire dials;
// later calls reuse the live client.
type Registry struct {
	config Config

	mu      sync.Mutex
	clients map[string]*Client
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// NewRegistry creates an empty registry that dials with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{config: cfg, clients: make(map[string]*Client)}
}

// Default returns the process-wide registry configured from settings.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(ConfigFromSettings())
	})
	return defaultRegistry
}

// Acquire returns the connection for userID, dialing it on first use.
// A failed dial is not cached.
func (r *Registry) Acquire(ctx context.Context, userID, token string) (Channel, error) {
	if userID == "" {
		return nil, clierrors.ValidationError("user", "a user id is required to open the realtime channel")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[userID]; ok {
		return c, nil
	}

	c := NewClient(r.config, userID, token)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	r.clients[userID] = c
	logger.Debug("Channel acquired", "user_id", userID)
	return c, nil
}

// Logout closes and forgets the connection for userID.
func (r *Registry) Logout(userID string) {
	r.mu.Lock()
	c, ok := r.clients[userID]
	delete(r.clients, userID)
	r.mu.Unlock()

	if ok {
		_ = c.Close()
	}
}

// CloseAll closes every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
