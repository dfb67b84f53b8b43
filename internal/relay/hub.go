package relay

import (
	"sync"

	"github.com/agora-social/agora-cli/pkg/channel"
	"github.com/agora-social/agora-cli/pkg/logger"
)

// Hub tracks open connections by user id. A user may hold several.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	metrics *Metrics
}

func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		metrics: metrics,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()

	h.metrics.TotalConnections.Inc()
	h.metrics.ActiveConnections.Inc()
	logger.Info("Client connected", "user", c.userID, "connections", h.ConnectionCount(c.userID))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if ok {
		if _, ok = conns[c]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		h.metrics.ActiveConnections.Dec()
		logger.Info("Client disconnected", "user", c.userID)
	}
}

// Deliver queues frame on every connection of userID and returns how many
// accepted it. Connections with a full buffer are closed. An incoming call
// rings every connection; the others stop ringing only when the caller
// hangs up.
func (h *Hub) Deliver(userID string, name channel.EventName, frame []byte) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.metrics.EventsDropped.WithLabelValues("offline").Inc()
		logger.Debug("Recipient offline", "user", userID, "event", name)
		return 0
	}

	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
			h.metrics.EventsDelivered.WithLabelValues(string(name)).Inc()
			continue
		}
		h.metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
		logger.Warn("Send buffer full, closing connection", "user", userID)
		c.close()
	}
	return delivered
}

// IsUserOnline reports whether userID has an open connection.
func (h *Hub) IsUserOnline(userID string) bool {
	return h.ConnectionCount(userID) > 0
}

func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// OnlineUsers lists users with at least one connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.clients))
	for id := range h.clients {
		users = append(users, id)
	}
	return users
}

// closeAll closes every connection, used on shutdown.
func (h *Hub) closeAll() {
	h.mu.RLock()
	var all []*client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
}
