package relay

import (
	"context"
	"sync"
	"time"

	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/coder/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

// rateLimiter is a token bucket refilled at perSecond up to burst.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	maxTokens float64
	refill    float64
	last      time.Time
}

func newRateLimiter(perSecond, burst int) *rateLimiter {
	return &rateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(perSecond),
		last:      time.Now(),
	}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.tokens += now.Sub(r.last).Seconds() * r.refill
	r.last = now
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	if r.tokens < 1 {
		return false
	}
	r.tokens--
	return true
}

// client is one accepted channel connection.
type client struct {
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	limiter *rateLimiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, userID string, ratePerSecond int) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBufferSize),
		limiter: newRateLimiter(ratePerSecond, 2*ratePerSecond),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// enqueue hands frame to the write pump without blocking.
func (c *client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}

// readPump hands every frame to handle until the connection fails or the
// client is closed. Frames over the rate limit are dropped.
func (c *client) readPump(handle func(*client, []byte), dropped func()) {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || c.ctx.Err() != nil {
				logger.Debug("Read loop ended", "user", c.userID)
			} else {
				logger.Warn("Read error", "user", c.userID, "error", err)
			}
			return
		}
		if !c.limiter.allow() {
			dropped()
			continue
		}
		handle(c, data)
	}
}

// writePump drains the send buffer and pings the peer until the client is
// closed, then closes the socket.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "closing")
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				logger.Warn("Write error", "user", c.userID, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				logger.Warn("Ping failed", "user", c.userID, "error", err)
				c.close()
				return
			}
		}
	}
}
