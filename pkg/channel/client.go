package channel

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the server
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the server
	maxMessageSize = 512 * 1024
)

// ErrNotConnected is returned by Emit while no connection is open.
var ErrNotConnected = errors.New("channel not connected")

// Channel is what consumers (call coordinator, feed reconciler) get. It has
// no Close: the connection is shared and only the Registry tears it down.
type Channel interface {
	UserID() string
	Emit(ev Event) error
	On(name EventName, fn Handler) *Subscription
}

// ConnectionState represents the state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	MessagesReceived int64
	MessagesSent     int64
	ReconnectCount   int
	LastError        string
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
}

// Client is a gorilla/websocket connection to the relay for one user.
type Client struct {
	config Config
	userID string
	token  string
	dialer *websocket.Dialer

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	state     atomic.Value // ConnectionState
	listeners *Listeners

	ctx           context.Context
	cancel        context.CancelFunc
	heartbeatOnce sync.Once
	closeOnce     sync.Once

	statsLock sync.RWMutex
	stats     ConnectionStats
}

// NewClient creates a client for userID. Nothing is dialed until Connect.
func NewClient(config Config, userID, token string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:    config,
		userID:    userID,
		token:     token,
		dialer:    &websocket.Dialer{HandshakeTimeout: config.ConnectTimeout, Proxy: http.ProxyFromEnvironment},
		listeners: NewListeners(),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.state.Store(StateDisconnected)
	return c
}

// UserID returns the user the connection is authenticated as.
func (c *Client) UserID() string {
	return c.userID
}

// Connect dials the relay and starts the read and heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateError)
		c.recordError(err.Error())
		return clierrors.ChannelError("failed to connect to realtime channel", err)
	}

	c.setConn(conn)
	c.setState(StateConnected)
	c.recordConnected()

	go c.readLoop(conn)
	c.heartbeatOnce.Do(func() { go c.heartbeatLoop() })

	logger.Debug("Channel connected", "url", c.config.URL, "user_id", c.userID)
	return nil
}

// Close shuts the connection down for good. Only the Registry calls it.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
				time.Now().Add(writeWait))
			c.writeMu.Unlock()
			conn.Close()
		}

		c.setState(StateDisconnected)
		c.recordDisconnected()
		logger.Debug("Channel closed", "user_id", c.userID)
	})
	return nil
}

// IsConnected returns true if the connection is established
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return c.state.Load().(ConnectionState)
}

// On registers fn for name. Handlers run on the read goroutine in the order
// frames arrive, so they must not block.
func (c *Client) On(name EventName, fn Handler) *Subscription {
	return c.listeners.Add(name, fn)
}

// ListenerCount returns the number of handlers registered for name.
func (c *Client) ListenerCount(name EventName) int {
	return c.listeners.Count(name)
}

// Emit sends ev to the relay.
func (c *Client) Emit(ev Event) error {
	conn := c.currentConn()
	if conn == nil {
		return clierrors.ChannelError("cannot emit "+string(ev.Name()), ErrNotConnected)
	}

	data, err := Encode(ev)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.recordError(err.Error())
		return clierrors.ChannelError("failed to emit "+string(ev.Name()), err)
	}

	c.recordMessageSent()
	return nil
}

// GetStats returns connection statistics
func (c *Client) GetStats() ConnectionStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()
	return c.stats
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	readTimeout := c.readTimeout()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.recordError(err.Error())
			logger.Warn("Channel read error", "error", err)
			c.handleDisconnect(conn)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		ev, err := Decode(data)
		if err != nil {
			logger.Warn("Dropping channel frame", "error", err)
			continue
		}

		c.recordMessageReceived()
		c.listeners.Dispatch(ev)
	}
}

func (c *Client) readTimeout() time.Duration {
	if c.config.HeartbeatInterval <= 0 {
		return 2 * time.Minute
	}
	return 2*c.config.HeartbeatInterval + writeWait
}

func (c *Client) heartbeatLoop() {
	if c.config.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			conn := c.currentConn()
			if conn == nil {
				continue
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				logger.Debug("Failed to send heartbeat", "error", err)
			}
		}
	}
}

// handleDisconnect reconnects with exponential backoff and jitter.
// Listeners stay registered across reconnects.
func (c *Client) handleDisconnect(old *websocket.Conn) {
	c.mu.Lock()
	if c.conn == old {
		c.conn = nil
	}
	c.mu.Unlock()
	old.Close()

	c.setState(StateReconnecting)
	c.recordDisconnected()

	attempts := 0
	delay := c.config.ReconnectBaseDelay

	for {
		if c.config.MaxReconnectAttempts >= 0 && attempts >= c.config.MaxReconnectAttempts {
			c.setState(StateError)
			logger.Error("Max reconnection attempts reached", "user_id", c.userID)
			return
		}

		jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
		waitTime := delay + jitter
		logger.Debug("Reconnecting channel", "attempt", attempts+1, "wait_ms", waitTime.Milliseconds())

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(waitTime):
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			attempts++
			delay *= 2
			if delay > c.config.ReconnectMaxDelay {
				delay = c.config.ReconnectMaxDelay
			}
			continue
		}

		c.setConn(conn)
		c.setState(StateConnected)
		c.recordConnected()
		c.statsLock.Lock()
		c.stats.ReconnectCount++
		c.statsLock.Unlock()

		logger.Info("Channel reconnected", "user_id", c.userID)
		go c.readLoop(conn)
		return
	}
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setState(state ConnectionState) {
	c.state.Store(state)
}

func (c *Client) recordMessageReceived() {
	c.statsLock.Lock()
	c.stats.MessagesReceived++
	c.statsLock.Unlock()
}

func (c *Client) recordMessageSent() {
	c.statsLock.Lock()
	c.stats.MessagesSent++
	c.statsLock.Unlock()
}

func (c *Client) recordError(errMsg string) {
	c.statsLock.Lock()
	c.stats.LastError = errMsg
	c.statsLock.Unlock()
}

func (c *Client) recordConnected() {
	c.statsLock.Lock()
	c.stats.ConnectedAt = time.Now()
	c.statsLock.Unlock()
}

func (c *Client) recordDisconnected() {
	c.statsLock.Lock()
	c.stats.DisconnectedAt = time.Now()
	c.statsLock.Unlock()
}
