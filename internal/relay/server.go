// Package relay is the server side of the signaling/event channel. It
// authenticates websocket connections, routes call and chat events to the
// addressed user, and accepts notifications for push delivery.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/agora-social/agora-cli/pkg/channel"
	"github.com/agora-social/agora-cli/pkg/config"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/coder/websocket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 30 * time.Second

// Config holds the relay settings.
type Config struct {
	Addr           string
	JWTSecret      string
	RedisURL       string
	AllowedOrigins []string
	// RateLimit is the sustained number of frames per second accepted from
	// one connection. Bursts of twice that are allowed.
	RateLimit int
	Debug     bool
}

// ConfigFromSettings reads the relay.* keys.
func ConfigFromSettings() Config {
	return Config{
		Addr:           config.GetString("relay.addr"),
		JWTSecret:      config.GetString("relay.jwt_secret"),
		RedisURL:       config.GetString("relay.redis_url"),
		AllowedOrigins: config.GetStringSlice("relay.allowed_origins"),
		RateLimit:      config.GetInt("relay.rate_limit"),
	}
}

// Server wires the hub, the router and an optional bus.
type Server struct {
	cfg     Config
	auth    *Authenticator
	hub     *Hub
	metrics *Metrics
	bus     Bus
	engine  *gin.Engine
}

// New builds a relay. bus may be nil, in which case events are delivered
// only to connections held by this instance.
func New(cfg Config, bus Bus) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := NewMetrics()
	s := &Server{
		cfg:     cfg,
		auth:    NewAuthenticator(cfg.JWTSecret),
		hub:     NewHub(metrics),
		metrics: metrics,
		bus:     bus,
	}
	if s.auth.Insecure() {
		logger.Warn("relay.jwt_secret is empty, tokens are trusted as user ids")
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowedOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "agora-relay",
			"online":    len(s.hub.OnlineUsers()),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	r.GET("/ws", s.handleWebSocket)
	r.POST("/notify/:userID", s.handleNotify)
	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) Authenticator() *Authenticator { return s.auth }

// Run serves until ctx ends, then closes every connection and shuts the
// HTTP server down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	if s.bus != nil {
		go func() {
			if err := s.bus.Subscribe(ctx, func(d Delivery) { s.deliverLocal(d) }); err != nil {
				errCh <- fmt.Errorf("relay bus: %w", err)
			}
		}()
	}
	go func() {
		logger.Info("Relay listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	logger.Info("Relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.hub.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}
	return runErr
}

func (s *Server) handleWebSocket(c *gin.Context) {
	userID, err := s.auth.Authenticate(tokenFrom(c))
	if err != nil {
		logger.Warn("Channel auth failed", "remote", c.ClientIP(), "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  false,
			"message": err.Error(),
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns:     s.cfg.AllowedOrigins,
		InsecureSkipVerify: slices.Contains(s.cfg.AllowedOrigins, "*"),
	})
	if err != nil {
		logger.Warn("Websocket upgrade failed", "user", userID, "error", err)
		return
	}

	cl := newClient(conn, userID, s.cfg.RateLimit)
	s.hub.register(cl)
	defer s.hub.unregister(cl)

	done := make(chan struct{})
	go func() {
		cl.writePump()
		close(done)
	}()
	cl.readPump(s.dispatch, func() {
		s.metrics.EventsDropped.WithLabelValues("rate_limited").Inc()
	})
	<-done
}

// dispatch decodes, routes and forwards one frame read from cl.
func (s *Server) dispatch(cl *client, data []byte) {
	ev, err := channel.Decode(data)
	if err != nil {
		s.metrics.EventsDropped.WithLabelValues("malformed").Inc()
		logger.Warn("Dropping malformed frame", "user", cl.userID, "error", err)
		return
	}
	s.metrics.EventsReceived.WithLabelValues(string(ev.Name())).Inc()

	to, out, err := Route(cl.userID, ev)
	if err != nil {
		s.metrics.EventsDropped.WithLabelValues("unroutable").Inc()
		logger.Debug("Dropping unroutable event", "user", cl.userID, "event", ev.Name(), "error", err)
		return
	}
	s.send(cl.ctx, to, out)
}

// send encodes ev and delivers it to userID, through the bus when there is
// one. It returns the number of local connections reached, or -1 when the
// frame went to the bus.
func (s *Server) send(ctx context.Context, userID string, ev channel.Event) int {
	frame, err := channel.Encode(ev)
	if err != nil {
		logger.Error("Encode failed", "event", ev.Name(), "error", err)
		return 0
	}

	d := Delivery{UserID: userID, Event: ev.Name(), Frame: frame}
	if s.bus != nil {
		err := s.bus.Publish(ctx, d)
		if err == nil {
			return -1
		}
		logger.Warn("Bus publish failed, delivering locally", "error", err)
	}
	return s.deliverLocal(d)
}

func (s *Server) deliverLocal(d Delivery) int {
	return s.hub.Deliver(d.UserID, d.Event, d.Frame)
}

// handleNotify pushes a notification to a user. The body is a notify
// payload; id and createdAt are filled in when absent.
func (s *Server) handleNotify(c *gin.Context) {
	if !s.auth.Insecure() {
		if _, err := s.auth.Authenticate(tokenFrom(c)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"status": false, "message": err.Error()})
			return
		}
	}

	var n channel.Notify
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": false, "message": err.Error()})
		return
	}
	if n.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": false, "message": "message is required"})
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	delivered := s.send(c.Request.Context(), c.Param("userID"), n)
	c.JSON(http.StatusOK, gin.H{
		"status":  true,
		"message": "queued",
		"data":    gin.H{"id": n.ID, "delivered": delivered},
	})
}
