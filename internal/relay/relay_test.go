package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agora-social/agora-cli/pkg/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute(t *testing.T) {
	cases := []struct {
		name    string
		ev      channel.Event
		wantTo  string
		wantErr error
		check   func(t *testing.T, out channel.Event)
	}{
		{
			name:   "call offer becomes incoming call",
			ev:     channel.CallUser{CallInfo: channel.CallInfo{SenderID: "mallory", ReceiverID: "bob", IsVideoCall: true}},
			wantTo: "bob",
			check: func(t *testing.T, out channel.Event) {
				ic, ok := out.(channel.IncomingCall)
				require.True(t, ok)
				assert.Equal(t, "alice", ic.SenderID)
				assert.True(t, ic.IsVideoCall)
			},
		},
		{
			name:   "signal",
			ev:     channel.Signal{Signal: []byte(`{"type":"offer"}`), From: "x", To: "bob"},
			wantTo: "bob",
			check: func(t *testing.T, out channel.Event) {
				assert.Equal(t, "alice", out.(channel.Signal).From)
			},
		},
		{
			name:   "hangup",
			ev:     channel.HangupCall{To: "bob"},
			wantTo: "bob",
			check: func(t *testing.T, out channel.Event) {
				assert.Equal(t, "alice", out.(channel.HangupCall).From)
			},
		},
		{
			name:    "reject to self",
			ev:      channel.RejectCall{From: "bob", To: "alice"},
			wantErr: ErrSelfAddressed,
		},
		{
			name:   "chat message",
			ev:     channel.ChatMessage{SenderID: "x", ReceiverID: "bob", Content: "hi"},
			wantTo: "bob",
			check: func(t *testing.T, out channel.Event) {
				assert.Equal(t, "alice", out.(channel.ChatMessage).SenderID)
			},
		},
		{name: "no recipient", ev: channel.Signal{}, wantErr: ErrNoRecipient},
		{name: "incoming call from a client", ev: channel.IncomingCall{}, wantErr: ErrServerOnly},
		{name: "notify from a client", ev: channel.Notify{}, wantErr: ErrServerOnly},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			to, out, err := Route("alice", tc.ev)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantTo, to)
			tc.check(t, out)
		})
	}
}

func TestAuthenticator(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	assert.False(t, auth.Insecure())

	token, err := auth.Sign("alice")
	require.NoError(t, err)

	user, err := auth.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = NewAuthenticator("other").Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.Authenticate("")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = auth.Authenticate("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	dev := NewAuthenticator("")
	assert.True(t, dev.Insecure())
	user, err = dev.Authenticate("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(1, 2)
	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())
}

type testRelay struct {
	srv  *Server
	http *httptest.Server
}

func startRelay(t *testing.T, cfg Config, bus Bus) *testRelay {
	t.Helper()
	srv := New(cfg, bus)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.hub.closeAll()
		ts.Close()
	})
	return &testRelay{srv: srv, http: ts}
}

// connect dials the relay as userID and returns the client plus a channel
// receiving every event it gets.
func (r *testRelay) connect(t *testing.T, userID, token string) (*channel.Client, <-chan channel.Event) {
	t.Helper()
	cfg := channel.DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(r.http.URL, "http") + "/ws"
	cfg.ConnectTimeout = 2 * time.Second
	cfg.MaxReconnectAttempts = 0

	c := channel.NewClient(cfg, userID, token)
	events := make(chan channel.Event, 16)
	for _, name := range []channel.EventName{
		channel.EventIncomingCall, channel.EventSignal, channel.EventHangupCall,
		channel.EventRejectCall, channel.EventChatMessage, channel.EventNotify,
	} {
		c.On(name, func(ev channel.Event) { events <- ev })
	}
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool { return r.srv.hub.IsUserOnline(userID) }, 2*time.Second, 10*time.Millisecond)
	return c, events
}

func next(t *testing.T, events <-chan channel.Event) channel.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestRelayDeliversCallOffer(t *testing.T) {
	r := startRelay(t, Config{}, nil)
	alice, _ := r.connect(t, "alice", "alice")
	_, bobEvents := r.connect(t, "bob", "bob")

	require.NoError(t, alice.Emit(channel.CallUser{CallInfo: channel.CallInfo{
		SenderID: "spoofed", ReceiverID: "bob", IsVideoCall: true,
	}}))

	ev := next(t, bobEvents)
	ic, ok := ev.(channel.IncomingCall)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "alice", ic.SenderID)
	assert.True(t, ic.IsVideoCall)
}

func TestRelaySignalRoundTrip(t *testing.T) {
	r := startRelay(t, Config{}, nil)
	alice, aliceEvents := r.connect(t, "alice", "alice")
	bob, bobEvents := r.connect(t, "bob", "bob")

	require.NoError(t, alice.Emit(channel.Signal{Signal: []byte(`{"type":"offer","sdp":"v=0"}`), To: "bob"}))
	sig := next(t, bobEvents).(channel.Signal)
	assert.Equal(t, "alice", sig.From)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(sig.Signal))

	require.NoError(t, bob.Emit(channel.HangupCall{To: "alice"}))
	hang := next(t, aliceEvents).(channel.HangupCall)
	assert.Equal(t, "bob", hang.From)
}

func TestRelayReachesEveryConnectionOfAUser(t *testing.T) {
	r := startRelay(t, Config{}, nil)
	alice, _ := r.connect(t, "alice", "alice")
	_, first := r.connect(t, "bob", "bob")
	_, second := r.connect(t, "bob", "bob")
	require.Eventually(t, func() bool { return r.srv.hub.ConnectionCount("bob") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.Emit(channel.ChatMessage{ConversationID: "c1", ReceiverID: "bob", Content: "hi"}))

	assert.Equal(t, "hi", next(t, first).(channel.ChatMessage).Content)
	assert.Equal(t, "hi", next(t, second).(channel.ChatMessage).Content)

	// an incoming call rings on every connection
	require.NoError(t, alice.Emit(channel.CallUser{CallInfo: channel.CallInfo{SenderID: "alice", ReceiverID: "bob"}}))
	for _, events := range []<-chan channel.Event{first, second} {
		ic, ok := next(t, events).(channel.IncomingCall)
		require.True(t, ok)
		assert.Equal(t, "alice", ic.SenderID)
	}
}

func TestRelayRequiresValidToken(t *testing.T) {
	r := startRelay(t, Config{JWTSecret: "s3cret"}, nil)

	resp, err := http.Get(r.http.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := r.srv.Authenticator().Sign("carol")
	require.NoError(t, err)
	r.connect(t, "carol", token)
	assert.True(t, r.srv.Hub().IsUserOnline("carol"))
}

func TestRelayUnregistersOnClose(t *testing.T) {
	r := startRelay(t, Config{}, nil)
	alice, _ := r.connect(t, "alice", "alice")

	alice.Close()

	require.Eventually(t, func() bool { return !r.srv.hub.IsUserOnline("alice") }, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyEndpoint(t *testing.T) {
	r := startRelay(t, Config{}, nil)
	_, bobEvents := r.connect(t, "bob", "bob")

	resp, err := http.Post(r.http.URL+"/notify/bob", "application/json",
		strings.NewReader(`{"type":"follow","message":"alice followed you","senderId":"alice"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var env struct {
		Status bool `json:"status"`
		Data   struct {
			ID        string `json:"id"`
			Delivered int    `json:"delivered"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.True(t, env.Status)
	assert.Equal(t, 1, env.Data.Delivered)

	n := next(t, bobEvents).(channel.Notify)
	assert.Equal(t, env.Data.ID, n.ID)
	assert.Equal(t, "alice followed you", n.Message)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestNotifyValidation(t *testing.T) {
	r := startRelay(t, Config{}, nil)

	resp, err := http.Post(r.http.URL+"/notify/bob", "application/json", strings.NewReader(`{"type":"follow"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	secured := startRelay(t, Config{JWTSecret: "s3cret"}, nil)
	resp, err = http.Post(secured.http.URL+"/notify/bob", "application/json", strings.NewReader(`{"message":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	r := startRelay(t, Config{}, nil)
	alice, _ := r.connect(t, "alice", "alice")
	require.NoError(t, alice.Emit(channel.HangupCall{To: "nobody"}))

	resp, err := http.Get(r.http.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(r.http.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `agora_relay_events_dropped_total{reason="offline"} 1`) &&
			strings.Contains(string(body), "agora_relay_active_connections 1")
	}, 2*time.Second, 20*time.Millisecond)
}

// memBus is an in-process Bus shared by several servers.
type memBus struct {
	mu   sync.Mutex
	subs []func(Delivery)
}

func (b *memBus) Publish(_ context.Context, d Delivery) error {
	b.mu.Lock()
	subs := append([]func(Delivery){}, b.subs...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(d)
	}
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, fn func(Delivery)) error {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (b *memBus) Close() error { return nil }

func TestBusRoutesAcrossInstances(t *testing.T) {
	bus := &memBus{}
	one := startRelay(t, Config{}, bus)
	two := startRelay(t, Config{}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Subscribe(ctx, func(d Delivery) { one.srv.deliverLocal(d) })
	go bus.Subscribe(ctx, func(d Delivery) { two.srv.deliverLocal(d) })
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) == 2
	}, time.Second, 5*time.Millisecond)

	alice, _ := one.connect(t, "alice", "alice")
	_, bobEvents := two.connect(t, "bob", "bob")

	require.NoError(t, alice.Emit(channel.RejectCall{To: "bob"}))

	rej := next(t, bobEvents).(channel.RejectCall)
	assert.Equal(t, "alice", rej.From)
}

func TestNewAppliesDefaults(t *testing.T) {
	srv := New(Config{}, nil)
	assert.Equal(t, 20, srv.cfg.RateLimit)
	assert.Equal(t, []string{"*"}, srv.cfg.AllowedOrigins)
}
