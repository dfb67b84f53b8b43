package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agora-social/agora-cli/pkg/channel"
	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/google/uuid"
)

// DialRequest describes an outgoing call.
type DialRequest struct {
	ReceiverID     string
	ReceiverName   string
	ReceiverAvatar string
	SenderName     string
	SenderAvatar   string
	IsVideoCall    bool
}

// Config wires a Coordinator to its collaborators.
type Config struct {
	// LocalUserID defaults to Channel.UserID().
	LocalUserID string
	Channel     channel.Channel
	Store       SessionStore
	Media       MediaSource
	Peers       PeerFactory
}

// Coordinator runs the lifecycle of at most one call at a time.
//
// Channel handlers and peer callbacks only touch session state under mu.
// Media capture, peer signaling, track stops and channel emits all happen
// outside it. Peer creation is the exception: it runs under mu so a session
// never gets two peers.
type Coordinator struct {
	localID string
	ch      channel.Channel
	store   SessionStore
	media   MediaSource
	peers   PeerFactory

	mu      sync.Mutex
	scope   *channel.Scope
	peerSeq uint64
	last    *Session

	cbMu       sync.RWMutex
	onIncoming func(Session)
	onChange   func(Session)
}

// NewCoordinator validates cfg and returns an idle coordinator. Call Attach
// to start receiving calls.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Channel == nil {
		return nil, errors.New("call: channel is required")
	}
	if cfg.Media == nil || cfg.Peers == nil {
		return nil, errors.New("call: media source and peer factory are required")
	}
	if cfg.LocalUserID == "" {
		cfg.LocalUserID = cfg.Channel.UserID()
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	return &Coordinator{
		localID: cfg.LocalUserID,
		ch:      cfg.Channel,
		store:   cfg.Store,
		media:   cfg.Media,
		peers:   cfg.Peers,
	}, nil
}

// LocalUserID returns the user this coordinator acts for.
func (c *Coordinator) LocalUserID() string {
	return c.localID
}

// OnIncoming sets the callback run when a call starts ringing on this side.
// It runs on the channel's dispatch goroutine and must not block.
func (c *Coordinator) OnIncoming(fn func(Session)) {
	c.cbMu.Lock()
	c.onIncoming = fn
	c.cbMu.Unlock()
}

// OnChange sets the callback run after every phase or stream change,
// including the final Ended snapshot.
func (c *Coordinator) OnChange(fn func(Session)) {
	c.cbMu.Lock()
	c.onChange = fn
	c.cbMu.Unlock()
}

// Attach registers the call listeners on the channel. Calling it twice
// without Detach is a no-op.
func (c *Coordinator) Attach() {
	c.mu.Lock()
	if c.scope != nil {
		c.mu.Unlock()
		return
	}
	scope := channel.NewScope(c.ch)
	c.scope = scope
	c.mu.Unlock()

	scope.On(channel.EventIncomingCall, c.handle)
	scope.On(channel.EventSignal, c.handle)
	scope.On(channel.EventRejectCall, c.handle)
	scope.On(channel.EventHangupCall, c.handle)
}

// Detach releases the listeners registered by Attach and hangs up any call
// in progress.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	scope := c.scope
	c.scope = nil
	c.mu.Unlock()

	if scope != nil {
		scope.Close()
	}
	c.end("", EndDetached, channel.EventHangupCall)
}

// Snapshot returns a copy of the current session, or an idle session.
func (c *Coordinator) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.store.Load(); s != nil {
		return s.clone()
	}
	return Session{Phase: PhaseIdle}
}

// LastEnded returns the most recently ended session.
func (c *Coordinator) LastEnded() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Session{}, false
	}
	return c.last.clone(), true
}

// Dial places a call. It rings the receiver, captures local media and
// creates the initiating peer connection. A capture failure ends the call
// before Dial returns.
func (c *Coordinator) Dial(ctx context.Context, req DialRequest) (Session, error) {
	if req.ReceiverID == "" {
		return Session{}, clierrors.ValidationError("receiver", "a user id to call is required")
	}
	if req.ReceiverID == c.localID {
		logger.Warn("Refusing to call self", "user_id", c.localID)
		return Session{}, clierrors.CallStateError("Cannot call yourself", ErrSelfCall)
	}

	c.mu.Lock()
	if c.store.Load() != nil {
		c.mu.Unlock()
		return Session{}, clierrors.CallBusyError()
	}
	phase, _ := Transition(PhaseIdle, TriggerDial)
	s := &Session{
		ID:             uuid.NewString(),
		IsVideoCall:    req.IsVideoCall,
		SenderID:       c.localID,
		SenderName:     req.SenderName,
		ReceiverID:     req.ReceiverID,
		ReceiverName:   req.ReceiverName,
		ReceiverAvatar: req.ReceiverAvatar,
		Phase:          phase,
		Initiator:      true,
		StartedAt:      time.Now(),
	}
	c.store.Save(s)
	id := s.ID
	snap := s.clone()
	c.mu.Unlock()

	logger.Info("Dialing", "call_id", id, "to", req.ReceiverID, "video", req.IsVideoCall)
	c.notifyChange(snap)

	err := c.ch.Emit(channel.CallUser{CallInfo: channel.CallInfo{
		IsVideoCall:    req.IsVideoCall,
		SenderID:       c.localID,
		SenderName:     req.SenderName,
		SenderAvatar:   req.SenderAvatar,
		ReceiverID:     req.ReceiverID,
		ReceiverName:   req.ReceiverName,
		ReceiverAvatar: req.ReceiverAvatar,
	}})
	if err != nil {
		c.end(id, EndChannelError, "")
		return Session{}, err
	}

	// The caller accepts its own call right away.
	if err := c.advance(id, TriggerAccept); err != nil {
		return Session{}, err
	}
	return c.connect(ctx, id, req.IsVideoCall)
}

// Accept answers the ringing incoming call.
func (c *Coordinator) Accept(ctx context.Context) (Session, error) {
	c.mu.Lock()
	s := c.store.Load()
	if s == nil || s.Initiator || s.Phase != PhaseRinging {
		c.mu.Unlock()
		return Session{}, clierrors.CallStateError("No incoming call to accept", ErrNoActiveCall)
	}
	s.Phase, _ = Transition(s.Phase, TriggerAccept)
	id, isVideo := s.ID, s.IsVideoCall
	snap := s.clone()
	c.mu.Unlock()

	logger.Info("Accepting call", "call_id", id, "from", snap.SenderID)
	c.notifyChange(snap)
	return c.connect(ctx, id, isVideo)
}

// Reject declines the ringing incoming call and tells the caller.
func (c *Coordinator) Reject() error {
	c.mu.Lock()
	s := c.store.Load()
	if s == nil || s.Initiator || s.Phase != PhaseRinging {
		c.mu.Unlock()
		return clierrors.CallStateError("No incoming call to reject", ErrNoActiveCall)
	}
	id := s.ID
	c.mu.Unlock()

	c.end(id, EndLocalReject, channel.EventRejectCall)
	return nil
}

// Hangup ends the current call and tells the other participant.
func (c *Coordinator) Hangup() error {
	if !c.end("", EndLocalHangup, channel.EventHangupCall) {
		return clierrors.CallStateError("No call to hang up", ErrNoActiveCall)
	}
	return nil
}

// connect captures local media for session id and attaches it to the peer
// connection, creating the connection if no signal has done so yet.
func (c *Coordinator) connect(ctx context.Context, id string, isVideo bool) (Session, error) {
	stream, err := c.media.Acquire(ctx, ConstraintsFor(isVideo))
	if err != nil {
		logger.Error("Media capture failed", "call_id", id, "error", err)
		c.end(id, EndMediaFailed, channel.EventHangupCall)
		if errors.Is(err, ErrPermissionDenied) {
			return Session{}, clierrors.PermissionError(err)
		}
		return Session{}, clierrors.MediaError(err)
	}

	c.mu.Lock()
	s := c.store.Load()
	if s == nil || s.ID != id {
		c.mu.Unlock()
		_ = StopStream(stream)
		return Session{}, clierrors.CallStateError("Call ended while capturing media", ErrNoActiveCall)
	}
	s.LocalStream = stream

	existing := s.Peer
	if existing == nil {
		if err := c.createPeerLocked(s); err != nil {
			c.mu.Unlock()
			c.end(id, EndPeerFailed, channel.EventHangupCall)
			return Session{}, clierrors.PeerError(err)
		}
	}
	if s.RemoteStream != nil {
		s.Phase, _ = Transition(s.Phase, TriggerRemoteStream)
	}
	peer := s.Peer
	pending := s.pending
	s.pending = nil
	snap := s.clone()
	c.mu.Unlock()

	if existing != nil {
		if err := existing.AddStream(stream); err != nil {
			c.end(id, EndPeerFailed, channel.EventHangupCall)
			return Session{}, clierrors.PeerError(err)
		}
	}
	for _, payload := range pending {
		if err := peer.Signal(payload); err != nil {
			logger.Warn("Failed to apply queued signal", "call_id", id, "error", err)
		}
	}

	c.notifyChange(snap)
	return snap, nil
}

// createPeerLocked creates the session's peer connection. c.mu must be held.
func (c *Coordinator) createPeerLocked(s *Session) error {
	c.peerSeq++
	seq, id := c.peerSeq, s.ID

	peer, err := c.peers.NewPeer(PeerOptions{
		Initiator:   s.Initiator,
		LocalStream: s.LocalStream,
		OnSignal:    func(p json.RawMessage) { c.forwardSignal(id, seq, p) },
		OnStream:    func(rs RemoteStream) { c.remoteStream(id, seq, rs) },
		OnClose:     func() { c.peerClosed(id, seq) },
	})
	if err != nil {
		return err
	}

	s.Peer = peer
	s.peerSeq = seq
	logger.Debug("Peer connection created", "call_id", id, "initiator", s.Initiator)
	return nil
}

// advance applies t to session id.
func (c *Coordinator) advance(id string, t Trigger) error {
	c.mu.Lock()
	s := c.store.Load()
	if s == nil || s.ID != id {
		c.mu.Unlock()
		return clierrors.CallStateError("Call is no longer active", ErrNoActiveCall)
	}
	next, err := Transition(s.Phase, t)
	if err != nil {
		c.mu.Unlock()
		return clierrors.CallStateError("Unexpected call state", err)
	}
	s.Phase = next
	snap := s.clone()
	c.mu.Unlock()

	c.notifyChange(snap)
	return nil
}

// handle is the single entry point for channel events.
func (c *Coordinator) handle(ev channel.Event) {
	switch e := ev.(type) {
	case channel.IncomingCall:
		c.handleIncoming(e)
	case channel.Signal:
		c.handleSignal(e)
	case channel.RejectCall:
		c.handleRemoteEnd(e.From, EndRemoteReject)
	case channel.HangupCall:
		c.handleRemoteEnd(e.From, EndRemoteHangup)
	}
}

func (c *Coordinator) handleIncoming(ev channel.IncomingCall) {
	if ev.SenderID == c.localID && ev.ReceiverID == c.localID {
		logger.Warn("Ignoring incoming call", "user_id", c.localID, "error", ErrSelfCall)
		return
	}
	if ev.ReceiverID != c.localID {
		logger.Debug("Ignoring incoming call for another user", "receiver_id", ev.ReceiverID)
		return
	}

	c.mu.Lock()
	if cur := c.store.Load(); cur != nil {
		curID := cur.ID
		c.mu.Unlock()
		logger.Warn("Ignoring incoming call while another call is in progress",
			"from", ev.SenderID, "call_id", curID)
		return
	}
	phase, _ := Transition(PhaseIdle, TriggerIncoming)
	s := &Session{
		ID:             uuid.NewString(),
		IsVideoCall:    ev.IsVideoCall,
		SenderID:       ev.SenderID,
		SenderName:     ev.SenderName,
		ReceiverID:     ev.ReceiverID,
		ReceiverName:   ev.ReceiverName,
		ReceiverAvatar: ev.ReceiverAvatar,
		Phase:          phase,
		StartedAt:      time.Now(),
	}
	c.store.Save(s)
	snap := s.clone()
	c.mu.Unlock()

	logger.Info("Incoming call", "call_id", snap.ID, "from", ev.SenderID, "video", ev.IsVideoCall)

	c.cbMu.RLock()
	onIncoming := c.onIncoming
	c.cbMu.RUnlock()
	if onIncoming != nil {
		onIncoming(snap)
	}
	c.notifyChange(snap)
}

func (c *Coordinator) handleSignal(ev channel.Signal) {
	c.mu.Lock()
	s := c.store.Load()
	if s == nil || ev.From != s.RemoteUserID(c.localID) {
		c.mu.Unlock()
		logger.Debug("Dropping signal with no matching call", "from", ev.From)
		return
	}

	if s.Peer == nil {
		if s.Initiator {
			// The caller's connection needs local media first; hold the
			// payload until connect creates it.
			s.pending = append(s.pending, ev.Signal)
			c.mu.Unlock()
			return
		}
		if err := c.createPeerLocked(s); err != nil {
			id := s.ID
			c.mu.Unlock()
			logger.Error("Failed to create peer connection", "call_id", id, "error", err)
			c.end(id, EndPeerFailed, channel.EventHangupCall)
			return
		}
	}
	peer, id := s.Peer, s.ID
	c.mu.Unlock()

	if err := peer.Signal(ev.Signal); err != nil {
		logger.Warn("Failed to apply signal", "call_id", id, "error", err)
	}
}

func (c *Coordinator) handleRemoteEnd(from string, reason EndReason) {
	c.mu.Lock()
	s := c.store.Load()
	if s == nil || from != s.RemoteUserID(c.localID) {
		c.mu.Unlock()
		return
	}
	id := s.ID
	c.mu.Unlock()

	c.end(id, reason, "")
}

func (c *Coordinator) forwardSignal(id string, seq uint64, payload json.RawMessage) {
	c.mu.Lock()
	s := c.store.Load()
	if s == nil || s.ID != id || s.peerSeq != seq {
		c.mu.Unlock()
		return
	}
	to := s.RemoteUserID(c.localID)
	c.mu.Unlock()

	if err := c.ch.Emit(channel.Signal{Signal: payload, From: c.localID, To: to}); err != nil {
		logger.Warn("Failed to forward signal", "call_id", id, "error", err)
	}
}

func (c *Coordinator) remoteStream(id string, seq uint64, rs RemoteStream) {
	c.mu.Lock()
	s := c.store.Load()
	if s == nil || s.ID != id || s.peerSeq != seq {
		c.mu.Unlock()
		return
	}
	s.RemoteStream = rs
	if next, err := Transition(s.Phase, TriggerRemoteStream); err == nil {
		s.Phase = next
	}
	snap := s.clone()
	c.mu.Unlock()

	logger.Info("Remote stream received", "call_id", id, "phase", snap.Phase)
	c.notifyChange(snap)
}

func (c *Coordinator) peerClosed(id string, seq uint64) {
	c.mu.Lock()
	s := c.store.Load()
	current := s != nil && s.ID == id && s.peerSeq == seq
	c.mu.Unlock()

	if current {
		c.end(id, EndPeerClosed, "")
	}
}

// end tears down session id ("" means whatever session exists). Resources
// are released in order: local tracks, peer connection, then the outcome is
// sent when outcome is non-empty. It reports whether a session was ended.
func (c *Coordinator) end(id string, reason EndReason, outcome channel.EventName) bool {
	c.mu.Lock()
	s := c.store.Load()
	if s == nil || (id != "" && s.ID != id) {
		c.mu.Unlock()
		return false
	}

	phase, err := Transition(s.Phase, TriggerEnd)
	if err != nil {
		phase = PhaseEnded
	}
	local, peer := s.LocalStream, s.Peer
	remote := s.RemoteUserID(c.localID)

	s.LocalStream = nil
	s.Peer = nil
	s.RemoteStream = nil
	s.pending = nil
	s.Phase = phase
	s.EndReason = reason
	ended := s.clone()
	c.last = &ended
	// An empty store is Idle.
	c.store.Clear()
	c.mu.Unlock()

	if err := StopStream(local); err != nil {
		logger.Warn("Failed to stop local track", "call_id", ended.ID, "error", err)
	}
	if peer != nil {
		if err := peer.Destroy(); err != nil {
			logger.Warn("Failed to destroy peer connection", "call_id", ended.ID, "error", err)
		}
	}
	if outcome != "" {
		if err := c.ch.Emit(outcomeEvent(outcome, c.localID, remote)); err != nil {
			logger.Warn("Failed to send call outcome", "call_id", ended.ID, "event", outcome, "error", err)
		}
	}

	logger.Info("Call ended", "call_id", ended.ID, "reason", reason)
	c.notifyChange(ended)
	return true
}

func outcomeEvent(name channel.EventName, from, to string) channel.Event {
	switch name {
	case channel.EventRejectCall:
		return channel.RejectCall{From: from, To: to}
	case channel.EventHangupCall:
		return channel.HangupCall{From: from, To: to}
	}
	panic(fmt.Sprintf("call: %q is not a call outcome", name))
}

func (c *Coordinator) notifyChange(s Session) {
	c.cbMu.RLock()
	fn := c.onChange
	c.cbMu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

func (s *Session) clone() Session {
	cp := *s
	cp.pending = nil
	return cp
}
