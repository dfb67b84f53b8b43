// Package peer implements call.PeerFactory on pion/webrtc.
//
// Signal payloads are JSON objects: {"type":"offer"|"answer","sdp":"..."} for
// session descriptions and {"type":"candidate","candidate":{...}} for trickled
// ICE candidates.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agora-social/agora-cli/pkg/call"
	"github.com/agora-social/agora-cli/pkg/config"
	"github.com/agora-social/agora-cli/pkg/logger"
	jsoniter "github.com/json-iterator/go"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "candidate"
)

// ErrUnsendableTrack is returned when a local track has no pion sender side.
var ErrUnsendableTrack = errors.New("track cannot be sent over a peer connection")

// LocalTrack is implemented by capture tracks that can be sent to a peer.
type LocalTrack interface {
	Local() webrtc.TrackLocal
}

// Config configures the factory.
type Config struct {
	ICEServers []string

	// RegisterCodecs fills the media engine. Defaults to pion's default
	// codecs; capture sources override it so negotiated codecs match their
	// encoders.
	RegisterCodecs func(m *webrtc.MediaEngine) error

	// ICE timeouts; zero keeps pion's defaults.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration

	// IncludeLoopback gathers loopback candidates, for same-host peers.
	IncludeLoopback bool
}

// ConfigFromSettings reads call.ice_servers from the loaded configuration.
func ConfigFromSettings() Config {
	return Config{
		ICEServers:          config.GetStringSlice("call.ice_servers"),
		DisconnectedTimeout: 30 * time.Second,
		FailedTimeout:       120 * time.Second,
		KeepAliveInterval:   2 * time.Second,
	}
}

// Factory creates pion-backed peer connections.
type Factory struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
}

// NewFactory builds the webrtc API once; every peer shares it.
func NewFactory(cfg Config) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	register := cfg.RegisterCodecs
	if register == nil {
		register = func(m *webrtc.MediaEngine) error { return m.RegisterDefaultCodecs() }
	}
	if err := register(mediaEngine); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.DisconnectedTimeout > 0 || cfg.FailedTimeout > 0 || cfg.KeepAliveInterval > 0 {
		se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)
	}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	f := &Factory{api: api}
	if len(cfg.ICEServers) > 0 {
		f.iceServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	return f, nil
}

// NewPeer implements call.PeerFactory. The initiator's offer is created on a
// separate goroutine so no callback fires before NewPeer returns.
func (f *Factory) NewPeer(opts call.PeerOptions) (call.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceServers})
	if err != nil {
		return nil, err
	}

	c := &Conn{pc: pc, opts: opts}
	pc.OnICECandidate(c.onICECandidate)
	pc.OnTrack(c.onTrack)
	pc.OnConnectionStateChange(c.onStateChange)

	if opts.LocalStream != nil {
		if err := c.attach(opts.LocalStream); err != nil {
			_ = pc.Close()
			return nil, err
		}
		c.localAttached = true
	} else if opts.Initiator {
		if err := addRecvOnlyTransceivers(pc); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	if opts.Initiator {
		go c.offer()
	}
	return c, nil
}

type message struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Conn is one pion peer connection.
type Conn struct {
	pc   *webrtc.PeerConnection
	opts call.PeerOptions

	mu            sync.Mutex
	destroyed     bool
	closeFired    bool
	remoteSet     bool
	localAttached bool
	answerPending bool
	remote        *RemoteStream
	candidates    []webrtc.ICECandidateInit
}

// Signal implements call.PeerConnection.
func (c *Conn) Signal(payload json.RawMessage) error {
	var msg message
	if err := codec.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}

	switch msg.Type {
	case typeOffer:
		if err := c.setRemote(webrtc.SDPTypeOffer, msg.SDP); err != nil {
			return err
		}
		c.mu.Lock()
		ready := c.localAttached
		c.answerPending = !ready
		c.mu.Unlock()
		if ready {
			return c.answer()
		}
		return nil

	case typeAnswer:
		return c.setRemote(webrtc.SDPTypeAnswer, msg.SDP)

	case typeCandidate:
		if msg.Candidate == nil {
			return errors.New("candidate signal without candidate")
		}
		c.mu.Lock()
		if !c.remoteSet {
			c.candidates = append(c.candidates, *msg.Candidate)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		return c.pc.AddICECandidate(*msg.Candidate)

	default:
		return fmt.Errorf("unknown signal type %q", msg.Type)
	}
}

// AddStream implements call.PeerConnection. A callee that already applied
// the caller's offer answers now.
func (c *Conn) AddStream(stream call.MediaStream) error {
	if err := c.attach(stream); err != nil {
		return err
	}

	c.mu.Lock()
	c.localAttached = true
	pending := c.answerPending
	c.answerPending = false
	c.mu.Unlock()

	if pending {
		return c.answer()
	}
	return nil
}

// Destroy implements call.PeerConnection.
func (c *Conn) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.mu.Unlock()

	return c.pc.Close()
}

// ConnectionState reports pion's view of the connection.
func (c *Conn) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

func (c *Conn) attach(stream call.MediaStream) error {
	for _, t := range stream.Tracks() {
		lt, ok := t.(LocalTrack)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnsendableTrack, t.ID())
		}
		sender, err := c.pc.AddTrack(lt.Local())
		if err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

func (c *Conn) setRemote(kind webrtc.SDPType, sdp string) error {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: kind, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote %s: %w", kind, err)
	}

	c.mu.Lock()
	c.remoteSet = true
	queued := c.candidates
	c.candidates = nil
	c.mu.Unlock()

	for _, cand := range queued {
		if err := c.pc.AddICECandidate(cand); err != nil {
			logger.Warn("Failed to add queued ICE candidate", "error", err)
		}
	}
	return nil
}

func (c *Conn) offer() {
	sdp, err := c.pc.CreateOffer(nil)
	if err == nil {
		err = c.pc.SetLocalDescription(sdp)
	}
	if err != nil {
		logger.Error("Failed to create offer", "error", err)
		c.fireClose()
		return
	}
	c.emit(message{Type: typeOffer, SDP: sdp.SDP})
}

func (c *Conn) answer() error {
	sdp, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(sdp); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	c.emit(message{Type: typeAnswer, SDP: sdp.SDP})
	return nil
}

func (c *Conn) onICECandidate(cand *webrtc.ICECandidate) {
	// nil marks the end of gathering
	if cand == nil {
		return
	}
	init := cand.ToJSON()
	c.emit(message{Type: typeCandidate, Candidate: &init})
}

func (c *Conn) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	first := c.remote == nil
	if first {
		c.remote = &RemoteStream{id: track.StreamID()}
	}
	remote := c.remote
	c.mu.Unlock()

	remote.addKind(track.Kind().String())
	go remote.consume(track)

	if first && c.opts.OnStream != nil {
		c.opts.OnStream(remote)
	}
}

func (c *Conn) onStateChange(state webrtc.PeerConnectionState) {
	logger.Debug("Peer connection state", "state", state.String())
	if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed {
		c.fireClose()
	}
}

func (c *Conn) fireClose() {
	c.mu.Lock()
	if c.destroyed || c.closeFired {
		c.mu.Unlock()
		return
	}
	c.closeFired = true
	c.mu.Unlock()

	if c.opts.OnClose != nil {
		c.opts.OnClose()
	}
}

func (c *Conn) emit(msg message) {
	c.mu.Lock()
	dead := c.destroyed
	c.mu.Unlock()
	if dead || c.opts.OnSignal == nil {
		return
	}

	data, err := codec.Marshal(msg)
	if err != nil {
		logger.Error("Failed to encode signal", "type", msg.Type, "error", err)
		return
	}
	c.opts.OnSignal(data)
}

// RemoteStream is the media received from the other participant. The CLI
// cannot render it, so packets are read and counted.
type RemoteStream struct {
	id    string
	bytes atomic.Int64

	mu    sync.Mutex
	kinds []string
}

// ID implements call.RemoteStream.
func (r *RemoteStream) ID() string { return r.id }

// Kinds lists the track kinds received so far.
func (r *RemoteStream) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

// BytesReceived returns the RTP payload bytes read so far.
func (r *RemoteStream) BytesReceived() int64 {
	return r.bytes.Load()
}

func (r *RemoteStream) addKind(kind string) {
	r.mu.Lock()
	r.kinds = append(r.kinds, kind)
	r.mu.Unlock()
}

func (r *RemoteStream) consume(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("Remote track ended", "kind", track.Kind().String(), "error", err)
			}
			return
		}
		r.bytes.Add(int64(n))
	}
}

// drainRTCP reads incoming RTCP so interceptors (NACK, reports) keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// addRecvOnlyTransceivers gives an offer without local media valid m-lines.
func addRecvOnlyTransceivers(pc *webrtc.PeerConnection) error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add recvonly %s transceiver: %w", kind, err)
		}
	}
	return nil
}
