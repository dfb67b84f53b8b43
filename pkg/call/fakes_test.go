package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agora-social/agora-cli/pkg/channel"
)

type fakeTrack struct {
	id      string
	kind    string
	stopped atomic.Int32
}

func (t *fakeTrack) ID() string   { return t.id }
func (t *fakeTrack) Kind() string { return t.kind }
func (t *fakeTrack) Stop() error {
	t.stopped.Add(1)
	return nil
}

type fakeStream struct {
	id     string
	tracks []*fakeTrack
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *fakeStream) allStopped() bool {
	for _, t := range s.tracks {
		if t.stopped.Load() == 0 {
			return false
		}
	}
	return true
}

type fakeMedia struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	calls   []Constraints
	streams []*fakeStream
}

func (m *fakeMedia) Acquire(ctx context.Context, c Constraints) (MediaStream, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	block, err := m.block, m.err
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := &fakeStream{id: fmt.Sprintf("stream-%d", len(m.streams)+1)}
	if c.Audio {
		s.tracks = append(s.tracks, &fakeTrack{id: s.id + "-audio", kind: "audio"})
	}
	if c.Video {
		s.tracks = append(s.tracks, &fakeTrack{id: s.id + "-video", kind: "video"})
	}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMedia) constraints() []Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Constraints(nil), m.calls...)
}

func (m *fakeMedia) stream(i int) *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[i]
}

type fakeRemote string

func (r fakeRemote) ID() string { return string(r) }

type fakePeer struct {
	opts PeerOptions

	mu        sync.Mutex
	signals   []string
	added     []MediaStream
	destroyed int
}

func (p *fakePeer) Signal(payload json.RawMessage) error {
	p.mu.Lock()
	p.signals = append(p.signals, string(payload))
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) AddStream(s MediaStream) error {
	p.mu.Lock()
	p.added = append(p.added, s)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Destroy() error {
	p.mu.Lock()
	p.destroyed++
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.signals...)
}

func (p *fakePeer) destroyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *fakePeer) emitSignal(payload string) { p.opts.OnSignal(json.RawMessage(payload)) }
func (p *fakePeer) emitStream(id string)      { p.opts.OnStream(fakeRemote(id)) }
func (p *fakePeer) close()                    { p.opts.OnClose() }

type fakePeers struct {
	mu    sync.Mutex
	err   error
	peers []*fakePeer
}

func (f *fakePeers) NewPeer(opts PeerOptions) (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{opts: opts}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakePeers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakePeers) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[len(f.peers)-1]
}

// live counts peers that have not been destroyed.
func (f *fakePeers) live() int {
	f.mu.Lock()
	peers := append([]*fakePeer(nil), f.peers...)
	f.mu.Unlock()

	n := 0
	for _, p := range peers {
		if p.destroyCount() == 0 {
			n++
		}
	}
	return n
}

// linkedChannel delivers emits to its partner the way the relay does:
// "call user" arrives as "incoming call", everything else as-is.
type linkedChannel struct {
	user      string
	listeners *channel.Listeners
	partner   *linkedChannel

	mu      sync.Mutex
	emitted []channel.Event
}

func newLinkedPair(a, b string) (*linkedChannel, *linkedChannel) {
	ca := &linkedChannel{user: a, listeners: channel.NewListeners()}
	cb := &linkedChannel{user: b, listeners: channel.NewListeners()}
	ca.partner, cb.partner = cb, ca
	return ca, cb
}

func (l *linkedChannel) UserID() string { return l.user }

func (l *linkedChannel) On(name channel.EventName, fn channel.Handler) *channel.Subscription {
	return l.listeners.Add(name, fn)
}

func (l *linkedChannel) Emit(ev channel.Event) error {
	l.mu.Lock()
	l.emitted = append(l.emitted, ev)
	l.mu.Unlock()

	if cu, ok := ev.(channel.CallUser); ok {
		l.partner.listeners.Dispatch(channel.IncomingCall{CallInfo: cu.CallInfo})
		return nil
	}
	l.partner.listeners.Dispatch(ev)
	return nil
}

func (l *linkedChannel) count(name channel.EventName) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.emitted {
		if ev.Name() == name {
			n++
		}
	}
	return n
}
