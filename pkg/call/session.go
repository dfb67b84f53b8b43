package call

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	// ErrInvalidTransition is returned by Transition for inputs the phase
	// machine does not accept.
	ErrInvalidTransition = errors.New("invalid call phase transition")

	// ErrNoActiveCall is returned by operations that need a session when
	// there is none, or the session is in the wrong phase.
	ErrNoActiveCall = errors.New("no active call")

	// ErrSelfCall marks a call whose sender and receiver are both the local
	// user.
	ErrSelfCall = errors.New("caller and receiver are the same user")
)

// EndReason records why a session ended.
type EndReason string

const (
	EndLocalHangup  EndReason = "local-hangup"
	EndLocalReject  EndReason = "local-reject"
	EndRemoteHangup EndReason = "remote-hangup"
	EndRemoteReject EndReason = "remote-reject"
	EndPeerClosed   EndReason = "peer-closed"
	EndPeerFailed   EndReason = "peer-failed"
	EndMediaFailed  EndReason = "media-failed"
	EndChannelError EndReason = "channel-error"
	EndDetached     EndReason = "detached"
)

// Session is the state of one call on this client. Snapshots handed out by
// the coordinator are copies; only the coordinator mutates the stored value.
type Session struct {
	ID             string
	IsVideoCall    bool
	SenderID       string
	SenderName     string
	ReceiverID     string
	ReceiverName   string
	ReceiverAvatar string

	Phase        Phase
	LocalStream  MediaStream
	RemoteStream RemoteStream
	Peer         PeerConnection

	// Initiator is true on the caller's side.
	Initiator bool
	StartedAt time.Time
	EndReason EndReason

	peerSeq uint64
	pending []json.RawMessage
}

// RemoteUserID returns the participant that is not localID.
func (s *Session) RemoteUserID(localID string) string {
	if s.SenderID == localID {
		return s.ReceiverID
	}
	return s.SenderID
}

// Released reports whether the session holds no media or peer resources.
func (s *Session) Released() bool {
	return s.LocalStream == nil && s.Peer == nil && s.RemoteStream == nil
}

// SessionStore holds the current session. A nil Load means the client is idle.
type SessionStore interface {
	Load() *Session
	Save(s *Session)
	Clear()
}

// MemoryStore keeps at most one session in memory.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *MemoryStore) Save(s *Session) {
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}
