package call

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrPermissionDenied is returned by a MediaSource when the runtime
	// refuses access to the capture devices.
	ErrPermissionDenied = errors.New("media permission denied")

	// ErrDeviceUnavailable is returned by a MediaSource when no matching
	// capture device exists.
	ErrDeviceUnavailable = errors.New("media device unavailable")
)

// Constraints selects which local devices to capture.
type Constraints struct {
	Video bool
	Audio bool
}

// ConstraintsFor returns the capture constraints for a call mode.
func ConstraintsFor(isVideoCall bool) Constraints {
	return Constraints{Video: isVideoCall, Audio: true}
}

// Track is one local capture track.
type Track interface {
	ID() string
	Kind() string
	Stop() error
}

// MediaStream is a set of local tracks acquired together.
type MediaStream interface {
	ID() string
	Tracks() []Track
}

// RemoteStream is the media received from the other participant.
type RemoteStream interface {
	ID() string
}

// MediaSource captures local audio and video.
type MediaSource interface {
	Acquire(ctx context.Context, c Constraints) (MediaStream, error)
}

// PeerOptions configures a new peer connection. The callbacks may run on any
// goroutine.
type PeerOptions struct {
	Initiator   bool
	LocalStream MediaStream

	// OnSignal receives each local payload to forward to the other side.
	OnSignal func(payload json.RawMessage)
	// OnStream receives the remote stream once negotiation completes.
	OnStream func(stream RemoteStream)
	// OnClose is called when the connection closes or fails.
	OnClose func()
}

// PeerConnection is one direct media link.
type PeerConnection interface {
	// Signal applies a payload received from the other side.
	Signal(payload json.RawMessage) error
	// AddStream attaches local media to a connection created without it.
	AddStream(stream MediaStream) error
	// Destroy closes the connection. Callbacks do not fire afterwards.
	Destroy() error
}

// PeerFactory creates peer connections. NewPeer must not invoke the option
// callbacks before it returns.
type PeerFactory interface {
	NewPeer(opts PeerOptions) (PeerConnection, error)
}

// StopStream stops every track of s and returns the first error.
func StopStream(s MediaStream) error {
	if s == nil {
		return nil
	}
	var first error
	for _, t := range s.Tracks() {
		if err := t.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
