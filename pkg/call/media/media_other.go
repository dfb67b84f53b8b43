//go:build !linux

package media

import (
	"context"
	"fmt"

	"github.com/agora-social/agora-cli/pkg/call"
	"github.com/pion/webrtc/v4"
)

// Source reports no capture devices. Device drivers are only wired on Linux.
type Source struct {
	cfg Config
}

// NewSource returns a source whose Acquire always fails.
func NewSource(cfg Config) (*Source, error) {
	return &Source{cfg: cfg}, nil
}

// RegisterCodecs registers pion's default codecs.
func (s *Source) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (s *Source) Acquire(ctx context.Context, c call.Constraints) (call.MediaStream, error) {
	if err := validate(c); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: local capture is not supported on this platform", call.ErrDeviceUnavailable)
}
