//go:build linux

package media

import (
	"context"
	"sync"

	"github.com/agora-social/agora-cli/pkg/call"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// Source captures camera and microphone through V4L2 and malgo.
type Source struct {
	cfg           Config
	codecSelector *mediadevices.CodecSelector
}

// NewSource prepares VP8 and Opus encoders.
func NewSource(cfg Config) (*Source, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	if cfg.VideoBitRate > 0 {
		vpxParams.BitRate = cfg.VideoBitRate
	}

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &Source{
		cfg: cfg,
		codecSelector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// RegisterCodecs registers the encoders' codecs on a peer media engine.
func (s *Source) RegisterCodecs(m *webrtc.MediaEngine) error {
	s.codecSelector.Populate(m)
	return nil
}

// Acquire opens exactly the requested devices. There is no fallback to a
// smaller set: a call that needs video fails if the camera does.
func (s *Source) Acquire(ctx context.Context, c call.Constraints) (call.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: s.codecSelector}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// Raw formats only; some MJPEG nodes emit frames VP8 cannot encode.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: s.cfg.MaxWidth}
			mc.Height = prop.IntRanged{Max: s.cfg.MaxHeight}
		}
	}
	if c.Audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		logger.Warn("GetUserMedia failed", "video", c.Video, "audio", c.Audio, "error", err)
		return nil, classify(err)
	}

	stream := &localStream{id: uuid.NewString()}
	for _, t := range ms.GetTracks() {
		t.OnEnded(func(err error) {
			if err != nil {
				logger.Debug("Local track ended", "error", err)
			}
		})
		stream.tracks = append(stream.tracks, &localTrack{t: t})
	}
	logger.Debug("Local media captured", "stream_id", stream.id, "tracks", len(stream.tracks))
	return stream, nil
}

type localStream struct {
	id     string
	tracks []call.Track
}

func (s *localStream) ID() string           { return s.id }
func (s *localStream) Tracks() []call.Track { return s.tracks }

type localTrack struct {
	t    mediadevices.Track
	once sync.Once
}

func (t *localTrack) ID() string               { return t.t.ID() }
func (t *localTrack) Kind() string             { return t.t.Kind().String() }
func (t *localTrack) Local() webrtc.TrackLocal { return t.t }

// Stop releases the device. Later calls are no-ops.
func (t *localTrack) Stop() error {
	var err error
	t.once.Do(func() { err = t.t.Close() })
	return err
}
