// Package media implements call.MediaSource. Capture is backed by
// pion/mediadevices on Linux; other platforms report no devices.
package media

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/agora-social/agora-cli/pkg/call"
	"github.com/agora-social/agora-cli/pkg/config"
)

// Config bounds what Acquire asks the devices for.
type Config struct {
	MaxWidth     int
	MaxHeight    int
	VideoBitRate int
}

// DefaultConfig caps video at 640x480 and 1.5 Mbps.
func DefaultConfig() Config {
	return Config{MaxWidth: 640, MaxHeight: 480, VideoBitRate: 1_500_000}
}

// ConfigFromSettings reads call.video_max_width and call.video_max_height.
func ConfigFromSettings() Config {
	cfg := DefaultConfig()
	if w := config.GetInt("call.video_max_width"); w > 0 {
		cfg.MaxWidth = w
	}
	if h := config.GetInt("call.video_max_height"); h > 0 {
		cfg.MaxHeight = h
	}
	return cfg
}

// classify maps a capture failure onto the call package's sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, call.ErrPermissionDenied) || errors.Is(err, call.ErrDeviceUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if errors.Is(err, fs.ErrPermission) || strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted") {
		return fmt.Errorf("%w: %v", call.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", call.ErrDeviceUnavailable, err)
}

func validate(c call.Constraints) error {
	if !c.Video && !c.Audio {
		return fmt.Errorf("%w: no audio or video requested", call.ErrDeviceUnavailable)
	}
	return nil
}
