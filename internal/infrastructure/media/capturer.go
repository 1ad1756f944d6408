package media

import (
	"context"
	"fmt"
	"strings"

	"confline/internal/core/domain"
	"confline/internal/core/ports"

	"github.com/pion/mediadevices"
	"go.uber.org/zap"
)

// Driver is the subset of the mediadevices package the adapter calls.
type Driver interface {
	EnumerateDevices() []mediadevices.MediaDeviceInfo
	GetUserMedia(constraints mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

type systemDriver struct{}

func (systemDriver) EnumerateDevices() []mediadevices.MediaDeviceInfo {
	return mediadevices.EnumerateDevices()
}

func (systemDriver) GetUserMedia(constraints mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
	return mediadevices.GetUserMedia(constraints)
}

// SystemDriver uses whatever camera and microphone drivers the binary registered.
func SystemDriver() Driver {
	return systemDriver{}
}

// Capturer implements ports.DeviceEnumerator and ports.MediaCapturer on top of pion/mediadevices.
type Capturer struct {
	driver Driver
	logger *zap.SugaredLogger
}

func NewCapturer(driver Driver, logger *zap.SugaredLogger) *Capturer {
	if driver == nil {
		driver = SystemDriver()
	}
	return &Capturer{driver: driver, logger: logger}
}

func (c *Capturer) EnumerateDevices(ctx context.Context) ([]domain.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos := c.driver.EnumerateDevices()
	out := make([]domain.DeviceDescriptor, 0, len(infos))
	for _, info := range infos {
		var kind domain.DeviceKind
		switch info.Kind {
		case mediadevices.VideoInput:
			kind = domain.DeviceCamera
		case mediadevices.AudioInput:
			kind = domain.DeviceMicrophone
		default:
			continue
		}
		out = append(out, domain.DeviceDescriptor{ID: info.DeviceID, Label: info.Label, Kind: kind})
	}
	return out, nil
}

// Capture opens the requested tracks. The driver call cannot be interrupted,
// so when ctx ends first the late stream is stopped as soon as it arrives.
func (c *Capturer) Capture(ctx context.Context, req ports.CaptureRequest) (ports.MediaStream, error) {
	if !req.Video && !req.Audio {
		return nil, fmt.Errorf("capture: %w", domain.ErrNoDevices)
	}

	raw, err := c.acquire(ctx, streamConstraints(req))
	if err != nil {
		return nil, err
	}

	s := newStream(c, raw, req)
	c.logger.Debugw("capture stream opened",
		"stream_id", s.ID(),
		"video", s.HasVideo(),
		"audio", s.HasAudio(),
		"tier", req.Bundle.Tier.String(),
	)
	return s, nil
}

type acquireResult struct {
	stream mediadevices.MediaStream
	err    error
}

func (c *Capturer) acquire(ctx context.Context, constraints mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
	done := make(chan acquireResult, 1)
	go func() {
		s, err := c.driver.GetUserMedia(constraints)
		done <- acquireResult{stream: s, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, classifyDriverError(res.err)
		}
		return res.stream, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				closeTracks(res.stream)
			}
		}()
		return nil, ctx.Err()
	}
}

// classifyDriverError maps driver failures onto the domain capture errors.
// Drivers only report plain strings, so matching is by message.
func classifyDriverError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not allowed"):
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	default:
		// busy, missing and unsupported devices all surface as unavailable
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
}

func closeTracks(s mediadevices.MediaStream) {
	if s == nil {
		return
	}
	for _, t := range s.GetTracks() {
		_ = t.Close()
	}
}
