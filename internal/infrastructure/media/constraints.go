package media

import (
	"confline/internal/core/domain"
	"confline/internal/core/ports"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
)

// streamConstraints translates a capture request into getUserMedia constraints.
// A kind that is not requested is left nil so no track of it gets opened.
func streamConstraints(req ports.CaptureRequest) mediadevices.MediaStreamConstraints {
	var out mediadevices.MediaStreamConstraints
	if req.Video {
		out.Video = videoConstraints(req.Selection.CameraID, req.Bundle.Video)
	}
	if req.Audio {
		out.Audio = audioConstraints(req.Selection.MicrophoneID, req.Bundle.Audio)
	}
	return out
}

func videoConstraints(deviceID string, v domain.VideoConstraints) mediadevices.MediaOption {
	return func(c *mediadevices.MediaTrackConstraints) {
		if deviceID != "" {
			c.DeviceID = prop.StringExact(deviceID)
		}
		c.Width = prop.IntRanged{Ideal: v.Ideal.Width, Max: v.Max.Width}
		c.Height = prop.IntRanged{Ideal: v.Ideal.Height, Max: v.Max.Height}
		c.FrameRate = prop.FloatRanged{Ideal: float32(v.FrameRate), Max: float32(v.MaxFrameRate)}
	}
}

// audioConstraints only carries what the drivers understand. Echo
// cancellation, noise suppression and gain control have no driver knobs here.
func audioConstraints(deviceID string, a domain.AudioConstraints) mediadevices.MediaOption {
	return func(c *mediadevices.MediaTrackConstraints) {
		if deviceID != "" {
			c.DeviceID = prop.StringExact(deviceID)
		}
		c.SampleRate = prop.Int(a.SampleRate)
		c.ChannelCount = prop.Int(a.ChannelCount)
		c.SampleSize = prop.Int(16)
	}
}
