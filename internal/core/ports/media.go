package ports

import (
	"context"

	"confline/internal/core/domain"
)

// DeviceEnumerator lists the capture devices of the host.
type DeviceEnumerator interface {
	EnumerateDevices(ctx context.Context) ([]domain.DeviceDescriptor, error)
}

type CaptureRequest struct {
	Selection domain.DeviceSelection
	Bundle    domain.ConstraintBundle
	Video     bool
	Audio     bool
}

// MediaCapturer acquires capture streams. Capture may block until the user
// grants permission; it must honour ctx cancellation.
type MediaCapturer interface {
	Capture(ctx context.Context, req CaptureRequest) (MediaStream, error)
}

// MediaStream is a set of live capture tracks exclusively owned by whoever acquired it.
type MediaStream interface {
	ID() string
	HasVideo() bool
	HasAudio() bool
	// ApplyConstraints switches the stream to bundle. On error the stream keeps its prior settings.
	ApplyConstraints(ctx context.Context, bundle domain.ConstraintBundle) error
	// AudioReader opens a reader over the microphone track.
	AudioReader() (AudioFrameReader, error)
	// Stop ends every track. Safe to call more than once.
	Stop()
}

// AudioFrameReader exposes the most recent mono samples of an audio track, normalized to [-1, 1].
type AudioFrameReader interface {
	// ReadSamples fills dst with the latest len(dst) samples and returns how many were written.
	ReadSamples(dst []float64) (int, error)
	Close() error
}

// ConnectionInfoProvider reads host connection telemetry. It returns
// domain.ErrTelemetryUnavailable when the host exposes none.
type ConnectionInfoProvider interface {
	ConnectionInfo(ctx context.Context) (domain.ConnectionInfo, error)
}

// SessionSurface is the opaque conferencing backend that carries the actual media.
type SessionSurface interface {
	Join(ctx context.Context, roomID domain.ConferenceID, displayName string) (SessionHandle, error)
	Leave(ctx context.Context, handle SessionHandle) error
}

type SessionHandle interface {
	RoomID() domain.ConferenceID
	// ParticipantCounts delivers the room size whenever the surface reports a change.
	ParticipantCounts() <-chan int
	// Done is closed when the surface drops the session on its own.
	Done() <-chan struct{}
}
