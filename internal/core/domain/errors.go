package domain

import "errors"

var (
	ErrConferenceNotFound = errors.New("conference not found")
	ErrConferenceEnded    = errors.New("conference already ended")
	ErrNotCreator         = errors.New("only the creator can end a conference")
	ErrInvalidConference  = errors.New("invalid conference record")
	ErrInvalidRoomLink    = errors.New("room link has no room parameter")

	ErrPermissionDenied  = errors.New("capture permission denied")
	ErrNoDevices         = errors.New("no capture devices available")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrConstraintsFailed = errors.New("constraints not supported by device")

	ErrTelemetryUnavailable = errors.New("connection telemetry unavailable")
	ErrIllegalTransition    = errors.New("illegal session transition")
	ErrNoActiveCall         = errors.New("no active call")
	ErrStreamClosed         = errors.New("capture stream closed")
)
