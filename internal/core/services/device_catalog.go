package services

import (
	"context"
	"errors"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	apperrors "confline/pkg/errors"

	"go.uber.org/zap"
)

// DeviceCatalog enumerates capture devices. Labels are only populated once the
// user granted permission, so callers re-list after the first capture.
type DeviceCatalog struct {
	enumerator ports.DeviceEnumerator
	logger     *zap.SugaredLogger
}

func NewDeviceCatalog(enumerator ports.DeviceEnumerator, logger *zap.SugaredLogger) *DeviceCatalog {
	return &DeviceCatalog{
		enumerator: enumerator,
		logger:     logger,
	}
}

// ListDevices always returns non-nil lists. A non-nil error is a warning
// (PermissionDenied or DeviceUnavailable) and never means the lists are unusable.
func (d *DeviceCatalog) ListDevices(ctx context.Context) (domain.DeviceList, error) {
	list := domain.DeviceList{
		Cameras:     []domain.DeviceDescriptor{},
		Microphones: []domain.DeviceDescriptor{},
	}

	devices, err := d.enumerator.EnumerateDevices(ctx)
	if err != nil {
		d.logger.Warnw("device enumeration failed", "error", err)
		if errors.Is(err, domain.ErrPermissionDenied) {
			return list, apperrors.NewPermissionDeniedError(err)
		}
		return list, apperrors.WrapDeviceUnavailableError(err, "device enumeration is not available")
	}

	for _, dev := range devices {
		switch dev.Kind {
		case domain.DeviceCamera:
			list.Cameras = append(list.Cameras, dev)
		case domain.DeviceMicrophone:
			list.Microphones = append(list.Microphones, dev)
		}
	}

	if len(list.Cameras) == 0 && len(list.Microphones) == 0 {
		d.logger.Warnw("no capture devices found")
		return list, apperrors.NewDeviceUnavailableError("no camera or microphone found")
	}

	d.logger.Debugw("devices enumerated",
		"cameras", len(list.Cameras),
		"microphones", len(list.Microphones),
		"labelled", list.Labelled(),
	)
	return list, nil
}

// Validate reports what kind of call the list allows. Blocked comes with a DeviceUnavailable error.
func (d *DeviceCatalog) Validate(list domain.DeviceList) (domain.CallReadiness, error) {
	readiness := list.Readiness()
	if readiness == domain.ReadyBlocked {
		return readiness, apperrors.NewDeviceUnavailableError("a microphone is required to join a call")
	}
	return readiness, nil
}

// Contains reports whether id names a listed device of the given kind. Empty id means default device.
func (d *DeviceCatalog) Contains(list domain.DeviceList, kind domain.DeviceKind, id string) bool {
	if id == "" {
		return true
	}
	devices := list.Microphones
	if kind == domain.DeviceCamera {
		devices = list.Cameras
	}
	for _, dev := range devices {
		if dev.ID == id {
			return true
		}
	}
	return false
}
