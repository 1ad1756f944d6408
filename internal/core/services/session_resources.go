package services

import (
	"context"
	"sync"

	"confline/internal/core/ports"

	"go.uber.org/zap"
)

// SessionResources holds every live handle a session owns: capture streams,
// the surface session, the reapply loop and the samplers. Dispose releases all
// of them and leaves the value reusable.
type SessionResources struct {
	meter   *AudioLevelMeter
	monitor *NetworkQualityMonitor
	adapter *StreamQualityAdapter
	logger  *zap.SugaredLogger

	mu          sync.Mutex
	calibration ports.MediaStream
	call        ports.MediaStream
	surface     ports.SessionSurface
	handle      ports.SessionHandle
	stopLoop    context.CancelFunc
	loopDone    <-chan struct{}
	cleanups    []func()
}

func NewSessionResources(meter *AudioLevelMeter, monitor *NetworkQualityMonitor, adapter *StreamQualityAdapter, logger *zap.SugaredLogger) *SessionResources {
	return &SessionResources{
		meter:   meter,
		monitor: monitor,
		adapter: adapter,
		logger:  logger,
	}
}

// SetCalibration takes ownership of the calibration stream, stopping any previous one.
func (r *SessionResources) SetCalibration(stream ports.MediaStream) {
	r.mu.Lock()
	prev := r.calibration
	r.calibration = stream
	r.mu.Unlock()
	if prev != nil && prev != stream {
		r.meter.Stop()
		prev.Stop()
	}
}

// ReleaseCalibration stops the level meter and every calibration track.
func (r *SessionResources) ReleaseCalibration() {
	r.mu.Lock()
	stream := r.calibration
	r.calibration = nil
	r.mu.Unlock()

	r.meter.Stop()
	if stream != nil {
		stream.Stop()
		r.logger.Debugw("calibration stream released", "stream_id", stream.ID())
	}
}

// AttachCall takes ownership of the in-call stream and surface session.
func (r *SessionResources) AttachCall(stream ports.MediaStream, surface ports.SessionSurface, handle ports.SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call = stream
	r.surface = surface
	r.handle = handle
}

func (r *SessionResources) CallStream() ports.MediaStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.call
}

// AttachLoop registers the reapply loop so Dispose can cancel it and wait for it.
func (r *SessionResources) AttachLoop(cancel context.CancelFunc, done <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLoop = cancel
	r.loopDone = done
}

// OnDispose registers an extra release step, run in reverse registration order.
func (r *SessionResources) OnDispose(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, fn)
}

// Dispose stops every sampler, cancels the loop, stops all tracks and leaves
// the surface session. Safe to call repeatedly and from any state.
func (r *SessionResources) Dispose(ctx context.Context) error {
	r.mu.Lock()
	stopLoop, loopDone := r.stopLoop, r.loopDone
	calibration, call := r.calibration, r.call
	surface, handle := r.surface, r.handle
	cleanups := r.cleanups
	r.stopLoop, r.loopDone = nil, nil
	r.calibration, r.call = nil, nil
	r.surface, r.handle = nil, nil
	r.cleanups = nil
	r.mu.Unlock()

	if stopLoop != nil {
		stopLoop()
		<-loopDone
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	r.monitor.Stop()
	r.meter.Stop()

	if calibration != nil {
		calibration.Stop()
	}
	if call != nil {
		call.Stop()
		r.adapter.Forget(call.ID())
	}

	if surface != nil && handle != nil {
		if err := surface.Leave(ctx, handle); err != nil {
			r.logger.Warnw("leaving session surface failed", "room_id", handle.RoomID(), "error", err)
			return err
		}
	}
	return nil
}
