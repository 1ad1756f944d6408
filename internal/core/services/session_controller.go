package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	apperrors "confline/pkg/errors"
	"confline/pkg/tracing"
	"confline/pkg/validation"

	"go.uber.org/zap"
)

// SessionController is the composition root of a call: calibration, capture,
// the session surface and the reapply loop that keeps capture constraints in
// line with the room size and network class.
type SessionController struct {
	catalog     *DeviceCatalog
	meter       *AudioLevelMeter
	monitor     *NetworkQualityMonitor
	adapter     *StreamQualityAdapter
	conferences ports.ConferenceService
	capturer    ports.MediaCapturer
	surface     ports.SessionSurface
	identity    domain.Identity
	logger      *zap.SugaredLogger

	res *SessionResources

	mu        sync.Mutex
	state     domain.SessionState
	gen       uint64 // bumped on every accepted transition
	conf      *domain.Conference
	selection domain.DeviceSelection
}

func NewSessionController(
	catalog *DeviceCatalog,
	meter *AudioLevelMeter,
	monitor *NetworkQualityMonitor,
	adapter *StreamQualityAdapter,
	conferences ports.ConferenceService,
	capturer ports.MediaCapturer,
	surface ports.SessionSurface,
	identity domain.Identity,
	logger *zap.SugaredLogger,
) *SessionController {
	return &SessionController{
		catalog:     catalog,
		meter:       meter,
		monitor:     monitor,
		adapter:     adapter,
		conferences: conferences,
		capturer:    capturer,
		surface:     surface,
		identity:    identity,
		logger:      logger,
		res:         NewSessionResources(meter, monitor, adapter, logger),
		state:       domain.SessionIdle,
	}
}

// transition must be called with mu held.
func (c *SessionController) transition(event domain.SessionEvent) error {
	next, err := domain.Transition(c.state, event)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeConflict, err.Error(), http.StatusConflict)
	}
	c.logger.Debugw("session transition", "from", c.state, "event", event, "to", next)
	c.state = next
	c.gen++
	return nil
}

func (c *SessionController) Devices(ctx context.Context) (domain.DeviceList, error) {
	return c.catalog.ListDevices(ctx)
}

// OpenCalibration captures the selected devices and starts the level meter.
// Capture can wait on a permission prompt; if the dialog is closed meanwhile
// the late stream is stopped immediately.
func (c *SessionController) OpenCalibration(ctx context.Context, sel domain.DeviceSelection) error {
	c.mu.Lock()
	if err := c.transition(domain.EventOpenCalibration); err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.gen
	c.selection = sel
	c.mu.Unlock()

	stream, err := c.capture(ctx, sel, c.adapter.SelectConstraints(1))
	if err != nil {
		c.abortCalibration(gen)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		stream.Stop()
		return apperrors.NewConflictError("calibration was closed before capture completed")
	}
	c.res.SetCalibration(stream)
	c.mu.Unlock()

	if err := c.meter.Start(stream); err != nil {
		c.logger.Warnw("audio level meter unavailable", "stream_id", stream.ID(), "error", err)
	}

	// labels appear only after permission was granted
	if list, err := c.catalog.ListDevices(ctx); err == nil {
		c.logger.Infow("calibration opened",
			"stream_id", stream.ID(),
			"cameras", len(list.Cameras),
			"microphones", len(list.Microphones),
			"labelled", list.Labelled(),
		)
	}
	return nil
}

func (c *SessionController) abortCalibration(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.state == domain.SessionCalibrating {
		_ = c.transition(domain.EventCloseCalibration)
	}
}

// CloseCalibration stops the meter and the calibration tracks. No-op outside calibration.
func (c *SessionController) CloseCalibration() {
	c.mu.Lock()
	if c.state != domain.SessionCalibrating {
		c.mu.Unlock()
		return
	}
	_ = c.transition(domain.EventCloseCalibration)
	c.mu.Unlock()

	c.res.ReleaseCalibration()
	c.logger.Infow("calibration closed")
}

func (c *SessionController) AudioLevels() (<-chan float64, func()) {
	return c.meter.Levels()
}

// StartCall resolves the room, hands the devices over from calibration to the
// call, joins the session surface and starts adapting constraints.
func (c *SessionController) StartCall(ctx context.Context, roomID domain.ConferenceID, displayName string) (*domain.Conference, error) {
	ctx, span := tracing.TraceSession(ctx, "start_call", string(roomID))
	defer span.End()

	conf, err := c.startCall(ctx, roomID, displayName)
	tracing.RecordError(ctx, err)
	return conf, err
}

func (c *SessionController) startCall(ctx context.Context, roomID domain.ConferenceID, displayName string) (*domain.Conference, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = c.identity.DisplayName
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	c.mu.Lock()
	if err := c.transition(domain.EventStartCall); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	gen := c.gen
	sel := c.selection
	c.mu.Unlock()

	// the call owns the devices from here on
	c.res.ReleaseCalibration()

	conf, err := c.conferences.Join(ctx, roomID)
	if err != nil {
		c.failJoin(gen)
		return nil, err
	}

	bundle := c.adapter.SelectFor(c.conferences.ParticipantCount(conf.ID), c.monitor.Current())
	stream, err := c.capture(ctx, sel, bundle)
	if err != nil {
		c.failJoin(gen)
		return nil, err
	}
	c.adapter.Record(stream, bundle)

	handle, err := c.surface.Join(ctx, conf.ID, displayName)
	if err != nil {
		stream.Stop()
		c.adapter.Forget(stream.ID())
		c.failJoin(gen)
		c.logger.Warnw("session surface join failed", "conference_id", conf.ID, "error", err)
		return nil, apperrors.NewSurfaceError(err).WithContext("conference_id", string(conf.ID))
	}

	c.mu.Lock()
	if c.gen != gen {
		// EndCall ran while joining
		c.mu.Unlock()
		stream.Stop()
		c.adapter.Forget(stream.ID())
		_ = c.surface.Leave(context.WithoutCancel(ctx), handle)
		return nil, apperrors.WrapError(domain.ErrNoActiveCall, apperrors.ErrCodeConflict,
			"call was ended while joining", http.StatusConflict)
	}
	c.conf = conf
	c.res.AttachCall(stream, c.surface, handle)
	// samplers are owned by the resources before EndCall can observe in_call
	c.monitor.Start(context.Background())
	c.startReapplyLoop(conf.ID, stream, handle)
	_ = c.transition(domain.EventJoined)
	c.mu.Unlock()

	c.logger.Infow("call started",
		"conference_id", conf.ID,
		"display_name", displayName,
		"tier", bundle.Tier,
		"video", stream.HasVideo(),
	)
	return conf, nil
}

func (c *SessionController) failJoin(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.state == domain.SessionJoining {
		_ = c.transition(domain.EventJoinFailed)
	}
}

// capture requests audio and, when possible, video. A missing or busy camera
// degrades to audio-only instead of failing.
func (c *SessionController) capture(ctx context.Context, sel domain.DeviceSelection, bundle domain.ConstraintBundle) (ports.MediaStream, error) {
	list, listErr := c.catalog.ListDevices(ctx)
	if apperrors.HasCode(listErr, apperrors.ErrCodePermissionDenied) {
		return nil, listErr
	}
	if listErr == nil {
		if _, err := c.catalog.Validate(list); err != nil {
			return nil, err
		}
		if !c.catalog.Contains(list, domain.DeviceMicrophone, sel.MicrophoneID) {
			return nil, apperrors.NewDeviceUnavailableError("selected microphone is not connected").
				WithContext("microphone_id", sel.MicrophoneID)
		}
		if !sel.AudioOnly && !c.catalog.Contains(list, domain.DeviceCamera, sel.CameraID) {
			return nil, apperrors.NewDeviceUnavailableError("selected camera is not connected").
				WithContext("camera_id", sel.CameraID)
		}
	}
	// enumeration can fail where capture still works, so only a successful
	// listing is trusted to rule the camera out
	wantVideo := !sel.AudioOnly && (listErr != nil || list.Readiness() == domain.ReadyAudioVideo)

	req := ports.CaptureRequest{Selection: sel, Bundle: bundle, Audio: true, Video: wantVideo}
	stream, err := c.capturer.Capture(ctx, req)
	if err != nil && wantVideo && errors.Is(err, domain.ErrDeviceUnavailable) {
		c.logger.Warnw("camera unavailable, continuing audio-only", "error", err)
		req.Video = false
		stream, err = c.capturer.Capture(ctx, req)
	}
	if err != nil {
		return nil, classifyCaptureError(err)
	}
	return stream, nil
}

func classifyCaptureError(err error) error {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return apperrors.NewPermissionDeniedError(err)
	case errors.Is(err, domain.ErrDeviceUnavailable), errors.Is(err, domain.ErrNoDevices):
		return apperrors.WrapDeviceUnavailableError(err, "capture device unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.WrapError(err, apperrors.ErrCodePermissionDenied,
			"capture request was abandoned before permission was granted", http.StatusRequestTimeout)
	default:
		return apperrors.WrapDeviceUnavailableError(err, "capture failed")
	}
}

func (c *SessionController) startReapplyLoop(id domain.ConferenceID, stream ports.MediaStream, handle ports.SessionHandle) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	netCh, stopNet := c.monitor.Changes()
	events, stopEvents := c.conferences.Subscribe(16)

	c.res.OnDispose(stopNet)
	c.res.OnDispose(stopEvents)
	c.res.AttachLoop(cancel, done)

	go c.reapplyLoop(ctx, done, id, stream, handle, netCh, events)
}

// reapplyLoop is the only goroutine that applies constraints during a call.
// Every apply reads the latest count and network class at that moment.
func (c *SessionController) reapplyLoop(
	ctx context.Context,
	done chan struct{},
	id domain.ConferenceID,
	stream ports.MediaStream,
	handle ports.SessionHandle,
	netCh <-chan domain.NetworkQuality,
	events <-chan domain.ConferenceEvent,
) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("reapply loop panicked", "conference_id", id, "panic", r)
		}
	}()

	counts := handle.ParticipantCounts()
	surfaceDone := handle.Done()

	// a stream that could not be reopened ends the call
	leave := func() {
		c.logger.Errorw("capture stream lost, leaving call", "conference_id", id, "stream_id", stream.ID())
		go c.teardown(context.Background(), false)
	}

	if !c.reapply(ctx, id, stream) {
		leave()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-counts:
			if !ok {
				counts = nil
				continue
			}
			c.conferences.UpdateParticipantCount(id, n)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.ConferenceID != id {
				continue
			}
			switch ev.Type {
			case domain.EventParticipantsChanged:
				if !c.reapply(ctx, id, stream) {
					leave()
					return
				}
			case domain.EventConferenceEnded:
				c.logger.Infow("conference ended elsewhere, leaving call", "conference_id", id)
				go c.teardown(context.Background(), false)
				return
			}
		case _, ok := <-netCh:
			if !ok {
				netCh = nil
				continue
			}
			if !c.reapply(ctx, id, stream) {
				leave()
				return
			}
		case <-surfaceDone:
			c.logger.Warnw("session surface dropped the call", "conference_id", id)
			go c.teardown(context.Background(), false)
			return
		}
	}
}

// reapply reports false once the stream is gone. Other failures are soft and
// the stream keeps its previous settings.
func (c *SessionController) reapply(ctx context.Context, id domain.ConferenceID, stream ports.MediaStream) bool {
	bundle := c.adapter.SelectFor(c.conferences.ParticipantCount(id), c.monitor.Current())
	_, err := c.adapter.Apply(ctx, stream, bundle)
	return !errors.Is(err, domain.ErrStreamClosed)
}

// EndCall tears the call down. The creator also ends the conference, which
// archives it into history; everyone else just leaves.
func (c *SessionController) EndCall(ctx context.Context) error {
	var room string
	c.mu.Lock()
	if c.conf != nil {
		room = string(c.conf.ID)
	}
	c.mu.Unlock()

	ctx, span := tracing.TraceSession(ctx, "end_call", room)
	defer span.End()

	err := c.teardown(ctx, true)
	tracing.RecordError(ctx, err)
	return err
}

func (c *SessionController) teardown(ctx context.Context, endConference bool) error {
	c.mu.Lock()
	if c.state != domain.SessionInCall && c.state != domain.SessionJoining {
		c.mu.Unlock()
		if endConference {
			return apperrors.WrapError(domain.ErrNoActiveCall, apperrors.ErrCodeConflict,
				domain.ErrNoActiveCall.Error(), http.StatusConflict)
		}
		return nil
	}
	_ = c.transition(domain.EventEndCall)
	conf := c.conf
	c.conf = nil
	c.mu.Unlock()

	disposeErr := c.res.Dispose(ctx)

	var endErr error
	if endConference && conf != nil && c.conferences.IsCreator(conf.ID) {
		if _, err := c.conferences.End(ctx, conf.ID); err != nil && !apperrors.HasCode(err, apperrors.ErrCodeConflict) {
			c.logger.Warnw("ending conference failed", "conference_id", conf.ID, "error", err)
			endErr = err
		}
	}

	c.mu.Lock()
	if c.state == domain.SessionEnded {
		_ = c.transition(domain.EventReset)
	}
	c.mu.Unlock()

	if conf != nil {
		c.logger.Infow("call ended", "conference_id", conf.ID, "archived", endConference && endErr == nil && c.conferences.IsCreator(conf.ID))
	}
	if endErr != nil {
		return endErr
	}
	if disposeErr != nil {
		return apperrors.NewSurfaceError(disposeErr)
	}
	return nil
}

func (c *SessionController) Snapshot() domain.SessionSnapshot {
	c.mu.Lock()
	snap := domain.SessionSnapshot{
		State:   c.state,
		Network: c.monitor.Current(),
	}
	conf := c.conf
	c.mu.Unlock()

	if conf != nil {
		snap.ConferenceID = conf.ID
		snap.Participants = c.conferences.ParticipantCount(conf.ID)
	}
	if stream := c.res.CallStream(); stream != nil {
		if b, ok := c.adapter.Applied(stream.ID()); ok {
			snap.Constraints = &b
		}
	}
	snap.AudioLevel = c.meter.Level()
	return snap
}

func (c *SessionController) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases everything regardless of state.
func (c *SessionController) Close() {
	if err := c.teardown(context.Background(), true); err != nil && !errors.Is(err, domain.ErrNoActiveCall) {
		c.logger.Warnw("teardown on close failed", "error", err)
	}
	c.CloseCalibration()
	_ = c.res.Dispose(context.Background())
}
