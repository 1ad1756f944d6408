package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"confline/internal/core/domain"
	"confline/internal/core/ports"

	"github.com/stretchr/testify/mock"
)

type MockDirectoryStore struct {
	mock.Mock
}

func (m *MockDirectoryStore) Create(ctx context.Context, conf *domain.Conference) error {
	args := m.Called(ctx, conf)
	return args.Error(0)
}

func (m *MockDirectoryStore) List(ctx context.Context) ([]*domain.Conference, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conference), args.Error(1)
}

func (m *MockDirectoryStore) Get(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// hand out a copy so the service cannot mutate the fixture
	return args.Get(0).(*domain.Conference).Clone(), args.Error(1)
}

func (m *MockDirectoryStore) Join(ctx context.Context, id domain.ConferenceID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDirectoryStore) SetFavorite(ctx context.Context, id domain.ConferenceID, favorite bool) error {
	args := m.Called(ctx, id, favorite)
	return args.Error(0)
}

func (m *MockDirectoryStore) End(ctx context.Context, id domain.ConferenceID, durationSeconds int64) error {
	args := m.Called(ctx, id, durationSeconds)
	return args.Error(0)
}

type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Append(ctx context.Context, conf *domain.Conference) error {
	args := m.Called(ctx, conf)
	return args.Error(0)
}

func (m *MockHistoryStore) List(ctx context.Context) ([]*domain.Conference, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conference), args.Error(1)
}

func (m *MockHistoryStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type fakeEnumerator struct {
	devices []domain.DeviceDescriptor
	err     error
}

func (f *fakeEnumerator) EnumerateDevices(ctx context.Context) ([]domain.DeviceDescriptor, error) {
	return f.devices, f.err
}

func defaultDevices() []domain.DeviceDescriptor {
	return []domain.DeviceDescriptor{
		{ID: "cam-1", Label: "Integrated Camera", Kind: domain.DeviceCamera},
		{ID: "mic-1", Label: "Built-in Microphone", Kind: domain.DeviceMicrophone},
	}
}

// fakeReader produces a sine wave of the given amplitude.
type fakeReader struct {
	mu        sync.Mutex
	amplitude float64
	phase     int
	closed    bool
	err       error
}

func (r *fakeReader) ReadSamples(dst []float64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, domain.ErrStreamClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	for i := range dst {
		dst[i] = r.amplitude * math.Sin(2*math.Pi*float64(r.phase)/37)
		r.phase++
	}
	return len(dst), nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeStream struct {
	id    string
	video bool
	audio bool

	mu       sync.Mutex
	applied  []domain.ConstraintBundle
	applyErr error
	stops    int
	reader   *fakeReader
}

func newFakeStream(id string, video bool) *fakeStream {
	return &fakeStream{id: id, video: video, audio: true, reader: &fakeReader{amplitude: 0.5}}
}

func (s *fakeStream) ID() string     { return s.id }
func (s *fakeStream) HasVideo() bool { return s.video }
func (s *fakeStream) HasAudio() bool { return s.audio }

func (s *fakeStream) ApplyConstraints(ctx context.Context, bundle domain.ConstraintBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, bundle)
	return nil
}

func (s *fakeStream) AudioReader() (ports.AudioFrameReader, error) {
	if !s.audio {
		return nil, errors.New("no audio track")
	}
	return s.reader, nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *fakeStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops > 0
}

func (s *fakeStream) Applied() []domain.ConstraintBundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ConstraintBundle(nil), s.applied...)
}

func (s *fakeStream) SetApplyErr(err error) {
	s.mu.Lock()
	s.applyErr = err
	s.mu.Unlock()
}

// fakeCapturer hands out fresh fakeStreams and records every request.
type fakeCapturer struct {
	mu       sync.Mutex
	requests []ports.CaptureRequest
	streams  []*fakeStream
	// errFor returns an error for a request, nil to succeed
	errFor func(req ports.CaptureRequest) error
}

func (c *fakeCapturer) Capture(ctx context.Context, req ports.CaptureRequest) (ports.MediaStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.errFor != nil {
		if err := c.errFor(req); err != nil {
			return nil, err
		}
	}
	s := newFakeStream(fmt.Sprintf("stream-%d", len(c.streams)+1), req.Video)
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeCapturer) Stream(i int) *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[i]
}

func (c *fakeCapturer) Requests() []ports.CaptureRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.CaptureRequest(nil), c.requests...)
}

// scriptedProvider returns queued readings, then repeats the last one.
type scriptedProvider struct {
	mu       sync.Mutex
	readings []providerReading
}

type providerReading struct {
	info domain.ConnectionInfo
	err  error
}

func (p *scriptedProvider) Push(info domain.ConnectionInfo, err error) {
	p.mu.Lock()
	p.readings = append(p.readings, providerReading{info, err})
	p.mu.Unlock()
}

// Set drops any queued readings and repeats this one.
func (p *scriptedProvider) Set(info domain.ConnectionInfo, err error) {
	p.mu.Lock()
	p.readings = []providerReading{{info, err}}
	p.mu.Unlock()
}

func (p *scriptedProvider) ConnectionInfo(ctx context.Context) (domain.ConnectionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.readings) == 0 {
		return domain.ConnectionInfo{}, domain.ErrTelemetryUnavailable
	}
	r := p.readings[0]
	if len(p.readings) > 1 {
		p.readings = p.readings[1:]
	}
	return r.info, r.err
}

type fakeHandle struct {
	room   domain.ConferenceID
	counts chan int
	done   chan struct{}
	once   sync.Once
}

func (h *fakeHandle) RoomID() domain.ConferenceID    { return h.room }
func (h *fakeHandle) ParticipantCounts() <-chan int { return h.counts }
func (h *fakeHandle) Done() <-chan struct{}         { return h.done }
func (h *fakeHandle) Drop()                         { h.once.Do(func() { close(h.done) }) }

type fakeSurface struct {
	mu      sync.Mutex
	joinErr error
	handles []*fakeHandle
	left    []domain.ConferenceID
	// onJoin runs after a successful join, before the handle is returned
	onJoin func()
}

func (s *fakeSurface) Join(ctx context.Context, roomID domain.ConferenceID, displayName string) (ports.SessionHandle, error) {
	s.mu.Lock()
	if s.joinErr != nil {
		s.mu.Unlock()
		return nil, s.joinErr
	}
	h := &fakeHandle{room: roomID, counts: make(chan int, 8), done: make(chan struct{})}
	s.handles = append(s.handles, h)
	onJoin := s.onJoin
	s.mu.Unlock()

	if onJoin != nil {
		onJoin()
	}
	return h, nil
}

func (s *fakeSurface) Leave(ctx context.Context, handle ports.SessionHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, handle.RoomID())
	return nil
}

func (s *fakeSurface) Handle(i int) *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[i]
}

func (s *fakeSurface) Left() []domain.ConferenceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ConferenceID(nil), s.left...)
}

// recordingMetrics is a no-op MetricsRecorder that remembers apply outcomes.
type recordingMetrics struct {
	mu      sync.Mutex
	applies map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{applies: make(map[string]int)}
}

func (r *recordingMetrics) SetNetworkQuality(domain.NetworkQuality) {}
func (r *recordingMetrics) SetConstraintTier(domain.QualityTier)    {}
func (r *recordingMetrics) SetAudioLevel(float64)                   {}
func (r *recordingMetrics) SetParticipants(int)                     {}
func (r *recordingMetrics) IncConferenceEvent(domain.EventType)     {}
func (r *recordingMetrics) ObserveDirectoryRequest(string, string, float64) {
}
func (r *recordingMetrics) SetCircuitState(string, int) {}

func (r *recordingMetrics) IncConstraintApply(result string) {
	r.mu.Lock()
	r.applies[result]++
	r.mu.Unlock()
}

func (r *recordingMetrics) Applies(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applies[result]
}
