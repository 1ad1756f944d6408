package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/ports"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDriver struct {
	mu      sync.Mutex
	devices []mediadevices.MediaDeviceInfo
	calls   []mediadevices.MediaStreamConstraints
	errs    []error // consumed one per call, nil entries succeed
	block   chan struct{}
}

func (d *fakeDriver) EnumerateDevices() []mediadevices.MediaDeviceInfo {
	return d.devices
}

func (d *fakeDriver) GetUserMedia(c mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
	if d.block != nil {
		<-d.block
	}

	d.mu.Lock()
	d.calls = append(d.calls, c)
	var err error
	if len(d.errs) > 0 {
		err, d.errs = d.errs[0], d.errs[1:]
	}
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return mediadevices.NewMediaStream()
}

func (d *fakeDriver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func newTestCapturer(d *fakeDriver) *Capturer {
	return NewCapturer(d, zap.NewNop().Sugar())
}

func TestEnumerateDevices_MapsKinds(t *testing.T) {
	d := &fakeDriver{devices: []mediadevices.MediaDeviceInfo{
		{DeviceID: "video0", Label: "Integrated Camera", Kind: mediadevices.VideoInput},
		{DeviceID: "hw:0", Label: "", Kind: mediadevices.AudioInput},
	}}

	got, err := newTestCapturer(d).EnumerateDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.DeviceDescriptor{
		{ID: "video0", Label: "Integrated Camera", Kind: domain.DeviceCamera},
		{ID: "hw:0", Kind: domain.DeviceMicrophone},
	}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestCapturer(d).EnumerateDevices(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamConstraints(t *testing.T) {
	req := ports.CaptureRequest{
		Selection: domain.DeviceSelection{CameraID: "video0"},
		Bundle:    domain.BundleFor(domain.Tier1),
		Video:     true,
		Audio:     true,
	}

	sc := streamConstraints(req)
	require.NotNil(t, sc.Video)
	require.NotNil(t, sc.Audio)

	var video mediadevices.MediaTrackConstraints
	sc.Video(&video)
	assert.Equal(t, prop.StringExact("video0"), video.DeviceID)
	assert.Equal(t, prop.IntRanged{Ideal: 1280, Max: 1920}, video.Width)
	assert.Equal(t, prop.IntRanged{Ideal: 720, Max: 1080}, video.Height)
	assert.Equal(t, prop.FloatRanged{Ideal: 30, Max: 30}, video.FrameRate)

	var mic mediadevices.MediaTrackConstraints
	sc.Audio(&mic)
	assert.Nil(t, mic.DeviceID, "empty id means default device")
	assert.Equal(t, prop.Int(48000), mic.SampleRate)
	assert.Equal(t, prop.Int(1), mic.ChannelCount)

	req.Video = false
	assert.Nil(t, streamConstraints(req).Video)
}

func TestClassifyDriverError(t *testing.T) {
	assert.ErrorIs(t, classifyDriverError(errors.New("open /dev/video0: permission denied")), domain.ErrPermissionDenied)
	assert.ErrorIs(t, classifyDriverError(errors.New("device or resource busy")), domain.ErrDeviceUnavailable)
	assert.ErrorIs(t, classifyDriverError(errors.New("failed to find the best driver that fits the constraints")), domain.ErrDeviceUnavailable)
}

func TestCapture(t *testing.T) {
	d := &fakeDriver{}
	c := newTestCapturer(d)

	s, err := c.Capture(context.Background(), ports.CaptureRequest{Bundle: domain.BundleFor(domain.Tier2), Audio: true})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.False(t, s.HasVideo())

	_, err = c.Capture(context.Background(), ports.CaptureRequest{})
	assert.ErrorIs(t, err, domain.ErrNoDevices)

	d.errs = []error{errors.New("permission denied")}
	_, err = c.Capture(context.Background(), ports.CaptureRequest{Audio: true})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestCapture_HonoursCancellation(t *testing.T) {
	d := &fakeDriver{block: make(chan struct{})}
	c := newTestCapturer(d)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Capture(ctx, ports.CaptureRequest{Audio: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(d.block)
	assert.Eventually(t, func() bool { return d.Calls() == 1 }, time.Second, 5*time.Millisecond)
}

func TestApplyConstraints(t *testing.T) {
	d := &fakeDriver{}
	c := newTestCapturer(d)
	req := ports.CaptureRequest{Bundle: domain.BundleFor(domain.Tier1), Audio: true, Video: true}

	s, err := c.Capture(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, d.Calls())

	t.Run("same bundle is a no-op", func(t *testing.T) {
		require.NoError(t, s.ApplyConstraints(context.Background(), domain.BundleFor(domain.Tier1)))
		assert.Equal(t, 1, d.Calls())
	})

	t.Run("new bundle reopens tracks", func(t *testing.T) {
		require.NoError(t, s.ApplyConstraints(context.Background(), domain.BundleFor(domain.Tier3)))
		assert.Equal(t, 2, d.Calls())
	})

	t.Run("rejected bundle restores the previous one", func(t *testing.T) {
		d.errs = []error{errors.New("unsupported resolution")}
		err := s.ApplyConstraints(context.Background(), domain.BundleFor(domain.Tier4))
		assert.ErrorIs(t, err, domain.ErrConstraintsFailed)
		assert.Equal(t, 4, d.Calls())

		// still on tier 3, so re-applying it costs nothing
		require.NoError(t, s.ApplyConstraints(context.Background(), domain.BundleFor(domain.Tier3)))
		assert.Equal(t, 4, d.Calls())
	})

	t.Run("failed restore closes the stream", func(t *testing.T) {
		d.errs = []error{errors.New("unsupported"), errors.New("device busy")}
		err := s.ApplyConstraints(context.Background(), domain.BundleFor(domain.Tier4))
		assert.ErrorIs(t, err, domain.ErrStreamClosed)

		_, err = s.AudioReader()
		assert.ErrorIs(t, err, domain.ErrStreamClosed)
		s.Stop()
	})
}

func TestAudioReader_NoAudioTrack(t *testing.T) {
	s, err := newTestCapturer(&fakeDriver{}).Capture(context.Background(), ports.CaptureRequest{Audio: true})
	require.NoError(t, err)

	_, err = s.AudioReader()
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
}

func int16Chunk(channels int, frames ...int16) wave.Audio {
	a := wave.NewInt16Interleaved(wave.ChunkInfo{Len: len(frames), Channels: channels, SamplingRate: 48000})
	for i, v := range frames {
		for ch := 0; ch < channels; ch++ {
			a.SetInt16(i, ch, wave.Int16Sample(v))
		}
	}
	return a
}

func chunkSource(chunks chan wave.Audio) audio.Reader {
	return audio.ReaderFunc(func() (wave.Audio, func(), error) {
		c, ok := <-chunks
		if !ok {
			return nil, nil, errors.New("track ended")
		}
		return c, func() {}, nil
	})
}

func TestAudioReader_RingKeepsNewest(t *testing.T) {
	chunks := make(chan wave.Audio, 4)
	r := newAudioReader(4)
	r.bind(chunkSource(chunks))

	chunks <- int16Chunk(1, 0, 16384, -16384)
	chunks <- int16Chunk(2, 8192, 8192, 0)

	dst := make([]float64, 8)
	assert.Eventually(t, func() bool {
		n, _ := r.ReadSamples(dst)
		return n == 4
	}, time.Second, 5*time.Millisecond)

	n, err := r.ReadSamples(dst[:3])
	require.NoError(t, err)
	require.Equal(t, 3, n)
	assert.InDelta(t, 0.25, dst[0], 1e-3)
	assert.InDelta(t, 0.25, dst[1], 1e-3)
	assert.InDelta(t, 0.0, dst[2], 1e-3)

	close(chunks)
	require.NoError(t, r.Close())
	_, err = r.ReadSamples(dst)
	assert.ErrorIs(t, err, domain.ErrStreamClosed)
}

func TestAudioReader_SurfacesSourceError(t *testing.T) {
	chunks := make(chan wave.Audio)
	close(chunks)

	r := newAudioReader(8)
	r.bind(chunkSource(chunks))

	assert.Eventually(t, func() bool {
		_, err := r.ReadSamples(make([]float64, 4))
		return err != nil
	}, time.Second, 5*time.Millisecond)
}
