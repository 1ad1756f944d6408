package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"confline/internal/core/ports"

	"go.uber.org/zap"
)

// AudioLevelMeter samples a microphone track once per frame interval and
// publishes a loudness value in [0,100] for the calibration view.
type AudioLevelMeter struct {
	fftSize  int
	interval time.Duration
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	levels *broadcaster[float64]
	level  atomic.Uint64 // math.Float64bits

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAudioLevelMeter(fftSize int, interval time.Duration, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *AudioLevelMeter {
	return &AudioLevelMeter{
		fftSize:  fftSize,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		levels:   newBroadcaster[float64](),
	}
}

// Start begins sampling the audio track of stream. A sampler already running
// on a previous stream is stopped first.
func (m *AudioLevelMeter) Start(stream ports.MediaStream) error {
	if !stream.HasAudio() {
		return fmt.Errorf("stream %s has no audio track", stream.ID())
	}

	m.Stop()

	reader, err := stream.AudioReader()
	if err != nil {
		return fmt.Errorf("failed to open audio reader: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.sample(ctx, reader, done)

	m.logger.Debugw("audio level meter started", "stream_id", stream.ID())
	return nil
}

// Stop halts sampling and releases the reader. Safe to call at any time, any number of times.
func (m *AudioLevelMeter) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.storeLevel(0)
	m.logger.Debugw("audio level meter stopped")
}

// Running reports whether a sampler is active.
func (m *AudioLevelMeter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Level returns the most recent loudness value.
func (m *AudioLevelMeter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Levels subscribes to level updates. Slow readers only ever see the latest value.
func (m *AudioLevelMeter) Levels() (<-chan float64, func()) {
	return m.levels.Subscribe(1)
}

func (m *AudioLevelMeter) sample(ctx context.Context, reader ports.AudioFrameReader, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := reader.Close(); err != nil {
			m.logger.Debugw("audio reader close failed", "error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("audio level sampler panicked", "panic", r)
		}
	}()

	analyser := newSpectrumAnalyser(m.fftSize)
	frame := make([]float64, m.fftSize)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := reader.ReadSamples(frame)
			if err != nil {
				m.logger.Warnw("audio sampling stopped", "error", err)
				return
			}
			for i := n; i < len(frame); i++ {
				frame[i] = 0
			}
			m.storeLevel(LevelFromBins(analyser.Analyse(frame)))
		}
	}
}

func (m *AudioLevelMeter) storeLevel(level float64) {
	m.level.Store(math.Float64bits(level))
	m.levels.Publish(level)
	if m.metrics != nil {
		m.metrics.SetAudioLevel(level)
	}
}
