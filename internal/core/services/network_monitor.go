package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	"confline/pkg/utils"

	"go.uber.org/zap"
)

// NetworkQualityMonitor periodically samples connection telemetry and keeps the
// current network class. It is the only writer of that class.
type NetworkQualityMonitor struct {
	provider ports.ConnectionInfoProvider
	interval time.Duration
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	mu     sync.RWMutex
	latest domain.NetworkSample

	changes *broadcaster[domain.NetworkQuality]

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewNetworkQualityMonitor(
	provider ports.ConnectionInfoProvider,
	interval time.Duration,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *NetworkQualityMonitor {
	return &NetworkQualityMonitor{
		provider: provider,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		latest:   domain.NetworkSample{Quality: domain.NetworkHigh},
		changes:  newBroadcaster[domain.NetworkQuality](),
	}
}

// Start samples once right away and then every interval until Stop or ctx is done.
// Calling Start on a running monitor is a no-op.
func (m *NetworkQualityMonitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx, m.done)
	m.logger.Infow("network quality monitor started", "interval", m.interval)
}

// Stop cancels the sampler and waits for it to exit. Idempotent.
func (m *NetworkQualityMonitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Infow("network quality monitor stopped")
}

func (m *NetworkQualityMonitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.cancel != nil
}

// Current returns the freshest classification.
func (m *NetworkQualityMonitor) Current() domain.NetworkQuality {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest.Quality
}

func (m *NetworkQualityMonitor) LatestSample() domain.NetworkSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Changes subscribes to classification changes. Only the latest unseen value is kept.
func (m *NetworkQualityMonitor) Changes() (<-chan domain.NetworkQuality, func()) {
	return m.changes.Subscribe(1)
}

func (m *NetworkQualityMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.SampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SampleOnce(ctx)
		}
	}
}

// SampleOnce takes one reading. Without telemetry the previous class is kept,
// so the monitor never downgrades on missing data. Returns whether the class changed.
func (m *NetworkQualityMonitor) SampleOnce(ctx context.Context) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("network sampler panicked", "panic", r)
			changed = false
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	info, err := m.provider.ConnectionInfo(probeCtx)
	cancel()

	if err != nil {
		if !errors.Is(err, domain.ErrTelemetryUnavailable) && ctx.Err() == nil {
			m.logger.Warnw("connection telemetry read failed", "error", err)
		}
		m.mu.Lock()
		m.latest.TelemetryValid = false
		m.latest.TakenAt = utils.Now()
		m.mu.Unlock()
		return false
	}

	sample := domain.NetworkSample{
		Info:           info,
		Quality:        domain.ClassifyConnection(info),
		TakenAt:        utils.Now(),
		TelemetryValid: true,
	}

	m.mu.Lock()
	previous := m.latest.Quality
	m.latest = sample
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetNetworkQuality(sample.Quality)
	}

	if sample.Quality == previous {
		return false
	}

	m.logger.Infow("network quality changed",
		"from", previous,
		"to", sample.Quality,
		"downlink_mbps", info.DownlinkMbps,
		"effective_type", info.EffectiveType,
	)
	m.changes.Publish(sample.Quality)
	return true
}
