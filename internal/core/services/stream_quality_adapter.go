package services

import (
	"context"
	"sync"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	apperrors "confline/pkg/errors"

	"go.uber.org/zap"
)

// StreamQualityAdapter maps participant count and network class onto a
// constraint bundle and applies it to capture streams.
type StreamQualityAdapter struct {
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	applied map[string]domain.ConstraintBundle
}

func NewStreamQualityAdapter(metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *StreamQualityAdapter {
	return &StreamQualityAdapter{
		metrics: metrics,
		logger:  logger,
		applied: make(map[string]domain.ConstraintBundle),
	}
}

// SelectConstraints is a pure step function of the participant count.
func (a *StreamQualityAdapter) SelectConstraints(participants int) domain.ConstraintBundle {
	return domain.BundleFor(domain.TierForParticipants(participants))
}

// SelectFor applies the network floor on top of the participant tier. The
// network class can only make the profile coarser.
func (a *StreamQualityAdapter) SelectFor(participants int, network domain.NetworkQuality) domain.ConstraintBundle {
	tier := domain.TierForParticipants(participants)
	if floor := network.MinimumTier(); floor > tier {
		tier = floor
	}
	return domain.BundleFor(tier)
}

// Record marks bundle as the settings stream was captured with.
func (a *StreamQualityAdapter) Record(stream ports.MediaStream, bundle domain.ConstraintBundle) {
	a.mu.Lock()
	a.applied[stream.ID()] = bundle
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.SetConstraintTier(bundle.Tier)
	}
}

// Apply switches stream to bundle. Re-applying the bundle currently in effect
// does nothing and reports false. A device that rejects the profile yields a
// ConstraintApplyFailure; the stream keeps its previous settings and callers
// are expected to log and carry on.
func (a *StreamQualityAdapter) Apply(ctx context.Context, stream ports.MediaStream, bundle domain.ConstraintBundle) (bool, error) {
	id := stream.ID()

	a.mu.Lock()
	current, ok := a.applied[id]
	a.mu.Unlock()
	if ok && current == bundle {
		return false, nil
	}

	if err := stream.ApplyConstraints(ctx, bundle); err != nil {
		a.logger.Warnw("constraint apply failed, keeping previous settings",
			"stream_id", id,
			"tier", bundle.Tier,
			"error", err,
		)
		if a.metrics != nil {
			a.metrics.IncConstraintApply("failed")
		}
		return false, apperrors.NewConstraintApplyError(err).WithContext("tier", int(bundle.Tier))
	}

	a.mu.Lock()
	a.applied[id] = bundle
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.IncConstraintApply("applied")
		a.metrics.SetConstraintTier(bundle.Tier)
	}
	a.logger.Infow("constraints applied",
		"stream_id", id,
		"tier", bundle.Tier,
		"width", bundle.Video.Ideal.Width,
		"height", bundle.Video.Ideal.Height,
		"frame_rate", bundle.Video.FrameRate,
		"sample_rate", bundle.Audio.SampleRate,
	)
	return true, nil
}

// Applied returns the bundle last applied to the stream with the given id.
func (a *StreamQualityAdapter) Applied(streamID string) (domain.ConstraintBundle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.applied[streamID]
	return b, ok
}

// Forget drops bookkeeping for a stopped stream.
func (a *StreamQualityAdapter) Forget(streamID string) {
	a.mu.Lock()
	delete(a.applied, streamID)
	a.mu.Unlock()
}
