package media

import (
	"context"
	"fmt"
	"sync"

	"confline/internal/core/domain"
	"confline/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/audio"
)

// ringCapacity bounds how much audio a reader keeps; comfortably above the largest FFT window.
const ringCapacity = 32768

type audioSource interface {
	NewReader(copyChunk bool) audio.Reader
}

type stream struct {
	id       string
	capturer *Capturer

	mu      sync.Mutex
	raw     mediadevices.MediaStream
	req     ports.CaptureRequest
	readers []*audioReader
	stopped bool
}

func newStream(c *Capturer, raw mediadevices.MediaStream, req ports.CaptureRequest) *stream {
	return &stream{
		id:       uuid.New().String(),
		capturer: c,
		raw:      raw,
		req:      req,
	}
}

func (s *stream) ID() string { return s.id }

func (s *stream) HasVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.raw.GetVideoTracks()) > 0
}

func (s *stream) HasAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.raw.GetAudioTracks()) > 0
}

// ApplyConstraints reopens the tracks with bundle. Drivers cannot renegotiate
// a live track, and most cameras refuse a second open, so the old tracks are
// closed first and reopened with the previous bundle if the new one fails.
func (s *stream) ApplyConstraints(ctx context.Context, bundle domain.ConstraintBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return domain.ErrStreamClosed
	}
	if s.req.Bundle == bundle {
		return nil
	}

	next := s.req
	next.Bundle = bundle

	closeTracks(s.raw)
	raw, err := s.capturer.acquire(ctx, streamConstraints(next))
	if err == nil {
		s.swap(raw, next)
		return nil
	}

	restored, restoreErr := s.capturer.acquire(context.Background(), streamConstraints(s.req))
	if restoreErr != nil {
		s.capturer.logger.Warnw("capture stream lost while applying constraints",
			"stream_id", s.id,
			"error", err,
			"restore_error", restoreErr,
		)
		s.stopLocked()
		return fmt.Errorf("%w: %v", domain.ErrStreamClosed, restoreErr)
	}
	s.swap(restored, s.req)
	return fmt.Errorf("%w: %v", domain.ErrConstraintsFailed, err)
}

func (s *stream) swap(raw mediadevices.MediaStream, req ports.CaptureRequest) {
	s.raw = raw
	s.req = req

	src := audioSourceOf(raw)
	for _, r := range s.readers {
		if src != nil {
			r.bind(src.NewReader(false))
		}
	}
}

func (s *stream) AudioReader() (ports.AudioFrameReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, domain.ErrStreamClosed
	}
	src := audioSourceOf(s.raw)
	if src == nil {
		return nil, fmt.Errorf("%w: stream has no audio track", domain.ErrDeviceUnavailable)
	}

	r := newAudioReader(ringCapacity)
	r.bind(src.NewReader(false))
	s.readers = append(s.readers, r)
	return r, nil
}

func (s *stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *stream) stopLocked() {
	if s.stopped {
		return
	}
	s.stopped = true
	for _, r := range s.readers {
		_ = r.Close()
	}
	s.readers = nil
	closeTracks(s.raw)
}

func audioSourceOf(raw mediadevices.MediaStream) audioSource {
	for _, t := range raw.GetAudioTracks() {
		if src, ok := t.(audioSource); ok {
			return src
		}
	}
	return nil
}
