package media

import (
	"math"
	"sync"

	"confline/internal/core/domain"

	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/wave"
)

// audioReader pumps chunks from a track reader into a ring of mono samples.
// A stream re-binds it when its tracks are reopened.
type audioReader struct {
	mu     sync.Mutex
	ring   []float64
	next   int
	filled int
	gen    int
	err    error
	closed bool
}

func newAudioReader(capacity int) *audioReader {
	return &audioReader{ring: make([]float64, capacity)}
}

func (r *audioReader) bind(src audio.Reader) {
	r.mu.Lock()
	r.gen++
	r.err = nil
	gen := r.gen
	r.mu.Unlock()

	go r.pump(src, gen)
}

func (r *audioReader) pump(src audio.Reader, gen int) {
	for {
		chunk, release, err := src.Read()

		r.mu.Lock()
		if r.closed || r.gen != gen {
			r.mu.Unlock()
			if release != nil {
				release()
			}
			return
		}
		if err != nil {
			r.err = err
			r.mu.Unlock()
			return
		}
		r.push(chunk)
		r.mu.Unlock()

		if release != nil {
			release()
		}
	}
}

func (r *audioReader) push(chunk wave.Audio) {
	info := chunk.ChunkInfo()
	if info.Channels == 0 {
		return
	}
	for i := 0; i < info.Len; i++ {
		var sum float64
		for ch := 0; ch < info.Channels; ch++ {
			sum += float64(chunk.At(i, ch).Int()) / math.MaxInt64
		}
		r.ring[r.next] = sum / float64(info.Channels)
		r.next = (r.next + 1) % len(r.ring)
		if r.filled < len(r.ring) {
			r.filled++
		}
	}
}

// ReadSamples copies the newest samples into dst, oldest first.
func (r *audioReader) ReadSamples(dst []float64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, domain.ErrStreamClosed
	}
	if r.filled == 0 && r.err != nil {
		return 0, r.err
	}

	n := len(dst)
	if n > r.filled {
		n = r.filled
	}
	start := r.next - n
	if start < 0 {
		start += len(r.ring)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.ring[(start+i)%len(r.ring)]
	}
	return n, nil
}

func (r *audioReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
