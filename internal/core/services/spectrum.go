package services

import (
	"math"
	"math/cmplx"
)

const (
	analyserMinDecibels = -100.0
	analyserMaxDecibels = -30.0
	analyserSmoothing   = 0.8
)

// spectrumAnalyser turns time-domain frames into byte-scaled frequency bins
// the way a browser AnalyserNode does: Hann window, FFT, |X|/N, temporal
// smoothing, dB, then mapping [min,max] dB onto [0,255].
type spectrumAnalyser struct {
	size     int
	window   []float64
	buf      []complex128
	smoothed []float64
	bins     []float64
}

func newSpectrumAnalyser(size int) *spectrumAnalyser {
	a := &spectrumAnalyser{
		size:     size,
		window:   make([]float64, size),
		buf:      make([]complex128, size),
		smoothed: make([]float64, size/2),
		bins:     make([]float64, size/2),
	}
	for i := range a.window {
		a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return a
}

// Analyse consumes one frame (zero padded if short) and returns the byte-scaled bins.
// The returned slice is reused by the next call.
func (a *spectrumAnalyser) Analyse(frame []float64) []float64 {
	for i := range a.buf {
		var s float64
		if i < len(frame) {
			s = frame[i] * a.window[i]
		}
		a.buf[i] = complex(s, 0)
	}
	fft(a.buf)

	n := float64(a.size)
	for k := range a.smoothed {
		mag := cmplx.Abs(a.buf[k]) / n
		a.smoothed[k] = analyserSmoothing*a.smoothed[k] + (1-analyserSmoothing)*mag

		db := analyserMinDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		scaled := 255 * (db - analyserMinDecibels) / (analyserMaxDecibels - analyserMinDecibels)
		a.bins[k] = math.Max(0, math.Min(255, math.Floor(scaled)))
	}
	return a.bins
}

// LevelFromBins averages byte-scaled bins into a loudness value in [0,100].
func LevelFromBins(bins []float64) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bins {
		sum += b
	}
	level := (sum / float64(len(bins))) * 100 / 128
	return math.Max(0, math.Min(100, level))
}

// fft is an in-place radix-2 Cooley-Tukey transform. len(data) must be a power of 2.
func fft(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}

	for i, j := 0, 0; i < n; i++ {
		if j > i {
			data[i], data[j] = data[j], data[i]
		}
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := -2 * math.Pi / float64(size)
		for i := 0; i < n; i += size {
			for j := 0; j < half; j++ {
				w := cmplx.Rect(1, step*float64(j))
				u := data[i+j]
				v := data[i+j+half] * w
				data[i+j] = u + v
				data[i+j+half] = u - v
			}
		}
	}
}
