package wave

import (
	"fmt"
	"math"
	"time"
)

// Waveform is mono PCM audio, samples normalized to the -1.0 to 1.0 range.
type Waveform struct {
	Samples []float64
	Rate    int
}

// New creates a waveform from samples at the given sample rate.
func New(samples []float64, rate int) (*Waveform, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("wave: invalid sample rate %d", rate)
	}
	return &Waveform{Samples: samples, Rate: rate}, nil
}

func (w *Waveform) Duration() time.Duration {
	return time.Duration(float64(len(w.Samples)) / float64(w.Rate) * float64(time.Second))
}

// Clone returns a deep copy so callers can't mutate committed audio.
func (w *Waveform) Clone() *Waveform {
	samples := make([]float64, len(w.Samples))
	copy(samples, w.Samples)
	return &Waveform{Samples: samples, Rate: w.Rate}
}

// RMS returns the root mean square energy per window.
func (w *Waveform) RMS(windowSize time.Duration) []float64 {
	samples := w.Samples
	windowLength := int(float64(w.Rate) * windowSize.Seconds())
	if windowLength <= 0 {
		windowLength = 1
	}

	var rms []float64
	for i := 0; i < len(samples); i += windowLength {
		end := i + windowLength
		if end > len(samples) {
			end = len(samples)
		}
		rms = append(rms, calculateRMS(samples[i:end]))
	}
	return rms
}

func calculateRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var squareSum float64
	for _, sample := range samples {
		squareSum += sample * sample
	}
	meanSquare := squareSum / float64(len(samples))
	return math.Sqrt(meanSquare)
}

// Resample returns min/max pairs per window, used for waveform plots.
func (w *Waveform) Resample(windowSize time.Duration) []float64 {
	samples := w.Samples
	windowLength := int(float64(w.Rate) * windowSize.Seconds())
	if windowLength <= 0 {
		windowLength = 1
	}

	var resampled []float64
	for i := 0; i < len(samples); i += windowLength {
		end := i + windowLength
		if end > len(samples) {
			end = len(samples)
		}
		var min, max float64
		for _, v := range samples[i:end] {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		resampled = append(resampled, min, max)
	}
	return resampled
}

// Peak returns the maximum absolute sample value.
func (w *Waveform) Peak() float64 {
	var peak float64
	for _, v := range w.Samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

const silenceThreshold = 1e-4

// Silent reports whether the waveform has no audible content.
func (w *Waveform) Silent() bool {
	return w.Peak() < silenceThreshold
}

// Normalize scales samples in place so the peak equals target.
// Silent waveforms are left untouched.
func (w *Waveform) Normalize(target float64) {
	peak := w.Peak()
	if peak < silenceThreshold {
		return
	}
	gain := target / peak
	for i := range w.Samples {
		w.Samples[i] *= gain
	}
}

// Mix sums waveforms with per-waveform gains. All inputs must share a
// sample rate; the result length is the longest input. The result is
// scaled down only if the sum clips.
func Mix(waves []*Waveform, gains []float64) (*Waveform, error) {
	if len(waves) == 0 {
		return nil, fmt.Errorf("wave: nothing to mix")
	}
	if len(gains) != len(waves) {
		return nil, fmt.Errorf("wave: %d gains for %d waveforms", len(gains), len(waves))
	}
	rate := waves[0].Rate
	var size int
	for _, w := range waves {
		if w.Rate != rate {
			return nil, fmt.Errorf("wave: sample rate mismatch %d != %d", w.Rate, rate)
		}
		if len(w.Samples) > size {
			size = len(w.Samples)
		}
	}
	mixed := make([]float64, size)
	for i, w := range waves {
		for j, v := range w.Samples {
			mixed[j] += v * gains[i]
		}
	}
	out := &Waveform{Samples: mixed, Rate: rate}
	if peak := out.Peak(); peak > 1.0 {
		out.Normalize(0.99)
	}
	return out, nil
}

// NearestZeroCrossing returns the sample index of the zero crossing
// closest to idx, searching up to limit samples in both directions.
// Returns idx when no crossing is found within the limit.
func NearestZeroCrossing(samples []float64, idx, limit int) int {
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	for d := 0; d <= limit; d++ {
		for _, i := range []int{idx - d, idx + d} {
			if i <= 0 || i >= len(samples) {
				continue
			}
			if samples[i-1] == 0 || samples[i-1]*samples[i] <= 0 {
				return i
			}
		}
	}
	return idx
}
