package loop

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/igolaizola/loopgen/pkg/wave"
)

// ErrLoopDetection is returned when no boundary scores above the
// similarity threshold. The returned waveform is still usable: the
// whole fragment tiled without a crossfade. Callers log and continue.
var ErrLoopDetection = errors.New("loop: no loop boundary found")

// Config holds the loop construction parameters.
type Config struct {
	// Threshold is the minimum self similarity score for a boundary
	// to be accepted. Defaults to 0.60.
	Threshold float64
	// Crossfade is the stitch length at the loop seam. Defaults to
	// 30ms.
	Crossfade time.Duration
	// Linear switches the crossfade curve from equal power to linear.
	Linear bool
	// Variation inserts an alternate unit every Nth repetition when
	// the fragment is long enough. 0 disables variation.
	Variation int
}

// Meta describes how a loop was built.
type Meta struct {
	// LoopLength is the duration of one repetition unit.
	LoopLength time.Duration `json:"loop_length"`
	// Crossfade is the stitch length actually applied.
	Crossfade time.Duration `json:"crossfade"`
	// Similarity is the boundary self similarity score.
	Similarity float64 `json:"similarity"`
	// Fallback reports that detection failed and the whole fragment
	// was used as the unit.
	Fallback bool `json:"fallback"`
	// Variation is the repetition stride of the alternate unit, 0 if
	// none was used.
	Variation int `json:"variation,omitempty"`
}

const (
	defaultThreshold = 0.60
	defaultCrossfade = 30 * time.Millisecond

	envelopeWindow = 10 * time.Millisecond
	minLoopLength  = 500 * time.Millisecond
	minOverlap     = 500 * time.Millisecond

	// Lag search width around each bar multiple.
	barTolerance = 0.05

	// How far the tail trim may move looking for a zero crossing.
	trimSearchWindow = 5 * time.Millisecond
)

// Engine builds seamless loops from generated fragments.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Crossfade <= 0 {
		cfg.Crossfade = defaultCrossfade
	}
	return &Engine{cfg: cfg}
}

// Build constructs audio of exactly the target duration by detecting a
// loop boundary in the fragment, stitching the seam with a crossfade
// and tiling the unit. A tempo above zero restricts boundary candidates
// to bar multiples. On detection failure the fragment itself becomes
// the unit and the error wraps ErrLoopDetection.
func (e *Engine) Build(fragment *wave.Waveform, target time.Duration, tempo float64) (*wave.Waveform, *Meta, error) {
	if fragment == nil || len(fragment.Samples) == 0 {
		return nil, nil, fmt.Errorf("loop: empty fragment")
	}
	if target <= 0 {
		return nil, nil, fmt.Errorf("loop: invalid target duration %s", target)
	}

	envelope := fragment.RMS(envelopeWindow)
	lag, similarity := e.findBoundary(envelope, fragment.Rate, tempo)

	meta := &Meta{Similarity: similarity}
	var unit []float64
	var detectErr error
	if lag == 0 || similarity < e.cfg.Threshold {
		// Fallback: tile the whole fragment without a crossfade.
		unit = fragment.Samples
		meta.Fallback = true
		detectErr = fmt.Errorf("%w: best similarity %.2f below %.2f", ErrLoopDetection, similarity, e.cfg.Threshold)
	} else {
		var fade int
		unit, fade = e.stitch(fragment, lag)
		meta.Crossfade = time.Duration(float64(fade) / float64(fragment.Rate) * float64(time.Second))
	}
	meta.LoopLength = time.Duration(float64(len(unit)) / float64(fragment.Rate) * float64(time.Second))

	var variant []float64
	if e.cfg.Variation > 0 && !meta.Fallback && len(fragment.Samples) >= 2*len(unit) {
		variant = e.variant(fragment, len(unit))
		meta.Variation = e.cfg.Variation
	}

	out := e.tile(unit, variant, fragment.Rate, target)
	return &wave.Waveform{Samples: out, Rate: fragment.Rate}, meta, detectErr
}

// findBoundary searches the envelope self similarity for the best loop
// lag, in samples. With a tempo the search is restricted to windows
// around bar multiples; without one every plausible lag is scanned.
func (e *Engine) findBoundary(envelope []float64, rate int, tempo float64) (int, float64) {
	sec := envelopeWindow.Seconds()
	minLag := int(minLoopLength.Seconds() / sec)
	maxLag := len(envelope) - int(minOverlap.Seconds()/sec)
	if minLag < 1 || minLag > maxLag {
		return 0, 0
	}

	var bestLag int
	var bestScore, bestAdjusted float64
	try := func(lag int) {
		if lag < minLag || lag > maxLag {
			return
		}
		score := selfSimilarity(envelope, lag)
		// The tiny lag penalty keeps multiples of a period (which all
		// score near 1.0 on periodic audio) resolved toward the
		// shortest boundary.
		adjusted := score - float64(lag)*1e-6
		if adjusted > bestAdjusted {
			bestAdjusted = adjusted
			bestScore = score
			bestLag = lag
		}
	}

	if tempo > 0 {
		barFrames := 4.0 * 60.0 / tempo / sec
		for m := 1; ; m++ {
			center := float64(m) * barFrames
			lo := int(center * (1 - barTolerance))
			hi := int(center*(1+barTolerance)) + 1
			if lo > maxLag {
				break
			}
			for lag := lo; lag <= hi; lag++ {
				try(lag)
			}
		}
	} else {
		for lag := minLag; lag <= maxLag; lag++ {
			try(lag)
		}
	}
	if bestLag == 0 {
		return 0, 0
	}
	frameSamples := int(float64(rate) * sec)
	return bestLag * frameSamples, bestScore
}

// selfSimilarity is the normalized correlation of the envelope with
// itself shifted by lag frames.
func selfSimilarity(envelope []float64, lag int) float64 {
	var num, denA, denB float64
	for i := 0; i+lag < len(envelope); i++ {
		num += envelope[i] * envelope[i+lag]
		denA += envelope[i] * envelope[i]
		denB += envelope[i+lag] * envelope[i+lag]
	}
	den := math.Sqrt(denA * denB)
	if den == 0 {
		return 0
	}
	return num / den
}

// stitch cuts the unit at the boundary and blends the start with the
// fragment's natural continuation past the boundary, so the wrap from
// unit end back to unit start is seamless.
func (e *Engine) stitch(fragment *wave.Waveform, lag int) ([]float64, int) {
	fade := int(float64(fragment.Rate) * e.cfg.Crossfade.Seconds())
	if max := lag / 4; fade > max {
		fade = max
	}
	if avail := len(fragment.Samples) - lag; fade > avail {
		fade = avail
	}
	unit := make([]float64, lag)
	copy(unit, fragment.Samples[:lag])
	for i := 0; i < fade; i++ {
		in, out := gains(float64(i)/float64(fade), e.cfg.Linear)
		unit[i] = in*unit[i] + out*fragment.Samples[lag+i]
	}
	return unit, fade
}

// variant extracts a second unit of the same length starting at the
// boundary, stitched the same way against its own continuation.
func (e *Engine) variant(fragment *wave.Waveform, length int) []float64 {
	fade := int(float64(fragment.Rate) * e.cfg.Crossfade.Seconds())
	if max := length / 4; fade > max {
		fade = max
	}
	if avail := len(fragment.Samples) - 2*length; fade > avail {
		fade = avail
	}
	unit := make([]float64, length)
	copy(unit, fragment.Samples[length:2*length])
	for i := 0; i < fade; i++ {
		in, out := gains(float64(i)/float64(fade), e.cfg.Linear)
		unit[i] = in*unit[i] + out*fragment.Samples[2*length+i]
	}
	return unit
}

// gains returns the fade-in and fade-out gains at position t in [0,1).
func gains(t float64, linear bool) (in, out float64) {
	if linear {
		return t, 1 - t
	}
	return math.Sin(t * math.Pi / 2), math.Cos(t * math.Pi / 2)
}

// tile repeats the unit until the target length, swapping in the
// variant every Nth repetition, then trims the tail. Samples past the
// zero crossing nearest the cut are silenced to avoid a click.
func (e *Engine) tile(unit, variant []float64, rate int, target time.Duration) []float64 {
	targetN := int(math.Round(target.Seconds() * float64(rate)))
	out := make([]float64, targetN)
	rep := 0
	for pos := 0; pos < targetN; pos += len(unit) {
		src := unit
		rep++
		if variant != nil && e.cfg.Variation > 0 && rep%e.cfg.Variation == 0 {
			src = variant
		}
		copy(out[pos:], src)
	}
	limit := int(trimSearchWindow.Seconds() * float64(rate))
	cut := wave.NearestZeroCrossing(out, targetN-1, limit)
	for i := cut; i < targetN; i++ {
		out[i] = 0
	}
	return out
}
