package feature

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/wave"
)

// ErrInsufficientAudio is returned when the input is too short or
// silent to analyze. Callers must treat it as non fatal and proceed
// with an empty snapshot.
var ErrInsufficientAudio = errors.New("feature: insufficient audio")

// Snapshot holds the musical features extracted from one waveform.
// Zero values mean the feature couldn't be estimated.
type Snapshot struct {
	Part   part.Type
	Tempo  float64 // beats per minute, 0 if unknown
	Key    *Key    // nil if unknown
	Energy []float64
	Grid   []float64 // onset times in seconds, tempo quantized
}

// Key is a musical key as root pitch class plus mode.
type Key struct {
	Root int    `json:"root"` // 0 = C
	Mode string `json:"mode"` // "major" or "minor"
}

var pitchNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func (k Key) String() string {
	if k.Root < 0 || k.Root >= len(pitchNames) {
		return fmt.Sprintf("?%d %s", k.Root, k.Mode)
	}
	return fmt.Sprintf("%s %s", pitchNames[k.Root], k.Mode)
}

const (
	minAnalysisWindow = 1 * time.Second
	envelopeWindow    = 10 * time.Millisecond
	energyWindow      = 50 * time.Millisecond
	minTempo          = 60.0
	maxTempo          = 180.0
)

type Extractor struct {
	minWindow time.Duration
}

func NewExtractor() *Extractor {
	return &Extractor{minWindow: minAnalysisWindow}
}

// Extract analyzes one waveform. The analysis is deterministic: the
// same input always yields the same snapshot.
func (e *Extractor) Extract(w *wave.Waveform) (*Snapshot, error) {
	if w == nil || w.Duration() < e.minWindow {
		return nil, ErrInsufficientAudio
	}
	if w.Silent() {
		return nil, ErrInsufficientAudio
	}

	envelope := w.RMS(envelopeWindow)
	onsets := onsetStrength(envelope)
	tempo := estimateTempo(onsets, envelopeWindow)
	key := estimateKey(w)
	energy := normalize(w.RMS(energyWindow))
	grid := rhythmicGrid(onsets, envelopeWindow, tempo)

	return &Snapshot{
		Tempo:  tempo,
		Key:    key,
		Energy: energy,
		Grid:   grid,
	}, nil
}

// onsetStrength is the half wave rectified first difference of the
// amplitude envelope.
func onsetStrength(envelope []float64) []float64 {
	if len(envelope) == 0 {
		return nil
	}
	strength := make([]float64, len(envelope))
	for i := 1; i < len(envelope); i++ {
		d := envelope[i] - envelope[i-1]
		if d > 0 {
			strength[i] = d
		}
	}
	return strength
}

// estimateTempo searches the onset strength autocorrelation for the
// most periodic lag within the plausible tempo range. Lags are scanned
// short to long, so when a beat period and its double correlate
// equally the faster tempo wins.
func estimateTempo(onsets []float64, window time.Duration) float64 {
	sec := window.Seconds()
	minLag := int(60.0 / maxTempo / sec)
	maxLag := int(60.0 / minTempo / sec)
	if maxLag > len(onsets)/2 {
		maxLag = len(onsets) / 2
	}
	if minLag < 1 || minLag >= maxLag {
		return 0
	}

	var bestLag int
	var bestScore float64
	for lag := minLag; lag <= maxLag; lag++ {
		var num, denA, denB float64
		for i := 0; i+lag < len(onsets); i++ {
			num += onsets[i] * onsets[i+lag]
			denA += onsets[i] * onsets[i]
			denB += onsets[i+lag] * onsets[i+lag]
		}
		den := math.Sqrt(denA * denB)
		if den == 0 {
			continue
		}
		// The tiny lag penalty keeps octave ambiguities (a beat period
		// and its double correlate almost equally) resolved toward the
		// faster tempo.
		score := num/den - float64(lag)*1e-4
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}
	if bestLag == 0 || bestScore < 0.1 {
		return 0
	}
	return 60.0 / (float64(bestLag) * sec)
}

// rhythmicGrid picks onset peaks and quantizes them to the nearest
// sixteenth note subdivision of the estimated tempo. Without a tempo
// the raw onset times are returned.
func rhythmicGrid(onsets []float64, window time.Duration, tempo float64) []float64 {
	if len(onsets) == 0 {
		return nil
	}
	var mean float64
	for _, v := range onsets {
		mean += v
	}
	mean /= float64(len(onsets))
	threshold := mean * 1.5

	sec := window.Seconds()
	var grid []float64
	for i := 1; i < len(onsets)-1; i++ {
		v := onsets[i]
		if v <= threshold || v < onsets[i-1] || v < onsets[i+1] {
			continue
		}
		t := float64(i) * sec
		if tempo > 0 {
			step := 60.0 / tempo / 4.0 // sixteenth note
			t = math.Round(t/step) * step
		}
		if len(grid) > 0 && grid[len(grid)-1] == t {
			continue
		}
		grid = append(grid, t)
	}
	return grid
}

func normalize(values []float64) []float64 {
	var max float64
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return values
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / max
	}
	return out
}
