package loop

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/igolaizola/loopgen/pkg/wave"
)

const testRate = 22050

// modulated returns a 100Hz carrier with a 1Hz amplitude cycle, so the
// signal repeats exactly every second.
func modulated(seconds float64) *wave.Waveform {
	n := int(seconds * testRate)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / testRate
		samples[i] = math.Sin(2*math.Pi*100*t) * (0.6 + 0.4*math.Sin(2*math.Pi*t))
	}
	return &wave.Waveform{Samples: samples, Rate: testRate}
}

// shifting keeps the 1Hz amplitude cycle of modulated but doubles the
// carrier frequency after the first second. The envelope stays
// periodic, so the first second becomes the loop unit and the second
// becomes the variant.
func shifting(seconds float64) *wave.Waveform {
	n := int(seconds * testRate)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / testRate
		freq := 100.0
		if t >= 1 {
			freq = 200.0
		}
		samples[i] = math.Sin(2*math.Pi*freq*t) * (0.6 + 0.4*math.Sin(2*math.Pi*t))
	}
	return &wave.Waveform{Samples: samples, Rate: testRate}
}

func TestBuildLength(t *testing.T) {
	tests := []struct {
		name   string
		target time.Duration
	}{
		{"longer than fragment", 10 * time.Second},
		{"shorter than loop", 400 * time.Millisecond},
		{"odd length", 2500*time.Millisecond + 7*time.Microsecond},
	}
	engine := New(Config{})
	fragment := modulated(4)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := engine.Build(fragment, tt.target, 0)
			if err != nil {
				t.Fatalf("Build() err = %v; want nil", err)
			}
			want := int(math.Round(tt.target.Seconds() * testRate))
			if got := len(out.Samples); got != want {
				t.Fatalf("len = %d; want %d", got, want)
			}
		})
	}
}

func TestBuildSeamless(t *testing.T) {
	out, meta, err := New(Config{}).Build(modulated(4), 5*time.Second, 0)
	if err != nil {
		t.Fatalf("Build() err = %v; want nil", err)
	}
	if meta.Fallback {
		t.Fatal("Fallback = true; want detection to succeed")
	}
	if meta.Similarity < 0.9 {
		t.Fatalf("Similarity = %v; want >= 0.9 on a periodic signal", meta.Similarity)
	}
	// The carrier limits legitimate sample to sample movement; any
	// seam click would exceed it.
	const epsilon = 0.05
	for i := 1; i < len(out.Samples); i++ {
		if d := math.Abs(out.Samples[i] - out.Samples[i-1]); d > epsilon {
			t.Fatalf("discontinuity %v at sample %d", d, i)
		}
	}
}

func TestBuildTailTrim(t *testing.T) {
	out, _, err := New(Config{}).Build(modulated(4), 3300*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("Build() err = %v; want nil", err)
	}
	if last := out.Samples[len(out.Samples)-1]; last != 0 {
		t.Fatalf("last sample = %v; want 0 after trim", last)
	}
	// Only the tail is touched: the first loop unit must be intact.
	window := int(trimSearchWindow.Seconds() * testRate)
	var zeros int
	for i := len(out.Samples) - 1; i >= 0 && out.Samples[i] == 0; i-- {
		zeros++
	}
	if zeros > window+1 {
		t.Fatalf("trimmed %d samples; want at most %d", zeros, window+1)
	}
}

func TestBuildBarAligned(t *testing.T) {
	// At 120 BPM a bar is 2 seconds; the boundary must land within 5%
	// of a bar multiple.
	_, meta, err := New(Config{}).Build(modulated(8), 4*time.Second, 120)
	if err != nil {
		t.Fatalf("Build() err = %v; want nil", err)
	}
	bar := 2.0
	loops := meta.LoopLength.Seconds()
	nearest := math.Round(loops/bar) * bar
	if nearest == 0 || math.Abs(loops-nearest)/nearest > barTolerance+0.01 {
		t.Fatalf("LoopLength = %v; want within 5%% of a multiple of %vs", meta.LoopLength, bar)
	}
}

func TestBuildFallback(t *testing.T) {
	engine := New(Config{})
	fragment := modulated(0.3)
	target := 2 * time.Second

	out, meta, err := engine.Build(fragment, target, 0)
	if !errors.Is(err, ErrLoopDetection) {
		t.Fatalf("Build() err = %v; want ErrLoopDetection", err)
	}
	if !meta.Fallback {
		t.Fatal("Fallback = false; want true")
	}
	want := int(math.Round(target.Seconds() * testRate))
	if len(out.Samples) != want {
		t.Fatalf("len = %d; want %d", len(out.Samples), want)
	}

	// The fallback must be deterministic.
	again, _, err := engine.Build(fragment, target, 0)
	if !errors.Is(err, ErrLoopDetection) {
		t.Fatalf("Build() err = %v; want ErrLoopDetection", err)
	}
	for i := range out.Samples {
		if out.Samples[i] != again.Samples[i] {
			t.Fatalf("fallback output differs at sample %d", i)
		}
	}
}

func TestBuildVariation(t *testing.T) {
	fragment := shifting(8)
	target := 4 * time.Second

	out, meta, err := New(Config{Variation: 2}).Build(fragment, target, 0)
	if err != nil {
		t.Fatalf("Build() err = %v; want nil", err)
	}
	if meta.Variation != 2 {
		t.Fatalf("Variation = %d; want 2", meta.Variation)
	}
	want := int(math.Round(target.Seconds() * testRate))
	if len(out.Samples) != want {
		t.Fatalf("len = %d; want %d", len(out.Samples), want)
	}

	// The variant unit carries the doubled carrier, so the second
	// repetition crosses zero about twice as often as the first.
	crossings := func(s []float64) int {
		var n int
		for i := 1; i < len(s); i++ {
			if s[i-1]*s[i] < 0 {
				n++
			}
		}
		return n
	}
	unit := int(math.Round(meta.LoopLength.Seconds() * testRate))
	first := crossings(out.Samples[unit/4 : 3*unit/4])
	second := crossings(out.Samples[unit+unit/4 : unit+3*unit/4])
	if float64(second) < 1.5*float64(first) {
		t.Fatalf("crossings first = %d, second = %d; want variant to double the carrier", first, second)
	}
}

func TestBuildInvalidInput(t *testing.T) {
	engine := New(Config{})
	if _, _, err := engine.Build(nil, time.Second, 0); err == nil {
		t.Fatal("Build(nil) err = nil; want error")
	}
	if _, _, err := engine.Build(modulated(2), 0, 0); err == nil {
		t.Fatal("Build(target=0) err = nil; want error")
	}
}
