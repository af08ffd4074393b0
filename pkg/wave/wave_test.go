package wave

import (
	"math"
	"testing"
	"time"
)

func TestRMS(t *testing.T) {
	// A constant signal of amplitude a has RMS a.
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = 0.5
	}
	w := &Waveform{Samples: samples, Rate: 1000}
	rms := w.RMS(100 * time.Millisecond)
	if len(rms) != 10 {
		t.Fatalf("len(rms) = %d; want 10", len(rms))
	}
	for i, v := range rms {
		if math.Abs(v-0.5) > 1e-9 {
			t.Fatalf("rms[%d] = %v; want 0.5", i, v)
		}
	}
}

func TestMix(t *testing.T) {
	a := &Waveform{Samples: []float64{0.2, 0.2, 0.2}, Rate: 100}
	b := &Waveform{Samples: []float64{0.1, 0.1}, Rate: 100}
	got, err := Mix([]*Waveform{a, b}, []float64{1.0, 2.0})
	if err != nil {
		t.Fatalf("Mix() err = %v; want nil", err)
	}
	want := []float64{0.4, 0.4, 0.2}
	if len(got.Samples) != len(want) {
		t.Fatalf("len = %d; want %d", len(got.Samples), len(want))
	}
	for i := range want {
		if math.Abs(got.Samples[i]-want[i]) > 1e-9 {
			t.Fatalf("sample %d = %v; want %v", i, got.Samples[i], want[i])
		}
	}
}

func TestMixClipping(t *testing.T) {
	a := &Waveform{Samples: []float64{0.9, -0.9}, Rate: 100}
	b := &Waveform{Samples: []float64{0.9, -0.9}, Rate: 100}
	got, err := Mix([]*Waveform{a, b}, []float64{1.0, 1.0})
	if err != nil {
		t.Fatalf("Mix() err = %v; want nil", err)
	}
	if peak := got.Peak(); peak > 1.0 {
		t.Fatalf("peak = %v; want <= 1.0", peak)
	}
}

func TestMixRateMismatch(t *testing.T) {
	a := &Waveform{Samples: []float64{0}, Rate: 100}
	b := &Waveform{Samples: []float64{0}, Rate: 200}
	if _, err := Mix([]*Waveform{a, b}, []float64{1, 1}); err == nil {
		t.Fatal("Mix() err = nil; want error")
	}
}

func TestNearestZeroCrossing(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		idx     int
		want    int
	}{
		{"exact", []float64{1, -1, 1, -1}, 1, 1},
		{"left", []float64{1, 1, -1, 1, 1, 1}, 4, 3},
		{"none", []float64{1, 1, 1, 1}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NearestZeroCrossing(tt.samples, tt.idx, len(tt.samples))
			if got != tt.want {
				t.Fatalf("NearestZeroCrossing() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]float64, 441)
	for i := range samples {
		samples[i] = 0.25 * math.Sin(2*math.Pi*440*float64(i)/44100)
	}
	w := &Waveform{Samples: samples, Rate: 44100}

	b, err := EncodeWAV(w)
	if err != nil {
		t.Fatalf("EncodeWAV() err = %v; want nil", err)
	}
	got, err := DecodeWAV(b)
	if err != nil {
		t.Fatalf("DecodeWAV() err = %v; want nil", err)
	}
	if got.Rate != w.Rate {
		t.Fatalf("rate = %d; want %d", got.Rate, w.Rate)
	}
	if len(got.Samples) != len(w.Samples) {
		t.Fatalf("len = %d; want %d", len(got.Samples), len(w.Samples))
	}
	for i := range samples {
		if math.Abs(got.Samples[i]-samples[i]) > 1.0/32768.0 {
			t.Fatalf("sample %d = %v; want %v", i, got.Samples[i], samples[i])
		}
	}
}
