package session

import (
	"errors"
	"math"
	"testing"

	"github.com/igolaizola/loopgen/pkg/feature"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/wave"
)

func testTrack(pt part.Type, tempo float64) *Track {
	return &Track{
		ID:   string(pt) + "-1",
		Part: pt,
		Audio: &wave.Waveform{
			Samples: make([]float64, 22050),
			Rate:    22050,
		},
		Features: &feature.Snapshot{Part: pt, Tempo: tempo},
	}
}

func TestSetTrackLocked(t *testing.T) {
	s := New("test", "chill lo-fi beat")
	if err := s.SetTrack(testTrack(part.Rhythm, 90)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if err := s.Lock(part.Rhythm); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}

	err := s.SetTrack(testTrack(part.Rhythm, 120))
	if !errors.Is(err, ErrLockedTrack) {
		t.Fatalf("SetTrack() err = %v; want ErrLockedTrack", err)
	}
	if got := s.Track(part.Rhythm).Features.Tempo; got != 90 {
		t.Fatalf("Tempo = %v; want locked track unchanged", got)
	}

	// Unlock, then replacement must succeed and archive the old track.
	if err := s.Unlock(part.Rhythm); err != nil {
		t.Fatalf("Unlock() err = %v; want nil", err)
	}
	if err := s.SetTrack(testTrack(part.Rhythm, 120)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if got := s.Track(part.Rhythm).Features.Tempo; got != 120 {
		t.Fatalf("Tempo = %v; want 120", got)
	}
	if got := len(s.History(part.Rhythm)); got != 1 {
		t.Fatalf("history len = %d; want 1", got)
	}
}

func TestLockIdempotent(t *testing.T) {
	s := New("test", "beat")
	if err := s.SetTrack(testTrack(part.Bass, 100)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Lock(part.Bass); err != nil {
			t.Fatalf("Lock() #%d err = %v; want nil", i, err)
		}
	}
	v := s.Version()
	if err := s.Lock(part.Bass); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}
	if s.Version() != v {
		t.Fatal("redundant lock bumped the version")
	}
	for i := 0; i < 3; i++ {
		if err := s.Unlock(part.Bass); err != nil {
			t.Fatalf("Unlock() #%d err = %v; want nil", i, err)
		}
	}
}

func TestLockMissingTrack(t *testing.T) {
	s := New("test", "beat")
	if err := s.Lock(part.Lead); err == nil {
		t.Fatal("Lock() err = nil; want error")
	}
	if err := s.Unlock(part.Lead); err == nil {
		t.Fatal("Unlock() err = nil; want error")
	}
}

func TestContextFromLocked(t *testing.T) {
	s := New("test", "beat")
	if err := s.SetTrack(testTrack(part.Rhythm, 90)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if err := s.SetTrack(testTrack(part.Bass, 120)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}

	// Unlocked tracks contribute nothing.
	if ctx := s.Context(); ctx.Tempo != 0 {
		t.Fatalf("Tempo = %v; want 0 with nothing locked", ctx.Tempo)
	}

	if err := s.Lock(part.Bass); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}
	if ctx := s.Context(); ctx.Tempo != 120 {
		t.Fatalf("Tempo = %v; want 120 from locked bass", ctx.Tempo)
	}

	// Rhythm outranks bass once locked.
	if err := s.Lock(part.Rhythm); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}
	if ctx := s.Context(); ctx.Tempo != 90 {
		t.Fatalf("Tempo = %v; want 90 from locked rhythm", ctx.Tempo)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := New("test", "chill beat")
	if err := s.SetTrack(testTrack(part.Rhythm, 90)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if err := s.Lock(part.Rhythm); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}
	if err := s.SetTrack(testTrack(part.Lead, 0)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}

	refs := map[part.Type]string{
		part.Rhythm: "sessions/x/rhythm.wav",
		part.Lead:   "sessions/x/lead.wav",
	}
	b, err := s.Record(refs).Encode()
	if err != nil {
		t.Fatalf("Encode() err = %v; want nil", err)
	}
	r, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("DecodeRecord() err = %v; want nil", err)
	}
	if r.ContextSnapshot == nil || r.ContextSnapshot.Tempo != 90 {
		t.Fatalf("ContextSnapshot = %+v; want locked rhythm tempo 90", r.ContextSnapshot)
	}
	restored, err := Restore(r)
	if err != nil {
		t.Fatalf("Restore() err = %v; want nil", err)
	}
	if restored.ID() != s.ID() {
		t.Fatalf("ID = %s; want %s", restored.ID(), s.ID())
	}
	if got := restored.Context().Tempo; got != 90 {
		t.Fatalf("restored context tempo = %v; want 90", got)
	}
	rt := restored.Track(part.Rhythm)
	if rt == nil || rt.State != Locked {
		t.Fatalf("rhythm track = %+v; want locked", rt)
	}
	if rt.Features == nil || rt.Features.Tempo != 90 {
		t.Fatal("rhythm features lost in round trip")
	}
	lt := restored.Track(part.Lead)
	if lt == nil || lt.State != Unlocked {
		t.Fatalf("lead track = %+v; want unlocked", lt)
	}
}

func TestDecodeRecordCorruption(t *testing.T) {
	valid := func() *Record {
		return &Record{
			SchemaVersion: SchemaVersion,
			ID:            "01ARZ3NDEKTSV4RRFFQ69G5FAV",
			Tracks: []TrackRecord{{
				ID:                "t1",
				PartType:          part.Rhythm,
				LockState:         Locked,
				Duration:          4,
				SampleRate:        22050,
				WaveformReference: "sessions/x/rhythm.wav",
			}},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"wrong schema version", func(r *Record) { r.SchemaVersion = 99 }},
		{"missing id", func(r *Record) { r.ID = "" }},
		{"unknown part", func(r *Record) { r.Tracks[0].PartType = "vocals" }},
		{"unknown lock state", func(r *Record) { r.Tracks[0].LockState = "frozen" }},
		{"missing reference", func(r *Record) { r.Tracks[0].WaveformReference = "" }},
		{"bad sample rate", func(r *Record) { r.Tracks[0].SampleRate = 0 }},
		{"duplicate part", func(r *Record) { r.Tracks = append(r.Tracks, r.Tracks[0]) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			b, err := r.Encode()
			if err != nil {
				t.Fatalf("Encode() err = %v; want nil", err)
			}
			if _, err := DecodeRecord(b); !errors.Is(err, ErrSessionCorruption) {
				t.Fatalf("DecodeRecord() err = %v; want ErrSessionCorruption", err)
			}
		})
	}
	if _, err := DecodeRecord([]byte("{not json")); !errors.Is(err, ErrSessionCorruption) {
		t.Fatal("DecodeRecord() on invalid JSON should wrap ErrSessionCorruption")
	}
}

func TestExportMix(t *testing.T) {
	s := New("test", "beat")
	if err := s.SetTrack(testTrack(part.Rhythm, 90)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if err := s.SetTrack(testTrack(part.Bass, 90)); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	mix, err := s.ExportMix()
	if err != nil {
		t.Fatalf("ExportMix() err = %v; want nil", err)
	}
	if mix.Rate != 22050 || len(mix.Samples) != 22050 {
		t.Fatalf("mix = %d samples at %d; want 22050 at 22050", len(mix.Samples), mix.Rate)
	}

	stems, err := s.ExportStems()
	if err != nil {
		t.Fatalf("ExportStems() err = %v; want nil", err)
	}
	if len(stems) != 2 {
		t.Fatalf("stems = %d; want 2", len(stems))
	}
	// Stems are copies: mutating them must not touch the session.
	stems[part.Rhythm].Samples[0] = 42
	if s.Track(part.Rhythm).Audio.Samples[0] == 42 {
		t.Fatal("stem mutation reached the committed track")
	}
}

// Summing the stems with the documented per-part gains must
// reconstruct the mix.
func TestExportStemsReconstructMix(t *testing.T) {
	s := New("test", "beat")
	freqs := map[part.Type]float64{
		part.Rhythm:  110,
		part.Bass:    55,
		part.Harmony: 220,
		part.Lead:    440,
	}
	for pt, freq := range freqs {
		samples := make([]float64, 22050)
		for i := range samples {
			samples[i] = 0.2 * math.Sin(2*math.Pi*freq*float64(i)/22050)
		}
		if err := s.SetTrack(&Track{
			ID:    string(pt) + "-1",
			Part:  pt,
			Audio: &wave.Waveform{Samples: samples, Rate: 22050},
		}); err != nil {
			t.Fatalf("SetTrack() err = %v; want nil", err)
		}
	}

	mix, err := s.ExportMix()
	if err != nil {
		t.Fatalf("ExportMix() err = %v; want nil", err)
	}
	stems, err := s.ExportStems()
	if err != nil {
		t.Fatalf("ExportStems() err = %v; want nil", err)
	}

	sum := make([]float64, len(mix.Samples))
	for pt, w := range stems {
		g := MixGain(pt)
		for i, v := range w.Samples {
			sum[i] += v * g
		}
	}
	for i := range sum {
		if math.Abs(sum[i]-mix.Samples[i]) > 1e-9 {
			t.Fatalf("mix diverges from weighted stems at sample %d: %v != %v", i, mix.Samples[i], sum[i])
		}
	}
}

func TestExportEmpty(t *testing.T) {
	s := New("test", "beat")
	if _, err := s.ExportMix(); err == nil {
		t.Fatal("ExportMix() err = nil; want error")
	}
	if _, err := s.ExportStems(); err == nil {
		t.Fatal("ExportStems() err = nil; want error")
	}
}
