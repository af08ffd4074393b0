package workstation

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/igolaizola/loopgen/pkg/engine"
	"github.com/igolaizola/loopgen/pkg/feature"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/session"
	"github.com/igolaizola/loopgen/pkg/wave"
)

const testRate = 22050

// fakeGenerator returns a deterministic periodic fragment and records
// the prompts it receives.
type fakeGenerator struct {
	mu       sync.Mutex
	prompts  []string
	failures int
	calls    int
	inflight int
	maxIn    int
	block    bool
	// release makes Generate wait for a signal while ignoring the
	// context, like an HTTP client whose response races cancellation.
	release chan struct{}
}

func (f *fakeGenerator) Start(ctx context.Context) error { return nil }
func (f *fakeGenerator) Stop(ctx context.Context) error  { return nil }

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, duration time.Duration) (*wave.Waveform, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.inflight++
	if f.inflight > f.maxIn {
		f.maxIn = f.inflight
	}
	fail := f.calls <= f.failures
	block := f.block
	release := f.release
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if release != nil {
		<-release
	}
	if fail {
		return nil, errors.New("backend unavailable")
	}
	n := int(duration.Seconds() * testRate)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / testRate
		samples[i] = math.Sin(2*math.Pi*100*t) * (0.6 + 0.4*math.Sin(2*math.Pi*t))
	}
	return &wave.Waveform{Samples: samples, Rate: testRate}, nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func testConfig() *Config {
	return &Config{
		Duration: 2 * time.Second,
		Fragment: 4 * time.Second,
		Backoff:  []time.Duration{time.Millisecond},
	}
}

func TestGenerateCommits(t *testing.T) {
	fake := &fakeGenerator{}
	w := New(testConfig(), fake)
	s := session.New("test", "chill lo-fi beat")

	track, err := w.Generate(context.Background(), s, part.Rhythm, "chill lo-fi beat")
	if err != nil {
		t.Fatalf("Generate() err = %v; want nil", err)
	}
	if !strings.Contains(track.Prompt, "drums only") {
		t.Errorf("Prompt = %q; want role clause", track.Prompt)
	}
	want := 2 * testRate
	if got := len(track.Audio.Samples); got != want {
		t.Errorf("audio len = %d; want %d", got, want)
	}
	if s.Track(part.Rhythm) != track {
		t.Error("track not committed to session")
	}
	if track.Loop == nil {
		t.Error("Loop meta missing")
	}
}

// A locked rhythm's tempo must reach the bass prompt.
func TestGenerateLockedContext(t *testing.T) {
	fake := &fakeGenerator{}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")
	if err := s.SetTrack(&session.Track{
		ID:       "r1",
		Part:     part.Rhythm,
		Audio:    &wave.Waveform{Samples: make([]float64, testRate), Rate: testRate},
		Features: &feature.Snapshot{Part: part.Rhythm, Tempo: 90},
	}); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if err := s.Lock(part.Rhythm); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}

	if _, err := w.Generate(context.Background(), s, part.Bass, "funky bass"); err != nil {
		t.Fatalf("Generate() err = %v; want nil", err)
	}
	if got := fake.lastPrompt(); !strings.Contains(got, "90 BPM") {
		t.Errorf("prompt = %q; want locked tempo constraint", got)
	}
}

func TestGenerateLockedPart(t *testing.T) {
	fake := &fakeGenerator{}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")
	if err := s.SetTrack(&session.Track{
		ID:    "r1",
		Part:  part.Rhythm,
		Audio: &wave.Waveform{Samples: make([]float64, testRate), Rate: testRate},
	}); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if err := s.Lock(part.Rhythm); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}

	if _, err := w.Generate(context.Background(), s, part.Rhythm, "new drums"); !errors.Is(err, session.ErrLockedTrack) {
		t.Fatalf("Generate() err = %v; want ErrLockedTrack", err)
	}
	if fake.calls != 0 {
		t.Fatalf("calls = %d; want 0, locked parts must not hit the backend", fake.calls)
	}
}

// Regenerating one part must not touch the locked audio of another.
func TestGenerateKeepsLockedAudio(t *testing.T) {
	fake := &fakeGenerator{}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")
	samples := make([]float64, testRate)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 220 * float64(i) / testRate)
	}
	original := append([]float64(nil), samples...)
	if err := s.SetTrack(&session.Track{
		ID:    "r1",
		Part:  part.Rhythm,
		Audio: &wave.Waveform{Samples: samples, Rate: testRate},
	}); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if err := s.Lock(part.Rhythm); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}

	if _, err := w.Generate(context.Background(), s, part.Bass, "funky bass"); err != nil {
		t.Fatalf("Generate() err = %v; want nil", err)
	}
	got := s.Track(part.Rhythm).Audio.Samples
	for i := range original {
		if got[i] != original[i] {
			t.Fatalf("locked audio changed at sample %d", i)
		}
	}
}

func TestGenerateRetries(t *testing.T) {
	fake := &fakeGenerator{failures: 2}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")

	if _, err := w.Generate(context.Background(), s, part.Lead, "melody"); err != nil {
		t.Fatalf("Generate() err = %v; want success after retries", err)
	}
	if fake.calls != 3 {
		t.Fatalf("calls = %d; want 3", fake.calls)
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	fake := &fakeGenerator{failures: 100}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")

	_, err := w.Generate(context.Background(), s, part.Lead, "melody")
	if !errors.Is(err, engine.ErrGeneration) {
		t.Fatalf("Generate() err = %v; want ErrGeneration", err)
	}
	if fake.calls != 3 {
		t.Fatalf("calls = %d; want 3", fake.calls)
	}
	if s.Track(part.Lead) != nil {
		t.Fatal("failed generation must not commit a track")
	}
}

func TestCancel(t *testing.T) {
	fake := &fakeGenerator{block: true}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")

	done := make(chan error, 1)
	go func() {
		_, err := w.Generate(context.Background(), s, part.Harmony, "chords")
		done <- err
	}()

	var ids []string
	deadline := time.After(5 * time.Second)
	for len(ids) == 0 {
		select {
		case <-deadline:
			t.Fatal("request never became pending")
		default:
			ids = w.Pending()
			time.Sleep(time.Millisecond)
		}
	}
	if !w.Cancel(ids[0]) {
		t.Fatal("Cancel() = false; want true")
	}
	if err := <-done; err == nil {
		t.Fatal("Generate() err = nil; want cancellation error")
	}
	if s.Track(part.Harmony) != nil {
		t.Fatal("cancelled generation must not commit a track")
	}
	if w.Cancel(ids[0]) {
		t.Fatal("Cancel() on a finished id should report false")
	}
}

// A backend that answers after cancellation must not get its result
// committed.
func TestCancelDiscardsLateResult(t *testing.T) {
	fake := &fakeGenerator{release: make(chan struct{})}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")

	done := make(chan error, 1)
	go func() {
		_, err := w.Generate(context.Background(), s, part.Harmony, "chords")
		done <- err
	}()

	var ids []string
	deadline := time.After(5 * time.Second)
	for len(ids) == 0 {
		select {
		case <-deadline:
			t.Fatal("request never became pending")
		default:
			ids = w.Pending()
			time.Sleep(time.Millisecond)
		}
	}
	if !w.Cancel(ids[0]) {
		t.Fatal("Cancel() = false; want true")
	}
	// Let the backend deliver a valid fragment after cancellation.
	close(fake.release)
	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() err = %v; want context.Canceled", err)
	}
	if s.Track(part.Harmony) != nil {
		t.Fatal("cancelled generation must not commit a late result")
	}
}

// Two requests for the same part must not overlap at the backend.
func TestSamePartSerialized(t *testing.T) {
	fake := &fakeGenerator{}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Generate(context.Background(), s, part.Rhythm, "drums"); err != nil {
				t.Errorf("Generate() err = %v; want nil", err)
			}
		}()
	}
	wg.Wait()
	if fake.maxIn != 1 {
		t.Fatalf("max in-flight = %d; want 1 for the same part", fake.maxIn)
	}
	if got := len(s.History(part.Rhythm)); got != 2 {
		t.Fatalf("history len = %d; want 2", got)
	}
}

func TestGenerateAll(t *testing.T) {
	fake := &fakeGenerator{}
	w := New(testConfig(), fake)
	s := session.New("test", "chill lo-fi beat")

	if err := w.GenerateAll(context.Background(), s, "chill lo-fi beat"); err != nil {
		t.Fatalf("GenerateAll() err = %v; want nil", err)
	}
	for _, pt := range part.All() {
		if s.Track(pt) == nil {
			t.Errorf("missing %s track", pt)
		}
	}
	if fake.calls != 4 {
		t.Fatalf("calls = %d; want 4", fake.calls)
	}
}

func TestGenerateAllSkipsLocked(t *testing.T) {
	fake := &fakeGenerator{}
	w := New(testConfig(), fake)
	s := session.New("test", "beat")
	if err := s.SetTrack(&session.Track{
		ID:    "r1",
		Part:  part.Rhythm,
		Audio: &wave.Waveform{Samples: make([]float64, testRate), Rate: testRate},
	}); err != nil {
		t.Fatalf("SetTrack() err = %v; want nil", err)
	}
	if err := s.Lock(part.Rhythm); err != nil {
		t.Fatalf("Lock() err = %v; want nil", err)
	}

	if err := w.GenerateAll(context.Background(), s, "chill beat"); err != nil {
		t.Fatalf("GenerateAll() err = %v; want nil", err)
	}
	if fake.calls != 3 {
		t.Fatalf("calls = %d; want 3, locked part skipped", fake.calls)
	}
	if got := s.Track(part.Rhythm).ID; got != "r1" {
		t.Fatalf("rhythm track = %s; want original locked track", got)
	}
}
