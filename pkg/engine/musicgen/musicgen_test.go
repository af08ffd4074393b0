package musicgen

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/igolaizola/loopgen/pkg/wave"
)

func testWAV(t *testing.T) []byte {
	t.Helper()
	samples := make([]float64, 22050)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/22050)
	}
	b, err := wave.EncodeWAV(&wave.Waveform{Samples: samples, Rate: 22050})
	if err != nil {
		t.Fatalf("EncodeWAV() err = %v; want nil", err)
	}
	return b
}

func TestGenerate(t *testing.T) {
	audio := testWAV(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	c := New(&Config{Host: srv.URL, Wait: time.Millisecond})
	got, err := c.Generate(context.Background(), "drums only, lo-fi", 4*time.Second)
	if err != nil {
		t.Fatalf("Generate() err = %v; want nil", err)
	}
	if got.Rate != 22050 {
		t.Errorf("Rate = %d; want 22050", got.Rate)
	}
	if len(got.Samples) != 22050 {
		t.Errorf("samples = %d; want 22050", len(got.Samples))
	}
}

func TestGenerateEmptyPrompt(t *testing.T) {
	c := New(&Config{Host: "http://localhost:0", Wait: time.Millisecond})
	if _, err := c.Generate(context.Background(), "", time.Second); err == nil {
		t.Fatal("Generate() err = nil; want error")
	}
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(&Config{Host: srv.URL, Wait: time.Millisecond})
	if _, err := c.Generate(context.Background(), "drums only", time.Second); err == nil {
		t.Fatal("Generate() err = nil; want error")
	}
}
