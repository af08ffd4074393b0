package analyze

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/igolaizola/loopgen/pkg/feature"
	"github.com/igolaizola/loopgen/pkg/wave"
)

type Config struct {
	Debug  bool
	Input  string
	Output string
}

// Run analyzes an audio file and prints its musical features. Plots of
// the waveform and energy envelope are written next to the output
// path.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Input == "" {
		return errors.New("analyze: input file is required")
	}
	b, err := os.ReadFile(cfg.Input)
	if err != nil {
		return fmt.Errorf("analyze: couldn't read input file: %w", err)
	}
	var w *wave.Waveform
	switch ext := filepath.Ext(cfg.Input); ext {
	case ".wav":
		w, err = wave.DecodeWAV(b)
	case ".mp3":
		w, err = wave.DecodeMP3(b)
	default:
		return fmt.Errorf("analyze: unsupported input format: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	snap, err := feature.NewExtractor().Extract(w)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	fmt.Printf("duration: %s\n", w.Duration())
	if snap.Tempo > 0 {
		fmt.Printf("tempo: %.1f bpm\n", snap.Tempo)
	} else {
		fmt.Println("tempo: unknown")
	}
	if snap.Key != nil {
		fmt.Printf("key: %s\n", snap.Key)
	} else {
		fmt.Println("key: unknown")
	}
	fmt.Printf("onsets: %d\n", len(snap.Grid))

	output := cfg.Output
	if output == "" {
		output = "."
	}
	name := filepath.Base(cfg.Input)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	out := filepath.Join(output, name)

	plot, err := w.PlotWave(name)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if err := os.WriteFile(out+"-wave.jpg", plot, 0644); err != nil {
		return fmt.Errorf("analyze: couldn't write plot: %w", err)
	}
	plot, err = w.PlotEnergy(name)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if err := os.WriteFile(out+"-energy.jpg", plot, 0644); err != nil {
		return fmt.Errorf("analyze: couldn't write plot: %w", err)
	}
	return nil
}
