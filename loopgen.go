package loopgen

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/igolaizola/loopgen/pkg/engine/musicgen"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/session"
	"github.com/igolaizola/loopgen/pkg/wave"
	"github.com/igolaizola/loopgen/pkg/workstation"
)

type Config struct {
	Proxy    string
	Wait     time.Duration
	Debug    bool
	Host     string
	Token    string
	Model    string
	Duration time.Duration
}

// GenerateLoop generates a full multi-part loop from a prompt and
// writes the mix to the output file.
func GenerateLoop(ctx context.Context, cfg *Config, request, output string) error {
	httpClient := &http.Client{
		Timeout: 5 * time.Minute,
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	generator := musicgen.New(&musicgen.Config{
		Wait:   cfg.Wait,
		Debug:  cfg.Debug,
		Client: httpClient,
		Host:   cfg.Host,
		Token:  cfg.Token,
		Model:  cfg.Model,
	})
	ws := workstation.New(&workstation.Config{
		Debug:    cfg.Debug,
		Duration: cfg.Duration,
	}, generator)
	s := session.New("loop", request)
	if err := ws.GenerateAll(ctx, s, request); err != nil {
		return fmt.Errorf("couldn't generate parts: %w", err)
	}
	mix, err := s.ExportMix()
	if err != nil {
		return fmt.Errorf("couldn't mix session: %w", err)
	}
	b, err := wave.EncodeWAV(mix)
	if err != nil {
		return fmt.Errorf("couldn't encode mix: %w", err)
	}
	if err := os.WriteFile(output, b, 0644); err != nil {
		return fmt.Errorf("couldn't write output: %w", err)
	}
	for _, pt := range part.All() {
		t := s.Track(pt)
		if t == nil {
			continue
		}
		line := fmt.Sprintf("%s: %s", pt, t.Audio.Duration())
		if t.Loop != nil && !t.Loop.Fallback {
			line += fmt.Sprintf(" (loop %.1fs)", t.Loop.LoopLength.Seconds())
		}
		fmt.Println(line)
	}
	return nil
}
