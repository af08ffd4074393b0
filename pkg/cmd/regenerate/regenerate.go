package regenerate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/igolaizola/loopgen/pkg/engine/musicgen"
	"github.com/igolaizola/loopgen/pkg/filestore"
	"github.com/igolaizola/loopgen/pkg/library"
	"github.com/igolaizola/loopgen/pkg/loop"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/storage"
	"github.com/igolaizola/loopgen/pkg/workstation"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string

	Session string
	Part    string
	Prompt  string

	Duration  time.Duration
	Fragment  time.Duration
	Threshold float64
	Crossfade time.Duration
	Variation int

	Host  string
	Token string
	Model string
	Wait  time.Duration
}

// Run regenerates a single part of an existing session. The context
// derived from locked parts constrains the new audio; locked parts
// themselves are untouched.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("regenerate: process started")
	defer log.Println("regenerate: process ended")

	if cfg.Session == "" {
		return errors.New("regenerate: session name is required")
	}
	pt, err := part.Parse(cfg.Part)
	if err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("regenerate: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("regenerate: couldn't start orm store: %w", err)
	}
	fstore, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("regenerate: couldn't create file store: %w", err)
	}
	lib := library.New(store, fstore)

	s, err := lib.Load(ctx, cfg.Session)
	if err != nil {
		return err
	}

	generator := musicgen.New(&musicgen.Config{
		Wait:   cfg.Wait,
		Debug:  cfg.Debug,
		Client: &http.Client{Timeout: 5 * time.Minute},
		Host:   cfg.Host,
		Token:  cfg.Token,
		Model:  cfg.Model,
	})
	w := workstation.New(&workstation.Config{
		Debug:    cfg.Debug,
		Duration: cfg.Duration,
		Fragment: cfg.Fragment,
		Loop: loop.Config{
			Threshold: cfg.Threshold,
			Crossfade: cfg.Crossfade,
			Variation: cfg.Variation,
		},
	}, generator)

	request := cfg.Prompt
	if request == "" {
		request = s.Request()
	}
	track, err := w.Generate(ctx, s, pt, request)
	if err != nil {
		return err
	}
	log.Printf("regenerate: %s replaced with %s\n", pt, track.ID)

	return lib.Save(ctx, s)
}
