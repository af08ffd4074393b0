package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/igolaizola/loopgen/pkg/engine/musicgen"
	"github.com/igolaizola/loopgen/pkg/filestore"
	"github.com/igolaizola/loopgen/pkg/library"
	"github.com/igolaizola/loopgen/pkg/loop"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/prompt"
	"github.com/igolaizola/loopgen/pkg/session"
	"github.com/igolaizola/loopgen/pkg/storage"
	"github.com/igolaizola/loopgen/pkg/workstation"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string
	Proxy  string

	Session string
	Prompt  string
	Part    string
	Type    string

	Duration  time.Duration
	Fragment  time.Duration
	Threshold float64
	Crossfade time.Duration
	Variation int
	Lexicon   string

	Host  string
	Token string
	Model string
	Wait  time.Duration
}

// Run generates loops for a session: all parts on a fresh session, a
// single part when one is given. Locked parts are never touched.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("generate: process started")
	defer log.Println("generate: process ended")

	if cfg.Session == "" {
		return errors.New("generate: session name is required")
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("generate: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("generate: couldn't start orm store: %w", err)
	}
	fstore, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("generate: couldn't create file store: %w", err)
	}
	lib := library.New(store, fstore)

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
	var lex *prompt.Lexicon
	if cfg.Lexicon != "" {
		lex, err = prompt.LoadLexicon(cfg.Lexicon)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
	}
	w := workstation.New(&workstation.Config{
		Debug:    cfg.Debug,
		Duration: cfg.Duration,
		Fragment: cfg.Fragment,
		Lexicon:  lex,
		Loop: loop.Config{
			Threshold: cfg.Threshold,
			Crossfade: cfg.Crossfade,
			Variation: cfg.Variation,
		},
	}, generator)

	// Load the session or start a fresh one.
	s, err := lib.Load(ctx, cfg.Session)
	switch {
	case errors.Is(err, library.ErrNotFound):
		request := cfg.Prompt
		if request == "" {
			request, err = nextDraft(ctx, store, cfg.Type)
			if err != nil {
				return err
			}
		}
		s = session.New(cfg.Session, request)
	case err != nil:
		return err
	}

	request := cfg.Prompt
	if request == "" {
		request = s.Request()
	}
	if request == "" {
		return errors.New("generate: no prompt and no stored request")
	}

	start := time.Now()
	if cfg.Part != "" {
		pt, err := part.Parse(cfg.Part)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		if _, err := w.Generate(ctx, s, pt, request); err != nil {
			return err
		}
	} else {
		if err := w.GenerateAll(ctx, s, request); err != nil {
			return err
		}
	}
	log.Printf("generate: session %s generated in %s\n", s.ID(), time.Since(start))

	if err := lib.Save(ctx, s); err != nil {
		return err
	}
	if err := store.SetSetting(ctx, &storage.Setting{
		ID:    "last-session",
		Value: cfg.Session,
	}); err != nil {
		return err
	}
	return nil
}
