package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/igolaizola/loopgen/pkg/filestore"
	"github.com/igolaizola/loopgen/pkg/library"
	"github.com/igolaizola/loopgen/pkg/storage"
	"github.com/igolaizola/loopgen/pkg/wave"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string

	Session string
	Output  string
	Stems   bool
}

// Run writes the session mix as a WAV file, plus one stem per part
// when requested.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Session == "" {
		return errors.New("export: session name is required")
	}
	output := cfg.Output
	if output == "" {
		output = "."
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return fmt.Errorf("export: couldn't create output directory: %w", err)
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("export: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("export: couldn't start orm store: %w", err)
	}
	fstore, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("export: couldn't create file store: %w", err)
	}
	lib := library.New(store, fstore)

	s, err := lib.Load(ctx, cfg.Session)
	if err != nil {
		return err
	}

	mix, err := s.ExportMix()
	if err != nil {
		return err
	}
	path := filepath.Join(output, fmt.Sprintf("%s.wav", cfg.Session))
	if err := writeWAV(path, mix); err != nil {
		return err
	}
	log.Printf("export: mix written to %s\n", path)

	if cfg.Stems {
		stems, err := s.ExportStems()
		if err != nil {
			return err
		}
		for pt, w := range stems {
			path := filepath.Join(output, fmt.Sprintf("%s_%s.wav", cfg.Session, pt))
			if err := writeWAV(path, w); err != nil {
				return err
			}
			log.Printf("export: %s stem written to %s\n", pt, path)
		}
	}

	// Mark the session as exported.
	row, err := store.GetSessionByName(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("export: couldn't get session %s: %w", cfg.Session, err)
	}
	row.Exported = true
	if err := store.SetSession(ctx, row); err != nil {
		return fmt.Errorf("export: couldn't update session %s: %w", cfg.Session, err)
	}
	return nil
}

func writeWAV(path string, w *wave.Waveform) error {
	b, err := wave.EncodeWAV(w)
	if err != nil {
		return fmt.Errorf("export: couldn't encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("export: couldn't write %s: %w", path, err)
	}
	return nil
}
