package lock

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/igolaizola/loopgen/pkg/filestore"
	"github.com/igolaizola/loopgen/pkg/library"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string

	Session string
	Part    string
	Unlock  bool
}

// Run toggles the lock state of one part. Locking is idempotent:
// locking a locked part or unlocking an unlocked one is a no-op.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Session == "" {
		return errors.New("lock: session name is required")
	}
	pt, err := part.Parse(cfg.Part)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("lock: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("lock: couldn't start orm store: %w", err)
	}
	fstore, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("lock: couldn't create file store: %w", err)
	}
	lib := library.New(store, fstore)

	s, err := lib.Load(ctx, cfg.Session)
	if err != nil {
		return err
	}
	if cfg.Unlock {
		if err := s.Unlock(pt); err != nil {
			return err
		}
		log.Printf("lock: %s unlocked\n", pt)
	} else {
		if err := s.Lock(pt); err != nil {
			return err
		}
		log.Printf("lock: %s locked\n", pt)
	}
	return lib.Save(ctx, s)
}
