package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/session"
	"github.com/igolaizola/loopgen/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	Session string
}

// Run prints the state of a session: one line per part with lock
// state, analyzed features and loop info. Without a session name the
// last generated session is used.
func Run(ctx context.Context, cfg *Config) error {
	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("status: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("status: couldn't start orm store: %w", err)
	}

	name := cfg.Session
	if name == "" {
		name, err = store.GetSettingValue(ctx, "last-session")
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
	}
	if name == "" {
		return errors.New("status: no session name and no last session")
	}

	row, err := store.GetSessionByName(ctx, name)
	if err != nil {
		return fmt.Errorf("status: couldn't get session %s: %w", name, err)
	}
	record, err := session.DecodeRecord([]byte(row.Record))
	if err != nil {
		return fmt.Errorf("status: session %s: %w", name, err)
	}

	fmt.Printf("session %s (%s)\n", row.Name, row.ID)
	fmt.Printf("request: %s\n", row.Request)
	byPart := make(map[part.Type]session.TrackRecord)
	for _, t := range record.Tracks {
		byPart[t.PartType] = t
	}
	for _, pt := range part.All() {
		t, ok := byPart[pt]
		if !ok {
			fmt.Printf("  %-8s -\n", pt)
			continue
		}
		line := fmt.Sprintf("  %-8s %-8s %.1fs", pt, t.LockState, t.Duration)
		if t.Features != nil && t.Features.Tempo > 0 {
			line += fmt.Sprintf(" %.0f bpm", t.Features.Tempo)
		}
		if t.Features != nil && t.Features.Key != nil {
			line += fmt.Sprintf(" %s", t.Features.Key)
		}
		if t.Loop != nil {
			if t.Loop.Fallback {
				line += " (loop fallback)"
			} else {
				line += fmt.Sprintf(" loop %.1fs", t.Loop.LoopLength.Seconds())
			}
		}
		fmt.Println(line)
	}
	return nil
}
