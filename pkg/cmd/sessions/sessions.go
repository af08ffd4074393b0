package sessions

import (
	"context"
	"fmt"

	"github.com/igolaizola/loopgen/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	Page int
	Size int
}

// Run lists stored sessions, newest first.
func Run(ctx context.Context, cfg *Config) error {
	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("sessions: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("sessions: couldn't start orm store: %w", err)
	}

	size := cfg.Size
	if size == 0 {
		size = 20
	}
	rows, err := store.ListSessions(ctx, cfg.Page, size, "created_at DESC")
	if err != nil {
		return err
	}
	for _, row := range rows {
		exported := ""
		if row.Exported {
			exported = " exported"
		}
		fmt.Printf("%s  %s  %s%s\n", row.CreatedAt.Format("2006-01-02 15:04"), row.ID, row.Name, exported)
	}
	return nil
}
