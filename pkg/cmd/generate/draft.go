package generate

import (
	"context"
	"errors"
	"fmt"

	"github.com/igolaizola/loopgen/pkg/storage"
)

// nextDraft picks a weighted random request from the drafts table.
func nextDraft(ctx context.Context, store *storage.Store, typ string) (string, error) {
	var filters []storage.Filter
	if typ != "" {
		filters = append(filters, storage.Where("type = ?", typ))
	}
	d, err := store.NextDraft(ctx, filters...)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "", errors.New("generate: no prompt given and no drafts available")
	case err != nil:
		return "", fmt.Errorf("generate: couldn't pick a draft: %w", err)
	}
	return d.Prompt, nil
}
