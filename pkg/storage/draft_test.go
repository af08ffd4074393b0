package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New("sqlite", ":memory:", false)
	if err != nil {
		t.Fatalf("New() err = %v; want nil", err)
	}
	ctx := context.Background()
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Start() err = %v; want nil", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() err = %v; want nil", err)
	}
	return store
}

func TestNextDraftEmpty(t *testing.T) {
	store := testStore(t)
	if _, err := store.NextDraft(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("NextDraft() err = %v; want ErrNotFound", err)
	}
}

func TestNextDraftFilter(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	drafts := []*Draft{
		{ID: ulid.Make().String(), Type: "lofi", Prompt: "chill lofi beat"},
		{ID: ulid.Make().String(), Type: "techno", Prompt: "dark techno loop"},
		{ID: ulid.Make().String(), Type: "techno", Prompt: "acid techno loop", Disabled: true},
	}
	for _, d := range drafts {
		if err := store.SetDraft(ctx, d); err != nil {
			t.Fatalf("SetDraft() err = %v; want nil", err)
		}
	}

	for i := 0; i < 10; i++ {
		d, err := store.NextDraft(ctx, Where("type = ?", "techno"))
		if err != nil {
			t.Fatalf("NextDraft() err = %v; want nil", err)
		}
		if d.Prompt != "dark techno loop" {
			t.Fatalf("Prompt = %q; want the enabled techno draft", d.Prompt)
		}
	}
}

func TestNextDraftWeighted(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	light := &Draft{ID: ulid.Make().String(), Prompt: "light", Weight: 1}
	heavy := &Draft{ID: ulid.Make().String(), Prompt: "heavy", Weight: 9}
	for _, d := range []*Draft{light, heavy} {
		if err := store.SetDraft(ctx, d); err != nil {
			t.Fatalf("SetDraft() err = %v; want nil", err)
		}
	}

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		d, err := store.NextDraft(ctx)
		if err != nil {
			t.Fatalf("NextDraft() err = %v; want nil", err)
		}
		counts[d.Prompt]++
	}
	if counts["heavy"] <= counts["light"] {
		t.Fatalf("picks = %v; want the heavier draft picked more often", counts)
	}
}
