package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/igolaizola/loopgen/pkg/filestore"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/session"
	"github.com/igolaizola/loopgen/pkg/storage"
	"github.com/igolaizola/loopgen/pkg/wave"
)

// ErrNotFound is returned when no session exists under the given name.
var ErrNotFound = errors.New("library: session not found")

// Library moves sessions between their in-memory form, the database
// and the file store. The database keeps the schema versioned record
// plus queryable track rows; audio lives in the file store.
type Library struct {
	store  *storage.Store
	fstore *filestore.Store
}

func New(store *storage.Store, fstore *filestore.Store) *Library {
	return &Library{store: store, fstore: fstore}
}

// Load restores a session by name, newest first, audio included.
// Corrupt records fail the whole load: a session is never partially
// restored.
func (l *Library) Load(ctx context.Context, name string) (*session.Session, error) {
	row, err := l.store.GetSessionByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("library: couldn't load session %s: %w", name, err)
	}
	record, err := session.DecodeRecord([]byte(row.Record))
	if err != nil {
		return nil, fmt.Errorf("library: session %s: %w", name, err)
	}
	s, err := session.Restore(record)
	if err != nil {
		return nil, fmt.Errorf("library: session %s: %w", name, err)
	}

	dir, err := os.MkdirTemp("", "loopgen")
	if err != nil {
		return nil, fmt.Errorf("library: couldn't create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	for _, tr := range record.Tracks {
		path := filepath.Join(dir, filestore.WAV(tr.ID))
		if err := l.fstore.GetWAV(ctx, path, tr.WaveformReference); err != nil {
			return nil, fmt.Errorf("library: couldn't download %s audio: %w", tr.PartType, err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("library: couldn't read %s audio: %w", tr.PartType, err)
		}
		w, err := wave.DecodeWAV(b)
		if err != nil {
			return nil, fmt.Errorf("library: couldn't decode %s audio: %w", tr.PartType, err)
		}
		if err := s.AttachAudio(tr.PartType, w); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Save persists the session: audio and plots to the file store, the
// record and track rows to the database.
func (l *Library) Save(ctx context.Context, s *session.Session) error {
	dir, err := os.MkdirTemp("", "loopgen")
	if err != nil {
		return fmt.Errorf("library: couldn't create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	refs := make(map[part.Type]string)
	for _, t := range s.Tracks() {
		if t.Audio == nil {
			continue
		}
		ref := fmt.Sprintf("%s_%s", s.ID(), t.Part)
		b, err := wave.EncodeWAV(t.Audio)
		if err != nil {
			return fmt.Errorf("library: couldn't encode %s audio: %w", t.Part, err)
		}
		path := filepath.Join(dir, filestore.WAV(ref))
		if err := os.WriteFile(path, b, 0644); err != nil {
			return fmt.Errorf("library: couldn't write %s audio: %w", t.Part, err)
		}
		if err := l.fstore.SetWAV(ctx, path, ref); err != nil {
			return fmt.Errorf("library: couldn't upload %s audio: %w", t.Part, err)
		}
		if err := l.savePlot(ctx, dir, ref, t); err != nil {
			return err
		}
		refs[t.Part] = ref
	}

	record := s.Record(refs)
	b, err := record.Encode()
	if err != nil {
		return fmt.Errorf("library: couldn't encode session %s: %w", s.ID(), err)
	}
	row := &storage.Session{
		ID:      s.ID(),
		Name:    s.Name(),
		Request: s.Request(),
		Record:  string(b),
	}
	if err := l.store.SetSession(ctx, row); err != nil {
		return fmt.Errorf("library: couldn't save session %s: %w", s.ID(), err)
	}
	if err := l.saveTracks(ctx, s, refs); err != nil {
		return err
	}
	return nil
}

// savePlot uploads the waveform plot alongside the audio.
func (l *Library) savePlot(ctx context.Context, dir, ref string, t *session.Track) error {
	plot, err := t.Audio.PlotWave(string(t.Part))
	if err != nil {
		return fmt.Errorf("library: couldn't plot %s: %w", t.Part, err)
	}
	path := filepath.Join(dir, filestore.JPG(ref))
	if err := os.WriteFile(path, plot, 0644); err != nil {
		return fmt.Errorf("library: couldn't write %s plot: %w", t.Part, err)
	}
	if err := l.fstore.SetJPG(ctx, path, ref); err != nil {
		return fmt.Errorf("library: couldn't upload %s plot: %w", t.Part, err)
	}
	return nil
}

// saveTracks upserts one row per current track and demotes replaced
// ones.
func (l *Library) saveTracks(ctx context.Context, s *session.Session, refs map[part.Type]string) error {
	id := s.ID()
	current, err := l.store.CurrentTracks(ctx, id)
	if err != nil {
		return err
	}
	prev := make(map[string]*storage.Track)
	for _, row := range current {
		prev[row.Part] = row
	}
	for _, t := range s.Tracks() {
		ref := refs[t.Part]
		if ref == "" {
			continue
		}
		if old, ok := prev[string(t.Part)]; ok && old.ID != t.ID {
			old.Current = false
			if err := l.store.SetTrack(ctx, old); err != nil {
				return err
			}
		}
		row := &storage.Track{
			ID:         t.ID,
			SessionID:  &id,
			Part:       string(t.Part),
			LockState:  string(t.State),
			Prompt:     t.Prompt,
			Audio:      ref,
			Plot:       ref,
			Current:    true,
			SampleRate: t.Audio.Rate,
			Duration:   float32(t.Audio.Duration().Seconds()),
		}
		if t.Features != nil {
			row.Tempo = float32(t.Features.Tempo)
			if t.Features.Key != nil {
				row.Key = t.Features.Key.String()
			}
		}
		if t.Loop != nil {
			row.Similarity = float32(t.Loop.Similarity)
			row.Fallback = t.Loop.Fallback
		}
		if err := l.store.SetTrack(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
