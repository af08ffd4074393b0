package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/igolaizola/loopgen/pkg/feature"
	"github.com/igolaizola/loopgen/pkg/part"
)

// Session holds the current track per part plus the replaced history.
// All methods are safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	id        string
	name      string
	request   string
	tracks    map[part.Type]*Track
	history   map[part.Type][]*Track
	createdAt time.Time
	updatedAt time.Time

	// version increments on every lock transition or track commit, so
	// dispatched context snapshots can be checked for staleness.
	version int
}

// New creates an empty session.
func New(name, request string) *Session {
	now := time.Now().UTC()
	return &Session{
		id:        ulid.Make().String(),
		name:      name,
		request:   request,
		tracks:    make(map[part.Type]*Track),
		history:   make(map[part.Type][]*Track),
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string      { return s.id }
func (s *Session) Name() string    { return s.name }
func (s *Session) Request() string { return s.request }

// Version returns the current mutation counter.
func (s *Session) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Track returns the current track for a part, or nil.
func (s *Session) Track(pt part.Type) *Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracks[pt]
}

// Tracks returns the current tracks in precedence order.
func (s *Session) Tracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tracks []*Track
	for _, pt := range part.All() {
		if t, ok := s.tracks[pt]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// History returns the replaced tracks for a part, oldest first.
func (s *Session) History(pt part.Type) []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Track(nil), s.history[pt]...)
}

// SetTrack commits a track as the current one for its part. The
// replaced track moves to history. Fails with ErrLockedTrack when the
// current track is locked: locked audio is only replaced after an
// explicit unlock.
func (s *Session) SetTrack(t *Track) error {
	if t == nil {
		return fmt.Errorf("session: nil track")
	}
	if !t.Part.Valid() {
		return fmt.Errorf("session: invalid part type %q", t.Part)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev := s.tracks[t.Part]; prev.Locked() {
		return fmt.Errorf("session: couldn't replace %s: %w", t.Part, ErrLockedTrack)
	} else if prev != nil {
		s.history[t.Part] = append(s.history[t.Part], prev)
	}
	if t.State == "" {
		t.State = Unlocked
	}
	s.tracks[t.Part] = t
	s.touch()
	return nil
}

// Lock protects a part's track from replacement. Locking an already
// locked track is a no-op.
func (s *Session) Lock(pt part.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[pt]
	if !ok {
		return fmt.Errorf("session: no %s track to lock", pt)
	}
	if t.State == Locked {
		return nil
	}
	t.State = Locked
	s.touch()
	return nil
}

// Unlock removes the protection. Unlocking an unlocked track is a
// no-op.
func (s *Session) Unlock(pt part.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[pt]
	if !ok {
		return fmt.Errorf("session: no %s track to unlock", pt)
	}
	if t.State == Unlocked {
		return nil
	}
	t.State = Unlocked
	s.touch()
	return nil
}

// Context derives the generation constraints from the locked tracks.
func (s *Session) Context() *feature.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locked := make(map[part.Type]*feature.Snapshot)
	for pt, t := range s.tracks {
		if t.Locked() && t.Features != nil {
			locked[pt] = t.Features
		}
	}
	return feature.Derive(locked)
}

func (s *Session) touch() {
	s.version++
	s.updatedAt = time.Now().UTC()
}
