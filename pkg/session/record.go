package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/igolaizola/loopgen/pkg/feature"
	"github.com/igolaizola/loopgen/pkg/loop"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/wave"
)

// SchemaVersion is the current persisted record layout.
const SchemaVersion = 1

// ErrSessionCorruption is returned when a persisted record can't be
// decoded or fails validation. Corrupt sessions are never partially
// loaded.
var ErrSessionCorruption = errors.New("session: corrupt session record")

// Record is the persisted form of a session. Audio lives in the file
// store; tracks carry references instead of samples.
type Record struct {
	SchemaVersion   int              `json:"schema_version"`
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Request         string           `json:"request"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	ContextSnapshot *feature.Context `json:"context_snapshot,omitempty"`
	Tracks          []TrackRecord    `json:"tracks"`
}

// TrackRecord is the persisted form of one track.
type TrackRecord struct {
	ID                string            `json:"id"`
	PartType          part.Type         `json:"part_type"`
	LockState         LockState         `json:"lock_state"`
	PromptUsed        string            `json:"prompt_used"`
	Duration          float64           `json:"duration"`
	SampleRate        int               `json:"sample_rate"`
	WaveformReference string            `json:"waveform_reference"`
	Features          *feature.Snapshot `json:"features,omitempty"`
	Loop              *loop.Meta        `json:"loop,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Record converts the session into its persisted form. The refs map
// provides the file store reference per part; parts without a
// reference are skipped.
func (s *Session) Record(refs map[part.Type]string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locked := make(map[part.Type]*feature.Snapshot)
	for pt, t := range s.tracks {
		if t.Locked() && t.Features != nil {
			locked[pt] = t.Features
		}
	}
	r := &Record{
		SchemaVersion:   SchemaVersion,
		ID:              s.id,
		Name:            s.name,
		Request:         s.request,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
		ContextSnapshot: feature.Derive(locked),
	}
	for _, pt := range part.All() {
		t, ok := s.tracks[pt]
		if !ok {
			continue
		}
		ref, ok := refs[pt]
		if !ok {
			continue
		}
		tr := TrackRecord{
			ID:                t.ID,
			PartType:          t.Part,
			LockState:         t.State,
			PromptUsed:        t.Prompt,
			WaveformReference: ref,
			Features:          t.Features,
			Loop:              t.Loop,
			CreatedAt:         t.CreatedAt,
		}
		if t.Audio != nil {
			tr.Duration = t.Audio.Duration().Seconds()
			tr.SampleRate = t.Audio.Rate
		}
		r.Tracks = append(r.Tracks, tr)
	}
	return r
}

// Encode serializes the record as JSON.
func (r *Record) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("session: couldn't marshal record: %w", err)
	}
	return b, nil
}

// DecodeRecord parses and validates a persisted record. Any validation
// failure wraps ErrSessionCorruption: a session is loaded whole or not
// at all.
func DecodeRecord(b []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorruption, err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Record) validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: schema version %d, want %d", ErrSessionCorruption, r.SchemaVersion, SchemaVersion)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: missing session id", ErrSessionCorruption)
	}
	seen := make(map[part.Type]bool)
	for _, t := range r.Tracks {
		if !t.PartType.Valid() {
			return fmt.Errorf("%w: unknown part type %q", ErrSessionCorruption, t.PartType)
		}
		if seen[t.PartType] {
			return fmt.Errorf("%w: duplicate %s track", ErrSessionCorruption, t.PartType)
		}
		seen[t.PartType] = true
		if !t.LockState.Valid() {
			return fmt.Errorf("%w: unknown lock state %q for %s", ErrSessionCorruption, t.LockState, t.PartType)
		}
		if t.WaveformReference == "" {
			return fmt.Errorf("%w: missing waveform reference for %s", ErrSessionCorruption, t.PartType)
		}
		if t.SampleRate <= 0 {
			return fmt.Errorf("%w: invalid sample rate %d for %s", ErrSessionCorruption, t.SampleRate, t.PartType)
		}
		if t.Duration <= 0 {
			return fmt.Errorf("%w: invalid duration %v for %s", ErrSessionCorruption, t.Duration, t.PartType)
		}
	}
	return nil
}

// Restore rebuilds a session from a validated record. Audio is not
// loaded here; callers attach waveforms per track using the record's
// references.
func Restore(r *Record) (*Session, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	s := &Session{
		id:        r.ID,
		name:      r.Name,
		request:   r.Request,
		tracks:    make(map[part.Type]*Track),
		history:   make(map[part.Type][]*Track),
		createdAt: r.CreatedAt,
		updatedAt: r.UpdatedAt,
	}
	for _, tr := range r.Tracks {
		s.tracks[tr.PartType] = &Track{
			ID:        tr.ID,
			Part:      tr.PartType,
			State:     tr.LockState,
			Prompt:    tr.PromptUsed,
			Features:  tr.Features,
			Loop:      tr.Loop,
			CreatedAt: tr.CreatedAt,
		}
	}
	return s, nil
}

// AttachAudio sets the waveform for a part after a restore.
func (s *Session) AttachAudio(pt part.Type, w *wave.Waveform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[pt]
	if !ok {
		return fmt.Errorf("session: no %s track", pt)
	}
	t.Audio = w
	return nil
}
