package session

import (
	"errors"
	"time"

	"github.com/igolaizola/loopgen/pkg/feature"
	"github.com/igolaizola/loopgen/pkg/loop"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/wave"
)

// ErrLockedTrack is returned when an operation would replace a locked
// track.
var ErrLockedTrack = errors.New("session: track is locked")

// LockState is the protection state of a track. Locked tracks survive
// regeneration of other parts untouched.
type LockState string

const (
	Unlocked LockState = "unlocked"
	Locked   LockState = "locked"
)

// Valid reports whether s is a known lock state.
func (s LockState) Valid() bool {
	return s == Unlocked || s == Locked
}

// Track is one generated part within a session.
type Track struct {
	ID        string
	Part      part.Type
	State     LockState
	Audio     *wave.Waveform
	Features  *feature.Snapshot
	Prompt    string
	Loop      *loop.Meta
	CreatedAt time.Time
}

// Locked reports whether the track is protected from replacement.
func (t *Track) Locked() bool {
	return t != nil && t.State == Locked
}
