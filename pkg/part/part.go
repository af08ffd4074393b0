package part

import (
	"fmt"
	"strings"
)

// Type is the musical role of a track within a session.
type Type string

const (
	Rhythm  Type = "rhythm"
	Bass    Type = "bass"
	Harmony Type = "harmony"
	Lead    Type = "lead"
)

// All returns every part type in precedence order, highest first.
// Precedence decides which locked part wins tempo/key conflicts.
func All() []Type {
	return []Type{Rhythm, Bass, Harmony, Lead}
}

// Parse converts a user provided string into a part type.
func Parse(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Rhythm, "drums":
		return Rhythm, nil
	case Bass:
		return Bass, nil
	case Harmony, "chords":
		return Harmony, nil
	case Lead, "melody":
		return Lead, nil
	default:
		return "", fmt.Errorf("part: unknown part type %q", s)
	}
}

// Valid reports whether t is one of the known part types.
func (t Type) Valid() bool {
	switch t {
	case Rhythm, Bass, Harmony, Lead:
		return true
	default:
		return false
	}
}

// Others returns all part types except t, in precedence order.
func Others(t Type) []Type {
	var others []Type
	for _, o := range All() {
		if o == t {
			continue
		}
		others = append(others, o)
	}
	return others
}

// Band is a frequency range in Hz assigned to a part type.
type Band struct {
	Low  float64
	High float64
}

// Static band allocation per role. Bands don't overlap so generated
// parts leave spectral room for each other.
var bands = map[Type]Band{
	Rhythm:  {Low: 30, High: 120},
	Bass:    {Low: 120, High: 300},
	Harmony: {Low: 300, High: 2500},
	Lead:    {Low: 2500, High: 9000},
}

// Band returns the static frequency band assigned to t.
func (t Type) Band() Band {
	return bands[t]
}
