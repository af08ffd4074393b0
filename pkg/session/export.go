package session

import (
	"fmt"

	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/wave"
)

// Mix gains per role. Rhythm anchors the level, harmony sits back.
var mixGains = map[part.Type]float64{
	part.Rhythm:  1.0,
	part.Bass:    0.9,
	part.Harmony: 0.7,
	part.Lead:    0.8,
}

// MixGain returns the default mix gain for a part.
func MixGain(pt part.Type) float64 {
	g, ok := mixGains[pt]
	if !ok {
		return 1.0
	}
	return g
}

// ExportMix sums all current tracks into a single waveform, scaled
// down only if the sum clips.
func (s *Session) ExportMix() (*wave.Waveform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var waves []*wave.Waveform
	var gains []float64
	for _, pt := range part.All() {
		t, ok := s.tracks[pt]
		if !ok || t.Audio == nil {
			continue
		}
		waves = append(waves, t.Audio)
		gains = append(gains, MixGain(pt))
	}
	if len(waves) == 0 {
		return nil, fmt.Errorf("session: no tracks to mix")
	}
	mix, err := wave.Mix(waves, gains)
	if err != nil {
		return nil, fmt.Errorf("session: couldn't mix tracks: %w", err)
	}
	return mix, nil
}

// ExportStems returns a copy of each track's audio keyed by part, so
// callers can't mutate committed audio.
func (s *Session) ExportStems() (map[part.Type]*wave.Waveform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stems := make(map[part.Type]*wave.Waveform)
	for pt, t := range s.tracks {
		if t.Audio == nil {
			continue
		}
		stems[pt] = t.Audio.Clone()
	}
	if len(stems) == 0 {
		return nil, fmt.Errorf("session: no tracks to export")
	}
	return stems, nil
}
