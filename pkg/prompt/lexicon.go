package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Lexicon is the rule table that maps request phrases to structured
// intent fields. The defaults can be replaced or extended from a YAML
// file so prompt tuning doesn't require a rebuild.
type Lexicon struct {
	Genres map[string][]string `yaml:"genres"`
	Moods  map[string][]string `yaml:"moods"`
	Styles []string            `yaml:"styles"`
}

// DefaultLexicon returns the built-in phrase tables.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Genres: map[string][]string{
			"lo-fi":     {"lo-fi", "lofi", "low-fi"},
			"hip-hop":   {"hip-hop", "hiphop", "hip hop", "rap"},
			"techno":    {"techno", "electronic", "edm"},
			"jazz":      {"jazz", "jazzy"},
			"ambient":   {"ambient", "atmospheric", "ethereal"},
			"rock":      {"rock", "guitar"},
			"pop":       {"pop", "catchy"},
			"classical": {"classical", "orchestral", "symphony"},
			"reggae":    {"reggae", "dub"},
			"funk":      {"funk", "funky", "groove"},
		},
		Moods: map[string][]string{
			"chill":      {"chill", "relaxed", "laid back", "calm"},
			"dark":       {"dark", "moody", "brooding"},
			"uplifting":  {"uplifting", "happy", "bright", "positive"},
			"aggressive": {"aggressive", "intense", "driving", "hard"},
			"dreamy":     {"dreamy", "floating"},
			"energetic":  {"energetic", "high energy", "pumping", "powerful"},
		},
		Styles: []string{
			"analog", "digital", "vintage", "modern", "retro",
			"warm", "cold", "punchy", "smooth", "rough",
			"swing", "straight", "syncopated",
		},
	}
}

// LoadLexicon reads a lexicon from a YAML file. Missing sections fall
// back to the defaults.
func LoadLexicon(path string) (*Lexicon, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: couldn't read lexicon file: %w", err)
	}
	var lex Lexicon
	if err := yaml.Unmarshal(b, &lex); err != nil {
		return nil, fmt.Errorf("prompt: couldn't parse lexicon file: %w", err)
	}
	defaults := DefaultLexicon()
	if len(lex.Genres) == 0 {
		lex.Genres = defaults.Genres
	}
	if len(lex.Moods) == 0 {
		lex.Moods = defaults.Moods
	}
	if len(lex.Styles) == 0 {
		lex.Styles = defaults.Styles
	}
	return &lex, nil
}
