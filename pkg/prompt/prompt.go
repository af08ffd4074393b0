package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/igolaizola/loopgen/pkg/feature"
	"github.com/igolaizola/loopgen/pkg/part"
)

// ErrInvalidPrompt is returned for empty or unparsable requests.
var ErrInvalidPrompt = errors.New("prompt: invalid prompt")

// Intent is the structured musical intent parsed from a request.
type Intent struct {
	Genre  string
	Moods  []string
	Tempo  int // 0 if not specified
	Key    string
	Styles []string
}

// Processor turns natural language requests into per-part generation
// prompts. All parsing is table and regexp driven, so the same inputs
// always produce the same prompt.
type Processor struct {
	lex *Lexicon
}

func New() *Processor {
	return &Processor{lex: DefaultLexicon()}
}

func NewWithLexicon(lex *Lexicon) *Processor {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Processor{lex: lex}
}

var (
	tempoRe = regexp.MustCompile(`(\d{2,3})\s*(?:bpm|beats per minute)`)
	keyRe   = regexp.MustCompile(`(?:in\s+)?([a-g][#b]?)\s+(major|minor)\b`)
)

// Parse extracts structured intent from a request.
func (p *Processor) Parse(request string) (*Intent, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidPrompt)
	}
	if !strings.ContainsFunc(request, func(r rune) bool {
		return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
	}) {
		return nil, fmt.Errorf("%w: no words in %q", ErrInvalidPrompt, request)
	}
	lower := strings.ToLower(request)

	intent := &Intent{
		Genre:  matchFirst(lower, p.lex.Genres),
		Moods:  matchAll(lower, p.lex.Moods),
		Styles: matchList(lower, p.lex.Styles),
	}
	if m := tempoRe.FindStringSubmatch(lower); m != nil {
		tempo, err := strconv.Atoi(m[1])
		if err == nil {
			intent.Tempo = tempo
		}
	}
	if m := keyRe.FindStringSubmatch(lower); m != nil {
		intent.Key = fmt.Sprintf("%s %s", strings.ToUpper(m[1][:1])+m[1][1:], m[2])
	}
	return intent, nil
}

// Build combines the parsed request, the role template for the part
// and the generation context into one prompt string. Pure function:
// no side effects, deterministic output.
func (p *Processor) Build(request string, pt part.Type, ctx *feature.Context) (string, error) {
	if !pt.Valid() {
		return "", fmt.Errorf("prompt: invalid part type %q", pt)
	}
	intent, err := p.Parse(request)
	if err != nil {
		return "", err
	}

	parts := []string{roleClause(pt)}
	if style := roleStyle(pt, intent.Genre); style != "" {
		parts = append(parts, style)
	}
	if base := baseStyle(intent); base != "" {
		parts = append(parts, base)
	}

	// Context constraints from locked parts override request hints.
	if ctx != nil && ctx.Tempo > 0 {
		parts = append(parts, fmt.Sprintf("%d BPM", int(ctx.Tempo+0.5)))
	} else if intent.Tempo > 0 {
		parts = append(parts, fmt.Sprintf("%d BPM", intent.Tempo))
	}
	if ctx != nil && ctx.Key != nil {
		parts = append(parts, fmt.Sprintf("in %s", ctx.Key))
	} else if intent.Key != "" {
		parts = append(parts, fmt.Sprintf("in %s", intent.Key))
	}

	parts = append(parts, exclusionClause(pt))
	return strings.Join(parts, ", "), nil
}

// roleClause isolates the target role.
func roleClause(pt part.Type) string {
	switch pt {
	case part.Rhythm:
		return "drums only"
	case part.Bass:
		return "bass line only"
	case part.Harmony:
		return "chord progression only"
	case part.Lead:
		return "lead melody only"
	default:
		return string(pt)
	}
}

// exclusionClause names the other roles so the generator steers away
// from them.
func exclusionClause(pt part.Type) string {
	var names []string
	for _, o := range part.Others(pt) {
		names = append(names, "no "+roleName(o))
	}
	return strings.Join(names, " ")
}

func roleName(pt part.Type) string {
	switch pt {
	case part.Rhythm:
		return "drums"
	case part.Bass:
		return "bass"
	case part.Harmony:
		return "chords"
	case part.Lead:
		return "melody"
	default:
		return string(pt)
	}
}

var roleStyles = map[part.Type]map[string]string{
	part.Rhythm: {
		"lo-fi":   "laid back swing, vintage drum samples",
		"techno":  "four on the floor kick, electronic percussion",
		"hip-hop": "boom bap pattern, punchy snare",
	},
	part.Bass: {
		"lo-fi":   "warm analog bass, smooth low end",
		"techno":  "driving electronic bass, sub frequencies",
		"hip-hop": "deep 808 bass, punchy low end",
	},
	part.Harmony: {
		"lo-fi":  "jazzy chords, warm keys, vintage electric piano",
		"techno": "atmospheric pads, electronic textures",
		"jazz":   "complex jazz chords, piano comping",
	},
	part.Lead: {
		"lo-fi":  "subtle melody, vinyl texture",
		"techno": "electronic lead, synthesizer melody",
		"jazz":   "improvised solo, melodic phrases",
	},
}

func roleStyle(pt part.Type, genre string) string {
	return roleStyles[pt][genre]
}

func baseStyle(intent *Intent) string {
	var parts []string
	if intent.Genre != "" {
		parts = append(parts, intent.Genre)
	}
	parts = append(parts, intent.Moods...)
	if len(intent.Styles) > 2 {
		// Keep prompts short
		parts = append(parts, intent.Styles[:2]...)
	} else {
		parts = append(parts, intent.Styles...)
	}
	return strings.Join(parts, ", ")
}

// matchFirst returns the alphabetically first table key with a phrase
// present in the request. Map iteration order must not leak into the
// output.
func matchFirst(request string, table map[string][]string) string {
	for _, key := range sortedKeys(table) {
		for _, phrase := range table[key] {
			if strings.Contains(request, phrase) {
				return key
			}
		}
	}
	return ""
}

func matchAll(request string, table map[string][]string) []string {
	var matches []string
	for _, key := range sortedKeys(table) {
		for _, phrase := range table[key] {
			if strings.Contains(request, phrase) {
				matches = append(matches, key)
				break
			}
		}
	}
	return matches
}

func matchList(request string, phrases []string) []string {
	var matches []string
	for _, phrase := range phrases {
		if strings.Contains(request, phrase) {
			matches = append(matches, phrase)
		}
	}
	return matches
}

func sortedKeys(table map[string][]string) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
