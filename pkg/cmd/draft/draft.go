package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/oklog/ulid/v2"

	"github.com/igolaizola/loopgen/pkg/openai"
	"github.com/igolaizola/loopgen/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	Limit  int

	Input string
	Type  string

	// Count asks the language model for new drafts instead of reading
	// a file.
	Count int
	Key   string
	Model string
}

type draft struct {
	Type   string `json:"type" csv:"type"`
	Prompt string `json:"prompt" csv:"prompt"`
	Weight int    `json:"weight" csv:"weight"`
}

// Run loads request drafts into the database, either from a CSV/JSON
// file or generated by a language model.
func Run(ctx context.Context, cfg *Config) error {
	var count int
	log.Println("draft: started")
	defer func() {
		log.Printf("draft: ended (%d)\n", count)
	}()

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	var drafts []*draft
	var err error
	switch {
	case cfg.Input != "":
		drafts, err = load(cfg.Input)
	case cfg.Count > 0:
		drafts, err = brainstorm(ctx, cfg)
	default:
		return errors.New("draft: either an input file or a count is required")
	}
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("draft: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("draft: couldn't start orm store: %w", err)
	}

	for _, d := range drafts {
		if cfg.Limit > 0 && count >= cfg.Limit {
			break
		}
		js, _ := json.Marshal(d)
		debug("draft: %s", string(js))
		typ := d.Type
		if typ == "" {
			typ = cfg.Type
		}
		if d.Prompt == "" {
			continue
		}
		weight := d.Weight
		if weight < 1 {
			weight = 1
		}
		if err := store.SetDraft(ctx, &storage.Draft{
			ID:     ulid.Make().String(),
			Type:   typ,
			Prompt: d.Prompt,
			Weight: weight,
		}); err != nil {
			return fmt.Errorf("draft: couldn't save draft: %w", err)
		}
		count++
	}
	return nil
}

func load(input string) ([]*draft, error) {
	b, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("draft: couldn't read input file: %w", err)
	}
	ext := filepath.Ext(input)
	var drafts []*draft
	switch ext {
	case ".json":
		if err := json.Unmarshal(b, &drafts); err != nil {
			return nil, fmt.Errorf("draft: couldn't unmarshal items: %w", err)
		}
	case ".csv":
		if err := gocsv.UnmarshalBytes(b, &drafts); err != nil {
			return nil, fmt.Errorf("draft: couldn't unmarshal items: %w", err)
		}
	default:
		return nil, fmt.Errorf("draft: unsupported input format: %s", ext)
	}
	return drafts, nil
}

// brainstorm asks the language model for request prompts, one per
// line.
func brainstorm(ctx context.Context, cfg *Config) ([]*draft, error) {
	client := openai.New(&openai.Config{
		Debug: cfg.Debug,
		Token: cfg.Key,
		Model: cfg.Model,
	})
	typ := cfg.Type
	if typ == "" {
		typ = "any genre"
	}
	msg := fmt.Sprintf("Write %d short text prompts for generating instrumental music loops (%s). One prompt per line, no numbering, each naming a genre, a mood and optionally a tempo in BPM.", cfg.Count, typ)
	resp, err := client.ChatCompletion(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("draft: %w", err)
	}
	var drafts []*draft
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "-*• "))
		if line == "" {
			continue
		}
		drafts = append(drafts, &draft{Type: cfg.Type, Prompt: line})
	}
	if len(drafts) == 0 {
		return nil, errors.New("draft: model returned no prompts")
	}
	return drafts, nil
}
