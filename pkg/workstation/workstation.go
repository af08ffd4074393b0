package workstation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/igolaizola/loopgen/pkg/engine"
	"github.com/igolaizola/loopgen/pkg/feature"
	"github.com/igolaizola/loopgen/pkg/loop"
	"github.com/igolaizola/loopgen/pkg/part"
	"github.com/igolaizola/loopgen/pkg/prompt"
	"github.com/igolaizola/loopgen/pkg/session"
	"github.com/igolaizola/loopgen/pkg/wave"
)

// Config holds the orchestration parameters.
type Config struct {
	Debug bool
	// Duration is the target length of each generated loop.
	Duration time.Duration
	// Fragment is the raw audio length requested from the generator.
	Fragment time.Duration
	// Retries bounds the generation attempts per request.
	Retries int
	// Backoff is the wait between attempts; the last entry repeats.
	Backoff []time.Duration
	// Lexicon overrides the built-in request phrase tables.
	Lexicon *prompt.Lexicon
	// Loop configures the loop construction engine.
	Loop loop.Config
}

const (
	defaultDuration = 8 * time.Second
	defaultFragment = 6 * time.Second
	defaultRetries  = 3
)

var defaultBackoff = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
}

// Workstation orchestrates selective regeneration: it turns a request
// into a prompt, drives the generator, extracts features, builds the
// loop and commits the result to the session. Requests for the same
// part run serialized; different parts run concurrently.
type Workstation struct {
	pool      *engine.Pool
	processor *prompt.Processor
	extractor *feature.Extractor
	looper    *loop.Engine
	debug     func(format string, args ...any)

	duration time.Duration
	fragment time.Duration
	retries  int
	backoff  []time.Duration

	partMu map[part.Type]*sync.Mutex

	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

func New(cfg *Config, generator engine.Generator) *Workstation {
	duration := cfg.Duration
	if duration <= 0 {
		duration = defaultDuration
	}
	fragment := cfg.Fragment
	if fragment <= 0 {
		fragment = defaultFragment
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	backoff := cfg.Backoff
	if len(backoff) == 0 {
		backoff = defaultBackoff
	}
	debug := func(format string, args ...any) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}
	partMu := make(map[part.Type]*sync.Mutex)
	for _, pt := range part.All() {
		partMu[pt] = &sync.Mutex{}
	}
	processor := prompt.New()
	if cfg.Lexicon != nil {
		processor = prompt.NewWithLexicon(cfg.Lexicon)
	}
	return &Workstation{
		pool:      engine.NewPool(generator),
		processor: processor,
		extractor: feature.NewExtractor(),
		looper:    loop.New(cfg.Loop),
		debug:     debug,
		duration:  duration,
		fragment:  fragment,
		retries:   retries,
		backoff:   backoff,
		partMu:    partMu,
		pending:   make(map[string]context.CancelFunc),
	}
}

// Generate runs the full pipeline for one part and commits the result.
// Nothing is committed on failure or cancellation. Regenerating a
// locked part fails with session.ErrLockedTrack.
func (w *Workstation) Generate(ctx context.Context, s *session.Session, pt part.Type, request string) (*session.Track, error) {
	if !pt.Valid() {
		return nil, fmt.Errorf("workstation: invalid part type %q", pt)
	}
	mu, ok := w.partMu[pt]
	if !ok {
		return nil, fmt.Errorf("workstation: invalid part type %q", pt)
	}
	mu.Lock()
	defer mu.Unlock()

	if s.Track(pt).Locked() {
		return nil, fmt.Errorf("workstation: couldn't regenerate %s: %w", pt, session.ErrLockedTrack)
	}

	id := ulid.Make().String()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.register(id, cancel)
	defer w.unregister(id)
	w.debug("workstation: request %s %s %q", id, pt, request)

	// Snapshot the generation context. The snapshot stays in effect
	// for the whole request even if locks change underneath.
	snapshot := s.Context().Clone()
	version := s.Version()

	built, err := w.processor.Build(request, pt, snapshot)
	if err != nil {
		return nil, fmt.Errorf("workstation: couldn't build prompt: %w", err)
	}
	w.debug("workstation: prompt %s %q", id, built)

	fragment, err := w.generate(ctx, built)
	if err != nil {
		return nil, err
	}
	// The backend may return a result even after cancellation; a
	// cancelled request discards it without touching the session.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("workstation: %s discarded: %w", id, err)
	}

	snap, err := w.extractor.Extract(fragment)
	switch {
	case errors.Is(err, feature.ErrInsufficientAudio):
		// Non fatal: commit with an empty snapshot.
		log.Printf("workstation: %s: feature extraction skipped: %v\n", id, err)
		snap = &feature.Snapshot{}
	case err != nil:
		return nil, fmt.Errorf("workstation: couldn't extract features: %w", err)
	}
	snap.Part = pt

	tempo := snapshot.Tempo
	if tempo == 0 {
		tempo = snap.Tempo
	}
	audio, meta, err := w.looper.Build(fragment, w.duration, tempo)
	switch {
	case errors.Is(err, loop.ErrLoopDetection):
		// Non fatal: the fallback output is still usable.
		log.Printf("workstation: %s: %v\n", id, err)
	case err != nil:
		return nil, fmt.Errorf("workstation: couldn't build loop: %w", err)
	}

	if v := s.Version(); v != version {
		log.Printf("workstation: %s: session changed during generation (version %d -> %d)\n", id, version, v)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("workstation: %s discarded: %w", id, err)
	}

	track := &session.Track{
		ID:        id,
		Part:      pt,
		State:     session.Unlocked,
		Audio:     audio,
		Features:  snap,
		Prompt:    built,
		Loop:      meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.SetTrack(track); err != nil {
		return nil, fmt.Errorf("workstation: couldn't commit %s: %w", pt, err)
	}
	w.debug("workstation: committed %s %s", id, pt)
	return track, nil
}

// generate drives the backend with bounded retries.
func (w *Workstation) generate(ctx context.Context, built string) (out *wave.Waveform, err error) {
	generator, err := w.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := w.pool.Release(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}()

	var lastErr error
	for attempt := 0; attempt < w.retries; attempt++ {
		if attempt > 0 {
			idx := attempt - 1
			if idx >= len(w.backoff) {
				idx = len(w.backoff) - 1
			}
			t := time.NewTimer(w.backoff[idx])
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, fmt.Errorf("workstation: %w", ctx.Err())
			case <-t.C:
			}
			log.Println("workstation: retrying generation...", lastErr)
		}
		fragment, err := generator.Generate(ctx, built, w.fragment)
		if err == nil {
			return fragment, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("workstation: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("workstation: %w after %d attempts: %w", engine.ErrGeneration, w.retries, lastErr)
}

// GenerateAll generates every part concurrently. Locked parts are
// skipped. The first error per part is collected; successful parts
// commit regardless of failures elsewhere.
func (w *Workstation) GenerateAll(ctx context.Context, s *session.Session, request string) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for _, pt := range part.All() {
		if s.Track(pt).Locked() {
			w.debug("workstation: skipping locked %s", pt)
			continue
		}
		wg.Add(1)
		go func(pt part.Type) {
			defer wg.Done()
			if _, err := w.Generate(ctx, s, pt, request); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(pt)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Cancel aborts a pending request by id. It reports whether the id was
// pending.
func (w *Workstation) Cancel(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cancel, ok := w.pending[id]
	if !ok {
		return false
	}
	cancel()
	delete(w.pending, id)
	return true
}

// Pending returns the ids of in-flight requests.
func (w *Workstation) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	return ids
}

func (w *Workstation) register(id string, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[id] = cancel
}

func (w *Workstation) unregister(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, id)
}
