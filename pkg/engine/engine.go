package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/igolaizola/loopgen/pkg/wave"
)

// ErrGeneration is returned when the generation backend fails after
// exhausting its retries.
var ErrGeneration = errors.New("engine: generation failed")

// Generator produces audio from text prompts. Implementations are safe
// for concurrent use once started.
type Generator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Generate(ctx context.Context, prompt string, duration time.Duration) (*wave.Waveform, error)
}

// Pool shares one started generator between concurrent users. The
// backend loads its model on Start, which is expensive, so the pool
// starts it on first acquire and stops it when the last user releases.
type Pool struct {
	mu        sync.Mutex
	generator Generator
	refs      int
}

func NewPool(generator Generator) *Pool {
	return &Pool{generator: generator}
}

// Acquire returns the shared generator, starting it if this is the
// first user.
func (p *Pool) Acquire(ctx context.Context) (Generator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refs == 0 {
		if err := p.generator.Start(ctx); err != nil {
			return nil, fmt.Errorf("engine: couldn't start generator: %w", err)
		}
	}
	p.refs++
	return p.generator, nil
}

// Release drops one user and stops the generator when none remain.
func (p *Pool) Release(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refs == 0 {
		return fmt.Errorf("engine: release without acquire")
	}
	p.refs--
	if p.refs > 0 {
		return nil
	}
	if err := p.generator.Stop(ctx); err != nil {
		return fmt.Errorf("engine: couldn't stop generator: %w", err)
	}
	return nil
}
