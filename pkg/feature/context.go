package feature

import (
	"github.com/igolaizola/loopgen/pkg/part"
)

// Context aggregates the features of all locked parts into one set of
// generation constraints. It is derived state: recomputed on every
// lock transition and before every generation dispatch, never stored
// as a source of truth.
type Context struct {
	Tempo  float64                 `json:"tempo,omitempty"`
	Key    *Key                    `json:"key,omitempty"`
	Energy []float64               `json:"energy,omitempty"`
	Grid   []float64               `json:"grid,omitempty"`
	Bands  map[part.Type]part.Band `json:"bands,omitempty"`
	Locked []part.Type             `json:"locked,omitempty"`
}

// Derive combines the snapshots of locked parts. Tempo and key
// conflicts are resolved independently by fixed role precedence
// (rhythm > bass > harmony > lead); when the top precedence part lacks
// a usable value the next present part wins. Band allocation comes
// from the static per-role table.
func Derive(locked map[part.Type]*Snapshot) *Context {
	ctx := &Context{
		Bands: make(map[part.Type]part.Band, len(part.All())),
	}
	for _, pt := range part.All() {
		ctx.Bands[pt] = pt.Band()
	}

	for _, pt := range part.All() {
		snap, ok := locked[pt]
		if !ok || snap == nil {
			continue
		}
		ctx.Locked = append(ctx.Locked, pt)
		if ctx.Tempo == 0 && snap.Tempo > 0 {
			ctx.Tempo = snap.Tempo
		}
		if ctx.Key == nil && snap.Key != nil {
			k := *snap.Key
			ctx.Key = &k
		}
		if ctx.Energy == nil && len(snap.Energy) > 0 {
			ctx.Energy = append([]float64(nil), snap.Energy...)
		}
		if ctx.Grid == nil && len(snap.Grid) > 0 {
			ctx.Grid = append([]float64(nil), snap.Grid...)
		}
	}
	return ctx
}

// Clone returns a deep copy used for request snapshots.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := &Context{Tempo: c.Tempo}
	if c.Key != nil {
		k := *c.Key
		out.Key = &k
	}
	out.Energy = append([]float64(nil), c.Energy...)
	out.Grid = append([]float64(nil), c.Grid...)
	out.Locked = append([]part.Type(nil), c.Locked...)
	if c.Bands != nil {
		out.Bands = make(map[part.Type]part.Band, len(c.Bands))
		for k, v := range c.Bands {
			out.Bands[k] = v
		}
	}
	return out
}
