// Package estimator turns closed obstruction windows into serving
// estimates: it filters the catalog down to visible candidates, scores
// them against the window's evidence, and emits one estimate per sample
// second.
package estimator

import (
	"errors"
	"sync"
	"time"

	"github.com/large-farva/skylock/internal/sky"
)

// Unresolved is the published identity when no candidate survives
// scoring. It is a valid output value, not an error.
const Unresolved = "unresolved"

// Estimate is one serving-satellite determination. Immutable once
// emitted.
type Estimate struct {
	At        time.Time `json:"at"`
	Slot      uint64    `json:"slot"`
	Satellite string    `json:"satellite,omitempty"`
	RangeKm   float64   `json:"range_km,omitempty"`
	Cell      sky.Cell  `json:"cell"`
	Score     float64   `json:"score"`
	Resolved  bool      `json:"resolved"`
}

// Label returns the satellite identity, or the unresolved marker.
func (e Estimate) Label() string {
	if !e.Resolved {
		return Unresolved
	}
	return e.Satellite
}

// Emitter consumes estimates in emission order.
type Emitter interface {
	Emit(Estimate) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Estimate) error

func (f EmitterFunc) Emit(e Estimate) error { return f(e) }

// MultiEmitter fans one estimate out to every sink, in order. All sinks
// see the estimate even when an earlier one fails; errors are joined.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(e Estimate) error {
	var errs []error
	for _, em := range m {
		if err := em.Emit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ring keeps the most recent estimates in memory for the HTTP API. It
// is safe for one writer and many readers.
type Ring struct {
	mu   sync.Mutex
	buf  []Estimate
	next int
	full bool
}

// NewRing returns a ring holding up to n estimates.
func NewRing(n int) *Ring {
	if n < 1 {
		n = 1
	}
	return &Ring{buf: make([]Estimate, n)}
}

// Emit stores the estimate, evicting the oldest when full.
func (r *Ring) Emit(e Estimate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent returns up to limit of the newest estimates, oldest first.
// limit <= 0 means everything held.
func (r *Ring) Recent(limit int) []Estimate {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Estimate, 0, limit)
	start := r.next - limit
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Len returns how many estimates the ring currently holds.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}
