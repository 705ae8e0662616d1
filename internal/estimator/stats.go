package estimator

import (
	"sync"
	"time"
)

// Stats aggregates emitted estimates for the daemon's stats endpoint.
// It implements Emitter so it can sit in a MultiEmitter chain.
type Stats struct {
	mu       sync.Mutex
	total    int
	resolved int
	bySat    map[string]int
	windows  int
	lastSlot uint64
	lastAt   time.Time
	lastSat  string
}

// Summary is a point-in-time copy of the counters.
type Summary struct {
	Total         int            `json:"total_estimates"`
	Resolved      int            `json:"resolved"`
	Unresolved    int            `json:"unresolved"`
	Windows       int            `json:"windows"`
	BySatellite   map[string]int `json:"by_satellite"`
	LastAt        time.Time      `json:"last_at"`
	LastSatellite string         `json:"last_satellite,omitempty"`
}

func NewStats() *Stats {
	return &Stats{bySat: make(map[string]int)}
}

func (s *Stats) Emit(e Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if e.Resolved {
		s.resolved++
		s.bySat[e.Satellite]++
	}
	if e.Slot != s.lastSlot {
		s.windows++
		s.lastSlot = e.Slot
	}
	if e.At.After(s.lastAt) {
		s.lastAt = e.At
		s.lastSat = e.Label()
	}
	return nil
}

func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	by := make(map[string]int, len(s.bySat))
	for k, v := range s.bySat {
		by[k] = v
	}
	return Summary{
		Total:         s.total,
		Resolved:      s.resolved,
		Unresolved:    s.total - s.resolved,
		Windows:       s.windows,
		BySatellite:   by,
		LastAt:        s.lastAt,
		LastSatellite: s.lastSat,
	}
}
