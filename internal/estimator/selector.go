package estimator

import (
	"context"
	"log/slog"

	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/sky"
	"github.com/large-farva/skylock/internal/window"
)

// Selector resolves closed Timeslots into serving estimates. It keeps
// one piece of state between calls: the previous winning identity, fed
// back as the continuity bonus so geometrically similar candidates do
// not flap sample to sample.
type Selector struct {
	log    *slog.Logger
	cfg    config.SelectorConfig
	filter *Filter
	prev   string
}

// NewSelector builds a Selector with the given scoring configuration.
func NewSelector(log *slog.Logger, cfg config.SelectorConfig) *Selector {
	return &Selector{log: log, cfg: cfg, filter: NewFilter(log, cfg)}
}

// Previous returns the identity of the most recent resolved estimate.
func (s *Selector) Previous() string { return s.prev }

// ResolveSlot scores candidates at every sample second of a closed slot
// and returns exactly one estimate per second, ascending. All estimates
// reference only this slot's evidence. The only error out is context
// cancellation; the caller discards the slot's output in that case.
func (s *Selector) ResolveSlot(ctx context.Context, prop Propagator, view View, slot *window.Timeslot) ([]Estimate, error) {
	seconds := slot.SampleSeconds()
	observed := slot.ObservedSamples(s.cfg.TrajectorySamples)

	out := make([]Estimate, 0, len(seconds))
	for _, ts := range seconds {
		cands, err := s.filter.CandidatesAt(ctx, prop, view, ts)
		if err != nil {
			return nil, err
		}

		est := s.pick(prop, view, slot, cands, observed)
		est.At = ts
		est.Slot = slot.Seq()
		if est.Resolved {
			s.prev = est.Satellite
		}
		out = append(out, est)
	}
	return out, nil
}

// pick scores the candidates and returns the winner, or an unresolved
// estimate when nothing survives. Candidates arrive in ascending
// identity order and a later candidate must beat the incumbent by more
// than epsilon, so score ties resolve to the smallest identity.
func (s *Selector) pick(prop Propagator, view View, slot *window.Timeslot, cands []Candidate, observed []window.TrackPoint) Estimate {
	best := -1
	var bestScore float64
	for i, c := range cands {
		// An obstructed line of sight cannot be the active server.
		if slot.Obstructed(c.Cell) {
			continue
		}
		score := s.score(prop, view, slot, c, observed)
		if best < 0 || score > bestScore+s.cfg.TieEpsilon {
			best = i
			bestScore = score
		}
	}

	if best < 0 {
		return Estimate{}
	}
	w := cands[best]
	return Estimate{
		Satellite: w.ID,
		RangeKm:   w.Topo.RangeKm,
		Cell:      w.Cell,
		Score:     bestScore,
		Resolved:  true,
	}
}

func (s *Selector) score(prop Propagator, view View, slot *window.Timeslot, c Candidate, observed []window.TrackPoint) float64 {
	clear := s.clearance(prop, view, slot, c, observed)

	sep := sky.AngularSeparation(c.Topo.ElevationDeg, c.Topo.AzimuthDeg,
		view.BoreElDeg, view.BoreAzDeg)
	bore := 1 - sep/s.cfg.FOVRadiusDegrees

	rng := 1 - c.Topo.RangeKm/s.cfg.MaxRangeKm
	if rng < 0 {
		rng = 0
	} else if rng > 1 {
		rng = 1
	}

	var cont float64
	if s.prev != "" && c.ID == s.prev {
		cont = 1
	}

	return s.cfg.ClearanceWeight*clear +
		s.cfg.BoresightWeight*bore +
		s.cfg.RangeWeight*rng +
		s.cfg.ContinuityWeight*cont
}

// clearance is the unobstructed fraction of the candidate's short
// trajectory through the window: its current cell plus its projected
// cell at each observed sample time. Points that fail to propagate or
// fall off the grid are left out of the fraction.
func (s *Selector) clearance(prop Propagator, view View, slot *window.Timeslot, c Candidate, observed []window.TrackPoint) float64 {
	total, clear := 1, 0
	if !slot.Obstructed(c.Cell) {
		clear++
	}
	for _, o := range observed {
		sv, err := prop.Propagate(c.ID, o.At)
		if err != nil {
			continue
		}
		topo := view.Observer.LookAngles(sv)
		cell, ok := view.Proj.ToCell(topo.ElevationDeg, topo.AzimuthDeg)
		if !ok {
			continue
		}
		total++
		if !slot.Obstructed(cell) {
			clear++
		}
	}
	return float64(clear) / float64(total)
}
