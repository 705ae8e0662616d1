// Package catalog loads orbital element snapshots for the constellation
// and propagates members to inertial state vectors with SGP4. A snapshot
// is immutable once loaded and superseded wholesale on refresh, so it can
// be shared across workers without locking.
package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/akhenakh/sgp4"
)

// Vector is a Cartesian triple in kilometers (position) or km/s (velocity).
type Vector struct {
	X, Y, Z float64
}

// Norm returns the Euclidean magnitude.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// StateVector is a satellite's inertial (TEME) position and velocity at
// one instant. Derived on demand, never persisted.
type StateVector struct {
	ID  string
	At  time.Time
	Pos Vector // km
	Vel Vector // km/s
}

// Plausible geocentric radius band for anything we track, in km. Outside
// it the propagation is numerically degenerate.
const (
	minRadiusKm = 6200
	maxRadiusKm = 50000
)

type member struct {
	id    string
	norad int
	epoch time.Time
	tle   *sgp4.TLE
}

// Snapshot is one session's immutable element-set catalog, keyed by
// satellite name and NORAD number.
type Snapshot struct {
	byID        map[string]*member
	byNorad     map[int]*member
	ids         []string
	loadedAt    time.Time
	maxEpochAge time.Duration
}

// Parse builds a Snapshot from a bulk TLE text dump in the standard
// 3-line format (name, line 1, line 2). Groups that fail to parse are
// skipped; an input yielding no members at all is an error.
func Parse(raw string, loadedAt time.Time, maxEpochAge time.Duration) (*Snapshot, error) {
	lines := strings.Split(strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n")), "\n")

	snap := &Snapshot{
		byID:        make(map[string]*member),
		byNorad:     make(map[int]*member),
		loadedAt:    loadedAt,
		maxEpochAge: maxEpochAge,
	}

	for i := 0; i+2 < len(lines); {
		l1 := strings.TrimSpace(lines[i+1])
		l2 := strings.TrimSpace(lines[i+2])
		// Resync on anything that is not a name/line1/line2 group.
		if !strings.HasPrefix(l1, "1 ") || !strings.HasPrefix(l2, "2 ") {
			i++
			continue
		}

		group := strings.TrimSpace(lines[i]) + "\n" + l1 + "\n" + l2
		i += 3

		tle, err := sgp4.ParseTLE(group)
		if err != nil {
			continue
		}

		id := strings.TrimSpace(tle.Name)
		if id == "" {
			id = strconv.Itoa(tle.SatelliteNumber)
		}

		m := &member{
			id:    id,
			norad: tle.SatelliteNumber,
			epoch: tle.EpochTime(),
			tle:   tle,
		}
		snap.byID[id] = m
		snap.byNorad[m.norad] = m
	}

	if len(snap.byID) == 0 {
		return nil, fmt.Errorf("no parseable element sets in %d lines of input", len(lines))
	}

	snap.ids = make([]string, 0, len(snap.byID))
	for id := range snap.byID {
		snap.ids = append(snap.ids, id)
	}
	sort.Strings(snap.ids)

	return snap, nil
}

// IDs returns every satellite identity in the snapshot, sorted, so
// iteration order is deterministic across runs.
func (s *Snapshot) IDs() []string { return s.ids }

// Len returns the number of satellites in the snapshot.
func (s *Snapshot) Len() int { return len(s.byID) }

// LoadedAt returns when this snapshot was loaded.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Contains reports whether the identity exists in the snapshot.
func (s *Snapshot) Contains(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// NoradID maps a satellite identity to its NORAD catalog number.
func (s *Snapshot) NoradID(id string) (int, bool) {
	m, ok := s.byID[id]
	if !ok {
		return 0, false
	}
	return m.norad, true
}

// ByNorad maps a NORAD catalog number back to the satellite identity.
func (s *Snapshot) ByNorad(norad int) (string, bool) {
	m, ok := s.byNorad[norad]
	if !ok {
		return "", false
	}
	return m.id, true
}

// Epoch returns the element-set epoch for the identity.
func (s *Snapshot) Epoch(id string) (time.Time, bool) {
	m, ok := s.byID[id]
	if !ok {
		return time.Time{}, false
	}
	return m.epoch, true
}

// Propagate computes the satellite's state vector at the given instant.
// It returns ErrUnknownSatellite (wrapped) for absent identities and a
// *PropagationError when the element set is too far from the requested
// time or the SGP4 evaluation is degenerate. Each call is pure: safe to
// run concurrently for any (id, time) pairs.
func (s *Snapshot) Propagate(id string, at time.Time) (StateVector, error) {
	m, ok := s.byID[id]
	if !ok {
		return StateVector{}, fmt.Errorf("%q: %w", id, ErrUnknownSatellite)
	}

	offset := at.Sub(m.epoch)
	if age := offset.Abs(); age > s.maxEpochAge {
		return StateVector{}, &PropagationError{
			ID: id,
			At: at,
			Err: fmt.Errorf("element set epoch %s is %.1f days from requested time",
				m.epoch.Format(time.RFC3339), age.Hours()/24),
		}
	}

	eci, err := m.tle.FindPosition(offset.Minutes())
	if err != nil {
		return StateVector{}, &PropagationError{ID: id, At: at, Err: err}
	}

	sv := StateVector{
		ID: id,
		At: at,
		Pos: Vector{X: eci.Position.X, Y: eci.Position.Y, Z: eci.Position.Z},
		Vel: Vector{X: eci.Velocity.X, Y: eci.Velocity.Y, Z: eci.Velocity.Z},
	}

	r := sv.Pos.Norm()
	if math.IsNaN(r) || r < minRadiusKm || r > maxRadiusKm {
		return StateVector{}, &PropagationError{
			ID:  id,
			At:  at,
			Err: fmt.Errorf("implausible geocentric radius %.1f km", r),
		}
	}

	return sv, nil
}
