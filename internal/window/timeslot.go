package window

import (
	"time"

	"github.com/large-farva/skylock/internal/sky"
)

// State is a Timeslot's lifecycle position. Transitions only move
// forward: Open to Closing on a reset or timeout, Closing to Resolved
// once the selector has drained it. A slot never re-opens.
type State int

const (
	Open State = iota
	Closing
	Resolved
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Resolved:
		return "resolved"
	}
	return "invalid"
}

// TrackPoint is one observed obstruction-delta coordinate: the cell
// that most recently flipped between consecutive snapshots. When a
// snapshot shows no change the previous coordinate is held.
type TrackPoint struct {
	At   time.Time
	Cell sky.Cell
}

// Timeslot is one half-open accumulation interval and its evidence:
// the union grid, the sample timestamps, and the delta track.
type Timeslot struct {
	seq      uint64
	start    time.Time
	duration time.Duration

	state   State
	grid    *Grid
	samples []time.Time

	prev    []bool // last raw snapshot, for delta tracking
	track   []TrackPoint
	hold    sky.Cell
	hasHold bool

	closeCause string
	closedAt   time.Time
}

func newTimeslot(seq uint64, start time.Time, duration time.Duration, gridSize int) *Timeslot {
	return &Timeslot{
		seq:      seq,
		start:    start,
		duration: duration,
		grid:     NewGrid(gridSize),
	}
}

// absorb merges one raw snapshot and extends the delta track. Only the
// Buffer calls it, and only while the slot is Open.
func (t *Timeslot) absorb(at time.Time, cells []bool) error {
	if err := t.grid.Merge(cells); err != nil {
		return err
	}
	t.samples = append(t.samples, at)

	if t.prev == nil {
		t.prev = make([]bool, len(cells))
		copy(t.prev, cells)
		return nil
	}

	// Last flipped cell in row-major order wins, matching the
	// terminal's sweep direction.
	changed := -1
	for i := range cells {
		if cells[i] != t.prev[i] {
			changed = i
		}
	}
	copy(t.prev, cells)

	switch {
	case changed >= 0:
		t.hold = sky.Cell{X: changed % t.grid.size, Y: changed / t.grid.size}
		t.hasHold = true
	case !t.hasHold:
		return nil // nothing observed yet
	}
	t.track = append(t.track, TrackPoint{At: at, Cell: t.hold})
	return nil
}

// close seals the slot. The grid is cloned so the resolver side never
// shares storage with the writer.
func (t *Timeslot) close(at time.Time, cause string) {
	if t.state != Open {
		return
	}
	t.state = Closing
	t.closeCause = cause
	t.closedAt = at
	t.grid = t.grid.Clone()
	t.prev = nil
}

// MarkResolved records that the selector has finished with the slot.
func (t *Timeslot) MarkResolved() {
	if t.state == Closing {
		t.state = Resolved
	}
}

// Seq returns the slot's monotonic sequence number.
func (t *Timeslot) Seq() uint64 { return t.seq }

// State returns the current lifecycle state.
func (t *Timeslot) State() State { return t.state }

// Interval returns the slot's half-open [start, end) interval.
func (t *Timeslot) Interval() (start, end time.Time) {
	return t.start, t.start.Add(t.duration)
}

// CloseCause reports why the slot closed: "reset", "timeout", or
// "flush". Empty while still open.
func (t *Timeslot) CloseCause() string { return t.closeCause }

// Samples returns how many snapshots the slot absorbed.
func (t *Timeslot) Samples() int { return len(t.samples) }

// SampleTimes returns a copy of every absorbed snapshot timestamp, in
// arrival order.
func (t *Timeslot) SampleTimes() []time.Time {
	out := make([]time.Time, len(t.samples))
	copy(out, t.samples)
	return out
}

// SampleSeconds returns the absorbed timestamps truncated to whole
// seconds and deduplicated, ascending. These are the instants the
// selector estimates for.
func (t *Timeslot) SampleSeconds() []time.Time {
	out := make([]time.Time, 0, len(t.samples))
	for _, ts := range t.samples {
		sec := ts.Truncate(time.Second)
		if n := len(out); n > 0 && !sec.After(out[n-1]) {
			continue
		}
		out = append(out, sec)
	}
	return out
}

// Obstructed reports whether the cell is marked in the slot's union.
func (t *Timeslot) Obstructed(c sky.Cell) bool { return t.grid.Obstructed(c) }

// Grid returns the slot's evidence grid. Callers must not hold it past
// the slot's lifetime on the Open side; after close it is immutable.
func (t *Timeslot) Grid() *Grid { return t.grid }

// Track returns a copy of the observed delta track.
func (t *Timeslot) Track() []TrackPoint {
	out := make([]TrackPoint, len(t.track))
	copy(out, t.track)
	return out
}

// ObservedSamples picks n representative track points. The final point
// is skipped because the closing snapshot can land after the collection
// interval; for the default n=3 this gives first, middle, and
// second-to-last, the same picks the terminal's per-slot series uses.
func (t *Timeslot) ObservedSamples(n int) []TrackPoint {
	if n <= 0 || len(t.track) == 0 {
		return nil
	}
	if len(t.track) <= 2 || len(t.track) <= n {
		return t.Track()
	}
	if n == 1 {
		return []TrackPoint{t.track[len(t.track)/2]}
	}
	if n == 3 {
		return []TrackPoint{t.track[0], t.track[len(t.track)/2], t.track[len(t.track)-2]}
	}

	last := len(t.track) - 2
	out := make([]TrackPoint, 0, n)
	for k := 0; k < n; k++ {
		out = append(out, t.track[k*last/(n-1)])
	}
	return out
}
