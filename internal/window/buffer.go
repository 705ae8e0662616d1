package window

import (
	"log/slog"
	"sync"
	"time"

	"github.com/large-farva/skylock/internal/metrics"
)

// Close causes, also the window_closes_total metric labels.
const (
	CauseReset   = "reset"
	CauseTimeout = "timeout"
	CauseFlush   = "flush"
)

// Buffer joins the ingestion side to the resolution side. Exactly one
// goroutine may call OnSample, OnReset, and Flush; the resolver drains
// Closed() and polls TakeExpired from another. The channel holds one
// slot, so at most one window is open and one draining at any time.
type Buffer struct {
	log      *slog.Logger
	gridSize int
	duration time.Duration
	maxOpen  time.Duration

	mu      sync.Mutex
	seq     uint64
	open    *Timeslot
	closed  chan *Timeslot
	dropped int

	// Wall-clock time of the last sample or reset, distinct from the
	// sample timestamps, which may be historical during replay.
	lastActivity time.Time
}

// NewBuffer sizes a Buffer for the given grid dimension and nominal
// window duration. forceFactor scales the duration into the horizon
// after which an un-reset window is closed anyway.
func NewBuffer(log *slog.Logger, gridSize int, duration time.Duration, forceFactor int) *Buffer {
	return &Buffer{
		log:      log,
		gridSize: gridSize,
		duration: duration,
		maxOpen:  time.Duration(forceFactor) * duration,
		closed:   make(chan *Timeslot, 1),
	}
}

// Closed delivers sealed Timeslots to the resolver, oldest first.
func (b *Buffer) Closed() <-chan *Timeslot { return b.closed }

// Dropped returns how many samples arrived too old to use.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Current returns the open Timeslot, or nil before the first sample.
// Resolver-side callers must treat it as read-only.
func (b *Buffer) Current() *Timeslot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// OnSample merges one obstruction snapshot into the open window,
// opening it on first use. Samples predating the open window are
// dropped and counted. A dimension mismatch is returned as-is and the
// caller must treat it as fatal.
func (b *Buffer) OnSample(at time.Time, cells []bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActivity = time.Now()

	if b.open == nil {
		b.openSlot(at)
	}

	if at.Before(b.open.start) {
		b.dropped++
		metrics.SampleDropped()
		b.log.Debug("dropping stale sample",
			"sample", at, "window_start", b.open.start)
		return nil
	}

	// The terminal should reset every window; when it doesn't, seal the
	// runaway window rather than accumulate forever.
	if at.Sub(b.open.start) >= b.maxOpen {
		b.log.Warn("window exceeded force-close horizon",
			"seq", b.open.seq, "start", b.open.start, "horizon", b.maxOpen)
		b.rotate(at, CauseTimeout)
	}

	return b.open.absorb(at, cells)
}

// OnReset seals the open window at t and opens the next one.
func (b *Buffer) OnReset(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActivity = time.Now()

	if b.open == nil {
		b.openSlot(at)
		return
	}
	b.rotate(at, CauseReset)
}

// Flush seals the open window immediately, even mid-accumulation.
func (b *Buffer) Flush(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActivity = time.Now()

	if b.open == nil {
		return
	}
	b.rotate(at, CauseFlush)
}

// TakeExpired seals the open window and hands it straight back when the
// stream has been silent past the force-close horizon. The in-band
// horizon check in OnSample only runs when a sample arrives; this is
// the path that closes a window whose telemetry stopped entirely, so
// silence is measured on the wall clock. It returns nil when there is
// nothing to seal yet, including while an earlier sealed slot is still
// waiting in Closed(), which keeps delivery ordered.
func (b *Buffer) TakeExpired(now time.Time) *Timeslot {
	// An ingester blocked on a backlogged resolver holds the lock; the
	// resolver must not wait behind it.
	if !b.mu.TryLock() {
		return nil
	}
	defer b.mu.Unlock()

	if b.open == nil || b.open.Samples() == 0 {
		return nil
	}
	if now.Sub(b.lastActivity) < b.maxOpen {
		return nil
	}
	if len(b.closed) != 0 {
		return nil
	}

	b.log.Warn("stream silent past force-close horizon, sealing window",
		"seq", b.open.seq, "start", b.open.start, "horizon", b.maxOpen)

	slot := b.open
	b.openSlot(slot.start.Add(b.maxOpen))
	slot.close(slot.start.Add(b.maxOpen), CauseTimeout)
	metrics.WindowClosed(CauseTimeout)
	return slot
}

func (b *Buffer) openSlot(at time.Time) {
	b.seq++
	b.open = newTimeslot(b.seq, at, b.duration, b.gridSize)
}

func (b *Buffer) rotate(at time.Time, cause string) {
	slot := b.open
	b.openSlot(at)

	// An empty window carries no evidence; recycle it silently.
	if slot.Samples() == 0 {
		return
	}

	slot.close(at, cause)
	metrics.WindowClosed(cause)

	select {
	case b.closed <- slot:
	default:
		b.log.Warn("resolver backlogged, ingestion blocked", "seq", slot.seq)
		b.closed <- slot
	}
}
