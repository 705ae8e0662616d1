package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/large-farva/skylock/internal/catalog"
	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/dish"
	"github.com/large-farva/skylock/internal/estimator"
	"github.com/large-farva/skylock/internal/logging"
	"github.com/large-farva/skylock/internal/ws"
)

// Element set with an epoch near the test times so propagation stays
// inside the staleness horizon.
const testTLE = `ISS (ZARYA)
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533`

type chanSink struct {
	ch chan estimator.Estimate
}

func (c chanSink) Emit(e estimator.Estimate) error {
	c.ch <- e
	return nil
}

func testStore(t *testing.T) *catalog.Store {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "constellation_tle.txt"), []byte(testTLE), 0o644); err != nil {
		t.Fatal(err)
	}
	store := catalog.NewStore("http://127.0.0.1:1/tle", dir, 24, 14, logging.Discard())
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store
}

func newTestRunner(t *testing.T, sink estimator.Emitter) *Runner {
	t.Helper()
	cfg := config.Default()
	poses := dish.NewPoseTrack(64)
	return New(logging.Discard(), cfg, ws.NewHub(), testStore(t), poses, sink, nil)
}

func startRunner(t *testing.T, r *Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, func(string) {}) }()
	return cancel, done
}

func cells123(marked ...int) []bool {
	c := make([]bool, 123*123)
	for _, i := range marked {
		c[i] = true
	}
	return c
}

func frame123(at time.Time, marked ...int) dish.Frame {
	return dish.Frame{At: at, Rows: 123, Cols: 123, Cells: cells123(marked...), Obstructed: len(marked)}
}

func seattlePose(at time.Time) dish.TerminalPose {
	return dish.TerminalPose{
		At: at, Latitude: 47.6062, Longitude: -122.3321, AltitudeM: 56,
		TiltDeg: 20, BoresightAzDeg: 174, BoresightElDeg: 69, GPSValid: true,
	}
}

func collect(t *testing.T, ch <-chan estimator.Estimate, n int) []estimator.Estimate {
	t.Helper()
	out := make([]estimator.Estimate, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case e := <-ch:
			out = append(out, e)
		case <-deadline:
			t.Fatalf("got %d estimates, want %d", len(out), n)
		}
	}
	return out
}

func TestRunner_ResolvesClosedWindow(t *testing.T) {
	sink := chanSink{ch: make(chan estimator.Estimate, 64)}
	r := newTestRunner(t, sink)
	cancel, done := startRunner(t, r)
	defer cancel()

	t0 := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)
	h := r.Handlers()

	h.OnPose(seattlePose(t0))
	h.OnFrame(frame123(t0))
	h.OnFrame(frame123(t0.Add(time.Second), 500))
	h.OnFrame(frame123(t0.Add(2*time.Second), 500, 623))
	h.OnReset(t0.Add(15 * time.Second))

	ests := collect(t, sink.ch, 3)
	start, end := t0, t0.Add(15*time.Second)
	for i, est := range ests {
		if est.Slot != 1 {
			t.Errorf("estimate %d slot = %d, want 1", i, est.Slot)
		}
		if est.At.Before(start) || !est.At.Before(end) {
			t.Errorf("estimate %d at %v outside window", i, est.At)
		}
		if i > 0 && !ests[i-1].At.Before(est.At) {
			t.Errorf("estimates out of order at %d", i)
		}
	}

	var wt WindowTrack
	for waited := 0; ; waited++ {
		var ok bool
		if wt, ok = r.LastTrack(); ok {
			break
		}
		if waited > 500 {
			t.Fatal("no window track recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if wt.Slot != 1 || wt.Cause != "reset" || wt.Samples != 3 {
		t.Errorf("track summary = %+v", wt)
	}
	if len(wt.Points) != 2 {
		t.Fatalf("track points = %d, want 2", len(wt.Points))
	}
	// Cells 500 and 623 in a 123-wide grid.
	if wt.Points[0].X != 8 || wt.Points[0].Y != 4 || wt.Points[1].X != 8 || wt.Points[1].Y != 5 {
		t.Errorf("track points = %+v", wt.Points)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunner_PauseGatesIngestion(t *testing.T) {
	sink := chanSink{ch: make(chan estimator.Estimate, 64)}
	r := newTestRunner(t, sink)
	cancel, _ := startRunner(t, r)
	defer cancel()

	send := func(typ string) CommandResult {
		reply := make(chan CommandResult, 1)
		r.Commands <- Command{Type: typ, Reply: reply}
		select {
		case res := <-reply:
			return res
		case <-time.After(5 * time.Second):
			t.Fatalf("no reply to %q", typ)
			return CommandResult{}
		}
	}

	if res := send("pause"); !res.OK {
		t.Fatalf("pause: %+v", res)
	}
	if !r.IsPaused() {
		t.Fatal("runner not paused after pause command")
	}

	// Gated ingestion: this window must never exist.
	t0 := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)
	h := r.Handlers()
	h.OnPose(seattlePose(t0))
	h.OnFrame(frame123(t0, 77))
	h.OnReset(t0.Add(15 * time.Second))

	if res := send("resume"); !res.OK {
		t.Fatalf("resume: %+v", res)
	}

	t1 := t0.Add(30 * time.Second)
	h.OnFrame(frame123(t1))
	h.OnFrame(frame123(t1.Add(time.Second), 88))
	h.OnReset(t1.Add(15 * time.Second))

	ests := collect(t, sink.ch, 2)
	// Slot 1 proves nothing leaked through while paused.
	for _, est := range ests {
		if est.Slot != 1 {
			t.Fatalf("slot = %d, want 1 (windows leaked during pause)", est.Slot)
		}
	}
}

func TestRunner_FlushSealsOnNextSample(t *testing.T) {
	sink := chanSink{ch: make(chan estimator.Estimate, 64)}
	r := newTestRunner(t, sink)
	cancel, _ := startRunner(t, r)
	defer cancel()

	t0 := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)
	h := r.Handlers()
	h.OnPose(seattlePose(t0))
	h.OnFrame(frame123(t0))
	h.OnFrame(frame123(t0.Add(time.Second), 250))

	reply := make(chan CommandResult, 1)
	r.Commands <- Command{Type: "flush", Reply: reply}
	if res := <-reply; !res.OK {
		t.Fatalf("flush: %+v", res)
	}

	// The seal happens on the ingest goroutine at the next sample.
	h.OnFrame(frame123(t0.Add(2*time.Second), 250))

	ests := collect(t, sink.ch, 2)
	seconds := map[int]bool{}
	for _, est := range ests {
		if est.Slot != 1 {
			t.Errorf("slot = %d, want 1", est.Slot)
		}
		seconds[est.At.Second()] = true
	}
	// Only the two pre-flush seconds belong to the sealed window.
	if !seconds[12] || !seconds[13] || len(seconds) != 2 {
		t.Errorf("sealed window seconds = %v, want {12, 13}", seconds)
	}
}

func TestRunner_NoPoseStillEmitsSeries(t *testing.T) {
	sink := chanSink{ch: make(chan estimator.Estimate, 64)}
	r := newTestRunner(t, sink)
	cancel, _ := startRunner(t, r)
	defer cancel()

	t0 := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)
	h := r.Handlers()
	h.OnFrame(frame123(t0, 9))
	h.OnFrame(frame123(t0.Add(time.Second), 9, 10))
	h.OnReset(t0.Add(15 * time.Second))

	ests := collect(t, sink.ch, 2)
	for _, est := range ests {
		if est.Resolved {
			t.Errorf("estimate at %v resolved with no pose", est.At)
		}
		if est.Label() != estimator.Unresolved {
			t.Errorf("label = %q", est.Label())
		}
	}
}

func TestRunner_ViewCentersOnDesiredBoresight(t *testing.T) {
	r := newTestRunner(t, chanSink{ch: make(chan estimator.Estimate, 1)})

	t0 := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)
	pose := seattlePose(t0)
	// The terminal is mid-slew: pointing one way, commanded another.
	pose.DesiredAzDeg, pose.DesiredElDeg = 210, 48
	r.Handlers().OnPose(pose)

	view, ok := r.viewFor(t0)
	if !ok {
		t.Fatal("no view despite a recorded pose")
	}
	if view.BoreAzDeg != 210 || view.BoreElDeg != 48 {
		t.Errorf("view boresight = (%v, %v), want commanded (210, 48)",
			view.BoreAzDeg, view.BoreElDeg)
	}
	// The grid projection still orients on where the dish actually points.
	if view.Proj.BoresightAzDeg != 174 {
		t.Errorf("projection boresight az = %v, want actual 174", view.Proj.BoresightAzDeg)
	}
}

func TestRunner_ViewFallsBackToActualBoresight(t *testing.T) {
	r := newTestRunner(t, chanSink{ch: make(chan estimator.Estimate, 1)})

	t0 := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)
	// seattlePose reports no commanded direction.
	r.Handlers().OnPose(seattlePose(t0))

	view, ok := r.viewFor(t0)
	if !ok {
		t.Fatal("no view despite a recorded pose")
	}
	if view.BoreAzDeg != 174 || view.BoreElDeg != 69 {
		t.Errorf("view boresight = (%v, %v), want actual (174, 69)",
			view.BoreAzDeg, view.BoreElDeg)
	}
}

func TestRunner_SilentStreamForceCloses(t *testing.T) {
	sink := chanSink{ch: make(chan estimator.Estimate, 64)}
	cfg := config.Default()
	// Shrink the horizon so silence expires within the test deadline.
	cfg.Window.DurationSeconds = 1
	cfg.Window.ForceCloseFactor = 1
	r := New(logging.Discard(), cfg, ws.NewHub(), testStore(t), dish.NewPoseTrack(64), sink, nil)
	cancel, _ := startRunner(t, r)
	defer cancel()

	t0 := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)
	h := r.Handlers()
	h.OnPose(seattlePose(t0))
	h.OnFrame(frame123(t0, 42))
	// No reset and no further samples: the stream has gone dark.

	ests := collect(t, sink.ch, 1)
	if ests[0].Slot != 1 {
		t.Errorf("slot = %d, want 1", ests[0].Slot)
	}
	if !ests[0].At.Equal(t0) {
		t.Errorf("estimate at %v, want %v", ests[0].At, t0)
	}

	for waited := 0; ; waited++ {
		if wt, ok := r.LastTrack(); ok {
			if wt.Cause != "timeout" {
				t.Errorf("close cause = %q, want timeout", wt.Cause)
			}
			if wt.Samples != 1 {
				t.Errorf("samples = %d, want 1", wt.Samples)
			}
			return
		}
		if waited > 500 {
			t.Fatal("no window track recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunner_DimensionMismatchIsFatal(t *testing.T) {
	sink := chanSink{ch: make(chan estimator.Estimate, 64)}
	r := newTestRunner(t, sink)
	cancel, done := startRunner(t, r)
	defer cancel()

	h := r.Handlers()
	h.OnFrame(dish.Frame{
		At: time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC),
		Rows: 4, Cols: 4, Cells: make([]bool, 16),
	})

	select {
	case err := <-done:
		if err == nil || errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want dimension error", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not abort on dimension mismatch")
	}
}

func TestRunner_UnknownCommandRejected(t *testing.T) {
	sink := chanSink{ch: make(chan estimator.Estimate, 1)}
	r := newTestRunner(t, sink)
	cancel, _ := startRunner(t, r)
	defer cancel()

	reply := make(chan CommandResult, 1)
	r.Commands <- Command{Type: "reticulate", Reply: reply}
	res := <-reply
	if res.OK || res.Error == "" {
		t.Errorf("unknown command accepted: %+v", res)
	}
}
