package replay

import (
	"context"
	"testing"
	"time"

	"github.com/large-farva/skylock/internal/dish"
	"github.com/large-farva/skylock/internal/logging"
	"github.com/large-farva/skylock/internal/recorder"
	"github.com/large-farva/skylock/internal/sky"
)

type capture struct {
	frames []dish.Frame
	poses  []dish.TerminalPose
	resets []time.Time
}

func (c *capture) handlers() dish.Handlers {
	return dish.Handlers{
		OnFrame: func(f dish.Frame) { c.frames = append(c.frames, f) },
		OnPose:  func(p dish.TerminalPose) { c.poses = append(c.poses, p) },
		OnReset: func(at time.Time) { c.resets = append(c.resets, at) },
	}
}

func frameWith(at time.Time, obstructed ...int) dish.Frame {
	f := dish.Frame{At: at, Frame: sky.FrameEarth, Rows: 4, Cols: 4, Cells: make([]bool, 16)}
	for _, i := range obstructed {
		f.Cells[i] = true
		f.Obstructed++
	}
	return f
}

func recordSession(t *testing.T, root string, t0 time.Time) string {
	t.Helper()
	s, err := recorder.Open(logging.Discard(), root, t0, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Map fills, then shrinks at +2s: a terminal-side reset the player
	// must re-detect.
	if err := s.AppendSnapshot(frameWith(t0, 1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendSnapshot(frameWith(t0.Add(time.Second), 1, 2, 7)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendSnapshot(frameWith(t0.Add(2*time.Second), 5)); err != nil {
		t.Fatal(err)
	}

	st := dish.Status{At: t0.Add(500 * time.Millisecond), SNR: 6, Tilt: 20, BoresightAz: 140, BoresightEl: 70}
	if err := s.AppendStatus(st, dish.Location{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(t0.Add(3 * time.Second)); err != nil {
		t.Fatal(err)
	}
	return s.Dir()
}

func TestPlayer_ReplaysSessionInOrder(t *testing.T) {
	t0 := time.Date(2025, 5, 18, 10, 0, 13, 0, time.UTC)
	dir := recordSession(t, t.TempDir(), t0)

	c := &capture{}
	base := dish.Location{Lat: 47.6062, Lon: -122.3321, Alt: 56}
	p := NewPlayer(logging.Discard(), dir, 1000, base, c.handlers())

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(c.frames) != 3 {
		t.Fatalf("replayed %d frames, want 3", len(c.frames))
	}
	for i := 1; i < len(c.frames); i++ {
		if !c.frames[i-1].At.Before(c.frames[i].At) {
			t.Fatalf("frames out of order at %d", i)
		}
	}
	if c.frames[0].Obstructed != 2 || c.frames[1].Obstructed != 3 || c.frames[2].Obstructed != 1 {
		t.Errorf("obstructed counts = %d, %d, %d",
			c.frames[0].Obstructed, c.frames[1].Obstructed, c.frames[2].Obstructed)
	}
	if c.frames[0].Frame != sky.FrameEarth {
		t.Errorf("frame type = %v, want earth", c.frames[0].Frame)
	}

	if len(c.resets) != 1 {
		t.Fatalf("detected %d resets, want 1", len(c.resets))
	}
	if !c.resets[0].Equal(t0.Add(2 * time.Second)) {
		t.Errorf("reset at %v, want +2s", c.resets[0])
	}

	if len(c.poses) != 1 {
		t.Fatalf("replayed %d poses, want 1", len(c.poses))
	}
	pose := c.poses[0]
	if pose.TiltDeg != 20 || pose.BoresightAzDeg != 140 || pose.BoresightElDeg != 70 {
		t.Errorf("pose attitude = (%v, %v, %v)", pose.TiltDeg, pose.BoresightAzDeg, pose.BoresightElDeg)
	}
	// Static session: position comes from the configured base.
	if pose.Latitude != base.Lat || pose.Longitude != base.Lon {
		t.Errorf("pose position = (%v, %v), want base", pose.Latitude, pose.Longitude)
	}
	if !pose.At.Equal(t0.Add(500 * time.Millisecond)) {
		t.Errorf("pose at %v", pose.At)
	}
}

func TestPlayer_MissingSessionFails(t *testing.T) {
	p := NewPlayer(logging.Discard(), t.TempDir(), 1, dish.Location{}, dish.Handlers{})
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("empty directory replayed without error")
	}
}

func TestPlayer_CancellationStopsPlayback(t *testing.T) {
	t0 := time.Date(2025, 5, 18, 10, 0, 13, 0, time.UTC)
	dir := recordSession(t, t.TempDir(), t0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &capture{}
	// Real-time speed would take seconds; cancellation must cut in at
	// the first gap.
	p := NewPlayer(logging.Discard(), dir, 1, dish.Location{}, c.handlers())
	if err := p.Run(ctx); err == nil {
		t.Fatal("cancelled replay returned nil")
	}
	if len(c.frames) > 1 {
		t.Errorf("replayed %d frames after cancellation", len(c.frames))
	}
}

func testProjection() sky.Projection {
	return sky.Projection{
		Spec:  sky.GridSpec{Size: 123, CenterX: 62, CenterY: 62, SpanDeg: 80},
		Frame: sky.FrameEarth,
	}
}

func TestSynthesizer_WipesAtBoundaryAndAccumulates(t *testing.T) {
	c := &capture{}
	pose := dish.TerminalPose{Latitude: 47.6, Longitude: -122.3, TiltDeg: 20, BoresightAzDeg: 140, BoresightElDeg: 70}
	s := NewSynthesizer(logging.Discard(), testProjection(), pose, 15, 12, c.handlers())

	a := arcs[0]
	start := time.Date(2025, 5, 18, 10, 0, 13, 0, time.UTC)
	for i := 0; i < 6; i++ {
		now := start.Add(time.Duration(i) * 500 * time.Millisecond)
		s.step(now, a, now.Sub(start))
	}

	if len(c.frames) != 6 {
		t.Fatalf("%d frames, want 6", len(c.frames))
	}
	for i := 1; i < len(c.frames); i++ {
		if c.frames[i].Obstructed < c.frames[i-1].Obstructed {
			t.Fatalf("count shrank mid-window at step %d", i)
		}
	}
	if c.frames[len(c.frames)-1].Obstructed == 0 {
		t.Error("track never marked a cell")
	}
	if len(c.resets) != 0 {
		t.Errorf("%d resets before any boundary", len(c.resets))
	}
	if len(c.poses) != 6 {
		t.Errorf("%d poses, want one per step", len(c.poses))
	}

	// Crossing second 27 wipes the map and signals the reset.
	boundary := time.Date(2025, 5, 18, 10, 0, 27, 0, time.UTC)
	s.step(boundary, a, boundary.Sub(start))

	if len(c.resets) != 1 {
		t.Fatalf("%d resets after boundary, want 1", len(c.resets))
	}
	last := c.frames[len(c.frames)-1]
	if last.Obstructed > 1 {
		t.Errorf("post-wipe frame carries %d cells", last.Obstructed)
	}
}

func TestSynthesizer_FrameCellsAreCopies(t *testing.T) {
	c := &capture{}
	s := NewSynthesizer(logging.Discard(), testProjection(), dish.TerminalPose{}, 15, 12, c.handlers())

	at := time.Date(2025, 5, 18, 10, 0, 13, 0, time.UTC)
	s.step(at, arcs[0], 0)
	s.step(at.Add(20*time.Second), arcs[0], 20*time.Second)

	if len(c.frames) != 2 {
		t.Fatalf("%d frames", len(c.frames))
	}
	first, second := c.frames[0], c.frames[1]
	diff := 0
	for i := range first.Cells {
		if first.Cells[i] != second.Cells[i] {
			diff++
		}
	}
	if diff == 0 {
		t.Error("later step mutated the earlier frame's cells")
	}
}
