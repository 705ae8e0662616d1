package replay

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/large-farva/skylock/internal/dish"
	"github.com/large-farva/skylock/internal/sky"
)

// arc is one synthetic pass: a straight chord across the sky from one
// azimuth/elevation pair to another.
type arc struct {
	startAz, startEl float64
	endAz, endEl     float64
}

// arcs cycles through plausible LEO crossings: ascending, descending,
// and a near-overhead pass. Each traces a different obstruction track
// across the grid.
var arcs = []arc{
	{startAz: 170, startEl: 32, endAz: 10, endEl: 38},
	{startAz: 225, startEl: 28, endAz: 80, endEl: 45},
	{startAz: 145, startEl: 40, endAz: 338, endEl: 35},
	{startAz: 300, startEl: 25, endAz: 120, endEl: 62},
}

// Synthesizer fabricates obstruction traffic with no terminal attached:
// simulated satellites sweep the sky and their grid cells accumulate
// until each window boundary wipes the map, mimicking the terminal's
// own cadence. Downstream the estimator resolves the synthetic tracks
// against the real catalog.
type Synthesizer struct {
	log  *slog.Logger
	proj sky.Projection
	pose dish.TerminalPose
	h    dish.Handlers

	tick           time.Duration
	passDuration   time.Duration
	slotSeconds    int
	boundaryOffset int

	cells        []bool
	count        int
	lastBoundary time.Time
	passIndex    int
}

// NewSynthesizer builds a synthetic source. pose is the fixed terminal
// pose every frame reports; proj maps the simulated sky tracks onto
// grid cells.
func NewSynthesizer(log *slog.Logger, proj sky.Projection, pose dish.TerminalPose, slotSeconds, boundaryOffset int, h dish.Handlers) *Synthesizer {
	return &Synthesizer{
		log:            log,
		proj:           proj,
		pose:           pose,
		h:              h,
		tick:           500 * time.Millisecond,
		passDuration:   45 * time.Second,
		slotSeconds:    slotSeconds,
		boundaryOffset: boundaryOffset,
		cells:          make([]bool, proj.Spec.Cells()),
	}
}

// Run emits synthetic traffic until the context is cancelled.
func (s *Synthesizer) Run(ctx context.Context) error {
	s.log.Info("synthetic source active", "tick", s.tick, "pass_duration", s.passDuration)

	passStart := time.Now().UTC()
	current := s.nextArc()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			now = now.UTC()
			if now.Sub(passStart) >= s.passDuration {
				passStart = now
				current = s.nextArc()
			}
			s.step(now, current, now.Sub(passStart))
		}
	}
}

// step advances one tick: wipe at boundaries, mark the satellite's
// current cell, emit frame, pose, and jittered status.
func (s *Synthesizer) step(now time.Time, a arc, elapsed time.Duration) {
	if s.atBoundary(now) {
		for i := range s.cells {
			s.cells[i] = false
		}
		s.count = 0
		if s.h.OnReset != nil {
			s.h.OnReset(now)
		}
	}

	t := float64(elapsed) / float64(s.passDuration)
	el := a.startEl + t*(a.endEl-a.startEl)
	az := a.startAz + t*(a.endAz-a.startAz)
	if cell, ok := s.proj.ToCell(el, az); ok {
		i := cell.Y*s.proj.Spec.Size + cell.X
		if !s.cells[i] {
			s.cells[i] = true
			s.count++
		}
	}

	if s.h.OnFrame != nil {
		cells := make([]bool, len(s.cells))
		copy(cells, s.cells)
		s.h.OnFrame(dish.Frame{
			At:         now,
			Frame:      s.proj.Frame,
			Rows:       s.proj.Spec.Size,
			Cols:       s.proj.Spec.Size,
			Cells:      cells,
			Obstructed: s.count,
		})
	}

	pose := s.pose
	pose.At = now
	if s.h.OnPose != nil {
		s.h.OnPose(pose)
	}
	if s.h.OnStatus != nil {
		s.h.OnStatus(s.syntheticStatus(now))
	}
}

func (s *Synthesizer) atBoundary(now time.Time) bool {
	if s.slotSeconds <= 0 {
		return false
	}
	if now.Second()%s.slotSeconds != s.boundaryOffset%s.slotSeconds {
		return false
	}
	sec := now.Truncate(time.Second)
	if sec.Equal(s.lastBoundary) {
		return false
	}
	s.lastBoundary = sec
	return true
}

func (s *Synthesizer) nextArc() arc {
	a := arcs[s.passIndex%len(arcs)]
	s.passIndex++
	s.log.Debug("synthetic pass starting",
		"start_az", a.startAz, "start_el", a.startEl,
		"end_az", a.endAz, "end_el", a.endEl)
	return a
}

func (s *Synthesizer) syntheticStatus(now time.Time) dish.Status {
	return dish.Status{
		At:               now,
		HardwareVersion:  "rev3_proto2",
		SNR:              4 + rand.Float64()*5,
		PopPingLatencyMs: 25 + rand.Float64()*20,
		DownlinkBps:      0.8e8 + rand.Float64()*1.2e8,
		UplinkBps:        0.5e7 + rand.Float64()*1.5e7,
		GPSValid:         true,
		GPSSats:          12,
		Tilt:             s.pose.TiltDeg,
		BoresightAz:      s.pose.BoresightAzDeg,
		BoresightEl:      s.pose.BoresightElDeg,
		DesiredAz:        s.pose.DesiredAzDeg,
		DesiredEl:        s.pose.DesiredElDeg,
		AttitudeState:    "FILTER_CONVERGED",
		AttitudeUncert:   0.5,
	}
}
