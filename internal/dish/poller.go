package dish

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/metrics"
)

// Device/Handle RPC bodies, the same ones the terminal's debug tooling
// sends.
const (
	cmdGetStatus    = `{"get_status":{}}`
	cmdGetLocation  = `{"get_location":{}}`
	cmdGetObstMap   = `{"dish_get_obstruction_map":{}}`
	cmdClearObstMap = `{"dish_clear_obstruction_map":{}}`
)

// Handlers receive the poller's output on the poller's goroutine. Nil
// funcs are skipped.
type Handlers struct {
	OnFrame  func(Frame)
	OnPose   func(TerminalPose)
	OnStatus func(Status)
	OnReset  func(time.Time)
}

// caller runs one terminal RPC. Tests swap in a fake; production uses
// grpcurl.
type caller interface {
	call(ctx context.Context, body string) ([]byte, error)
}

type grpcurlCaller struct {
	path    string
	addr    string
	timeout time.Duration
}

func (g grpcurlCaller) call(ctx context.Context, body string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.path,
		"-plaintext", "-d", body, g.addr, "SpaceX.API.Device.Device/Handle")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("grpcurl %s: %w", body, err)
	}
	return out, nil
}

// gpsd fixes hold still long enough that one dial per refresh interval
// is plenty, even at a 500 ms poll cadence.
const gpsdRefresh = 10 * time.Second

// Poller drives the terminal on a fixed cadence: it clears the
// obstruction map at each window boundary, then streams map, status,
// and (mobile) location snapshots to its handlers.
type Poller struct {
	log  *slog.Logger
	cfg  config.DishConfig
	h    Handlers
	c    caller
	base Location
	tick time.Duration

	// Boundary alignment within the minute, from the window config.
	slotSeconds    int
	boundaryOffset int

	lastBoundary time.Time
	prevCount    int
	hasCount     bool

	// gpsd position source, used instead of the location RPC when
	// configured. locate is swapped out in tests.
	locate  func(addr string, timeout time.Duration) (Location, error)
	gpsdFix Location
	gpsdAt  time.Time
	hasGPSD bool
}

// NewPoller builds a Poller. base is the terminal position used when no
// other source reports one (static installs).
func NewPoller(log *slog.Logger, cfg config.DishConfig, win config.WindowConfig, base Location, h Handlers) *Poller {
	return &Poller{
		log:            log,
		cfg:            cfg,
		h:              h,
		base:           base,
		tick:           time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		slotSeconds:    win.DurationSeconds,
		boundaryOffset: win.BoundaryOffsetSeconds,
		locate:         LocationFromGPSD,
		c: grpcurlCaller{
			path:    cfg.GrpcurlPath,
			addr:    cfg.Addr,
			timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
}

// Run polls until the context is done. Poll failures are logged and
// counted, never fatal; the terminal drops RPCs routinely.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("dish poller starting",
		"addr", p.cfg.Addr, "interval", p.tick, "mobile", p.cfg.Mobile)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			p.poll(ctx, now.UTC())
		}
	}
}

// poll is one cadence step. Exported pieces are kept pure so the whole
// step can run against a fake caller in tests.
func (p *Poller) poll(ctx context.Context, now time.Time) {
	if p.atBoundary(now) {
		if _, err := p.c.call(ctx, cmdClearObstMap); err != nil {
			p.log.Warn("clear obstruction map failed", "err", err)
		}
		p.emitReset(now)
	}

	raw, err := p.c.call(ctx, cmdGetObstMap)
	metrics.DishPoll(err)
	if err != nil {
		p.log.Debug("obstruction map poll failed", "err", err)
	} else if frame, perr := ParseObstructionMap(now, raw); perr != nil {
		p.log.Warn("bad obstruction map reply", "err", perr)
	} else {
		// The terminal clears its own map on a cadence we don't control;
		// a shrinking obstructed count is the only reset signal we get.
		if p.hasCount && frame.Obstructed < p.prevCount {
			p.log.Debug("terminal-side map reset detected",
				"before", p.prevCount, "after", frame.Obstructed)
			p.emitReset(now)
		}
		p.prevCount = frame.Obstructed
		p.hasCount = true
		if p.h.OnFrame != nil {
			p.h.OnFrame(frame)
		}
	}

	raw, err = p.c.call(ctx, cmdGetStatus)
	if err != nil {
		p.log.Debug("status poll failed", "err", err)
		return
	}
	st, err := ParseStatus(now, raw)
	if err != nil {
		p.log.Warn("bad status reply", "err", err)
		return
	}
	if p.h.OnStatus != nil {
		p.h.OnStatus(st)
	}

	pose := p.poseFrom(st)
	switch {
	case p.cfg.UseGPSD:
		if loc, ok := p.gpsdLocation(now); ok {
			pose.Latitude = loc.Lat
			pose.Longitude = loc.Lon
			pose.AltitudeM = loc.Alt
			pose.GPSValid = true
		}
	case p.cfg.Mobile:
		if raw, err := p.c.call(ctx, cmdGetLocation); err != nil {
			p.log.Debug("location poll failed", "err", err)
		} else if loc, lerr := ParseLocation(raw); lerr != nil {
			p.log.Warn("bad location reply", "err", lerr)
		} else {
			pose.Latitude = loc.Lat
			pose.Longitude = loc.Lon
			pose.AltitudeM = loc.Alt
		}
	}
	if p.h.OnPose != nil {
		p.h.OnPose(pose)
	}
}

// gpsdLocation returns the current gpsd fix, dialing out at most once
// per refresh interval. A failed refresh keeps serving the last fix.
func (p *Poller) gpsdLocation(now time.Time) (Location, bool) {
	if p.hasGPSD && now.Sub(p.gpsdAt) < gpsdRefresh {
		return p.gpsdFix, true
	}

	loc, err := p.locate(p.cfg.GPSDHost, time.Duration(p.cfg.TimeoutMS)*time.Millisecond)
	if err != nil {
		p.log.Debug("gpsd fix failed", "err", err)
		return p.gpsdFix, p.hasGPSD
	}
	p.gpsdFix = loc
	p.gpsdAt = now
	p.hasGPSD = true
	return loc, true
}

// atBoundary reports whether now crosses a window boundary second that
// has not fired yet. With a 15 s window and offset 12 the boundaries
// are UTC seconds 12, 27, 42, 57, the terminal's own reset cadence.
func (p *Poller) atBoundary(now time.Time) bool {
	if p.slotSeconds <= 0 {
		return false
	}
	if now.Second()%p.slotSeconds != p.boundaryOffset%p.slotSeconds {
		return false
	}
	sec := now.Truncate(time.Second)
	if sec.Equal(p.lastBoundary) {
		return false
	}
	p.lastBoundary = sec
	return true
}

func (p *Poller) emitReset(now time.Time) {
	p.prevCount = 0
	p.hasCount = false
	if p.h.OnReset != nil {
		p.h.OnReset(now)
	}
}

func (p *Poller) poseFrom(st Status) TerminalPose {
	return TerminalPose{
		At:                     st.At,
		Latitude:               p.base.Lat,
		Longitude:              p.base.Lon,
		AltitudeM:              p.base.Alt,
		GPSValid:               st.GPSValid,
		TiltDeg:                st.Tilt,
		BoresightAzDeg:         st.BoresightAz,
		BoresightElDeg:         st.BoresightEl,
		DesiredAzDeg:           st.DesiredAz,
		DesiredElDeg:           st.DesiredEl,
		AttitudeState:          st.AttitudeState,
		AttitudeUncertaintyDeg: st.AttitudeUncert,
	}
}
