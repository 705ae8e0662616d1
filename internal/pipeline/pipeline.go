// Package pipeline joins the collection side (live poller or replay
// source) to the resolution side: obstruction samples accumulate in the
// window buffer, closed windows are resolved to serving estimates, and
// estimates fan out to the configured sinks. The runner also services
// external commands (pause, resume, refresh, flush) between windows.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/large-farva/skylock/internal/catalog"
	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/dish"
	"github.com/large-farva/skylock/internal/estimator"
	"github.com/large-farva/skylock/internal/metrics"
	"github.com/large-farva/skylock/internal/recorder"
	"github.com/large-farva/skylock/internal/sky"
	"github.com/large-farva/skylock/internal/telemetry"
	"github.com/large-farva/skylock/internal/window"
	"github.com/large-farva/skylock/internal/ws"
)

// Command is an external command sent to the runner via its Commands
// channel. The Reply channel receives exactly one result.
type Command struct {
	Type  string
	Reply chan<- CommandResult
}

// CommandResult is the response sent back through a Command's Reply
// channel.
type CommandResult struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Satellites int    `json:"satellites,omitempty"`
}

// TrackedCell is one observed obstruction coordinate from a window's
// delta track.
type TrackedCell struct {
	At time.Time `json:"at"`
	X  int       `json:"x"`
	Y  int       `json:"y"`
}

// WindowTrack summarizes the most recently closed window for the status
// surfaces.
type WindowTrack struct {
	Slot    uint64        `json:"slot"`
	Cause   string        `json:"cause"`
	Samples int           `json:"samples"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Points  []TrackedCell `json:"points"`
}

// Runner owns the resolution loop. Sample ingestion happens on the
// source's goroutine through the Handlers; everything downstream of the
// closed-window channel happens on the runner's.
type Runner struct {
	log   *slog.Logger
	cfg   config.Config
	hub   *ws.Hub
	store *catalog.Store
	poses *dish.PoseTrack
	sink  estimator.Emitter

	buf *window.Buffer
	sel *estimator.Selector

	// Commands receives external commands from HTTP handlers. The
	// runner checks it between closed windows.
	Commands chan Command

	paused    atomic.Bool
	flushReq  atomic.Bool
	frame     atomic.Int32 // last reported sky.Frame
	lastTrack atomic.Value // WindowTrack of the most recent closed window

	// session, when non-nil, receives snapshots, telemetry, and per
	// window observed tracks.
	session *recorder.Session

	// fatal carries unrecoverable ingest errors into the run loop.
	fatal chan error
}

// New builds a runner. sink receives every estimate in order; pass a
// MultiEmitter to fan out. session may be nil to disable recording.
func New(log *slog.Logger, cfg config.Config, hub *ws.Hub, store *catalog.Store, poses *dish.PoseTrack, sink estimator.Emitter, session *recorder.Session) *Runner {
	r := &Runner{
		log:      log,
		cfg:      cfg,
		hub:      hub,
		store:    store,
		poses:    poses,
		sink:     sink,
		session:  session,
		Commands: make(chan Command, 4),
		fatal:    make(chan error, 1),
		buf: window.NewBuffer(log, cfg.Grid.Size,
			time.Duration(cfg.Window.DurationSeconds)*time.Second,
			cfg.Window.ForceCloseFactor),
		sel: estimator.NewSelector(log, cfg.Selector),
	}

	if f, err := sky.ParseFrame(cfg.Grid.Frame); err == nil {
		r.frame.Store(int32(f))
	}
	return r
}

// IsPaused reports whether ingestion is paused.
func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

// LastTrack returns the track of the most recently closed window, if
// any window has closed yet.
func (r *Runner) LastTrack() (WindowTrack, bool) {
	wt, ok := r.lastTrack.Load().(WindowTrack)
	return wt, ok
}

// Handlers returns the ingestion callbacks for a collection source.
// They run on the source's goroutine and must stay off the runner's.
func (r *Runner) Handlers() dish.Handlers {
	return dish.Handlers{
		OnFrame:  r.onFrame,
		OnPose:   r.onPose,
		OnStatus: r.onStatus,
		OnReset:  r.onReset,
	}
}

func (r *Runner) onFrame(f dish.Frame) {
	if r.paused.Load() {
		return
	}
	if f.Frame != sky.FrameUnknown {
		r.frame.Store(int32(f.Frame))
	}
	if r.flushReq.CompareAndSwap(true, false) {
		r.buf.Flush(f.At)
	}

	if err := r.buf.OnSample(f.At, f.Cells); err != nil {
		// A geometry mismatch means the configuration does not describe
		// this terminal; nothing downstream can be trusted.
		select {
		case r.fatal <- fmt.Errorf("ingest sample: %w", err):
		default:
		}
		return
	}

	if r.session != nil {
		if err := r.session.AppendSnapshot(f); err != nil {
			r.log.Error("snapshot recording failed", "err", err)
		}
	}
}

func (r *Runner) onReset(at time.Time) {
	if r.paused.Load() {
		return
	}
	r.buf.OnReset(at)
	r.hub.Publish(telemetry.NewReset(at))
}

func (r *Runner) onPose(p dish.TerminalPose) {
	r.poses.Add(p)
}

func (r *Runner) onStatus(st dish.Status) {
	if r.session != nil {
		loc := dish.Location{}
		if pose, ok := r.poses.Latest(); ok {
			loc = dish.Location{Lat: pose.Latitude, Lon: pose.Longitude, Alt: pose.AltitudeM}
		}
		if err := r.session.AppendStatus(st, loc); err != nil {
			r.log.Error("status recording failed", "err", err)
		}
	}
	r.hub.Publish(telemetry.NewStatus(
		st.SNR, st.PopPingLatencyMs, st.DownlinkBps, st.UplinkBps, st.GPSValid))
}

// Run drains closed windows until the context is cancelled. A window
// mid-accumulation at cancellation is discarded without output.
func (r *Runner) Run(ctx context.Context, setState func(string)) error {
	r.log.Info("pipeline started",
		"window", time.Duration(r.cfg.Window.DurationSeconds)*time.Second,
		"grid", r.cfg.Grid.Size)
	setState("RUNNING")

	// The in-band force-close only fires when a sample arrives; this
	// ticker closes windows whose stream has gone fully silent.
	expiry := time.NewTicker(time.Second)
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("pipeline stopping")
			return ctx.Err()

		case err := <-r.fatal:
			r.log.Error("pipeline aborting", "err", err)
			return err

		case cmd := <-r.Commands:
			r.handleCommand(ctx, cmd, setState)

		case slot := <-r.buf.Closed():
			r.resolve(ctx, slot)

		case <-expiry.C:
			if slot := r.buf.TakeExpired(time.Now().UTC()); slot != nil {
				r.resolve(ctx, slot)
			}
		}
	}
}

// resolve turns one closed window into estimates and fans them out.
func (r *Runner) resolve(ctx context.Context, slot *window.Timeslot) {
	start, end := slot.Interval()
	if slot.CloseCause() == window.CauseTimeout {
		r.log.Warn("window force-closed, terminal reset signal missing",
			"slot", slot.Seq(), "start", start, "samples", slot.Samples())
	}

	began := time.Now()
	view, ok := r.viewFor(start.Add(end.Sub(start) / 2))
	if !ok {
		// No pose yet: emit the seconds as unresolved so the series
		// stays gap-free, but there is nothing to score against.
		r.log.Warn("no terminal pose for window, emitting unresolved",
			"slot", slot.Seq())
		for _, sec := range slot.SampleSeconds() {
			r.emit(estimator.Estimate{At: sec, Slot: slot.Seq()})
		}
	} else {
		snap := r.store.Current()
		ests, err := r.sel.ResolveSlot(ctx, snap, view, slot)
		if err != nil {
			// Only cancellation reaches here; the window is discarded
			// with no partial output.
			r.log.Debug("window resolution abandoned", "slot", slot.Seq(), "err", err)
			return
		}
		for _, est := range ests {
			r.emit(est)
		}
		metrics.ObserveSelector(time.Since(began))
	}

	slot.MarkResolved()

	track := slot.Track()
	if r.session != nil && len(track) > 0 {
		if err := r.session.AppendTrack(track); err != nil {
			r.log.Error("track recording failed", "err", err)
		}
	}

	wt := WindowTrack{
		Slot:    slot.Seq(),
		Cause:   slot.CloseCause(),
		Samples: slot.Samples(),
		Start:   start,
		End:     end,
		Points:  make([]TrackedCell, len(track)),
	}
	for i, p := range track {
		wt.Points[i] = TrackedCell{At: p.At, X: p.Cell.X, Y: p.Cell.Y}
	}
	r.lastTrack.Store(wt)

	r.hub.Publish(telemetry.NewWindowClosed(
		slot.Seq(), slot.CloseCause(), slot.Samples(),
		slot.Grid().Count(), start, end))
}

func (r *Runner) emit(est estimator.Estimate) {
	if err := r.sink.Emit(est); err != nil {
		r.log.Error("estimate sink failed", "err", err, "at", est.At)
	}
	metrics.EstimateEmitted(est.Resolved)
	r.hub.Publish(telemetry.NewEstimate(
		est.At, est.Slot, est.Label(), est.RangeKm, est.Score, est.Resolved))
}

// viewFor assembles the scoring view from the pose nearest to at. The
// cone and boresight-proximity term center on the terminal's desired
// pointing; the actual boresight stands in when the terminal reports
// no desired direction.
func (r *Runner) viewFor(at time.Time) (estimator.View, bool) {
	pose, gap, ok := r.poses.Nearest(at)
	if !ok {
		return estimator.View{}, false
	}
	if gap > dish.PoseGapWarn {
		r.log.Warn("nearest pose is stale for window",
			"gap", gap.Truncate(time.Second), "pose_at", pose.At)
	}

	boreAz, boreEl := pose.DesiredAzDeg, pose.DesiredElDeg
	if boreAz == 0 && boreEl == 0 {
		boreAz, boreEl = pose.BoresightAzDeg, pose.BoresightElDeg
	}

	frame := sky.Frame(r.frame.Load())
	return estimator.View{
		Observer: sky.NewObserver(pose.Latitude, pose.Longitude, pose.AltitudeM),
		Proj: sky.Projection{
			Spec: sky.GridSpec{
				Size:    r.cfg.Grid.Size,
				CenterX: r.cfg.Grid.CenterX,
				CenterY: r.cfg.Grid.CenterY,
				SpanDeg: r.cfg.Grid.SpanDegrees,
			},
			Frame:          frame,
			TiltDeg:        pose.TiltDeg,
			BoresightAzDeg: pose.BoresightAzDeg,
			MinElDeg:       r.cfg.Selector.MinElevation,
		},
		BoreAzDeg: boreAz,
		BoreElDeg: boreEl,
	}, true
}

// handleCommand dispatches an incoming command.
func (r *Runner) handleCommand(ctx context.Context, cmd Command, setState func(string)) {
	switch cmd.Type {
	case "pause":
		r.handlePause(cmd, setState)
	case "resume":
		r.handleResume(cmd, setState)
	case "refresh":
		r.handleRefresh(ctx, cmd)
	case "flush":
		r.handleFlush(cmd)
	default:
		cmd.Reply <- CommandResult{OK: false, Error: "unknown command: " + cmd.Type}
	}
}

func (r *Runner) handlePause(cmd Command, setState func(string)) {
	if r.paused.Load() {
		cmd.Reply <- CommandResult{OK: true, Message: "pipeline already paused"}
		return
	}
	r.paused.Store(true)
	setState("PAUSED")
	r.log.Info("pipeline paused by user")
	cmd.Reply <- CommandResult{OK: true, Message: "pipeline paused"}
}

func (r *Runner) handleResume(cmd Command, setState func(string)) {
	if !r.paused.Load() {
		cmd.Reply <- CommandResult{OK: true, Message: "pipeline already running"}
		return
	}
	r.paused.Store(false)
	setState("RUNNING")
	r.log.Info("pipeline resumed by user")
	cmd.Reply <- CommandResult{OK: true, Message: "pipeline resumed"}
}

func (r *Runner) handleRefresh(ctx context.Context, cmd Command) {
	snap, err := r.store.Refresh(ctx)
	if err != nil {
		cmd.Reply <- CommandResult{OK: false, Error: "catalog refresh failed: " + err.Error()}
		return
	}

	metrics.SetCatalog(snap.Len(), snap.LoadedAt())
	r.hub.Publish(telemetry.NewCatalog(snap.Len(), snap.LoadedAt()))
	r.log.Info("catalog refreshed", "satellites", snap.Len())
	cmd.Reply <- CommandResult{
		OK:         true,
		Message:    fmt.Sprintf("catalog refreshed, %d satellites", snap.Len()),
		Satellites: snap.Len(),
	}
}

// handleFlush schedules a seal of the open window. The buffer is owned
// by the ingest goroutine, so the seal happens when its next sample
// arrives.
func (r *Runner) handleFlush(cmd Command) {
	r.flushReq.Store(true)
	cmd.Reply <- CommandResult{OK: true, Message: "open window will seal at the next sample"}
}
