// Package replay feeds the pipeline without a terminal: either by
// playing back a recorded session or by synthesizing obstruction
// traffic. Both sources emit through the same handler set the live
// poller uses, so everything downstream is identical.
package replay

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/large-farva/skylock/internal/dish"
	"github.com/large-farva/skylock/internal/recorder"
	"github.com/large-farva/skylock/internal/sky"
)

// event is one timeline entry: a frame or a pose, never both.
type event struct {
	at    time.Time
	frame *dish.Frame
	pose  *dish.TerminalPose
}

// Player replays a recorded session in time order, scaling the recorded
// gaps by speed. Terminal-side map resets are re-detected from the
// obstructed-count drops, exactly as the live poller does.
type Player struct {
	log   *slog.Logger
	dir   string
	speed float64
	base  dish.Location
	h     dish.Handlers
}

// NewPlayer builds a player for the session at dir. base supplies the
// terminal position for sessions that did not record one.
func NewPlayer(log *slog.Logger, dir string, speed float64, base dish.Location, h dish.Handlers) *Player {
	if speed <= 0 {
		speed = 1
	}
	return &Player{log: log, dir: dir, speed: speed, base: base, h: h}
}

// Run plays the whole session, then returns nil. The context cancels
// playback between events.
func (p *Player) Run(ctx context.Context) error {
	manifest, snaps, err := recorder.LoadSnapshots(p.dir)
	if err != nil {
		return fmt.Errorf("load session %s: %w", p.dir, err)
	}
	if len(snaps) == 0 {
		return fmt.Errorf("session %s has no snapshots", manifest.ID)
	}

	poses, err := loadPoses(p.dir, manifest.Mobile, p.base)
	if err != nil {
		p.log.Warn("session has no replayable telemetry", "err", err)
	}

	events := mergeTimeline(snaps, poses)
	p.log.Info("replaying session",
		"id", manifest.ID, "snapshots", len(snaps), "poses", len(poses),
		"speed", p.speed)

	prevAt := events[0].at
	prevCount := -1
	for _, ev := range events {
		if gap := ev.at.Sub(prevAt); gap > 0 {
			if !sleepOrCancel(ctx, time.Duration(float64(gap)/p.speed)) {
				return ctx.Err()
			}
		}
		prevAt = ev.at

		switch {
		case ev.frame != nil:
			if prevCount >= 0 && ev.frame.Obstructed < prevCount {
				if p.h.OnReset != nil {
					p.h.OnReset(ev.at)
				}
			}
			prevCount = ev.frame.Obstructed
			if p.h.OnFrame != nil {
				p.h.OnFrame(*ev.frame)
			}
		case ev.pose != nil:
			if p.h.OnPose != nil {
				p.h.OnPose(*ev.pose)
			}
		}
	}

	p.log.Info("replay finished", "id", manifest.ID)
	return nil
}

func mergeTimeline(snaps []recorder.SnapshotRecord, poses []dish.TerminalPose) []event {
	events := make([]event, 0, len(snaps)+len(poses))
	for i := range snaps {
		s := &snaps[i]
		frame, err := sky.ParseFrame(s.Frame)
		if err != nil {
			frame = sky.FrameUnknown
		}
		f := &dish.Frame{
			At:    s.At,
			Frame: frame,
			Rows:  s.Rows,
			Cols:  s.Cols,
			Cells: s.Cells,
		}
		for _, c := range s.Cells {
			if c {
				f.Obstructed++
			}
		}
		events = append(events, event{at: s.At, frame: f})
	}
	for i := range poses {
		events = append(events, event{at: poses[i].At, pose: &poses[i]})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })
	return events
}

// loadPoses rebuilds the pose stream from the session's status.csv.
// Static sessions did not record a position, so base fills it in.
func loadPoses(dir string, mobile bool, base dish.Location) ([]dish.TerminalPose, error) {
	f, err := os.Open(filepath.Join(dir, "status.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// Header defines the column layout; skip it.
	if _, err := r.Read(); err != nil {
		return nil, err
	}

	var poses []dish.TerminalPose
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return poses, err
		}
		if len(row) < 12 {
			continue
		}

		unix, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			continue
		}
		sec, frac := math.Modf(unix)
		pose := dish.TerminalPose{
			At:                     time.Unix(int64(sec), int64(frac*1e9)).UTC(),
			Latitude:               base.Lat,
			Longitude:              base.Lon,
			AltitudeM:              base.Alt,
			TiltDeg:                col(row, 5),
			BoresightAzDeg:         col(row, 6),
			BoresightElDeg:         col(row, 7),
			AttitudeState:          row[8],
			AttitudeUncertaintyDeg: col(row, 9),
			DesiredAzDeg:           col(row, 10),
			DesiredElDeg:           col(row, 11),
		}
		if mobile && len(row) >= 15 {
			pose.Latitude = col(row, 12)
			pose.Longitude = col(row, 13)
			pose.AltitudeM = col(row, 14)
			pose.GPSValid = true
		}
		poses = append(poses, pose)
	}
	return poses, nil
}

func col(row []string, i int) float64 {
	v, _ := strconv.ParseFloat(row[i], 64)
	return v
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
