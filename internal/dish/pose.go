package dish

import (
	"sync"
	"time"
)

// Location is a geodetic terminal position: degrees north, degrees
// east, meters above the ellipsoid.
type Location struct {
	Lat float64
	Lon float64
	Alt float64
}

// PoseGapWarn is the nearest-pose lookup gap beyond which callers log a
// warning: mobile installs moving for a minute without a fix make the
// projection unreliable.
const PoseGapWarn = 60 * time.Second

// PoseTrack keeps a bounded, time-ordered pose history and answers
// nearest-timestamp queries. Mobile installs resolve each window
// against the pose closest to it; static installs just read the latest.
type PoseTrack struct {
	mu    sync.RWMutex
	poses []TerminalPose
	max   int
}

// NewPoseTrack returns a track holding up to max poses.
func NewPoseTrack(max int) *PoseTrack {
	if max < 1 {
		max = 1
	}
	return &PoseTrack{max: max}
}

// Add appends a pose, evicting the oldest past capacity. Out-of-order
// timestamps are tolerated; lookups scan, they do not binary-search.
func (p *PoseTrack) Add(pose TerminalPose) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.poses = append(p.poses, pose)
	if len(p.poses) > p.max {
		p.poses = p.poses[len(p.poses)-p.max:]
	}
}

// Len returns how many poses the track holds.
func (p *PoseTrack) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.poses)
}

// Latest returns the most recently added pose.
func (p *PoseTrack) Latest() (TerminalPose, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.poses) == 0 {
		return TerminalPose{}, false
	}
	return p.poses[len(p.poses)-1], true
}

// Nearest returns the pose closest in time to ts and how far off it is.
// Callers compare the gap against PoseGapWarn.
func (p *PoseTrack) Nearest(ts time.Time) (TerminalPose, time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.poses) == 0 {
		return TerminalPose{}, 0, false
	}

	best := 0
	bestGap := absGap(p.poses[0].At, ts)
	for i := 1; i < len(p.poses); i++ {
		if gap := absGap(p.poses[i].At, ts); gap < bestGap {
			best = i
			bestGap = gap
		}
	}
	return p.poses[best], bestGap, true
}

func absGap(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
