// Package recorder persists a collection session to disk: obstruction
// snapshots as zstd-compressed msgpack batches, the per-window observed
// track and terminal telemetry as CSV, and a JSON manifest tying the
// session together for replay.
package recorder

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/large-farva/skylock/internal/dish"
	"github.com/large-farva/skylock/internal/window"
)

// snapshotsPerBatch bounds how many frames one batch file holds: one
// minute of samples at the 500 ms poll cadence.
const snapshotsPerBatch = 120

// manifestName is the per-session metadata file.
const manifestName = "manifest.json"

// SnapshotRecord is one obstruction frame as stored on disk.
type SnapshotRecord struct {
	At    time.Time `msgpack:"at"`
	Frame string    `msgpack:"frame"`
	Rows  int       `msgpack:"rows"`
	Cols  int       `msgpack:"cols"`
	Cells []bool    `msgpack:"cells"`
}

type snapshotBatch struct {
	Snapshots []SnapshotRecord `msgpack:"snapshots"`
}

// Manifest describes one recorded session.
type Manifest struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Frame     string    `json:"frame,omitempty"`
	GridRows  int       `json:"grid_rows,omitempty"`
	GridCols  int       `json:"grid_cols,omitempty"`
	Mobile    bool      `json:"mobile"`
	Snapshots int       `json:"snapshots"`
	Batches   []string  `json:"batches,omitempty"`
}

// Session accumulates one collection run. Snapshots are batched and
// flushed as obstruction_<ts>.msgpack.zst; track and telemetry rows go
// straight to CSV. Safe for one writer goroutine per method family,
// guarded anyway since the pipeline and poller callbacks interleave.
type Session struct {
	log *slog.Logger
	dir string

	mu       sync.Mutex
	manifest Manifest
	pending  []SnapshotRecord

	trackFile  *os.File
	trackCSV   *csv.Writer
	statusFile *os.File
	statusCSV  *csv.Writer
}

// Open creates the session directory under root and the CSV sinks
// inside it. The session ID is the UTC start time.
func Open(log *slog.Logger, root string, startedAt time.Time, mobile bool) (*Session, error) {
	id := startedAt.UTC().Format("20060102T150405Z")
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	s := &Session{
		log: log,
		dir: dir,
		manifest: Manifest{
			ID:        id,
			StartedAt: startedAt.UTC(),
			Mobile:    mobile,
		},
	}

	var err error
	s.trackFile, err = os.Create(filepath.Join(dir, "track.csv"))
	if err != nil {
		return nil, fmt.Errorf("create track csv: %w", err)
	}
	s.trackCSV = csv.NewWriter(s.trackFile)

	s.statusFile, err = os.Create(filepath.Join(dir, "status.csv"))
	if err != nil {
		s.trackFile.Close()
		return nil, fmt.Errorf("create status csv: %w", err)
	}
	s.statusCSV = csv.NewWriter(s.statusFile)
	if err := s.statusCSV.Write(statusHeader(mobile)); err != nil {
		s.closeFiles()
		return nil, fmt.Errorf("write status header: %w", err)
	}
	s.statusCSV.Flush()

	log.Info("session opened", "dir", dir, "mobile", mobile)
	return s, nil
}

// Dir returns the session directory.
func (s *Session) Dir() string { return s.dir }

// ID returns the session identifier.
func (s *Session) ID() string { return s.manifest.ID }

// AppendSnapshot queues one obstruction frame, flushing a batch file
// when enough have accumulated.
func (s *Session) AppendSnapshot(f dish.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest.GridRows == 0 {
		s.manifest.GridRows = f.Rows
		s.manifest.GridCols = f.Cols
		s.manifest.Frame = f.Frame.String()
	}

	cells := make([]bool, len(f.Cells))
	copy(cells, f.Cells)
	s.pending = append(s.pending, SnapshotRecord{
		At:    f.At,
		Frame: f.Frame.String(),
		Rows:  f.Rows,
		Cols:  f.Cols,
		Cells: cells,
	})

	if len(s.pending) >= snapshotsPerBatch {
		return s.flushLocked()
	}
	return nil
}

// flushLocked writes pending snapshots as one batch file and rewrites
// the manifest so a crash loses at most the unflushed tail.
func (s *Session) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}

	name := fmt.Sprintf("obstruction_%d.msgpack.zst", s.pending[0].At.Unix())
	if err := writeCompressed(filepath.Join(s.dir, name), snapshotBatch{Snapshots: s.pending}); err != nil {
		return fmt.Errorf("flush snapshot batch: %w", err)
	}

	s.manifest.Batches = append(s.manifest.Batches, name)
	s.manifest.Snapshots += len(s.pending)
	s.pending = s.pending[:0]
	return s.writeManifestLocked()
}

func (s *Session) writeManifestLocked() error {
	b, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, manifestName), b, 0o644)
}

// AppendTrack records one closed window's observed track as
// timestamp, row, column rows.
func (s *Session) AppendTrack(points []window.TrackPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		row := []string{
			p.At.UTC().Format("2006-01-02 15:04:05"),
			strconv.Itoa(p.Cell.Y),
			strconv.Itoa(p.Cell.X),
		}
		if err := s.trackCSV.Write(row); err != nil {
			return fmt.Errorf("write track row: %w", err)
		}
	}
	s.trackCSV.Flush()
	return s.trackCSV.Error()
}

// AppendStatus records one telemetry sample. loc is the pose position
// in effect at the sample; mobile sessions carry it plus the attitude
// quaternion as extra columns.
func (s *Session) AppendStatus(st dish.Status, loc dish.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := []string{
		strconv.FormatFloat(float64(st.At.UnixNano())/1e9, 'f', 3, 64),
		fmtFloat(st.SNR),
		fmtFloat(st.PopPingLatencyMs),
		fmtFloat(st.DownlinkBps),
		fmtFloat(st.UplinkBps),
		fmtFloat(st.Tilt),
		fmtFloat(st.BoresightAz),
		fmtFloat(st.BoresightEl),
		st.AttitudeState,
		fmtFloat(st.AttitudeUncert),
		fmtFloat(st.DesiredAz),
		fmtFloat(st.DesiredEl),
	}
	if s.manifest.Mobile {
		row = append(row,
			fmtFloat(loc.Lat), fmtFloat(loc.Lon), fmtFloat(loc.Alt),
			fmtFloat(st.Quaternion[0]), fmtFloat(st.Quaternion[1]),
			fmtFloat(st.Quaternion[2]), fmtFloat(st.Quaternion[3]),
		)
	}
	if err := s.statusCSV.Write(row); err != nil {
		return fmt.Errorf("write status row: %w", err)
	}
	s.statusCSV.Flush()
	return s.statusCSV.Error()
}

// Close flushes any pending snapshots, finalizes the manifest, and
// releases the CSV files.
func (s *Session) Close(endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushErr := s.flushLocked()

	s.manifest.EndedAt = endedAt.UTC()
	if err := s.writeManifestLocked(); err != nil && flushErr == nil {
		flushErr = err
	}

	s.closeFiles()
	s.log.Info("session closed",
		"id", s.manifest.ID, "snapshots", s.manifest.Snapshots,
		"batches", len(s.manifest.Batches))
	return flushErr
}

func (s *Session) closeFiles() {
	if s.trackFile != nil {
		s.trackCSV.Flush()
		s.trackFile.Close()
		s.trackFile = nil
	}
	if s.statusFile != nil {
		s.statusCSV.Flush()
		s.statusFile.Close()
		s.statusFile = nil
	}
}

func statusHeader(mobile bool) []string {
	h := []string{
		"timestamp", "sinr", "popPingLatencyMs", "downlinkThroughputBps",
		"uplinkThroughputBps", "tiltAngleDeg", "boresightAzimuthDeg",
		"boresightElevationDeg", "attitudeEstimationState",
		"attitudeUncertaintyDeg", "desiredBoresightAzimuthDeg",
		"desiredBoresightElevationDeg",
	}
	if mobile {
		h = append(h, "latitude", "longitude", "altitude",
			"qScalar", "qX", "qY", "qZ")
	}
	return h
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadManifest loads a session's manifest.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode manifest in %s: %w", dir, err)
	}
	return m, nil
}

// ReadBatch loads one snapshot batch file.
func ReadBatch(path string) ([]SnapshotRecord, error) {
	var batch snapshotBatch
	if err := readCompressed(path, &batch); err != nil {
		return nil, err
	}
	return batch.Snapshots, nil
}

// LoadSnapshots loads every snapshot of a session in recorded order.
func LoadSnapshots(dir string) (Manifest, []SnapshotRecord, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return m, nil, err
	}

	out := make([]SnapshotRecord, 0, m.Snapshots)
	for _, name := range m.Batches {
		snaps, err := ReadBatch(filepath.Join(dir, name))
		if err != nil {
			return m, nil, err
		}
		out = append(out, snaps...)
	}
	return m, out, nil
}

// ListSessions returns the manifests under root, oldest first.
// Directories without a readable manifest are skipped.
func ListSessions(root string) ([]Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := ReadManifest(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
