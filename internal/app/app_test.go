package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/large-farva/skylock/internal/catalog"
	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/dish"
	"github.com/large-farva/skylock/internal/estimator"
	"github.com/large-farva/skylock/internal/logging"
	"github.com/large-farva/skylock/internal/pipeline"
	"github.com/large-farva/skylock/internal/recorder"
	"github.com/large-farva/skylock/internal/ws"
)

const appTestTLE = `ISS (ZARYA)
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533`

func newTestApp(t *testing.T, tweak func(*Options)) (*App, *pipeline.Runner) {
	t.Helper()

	cfg := config.Default()
	root := t.TempDir()
	cfg.Data.Root = root
	cfg.Data.Sessions = filepath.Join(root, "sessions")

	store := catalog.NewStore("http://127.0.0.1:1/tle", root, 24, 14, logging.Discard())
	hub := ws.NewHub()
	ring := estimator.NewRing(cfg.Output.RingSize)
	runner := pipeline.New(logging.Discard(), cfg, hub, store, dish.NewPoseTrack(64), ring, nil)

	o := Options{
		Logger:    logging.Discard(),
		LogRing:   logging.NewRing(256),
		Cfg:       cfg,
		Hub:       hub,
		Runner:    runner,
		Store:     store,
		Estimates: ring,
		Stats:     estimator.NewStats(),
		Replay:    true,
	}
	if tweak != nil {
		tweak(&o)
	}
	return New(o), runner
}

func get(t *testing.T, a *App, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return request(t, a, http.MethodGet, path, nil)
}

func request(t *testing.T, a *App, method, path string, hdr map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	var body map[string]any
	if strings.Contains(rec.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, body
}

func TestStatus_ReportsIdentityAndMode(t *testing.T) {
	a, _ := newTestApp(t, nil)

	rec, body := get(t, a, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["name"] != "skylock" || body["state"] != "BOOTING" || body["mode"] != "replay" {
		t.Errorf("body = %v", body)
	}
	if body["paused"] != false {
		t.Errorf("paused = %v", body["paused"])
	}
	grid, _ := body["grid"].(map[string]any)
	if grid["size"] != float64(123) || grid["frame"] != "earth" {
		t.Errorf("grid = %v", grid)
	}

	live, _ := newTestApp(t, func(o *Options) { o.Replay = false })
	if _, body := get(t, live, "/api/status"); body["mode"] != "live" {
		t.Errorf("mode = %v", body["mode"])
	}
}

func TestTransition_UpdatesState(t *testing.T) {
	a, _ := newTestApp(t, nil)
	if a.State() != "BOOTING" {
		t.Fatalf("initial state = %q", a.State())
	}
	a.Transition("RUNNING")
	a.Transition("RUNNING")
	if a.State() != "RUNNING" {
		t.Errorf("state = %q", a.State())
	}
}

func TestHealthz_PlainOKAndDetailedChecks(t *testing.T) {
	a, _ := newTestApp(t, nil)

	rec, _ := get(t, a, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("plain healthz = %d %q", rec.Code, rec.Body.String())
	}

	// No element cache on disk yet: detailed health must degrade.
	rec, body := request(t, a, http.MethodGet, "/healthz", map[string]string{"Accept": "application/json"})
	if rec.Code != http.StatusServiceUnavailable || body["healthy"] != false {
		t.Fatalf("degraded health = %d %v", rec.Code, body)
	}
	checks, _ := body["checks"].(map[string]any)
	if _, ok := checks["catalog_cache"]; !ok {
		t.Errorf("checks = %v", checks)
	}

	// Seed the cache; everything the replay-mode check list covers is
	// now in place.
	if err := os.WriteFile(filepath.Join(a.getConfig().Data.Root, "constellation_tle.txt"), []byte(appTestTLE), 0o644); err != nil {
		t.Fatal(err)
	}
	rec, body = request(t, a, http.MethodGet, "/healthz", map[string]string{"Accept": "application/json"})
	if rec.Code != http.StatusOK || body["healthy"] != true {
		t.Errorf("health after cache seed = %d %v", rec.Code, body)
	}
}

func TestEstimates_FiltersAndLimit(t *testing.T) {
	a, _ := newTestApp(t, nil)
	t0 := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)

	seed := []estimator.Estimate{
		{At: t0, Slot: 1, Satellite: "STARLINK-3041", Resolved: true},
		{At: t0.Add(time.Second), Slot: 1},
		{At: t0.Add(2 * time.Second), Slot: 1, Satellite: "STARLINK-1292", Resolved: true},
		{At: t0.Add(3 * time.Second), Slot: 1, Satellite: "STARLINK-3041", Resolved: true},
	}
	for _, e := range seed {
		_ = a.estimates.Emit(e)
	}

	_, body := get(t, a, "/api/estimates")
	if body["count"] != float64(4) {
		t.Errorf("count = %v", body["count"])
	}

	_, body = get(t, a, "/api/estimates?satellite=starlink-3041")
	if body["count"] != float64(2) {
		t.Errorf("satellite filter count = %v", body["count"])
	}

	_, body = get(t, a, "/api/estimates?resolved=true")
	if body["count"] != float64(3) {
		t.Errorf("resolved filter count = %v", body["count"])
	}

	_, body = get(t, a, "/api/estimates?limit=1")
	ests, _ := body["estimates"].([]any)
	if len(ests) != 1 {
		t.Fatalf("limit=1 returned %d", len(ests))
	}
	last, _ := ests[0].(map[string]any)
	if last["satellite"] != "STARLINK-3041" || last["at"] != t0.Add(3*time.Second).Format(time.RFC3339) {
		t.Errorf("newest = %v", last)
	}
}

func TestCatalog_SummaryAndSearch(t *testing.T) {
	a, _ := newTestApp(t, nil)

	_, body := get(t, a, "/api/catalog")
	if body["loaded"] != false {
		t.Fatalf("loaded = %v", body["loaded"])
	}

	if err := os.WriteFile(filepath.Join(a.getConfig().Data.Root, "constellation_tle.txt"), []byte(appTestTLE), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, body = get(t, a, "/api/catalog")
	if body["loaded"] != true || body["satellites"] != float64(1) {
		t.Fatalf("summary = %v", body)
	}

	_, body = get(t, a, "/api/catalog?name=zarya")
	matches, _ := body["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("matches = %v", body["matches"])
	}
	m, _ := matches[0].(map[string]any)
	if m["name"] != "ISS (ZARYA)" || m["norad_id"] != float64(25544) {
		t.Errorf("match = %v", m)
	}

	_, body = get(t, a, "/api/catalog?name=nosuchbird")
	if matches, _ := body["matches"].([]any); len(matches) != 0 {
		t.Errorf("matches = %v", matches)
	}
}

func TestTrack_EmptyUntilWindowCloses(t *testing.T) {
	a, _ := newTestApp(t, nil)
	_, body := get(t, a, "/api/track")
	if body["track"] != nil {
		t.Errorf("track = %v", body["track"])
	}
}

func TestLogs_LevelAndLimitFilters(t *testing.T) {
	a, _ := newTestApp(t, nil)
	a.logRing.Append(logging.Entry{Level: "info", Message: "first"})
	a.logRing.Append(logging.Entry{Level: "warn", Message: "second"})
	a.logRing.Append(logging.Entry{Level: "info", Message: "third"})

	_, body := get(t, a, "/api/logs")
	if logs, _ := body["logs"].([]any); len(logs) != 3 {
		t.Errorf("logs = %v", body["logs"])
	}

	_, body = get(t, a, "/api/logs?level=warn")
	logs, _ := body["logs"].([]any)
	if len(logs) != 1 {
		t.Fatalf("warn logs = %v", body["logs"])
	}
	if e, _ := logs[0].(map[string]any); e["message"] != "second" {
		t.Errorf("entry = %v", logs[0])
	}

	_, body = get(t, a, "/api/logs?limit=1")
	logs, _ = body["logs"].([]any)
	if len(logs) != 1 {
		t.Fatalf("limited logs = %v", body["logs"])
	}
	if e, _ := logs[0].(map[string]any); e["message"] != "third" {
		t.Errorf("newest = %v", logs[0])
	}
}

func TestStats_IncludesEstimateSummary(t *testing.T) {
	a, _ := newTestApp(t, nil)
	_ = a.stats.Emit(estimator.Estimate{
		At: time.Now(), Slot: 1, Satellite: "STARLINK-3041", Resolved: true,
	})

	_, body := get(t, a, "/api/stats")
	sum, _ := body["estimates"].(map[string]any)
	if sum["total_estimates"] != float64(1) || sum["resolved"] != float64(1) {
		t.Errorf("stats = %v", sum)
	}
}

func TestSessions_ListFetchDelete(t *testing.T) {
	a, _ := newTestApp(t, nil)
	sessionsDir := a.getConfig().Data.Sessions

	for _, start := range []time.Time{
		time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC),
		time.Date(2025, 5, 18, 11, 0, 12, 0, time.UTC),
	} {
		s, err := recorder.Open(logging.Discard(), sessionsDir, start, false)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Close(start.Add(time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	_, body := get(t, a, "/api/sessions")
	sessions, _ := body["sessions"].([]any)
	if len(sessions) != 2 {
		t.Fatalf("sessions = %v", body["sessions"])
	}

	rec, single := get(t, a, "/api/sessions?id=20250518T100012Z")
	if rec.Code != http.StatusOK || single["id"] != "20250518T100012Z" {
		t.Errorf("single session = %d %v", rec.Code, single)
	}

	rec, _ = request(t, a, http.MethodDelete, "/api/sessions?id=../escape", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("traversal delete = %d", rec.Code)
	}

	rec, _ = request(t, a, http.MethodDelete, "/api/sessions?id=20250518T100012Z", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	_, body = get(t, a, "/api/sessions")
	if sessions, _ := body["sessions"].([]any); len(sessions) != 1 {
		t.Errorf("sessions after delete = %v", body["sessions"])
	}

	rec, _ = request(t, a, http.MethodDelete, "/api/sessions?id=20250518T100012Z", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete = %d", rec.Code)
	}
}

func TestSessions_ActiveSessionIsProtected(t *testing.T) {
	a, _ := newTestApp(t, nil)

	start := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)
	active, err := recorder.Open(logging.Discard(), a.getConfig().Data.Sessions, start, false)
	if err != nil {
		t.Fatal(err)
	}
	defer active.Close(start.Add(time.Minute))
	a.session = active

	rec, _ := request(t, a, http.MethodDelete, "/api/sessions?id="+active.ID(), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete active session = %d", rec.Code)
	}
}

func TestPauseResume_RoundTripThroughPipeline(t *testing.T) {
	a, runner := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx, a.Transition) }()

	rec, body := request(t, a, http.MethodPost, "/api/pause", nil)
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("pause = %d %v", rec.Code, body)
	}
	if !runner.IsPaused() {
		t.Fatal("runner not paused")
	}
	if _, body := get(t, a, "/api/status"); body["paused"] != true || body["state"] != "PAUSED" {
		t.Errorf("status during pause = %v", body)
	}

	rec, body = request(t, a, http.MethodPost, "/api/resume", nil)
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("resume = %d %v", rec.Code, body)
	}
	if runner.IsPaused() {
		t.Error("runner still paused")
	}

	if rec, _ := get(t, a, "/api/pause"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET pause = %d", rec.Code)
	}
}

func TestReload_SwapsServingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skylock.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, _ := newTestApp(t, func(o *Options) { o.ConfigPath = path })

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, body := request(t, a, http.MethodPost, "/api/reload", nil)
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("reload = %d %v", rec.Code, body)
	}
	if got := a.getConfig().Logging.Level; got != "debug" {
		t.Errorf("level after reload = %q", got)
	}

	noPath, _ := newTestApp(t, nil)
	if rec, _ := request(t, noPath, http.MethodPost, "/api/reload", nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("reload without path = %d", rec.Code)
	}
}

func TestVersion_ServesBuildInfo(t *testing.T) {
	a, _ := newTestApp(t, nil)
	rec, body := get(t, a, "/api/version")
	if rec.Code != http.StatusOK || body["version"] != "dev" {
		t.Errorf("version = %d %v", rec.Code, body)
	}
}

func TestDiskUsage(t *testing.T) {
	du := diskUsage(t.TempDir())
	if du == nil {
		t.Fatal("diskUsage returned nil for an existing directory")
	}

	total := du["total_bytes"].(uint64)
	avail := du["available_bytes"].(uint64)
	if total == 0 {
		t.Error("total_bytes = 0")
	}
	// Bavail excludes root-reserved blocks, so it never exceeds capacity.
	if avail > total {
		t.Errorf("available_bytes %d > total_bytes %d", avail, total)
	}
	if du["used_bytes"].(uint64) > total {
		t.Errorf("used_bytes %d > total_bytes %d", du["used_bytes"], total)
	}

	if diskUsage(filepath.Join(t.TempDir(), "absent")) != nil {
		t.Error("expected nil for a path that cannot be statted")
	}
}
