package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/estimator"
	"github.com/large-farva/skylock/internal/logging"
	"github.com/large-farva/skylock/internal/pipeline"
	"github.com/large-farva/skylock/internal/recorder"
)

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	resp := map[string]any{
		"name":           "skylock",
		"state":          a.State(),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"paused":         a.runner.IsPaused(),
		"data_root":      cfg.Data.Root,
		"sessions_dir":   cfg.Data.Sessions,
		"grid": map[string]any{
			"size":  cfg.Grid.Size,
			"frame": cfg.Grid.Frame,
		},
	}

	if a.replay {
		resp["mode"] = "replay"
	} else {
		resp["mode"] = "live"
	}

	if a.session != nil {
		resp["session"] = a.session.ID()
	}

	// Most recent estimate, if any have been emitted.
	if recent := a.estimates.Recent(1); len(recent) == 1 {
		resp["last_estimate"] = recent[0]
	}

	if snap := a.store.Current(); snap != nil {
		resp["catalog"] = map[string]any{
			"satellites": snap.Len(),
			"loaded_at":  snap.LoadedAt().Format(time.RFC3339),
		}
	}

	if du := diskUsage(cfg.Data.Root); du != nil {
		resp["disk"] = du
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
		"runtime":    runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.getConfig())
}

// ---------------------------------------------------------------------------
// Estimates + Catalog + Track
// ---------------------------------------------------------------------------

func (a *App) handleEstimates(w http.ResponseWriter, r *http.Request) {
	ests := a.estimates.Recent(0)

	satFilter := r.URL.Query().Get("satellite")
	if satFilter != "" {
		upper := strings.ToUpper(satFilter)
		var filtered []estimator.Estimate
		for _, e := range ests {
			if strings.ToUpper(e.Satellite) == upper {
				filtered = append(filtered, e)
			}
		}
		ests = filtered
	}

	if r.URL.Query().Get("resolved") == "true" {
		var filtered []estimator.Estimate
		for _, e := range ests {
			if e.Resolved {
				filtered = append(filtered, e)
			}
		}
		ests = filtered
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n < len(ests) {
			ests = ests[len(ests)-n:]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"estimates": ests,
		"count":     len(ests),
	})
}

func (a *App) handleCatalog(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"cache": a.store.CacheInfo()}

	snap := a.store.Current()
	if snap == nil {
		resp["loaded"] = false
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	resp["loaded"] = true
	resp["satellites"] = snap.Len()
	resp["loaded_at"] = snap.LoadedAt().Format(time.RFC3339)

	// Optional substring search over satellite identities.
	if name := r.URL.Query().Get("name"); name != "" {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				limit = n
			}
		}

		type satJSON struct {
			Name    string `json:"name"`
			NoradID int    `json:"norad_id"`
			Epoch   string `json:"epoch,omitempty"`
		}
		upper := strings.ToUpper(name)
		matches := []satJSON{}
		for _, id := range snap.IDs() {
			if !strings.Contains(strings.ToUpper(id), upper) {
				continue
			}
			s := satJSON{Name: id}
			if norad, ok := snap.NoradID(id); ok {
				s.NoradID = norad
			}
			if epoch, ok := snap.Epoch(id); ok {
				s.Epoch = epoch.Format(time.RFC3339)
			}
			matches = append(matches, s)
			if len(matches) >= limit {
				break
			}
		}
		resp["matches"] = matches
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) handleTrack(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"track": nil}
	if wt, ok := a.runner.LastTrack(); ok {
		resp["track"] = wt
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (a *App) handleSessions(w http.ResponseWriter, r *http.Request) {
	cfg := a.getConfig()

	if r.Method == http.MethodDelete {
		id := r.URL.Query().Get("id")
		if id == "" {
			jsonError(w, "id parameter required", http.StatusBadRequest)
			return
		}
		// Prevent path traversal.
		if strings.Contains(id, "/") || strings.Contains(id, "..") {
			jsonError(w, "invalid session id", http.StatusBadRequest)
			return
		}
		if a.session != nil && a.session.ID() == id {
			jsonError(w, "session is currently recording", http.StatusConflict)
			return
		}
		dir := filepath.Join(cfg.Data.Sessions, id)
		if _, err := os.Stat(dir); err != nil {
			jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "deleted " + id})
		return
	}

	// GET with ?id= returns a single manifest.
	if id := r.URL.Query().Get("id"); id != "" {
		if strings.Contains(id, "/") || strings.Contains(id, "..") {
			jsonError(w, "invalid session id", http.StatusBadRequest)
			return
		}
		m, err := recorder.ReadManifest(filepath.Join(cfg.Data.Sessions, id))
		if err != nil {
			jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m)
		return
	}

	sessions, err := recorder.ListSessions(cfg.Data.Sessions)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []recorder.Manifest{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"dir":      cfg.Data.Sessions,
		"sessions": sessions,
	})
}

// ---------------------------------------------------------------------------
// Logs + Stats + Enhanced Health
// ---------------------------------------------------------------------------

func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := a.logRing.Recent(0)

	levelFilter := r.URL.Query().Get("level")
	if levelFilter != "" {
		var filtered []logging.Entry
		for _, e := range entries {
			if e.Level == levelFilter {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}
	if entries == nil {
		entries = []logging.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"logs": entries})
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	sum := a.stats.Summary()
	resp := map[string]any{
		"estimates":      sum,
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
	}
	if wt, ok := a.runner.LastTrack(); ok {
		resp["last_window"] = map[string]any{
			"slot":    wt.Slot,
			"cause":   wt.Cause,
			"samples": wt.Samples,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	checks := map[string]any{}
	allOK := true

	// Data directory writable.
	tmpPath := filepath.Join(cfg.Data.Root, ".healthcheck")
	if err := os.WriteFile(tmpPath, []byte("ok"), 0o644); err != nil {
		checks["data_dir"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		os.Remove(tmpPath)
		checks["data_dir"] = map[string]any{"ok": true, "path": cfg.Data.Root}
	}

	// Element cache present and fresh.
	info := a.store.CacheInfo()
	exists, _ := info["exists"].(bool)
	fresh, _ := info["fresh"].(bool)
	if !exists {
		checks["catalog_cache"] = map[string]any{"ok": false, "error": "cache file not found"}
		allOK = false
	} else {
		if !fresh {
			allOK = false
		}
		checks["catalog_cache"] = map[string]any{
			"ok":    fresh,
			"age_s": info["age_s"],
			"fresh": fresh,
		}
	}

	// grpcurl on PATH (only matters when polling a live terminal).
	if !a.replay {
		if _, err := exec.LookPath(cfg.Dish.GrpcurlPath); err != nil {
			checks["grpcurl"] = map[string]any{"ok": false, "error": cfg.Dish.GrpcurlPath + " not found in PATH"}
			allOK = false
		} else {
			checks["grpcurl"] = map[string]any{"ok": true}
		}
	}

	// Config file readable.
	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

// ---------------------------------------------------------------------------
// Pipeline controls + Reload
// ---------------------------------------------------------------------------

func (a *App) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writePipelineCommand(w, "pause")
}

func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writePipelineCommand(w, "resume")
}

func (a *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writePipelineCommand(w, "refresh")
}

func (a *App) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writePipelineCommand(w, "flush")
}

func (a *App) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if a.configPath == "" {
		jsonError(w, "no config file path set", http.StatusInternalServerError)
		return
	}

	newCfg, err := config.Load(a.configPath)
	if err != nil {
		jsonError(w, "config reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	a.cfgMu.Lock()
	a.cfg = newCfg
	a.cfgMu.Unlock()

	a.log.Info("config reloaded", "path", a.configPath)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"message": fmt.Sprintf("configuration reloaded from %s; collection settings apply after restart", a.configPath),
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writePipelineCommand sends a command to the pipeline, waits for the
// reply, and writes it out. The pipeline services commands between
// windows, so both legs get a timeout.
func (a *App) writePipelineCommand(w http.ResponseWriter, cmdType string) {
	reply := make(chan pipeline.CommandResult, 1)

	select {
	case a.runner.Commands <- pipeline.Command{Type: cmdType, Reply: reply}:
	case <-time.After(5 * time.Second):
		jsonError(w, "pipeline not accepting commands", http.StatusServiceUnavailable)
		return
	}

	select {
	case result := <-reply:
		w.Header().Set("Content-Type", "application/json")
		if !result.OK {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_ = json.NewEncoder(w).Encode(result)
	case <-time.After(5 * time.Second):
		jsonError(w, "pipeline not responding", http.StatusServiceUnavailable)
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": msg,
	})
}
