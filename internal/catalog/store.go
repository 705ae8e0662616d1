package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const cacheFile = "constellation_tle.txt"

// Store fetches and caches the constellation's element sets and holds the
// current immutable Snapshot. Loading walks a tiered fallback chain:
// fresh disk cache, network fetch, stale disk cache. With every tier
// exhausted the load fails fatally.
type Store struct {
	url         string
	cacheDir    string
	maxAge      time.Duration
	maxEpochAge time.Duration
	limiter     *rate.Limiter
	log         *slog.Logger

	current atomic.Pointer[Snapshot]
}

// NewStore returns a store that fetches element sets from tleURL and
// caches them under cacheDir. refreshHours bounds cache freshness;
// maxEpochAgeDays bounds how far from its epoch an element set may be
// propagated.
func NewStore(tleURL, cacheDir string, refreshHours, maxEpochAgeDays int, log *slog.Logger) *Store {
	return &Store{
		url:         tleURL,
		cacheDir:    cacheDir,
		maxAge:      time.Duration(refreshHours) * time.Hour,
		maxEpochAge: time.Duration(maxEpochAgeDays) * 24 * time.Hour,
		// One network fetch per minute is plenty; repeated refresh
		// commands must not hammer the catalog source.
		limiter: rate.NewLimiter(rate.Every(time.Minute), 1),
		log:     log,
	}
}

// Current returns the most recently loaded snapshot, or nil before the
// first successful Load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Load obtains element data through the tier chain, parses it into a
// Snapshot, and publishes it as current. The returned error, when
// non-nil, is a *LoadError and the run cannot continue.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := s.loadOrFetch(ctx)
	if err != nil {
		return nil, &LoadError{Source: s.url, Err: err}
	}

	snap, err := Parse(raw, time.Now().UTC(), s.maxEpochAge)
	if err != nil {
		return nil, &LoadError{Source: s.url, Err: err}
	}

	s.current.Store(snap)
	s.log.Info("catalog loaded", "satellites", snap.Len())
	return snap, nil
}

// Refresh bypasses the fresh-cache tier and fetches from the network,
// publishing a new snapshot on success. Refreshes are rate limited.
func (s *Store) Refresh(ctx context.Context) (*Snapshot, error) {
	if !s.limiter.Allow() {
		return nil, fmt.Errorf("catalog refresh rate limited, try again shortly")
	}

	body, err := s.fetchFromNetwork(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog refresh: %w", err)
	}
	// Cache write failure is non-fatal; we already have the data in memory.
	if err := s.writeCache(s.cachePath(), body); err != nil {
		s.log.Warn("catalog cache write failed", "error", err)
	}

	snap, err := Parse(body, time.Now().UTC(), s.maxEpochAge)
	if err != nil {
		return nil, fmt.Errorf("catalog refresh: %w", err)
	}

	s.current.Store(snap)
	s.log.Info("catalog refreshed", "satellites", snap.Len())
	return snap, nil
}

func (s *Store) cachePath() string {
	return filepath.Join(s.cacheDir, cacheFile)
}

// loadOrFetch walks the fallback chain to get raw TLE text:
// fresh cache -> network -> stale cache.
func (s *Store) loadOrFetch(ctx context.Context) (string, error) {
	cachePath := s.cachePath()

	// Tier 1: fresh disk cache
	info, err := os.Stat(cachePath)
	if err == nil && time.Since(info.ModTime()) < s.maxAge {
		if b, readErr := os.ReadFile(cachePath); readErr == nil && len(b) > 0 {
			return string(b), nil
		}
	}

	// Tier 2: network fetch
	if s.limiter.Allow() {
		body, fetchErr := s.fetchFromNetwork(ctx)
		if fetchErr == nil {
			if err := s.writeCache(cachePath, body); err != nil {
				s.log.Warn("catalog cache write failed", "error", err)
			}
			return body, nil
		}
		s.log.Warn("catalog fetch failed, trying stale cache", "error", fetchErr)

		// Tier 3: stale disk cache. Re-stat: the tier-1 stat may have
		// failed even though the file is readable now.
		if b, readErr := os.ReadFile(cachePath); readErr == nil && len(b) > 0 {
			age := time.Duration(0)
			if fi, statErr := os.Stat(cachePath); statErr == nil {
				age = time.Since(fi.ModTime())
			}
			s.log.Warn("using stale catalog cache", "age", age.Truncate(time.Minute))
			return string(b), nil
		}

		return "", fmt.Errorf("all element sources exhausted: %w", fetchErr)
	}

	// Fetch budget spent; a stale cache beats nothing.
	if b, readErr := os.ReadFile(cachePath); readErr == nil && len(b) > 0 {
		return string(b), nil
	}
	return "", fmt.Errorf("no cached element data and fetch rate limited")
}

// fetchFromNetwork downloads the element data set from CelesTrak (or
// whatever URL is configured). Times out after 30 seconds.
func (s *Store) fetchFromNetwork(ctx context.Context) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("element fetch returned HTTP %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeCache atomically writes data to cachePath via a temp file and
// rename so readers never see a half-written file.
func (s *Store) writeCache(cachePath, data string) error {
	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "tle-*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), cachePath)
}

// CacheInfo reports the state of the on-disk element cache for the
// status API.
func (s *Store) CacheInfo() map[string]any {
	out := map[string]any{
		"url":  s.url,
		"path": s.cachePath(),
	}

	info, err := os.Stat(s.cachePath())
	if err != nil {
		out["exists"] = false
		return out
	}

	age := time.Since(info.ModTime())
	out["exists"] = true
	out["size_bytes"] = info.Size()
	out["age_s"] = int(age.Seconds())
	out["fresh"] = age < s.maxAge

	if snap := s.Current(); snap != nil {
		out["satellites"] = snap.Len()
		out["loaded_at"] = snap.LoadedAt().Format(time.RFC3339)
	}
	return out
}
