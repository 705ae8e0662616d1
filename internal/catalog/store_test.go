package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/large-farva/skylock/internal/logging"
)

func writeCacheFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, cacheFile)
	if err := os.WriteFile(path, []byte(issTLE), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStore_FreshCacheSkipsNetwork(t *testing.T) {
	dir := t.TempDir()
	writeCacheFixture(t, dir)

	// Unreachable URL: a network attempt would fail loudly.
	store := NewStore("http://127.0.0.1:1/tle", dir, 24, 14, logging.Discard())

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Len() != 1 {
		t.Errorf("Len = %d, want 1", snap.Len())
	}
	if store.Current() != snap {
		t.Error("Current() should return the loaded snapshot")
	}
}

func TestStore_NetworkTierWritesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(issTLE))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store := NewStore(srv.URL, dir, 24, 14, logging.Discard())

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Len() != 1 {
		t.Errorf("Len = %d, want 1", snap.Len())
	}

	b, err := os.ReadFile(filepath.Join(dir, cacheFile))
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	if string(b) != issTLE {
		t.Error("cache content does not match fetched body")
	}
}

func TestStore_StaleCacheFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeCacheFixture(t, dir)
	// Age the cache past freshness.
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	store := NewStore(srv.URL, dir, 24, 14, logging.Discard())
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("stale cache should have saved the load, got: %v", err)
	}
	if snap.Len() != 1 {
		t.Errorf("Len = %d, want 1", snap.Len())
	}
}

func TestStore_CacheAppearingMidLoadIsUsed(t *testing.T) {
	dir := t.TempDir()

	// The cache does not exist when the load starts; the fetch handler
	// writes it before failing, so the stale-cache tier sees a file the
	// opening stat never did.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := os.WriteFile(filepath.Join(dir, cacheFile), []byte(issTLE), 0o644); err != nil {
			t.Error(err)
		}
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := NewStore(srv.URL, dir, 24, 14, logging.Discard())
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("late-appearing cache should have saved the load, got: %v", err)
	}
	if snap.Len() != 1 {
		t.Errorf("Len = %d, want 1", snap.Len())
	}
}

func TestStore_AllTiersExhausted(t *testing.T) {
	store := NewStore("http://127.0.0.1:1/tle", t.TempDir(), 24, 14, logging.Discard())

	_, err := store.Load(context.Background())
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
}

func TestStore_RefreshRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(issTLE))
	}))
	defer srv.Close()

	store := NewStore(srv.URL, t.TempDir(), 24, 14, logging.Discard())

	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if _, err := store.Refresh(context.Background()); err == nil {
		t.Fatal("second immediate refresh should be rate limited")
	}
}

func TestStore_CacheInfo(t *testing.T) {
	dir := t.TempDir()
	writeCacheFixture(t, dir)
	store := NewStore("http://127.0.0.1:1/tle", dir, 24, 14, logging.Discard())

	if _, err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	info := store.CacheInfo()
	if info["exists"] != true {
		t.Errorf("exists = %v, want true", info["exists"])
	}
	if info["fresh"] != true {
		t.Errorf("fresh = %v, want true", info["fresh"])
	}
	if info["satellites"] != 1 {
		t.Errorf("satellites = %v, want 1", info["satellites"])
	}
}
