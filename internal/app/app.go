// Package app is the daemon's serving surface: the HTTP API, the
// WebSocket event hub, Prometheus metrics, and the heartbeat. It owns
// the operating state string; the collection and resolution loops
// report transitions through it.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/skylock/internal/catalog"
	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/estimator"
	"github.com/large-farva/skylock/internal/logging"
	"github.com/large-farva/skylock/internal/metrics"
	"github.com/large-farva/skylock/internal/pipeline"
	"github.com/large-farva/skylock/internal/recorder"
	"github.com/large-farva/skylock/internal/telemetry"
	"github.com/large-farva/skylock/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *slog.Logger
	LogRing    *logging.Ring
	Cfg        config.Config
	ConfigPath string
	Bind       string
	Hub        *ws.Hub
	Runner     *pipeline.Runner
	Store      *catalog.Store
	Estimates  *estimator.Ring
	Stats      *estimator.Stats
	Session    *recorder.Session
	Replay     bool
}

// App is the daemon's HTTP face. The collection, resolution, and hub
// loops are owned by the caller; App only serves their state.
type App struct {
	log     *slog.Logger
	logRing *logging.Ring

	cfgMu      sync.RWMutex
	cfg        config.Config
	configPath string

	bind   string
	server *http.Server

	startedAt time.Time
	state     atomic.Value // current state string (BOOTING, RUNNING, PAUSED)

	hub       *ws.Hub
	runner    *pipeline.Runner
	store     *catalog.Store
	estimates *estimator.Ring
	stats     *estimator.Stats
	session   *recorder.Session
	replay    bool
}

// New creates an App in the BOOTING state. Call Run to start serving.
func New(opts Options) *App {
	a := &App{
		log:        opts.Logger,
		logRing:    opts.LogRing,
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		startedAt:  time.Now(),
		hub:        opts.Hub,
		runner:     opts.Runner,
		store:      opts.Store,
		estimates:  opts.Estimates,
		stats:      opts.Stats,
		session:    opts.Session,
		replay:     opts.Replay,
	}
	a.state.Store("BOOTING")
	return a
}

// State returns the current operating state string.
func (a *App) State() string {
	return a.state.Load().(string)
}

// Transition atomically updates the daemon state and broadcasts the
// change to all connected WebSocket clients. It is the setState
// callback handed to the pipeline.
func (a *App) Transition(to string) {
	old := a.state.Load().(string)
	if old == to {
		return
	}
	a.state.Store(to)
	a.hub.Publish(telemetry.NewStateTransition(old, to))
}

// Run starts the HTTP server and the heartbeat ticker. It blocks until
// the context is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" {
		bind = a.getConfig().Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8090"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Info("listening", "addr", "http://"+bind)
	go a.heartbeatLoop(ctx)

	go func() {
		<-ctx.Done()
		a.log.Info("shutdown requested")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutCtx)
	}()

	if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/estimates", a.handleEstimates)
	mux.HandleFunc("/api/catalog", a.handleCatalog)
	mux.HandleFunc("/api/track", a.handleTrack)
	mux.HandleFunc("/api/sessions", a.handleSessions)
	mux.HandleFunc("/api/stats", a.handleStats)
	mux.HandleFunc("/api/logs", a.handleLogs)
	mux.HandleFunc("/api/pause", a.handlePause)
	mux.HandleFunc("/api/resume", a.handleResume)
	mux.HandleFunc("/api/refresh", a.handleRefresh)
	mux.HandleFunc("/api/flush", a.handleFlush)
	mux.HandleFunc("/api/reload", a.handleReload)
	mux.Handle("/ws", a.hub.Handler())
	return mux
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.hub.Publish(telemetry.NewHeartbeat(a.State(), time.Since(a.startedAt)))
		}
	}
}

func (a *App) getConfig() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}
