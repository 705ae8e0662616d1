// Skylockd is the serving-satellite estimator daemon for a
// satellite-internet ground terminal.
//
// It polls the terminal for obstruction-map telemetry, accumulates the
// samples into reset-bounded windows, scores the orbital catalog
// against each window's evidence, and publishes one serving estimate
// per sampled second over HTTP, WebSocket, and a CSV log. Shutdown is
// handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/large-farva/skylock/internal/app"
	"github.com/large-farva/skylock/internal/catalog"
	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/dish"
	"github.com/large-farva/skylock/internal/estimator"
	"github.com/large-farva/skylock/internal/logging"
	"github.com/large-farva/skylock/internal/metrics"
	"github.com/large-farva/skylock/internal/pipeline"
	"github.com/large-farva/skylock/internal/recorder"
	"github.com/large-farva/skylock/internal/replay"
	"github.com/large-farva/skylock/internal/sky"
	"github.com/large-farva/skylock/internal/telemetry"
	"github.com/large-farva/skylock/internal/ws"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/skylock/skylock.toml", "Path to config TOML")
		profile    = pflag.String("profile", "", "Load a named profile from the config directory instead")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides [server] bind)")
	)
	pflag.Parse()

	path := *configPath
	if *profile != "" {
		path = filepath.Join(config.DefaultConfigDir(), *profile+".toml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// The log ring and the hub are wired into the logger so every
	// record reaches both /api/logs and connected WebSocket clients.
	logRing := logging.NewRing(500)
	hub := ws.NewHub()
	logger := logging.NewCaptured(cfg.Logging, logRing, func(level, message string) {
		hub.Publish(telemetry.NewLogLine(level, message))
	})

	if err := os.MkdirAll(cfg.Data.Root, 0o755); err != nil {
		logger.Error("data root not writable", "path", cfg.Data.Root, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The catalog must be usable before anything downstream starts.
	// Load falls back from fresh cache to network to stale cache; when
	// all three tiers fail there is nothing to estimate against.
	store := catalog.NewStore(cfg.Catalog.TLEURL, cfg.Data.Root,
		cfg.Catalog.RefreshHours, cfg.Catalog.MaxEpochAgeDays, logger)
	snap, err := store.Load(ctx)
	if err != nil {
		logger.Error("catalog load failed", "err", err)
		os.Exit(1)
	}
	metrics.SetCatalog(snap.Len(), snap.LoadedAt())

	// Estimate sinks: the in-memory ring behind /api/estimates, running
	// stats, and optionally the CSV series file.
	estimates := estimator.NewRing(cfg.Output.RingSize)
	stats := estimator.NewStats()
	sinks := estimator.MultiEmitter{estimates, stats}
	if cfg.Output.CSV {
		csvSink, err := recorder.NewCSVEmitter(cfg.Output.CSVPath)
		if err != nil {
			logger.Error("csv output unavailable", "path", cfg.Output.CSVPath, "err", err)
			os.Exit(1)
		}
		defer csvSink.Close()
		sinks = append(sinks, csvSink)
	}

	// Raw frame recording, for later replay. Replayed sessions are not
	// re-recorded.
	var session *recorder.Session
	if cfg.Output.RecordFrames && !cfg.Replay.Enabled {
		session, err = recorder.Open(logger, cfg.Data.Sessions, time.Now().UTC(), cfg.Dish.Mobile)
		if err != nil {
			logger.Error("session recording unavailable", "err", err)
			os.Exit(1)
		}
		defer session.Close(time.Now().UTC())
	}

	poses := dish.NewPoseTrack(256)
	runner := pipeline.New(logger, cfg, hub, store, poses, sinks, session)

	a := app.New(app.Options{
		Logger:     logger,
		LogRing:    logRing,
		Cfg:        cfg,
		ConfigPath: path,
		Bind:       *bind,
		Hub:        hub,
		Runner:     runner,
		Store:      store,
		Estimates:  estimates,
		Stats:      stats,
		Session:    session,
		Replay:     cfg.Replay.Enabled,
	})

	source := buildSource(logger, cfg, runner.Handlers())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { hub.Run(gctx); return nil })
	g.Go(func() error { return runner.Run(gctx, a.Transition) })
	g.Go(func() error { return source.Run(gctx) })
	g.Go(func() error { return a.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("skylockd failed", "err", err)
		os.Exit(1)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}

// collectionSource is any frame producer the pipeline can ingest from:
// the live terminal poller, a session replayer, or the synthesizer.
type collectionSource interface {
	Run(ctx context.Context) error
}

// buildSource picks the collection source. Replay with a directory
// plays back a recorded session; replay without one runs the synthetic
// dish, which needs no hardware at all.
func buildSource(logger *slog.Logger, cfg config.Config, h dish.Handlers) collectionSource {
	base := dish.Location{Lat: cfg.Dish.Latitude, Lon: cfg.Dish.Longitude, Alt: cfg.Dish.Altitude}

	if !cfg.Replay.Enabled {
		return dish.NewPoller(logger, cfg.Dish, cfg.Window, base, h)
	}

	if cfg.Replay.Dir != "" {
		return replay.NewPlayer(logger, cfg.Replay.Dir, cfg.Replay.Speed, base, h)
	}

	frame, _ := sky.ParseFrame(cfg.Grid.Frame) // validated at config load
	proj := sky.Projection{
		Spec: sky.GridSpec{
			Size:    cfg.Grid.Size,
			CenterX: cfg.Grid.CenterX,
			CenterY: cfg.Grid.CenterY,
			SpanDeg: cfg.Grid.SpanDegrees,
		},
		Frame:    frame,
		MinElDeg: cfg.Selector.MinElevation,
	}
	pose := dish.TerminalPose{
		At:             time.Now().UTC(),
		Latitude:       cfg.Dish.Latitude,
		Longitude:      cfg.Dish.Longitude,
		AltitudeM:      cfg.Dish.Altitude,
		GPSValid:       true,
		BoresightElDeg: 90,
	}
	return replay.NewSynthesizer(logger, proj, pose,
		cfg.Window.DurationSeconds, cfg.Window.BoundaryOffsetSeconds, h)
}
