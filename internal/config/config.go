// Package config handles loading, defaulting, and validation of the skylock
// TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Data     DataConfig     `toml:"data"     json:"data"`
	Logging  LoggingConfig  `toml:"logging"  json:"logging"`
	Server   ServerConfig   `toml:"server"   json:"server"`
	Dish     DishConfig     `toml:"dish"     json:"dish"`
	Catalog  CatalogConfig  `toml:"catalog"  json:"catalog"`
	Grid     GridConfig     `toml:"grid"     json:"grid"`
	Window   WindowConfig   `toml:"window"   json:"window"`
	Selector SelectorConfig `toml:"selector" json:"selector"`
	Output   OutputConfig   `toml:"output"   json:"output"`
	Replay   ReplayConfig   `toml:"replay"   json:"replay"`
}

type DataConfig struct {
	Root     string `toml:"root"     json:"root"`
	Sessions string `toml:"sessions" json:"sessions"`
}

type LoggingConfig struct {
	Level      string `toml:"level"       json:"level"`
	Format     string `toml:"format"      json:"format"`
	File       string `toml:"file"        json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

// DishConfig describes how to reach the terminal's local gRPC endpoint.
// Polling shells out to grpcurl, the same interface the terminal's own
// debug tooling uses, so no generated protobuf stubs are required.
type DishConfig struct {
	Addr           string `toml:"addr"             json:"addr"`
	GrpcurlPath    string `toml:"grpcurl_path"     json:"grpcurl_path"`
	PollIntervalMS int    `toml:"poll_interval_ms" json:"poll_interval_ms"`
	TimeoutMS      int    `toml:"timeout_ms"       json:"timeout_ms"`
	Mobile         bool   `toml:"mobile"           json:"mobile"`
	UseGPSD        bool   `toml:"use_gpsd"         json:"use_gpsd"`
	GPSDHost       string `toml:"gpsd_host"        json:"gpsd_host"`
	Latitude       float64 `toml:"latitude"  json:"latitude"`
	Longitude      float64 `toml:"longitude" json:"longitude"`
	Altitude       float64 `toml:"altitude"  json:"altitude"`
}

type CatalogConfig struct {
	TLEURL          string `toml:"tle_url"           json:"tle_url"`
	RefreshHours    int    `toml:"refresh_hours"     json:"refresh_hours"`
	MaxEpochAgeDays int    `toml:"max_epoch_age_days" json:"max_epoch_age_days"`
}

// GridConfig describes the terminal's obstruction map geometry. The
// defaults match the 123x123 map the terminal reports, with the observer
// at pixel (62,62) and 80 degrees of elevation span across the 62-pixel
// radius.
type GridConfig struct {
	Size        int     `toml:"size"         json:"size"`
	CenterX     int     `toml:"center_x"     json:"center_x"`
	CenterY     int     `toml:"center_y"     json:"center_y"`
	SpanDegrees float64 `toml:"span_degrees" json:"span_degrees"`
	Frame       string  `toml:"frame"        json:"frame"`
}

type WindowConfig struct {
	DurationSeconds      int `toml:"duration_seconds"       json:"duration_seconds"`
	BoundaryOffsetSeconds int `toml:"boundary_offset_seconds" json:"boundary_offset_seconds"`
	ForceCloseFactor     int `toml:"force_close_factor"     json:"force_close_factor"`
}

// SelectorConfig exposes the scoring weights as tunables. The weighting
// between clearance, boresight proximity, range, and continuity is an
// empirical heuristic, so none of it is hardcoded.
type SelectorConfig struct {
	MinElevation      float64 `toml:"min_elevation"       json:"min_elevation"`
	FOVRadiusDegrees  float64 `toml:"fov_radius_degrees"  json:"fov_radius_degrees"`
	ClearanceWeight   float64 `toml:"clearance_weight"    json:"clearance_weight"`
	BoresightWeight   float64 `toml:"boresight_weight"    json:"boresight_weight"`
	RangeWeight       float64 `toml:"range_weight"        json:"range_weight"`
	ContinuityWeight  float64 `toml:"continuity_weight"   json:"continuity_weight"`
	TieEpsilon        float64 `toml:"tie_epsilon"         json:"tie_epsilon"`
	TrajectorySamples int     `toml:"trajectory_samples"  json:"trajectory_samples"`
	MaxRangeKm        float64 `toml:"max_range_km"        json:"max_range_km"`
}

type OutputConfig struct {
	CSV          bool   `toml:"csv"           json:"csv"`
	CSVPath      string `toml:"csv_path"      json:"csv_path"`
	RecordFrames bool   `toml:"record_frames" json:"record_frames"`
	RingSize     int    `toml:"ring_size"     json:"ring_size"`
}

// ReplayConfig selects an offline collection source. With a dir set the
// daemon replays that recorded session; enabled with no dir runs the
// synthetic source instead.
type ReplayConfig struct {
	Enabled bool    `toml:"enabled" json:"enabled"`
	Dir     string  `toml:"dir"     json:"dir"`
	Speed   float64 `toml:"speed"   json:"speed"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Data: DataConfig{
			Root:     "/var/lib/skylock",
			Sessions: "/var/lib/skylock/sessions",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSizeMB:  32,
			MaxBackups: 3,
		},
		Server: ServerConfig{
			Bind: "0.0.0.0:8090",
		},
		Dish: DishConfig{
			Addr:           "192.168.100.1:9200",
			GrpcurlPath:    "grpcurl",
			PollIntervalMS: 500,
			TimeoutMS:      2000,
			Mobile:         false,
			UseGPSD:        false,
			GPSDHost:       "localhost:2947",
		},
		Catalog: CatalogConfig{
			TLEURL:          "https://celestrak.org/NORAD/elements/gp.php?GROUP=starlink&FORMAT=tle",
			RefreshHours:    12,
			MaxEpochAgeDays: 14,
		},
		Grid: GridConfig{
			Size:        123,
			CenterX:     62,
			CenterY:     62,
			SpanDegrees: 80,
			Frame:       "earth",
		},
		Window: WindowConfig{
			DurationSeconds:       15,
			BoundaryOffsetSeconds: 12,
			ForceCloseFactor:      2,
		},
		Selector: SelectorConfig{
			MinElevation:      20,
			FOVRadiusDegrees:  40,
			ClearanceWeight:   1.0,
			BoresightWeight:   0.5,
			RangeWeight:       0.1,
			ContinuityWeight:  0.25,
			TieEpsilon:        1e-6,
			TrajectorySamples: 3,
			MaxRangeKm:        2000,
		},
		Output: OutputConfig{
			CSV:          true,
			CSVPath:      "/var/lib/skylock/serving.csv",
			RecordFrames: true,
			RingSize:     1024,
		},
		Replay: ReplayConfig{
			Enabled: false,
			Dir:     "",
			Speed:   1.0,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	if cfg.Data.Sessions == "" {
		return errors.New("data.sessions must not be empty")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", cfg.Logging.Format)
	}
	if cfg.Dish.PollIntervalMS <= 0 {
		return errors.New("dish.poll_interval_ms must be > 0")
	}
	if cfg.Dish.TimeoutMS <= 0 {
		return errors.New("dish.timeout_ms must be > 0")
	}
	if cfg.Catalog.TLEURL == "" {
		return errors.New("catalog.tle_url must not be empty")
	}
	if cfg.Catalog.RefreshHours < 1 {
		return errors.New("catalog.refresh_hours must be >= 1")
	}
	if cfg.Catalog.MaxEpochAgeDays < 1 {
		return errors.New("catalog.max_epoch_age_days must be >= 1")
	}
	if cfg.Grid.Size < 3 {
		return errors.New("grid.size must be >= 3")
	}
	if cfg.Grid.CenterX < 0 || cfg.Grid.CenterX >= cfg.Grid.Size {
		return errors.New("grid.center_x must lie inside the grid")
	}
	if cfg.Grid.CenterY < 0 || cfg.Grid.CenterY >= cfg.Grid.Size {
		return errors.New("grid.center_y must lie inside the grid")
	}
	if cfg.Grid.SpanDegrees <= 0 || cfg.Grid.SpanDegrees > 90 {
		return errors.New("grid.span_degrees must be in (0, 90]")
	}
	switch cfg.Grid.Frame {
	case "earth", "terminal":
	default:
		return fmt.Errorf("grid.frame %q must be earth or terminal", cfg.Grid.Frame)
	}
	if cfg.Window.DurationSeconds < 1 {
		return errors.New("window.duration_seconds must be >= 1")
	}
	if cfg.Window.BoundaryOffsetSeconds < 0 || cfg.Window.BoundaryOffsetSeconds >= 60 {
		return errors.New("window.boundary_offset_seconds must be in [0, 60)")
	}
	if cfg.Window.ForceCloseFactor < 1 {
		return errors.New("window.force_close_factor must be >= 1")
	}
	if cfg.Selector.MinElevation < 0 || cfg.Selector.MinElevation > 90 {
		return errors.New("selector.min_elevation must be between 0 and 90")
	}
	if cfg.Selector.FOVRadiusDegrees <= 0 || cfg.Selector.FOVRadiusDegrees > 90 {
		return errors.New("selector.fov_radius_degrees must be in (0, 90]")
	}
	if cfg.Selector.TieEpsilon < 0 {
		return errors.New("selector.tie_epsilon must be >= 0")
	}
	if cfg.Selector.TrajectorySamples < 2 {
		return errors.New("selector.trajectory_samples must be >= 2")
	}
	if cfg.Selector.MaxRangeKm <= 0 {
		return errors.New("selector.max_range_km must be > 0")
	}
	if cfg.Output.RingSize < 1 {
		return errors.New("output.ring_size must be >= 1")
	}
	if cfg.Replay.Speed <= 0 {
		return errors.New("replay.speed must be > 0")
	}
	return nil
}
