package ctl

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	// Decode into a generic map to preserve all fields for both display modes.
	var raw json.RawMessage
	if err := getJSON(baseURL, "/api/config", &raw); err != nil {
		return err
	}

	if jsonOutput {
		var v any
		_ = json.Unmarshal(raw, &v)
		return printJSON(v)
	}

	// Decode into ordered sections for human-readable output.
	var cfg struct {
		Data struct {
			Root     string `json:"root"`
			Sessions string `json:"sessions"`
		} `json:"data"`
		Logging struct {
			Level  string `json:"level"`
			Format string `json:"format"`
			File   string `json:"file"`
		} `json:"logging"`
		Server struct {
			Bind string `json:"bind"`
		} `json:"server"`
		Dish struct {
			Addr           string  `json:"addr"`
			GrpcurlPath    string  `json:"grpcurl_path"`
			PollIntervalMS int     `json:"poll_interval_ms"`
			Mobile         bool    `json:"mobile"`
			UseGPSD        bool    `json:"use_gpsd"`
			GPSDHost       string  `json:"gpsd_host"`
			Latitude       float64 `json:"latitude"`
			Longitude      float64 `json:"longitude"`
			Altitude       float64 `json:"altitude"`
		} `json:"dish"`
		Catalog struct {
			TLEURL          string `json:"tle_url"`
			RefreshHours    int    `json:"refresh_hours"`
			MaxEpochAgeDays int    `json:"max_epoch_age_days"`
		} `json:"catalog"`
		Grid struct {
			Size        int     `json:"size"`
			CenterX     int     `json:"center_x"`
			CenterY     int     `json:"center_y"`
			SpanDegrees float64 `json:"span_degrees"`
			Frame       string  `json:"frame"`
		} `json:"grid"`
		Window struct {
			DurationSeconds       int `json:"duration_seconds"`
			BoundaryOffsetSeconds int `json:"boundary_offset_seconds"`
			ForceCloseFactor      int `json:"force_close_factor"`
		} `json:"window"`
		Selector struct {
			MinElevation     float64 `json:"min_elevation"`
			FOVRadiusDegrees float64 `json:"fov_radius_degrees"`
			ClearanceWeight  float64 `json:"clearance_weight"`
			BoresightWeight  float64 `json:"boresight_weight"`
			RangeWeight      float64 `json:"range_weight"`
			ContinuityWeight float64 `json:"continuity_weight"`
			MaxRangeKm       float64 `json:"max_range_km"`
		} `json:"selector"`
		Output struct {
			CSV          bool   `json:"csv"`
			CSVPath      string `json:"csv_path"`
			RecordFrames bool   `json:"record_frames"`
			RingSize     int    `json:"ring_size"`
		} `json:"output"`
		Replay struct {
			Enabled bool    `json:"enabled"`
			Dir     string  `json:"dir"`
			Speed   float64 `json:"speed"`
		} `json:"replay"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(header("  DAEMON CONFIGURATION"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))

	section := func(name string) {
		fmt.Printf("\n  %s\n", colorize(bold, "["+name+"]"))
	}
	field := func(key string, val any) {
		fmt.Printf("    %-20s %v\n", colorize(dim, key+":"), val)
	}

	section("data")
	field("root", cfg.Data.Root)
	field("sessions", cfg.Data.Sessions)

	section("logging")
	field("level", cfg.Logging.Level)
	field("format", cfg.Logging.Format)
	if cfg.Logging.File != "" {
		field("file", cfg.Logging.File)
	}

	section("server")
	field("bind", cfg.Server.Bind)

	section("dish")
	field("addr", cfg.Dish.Addr)
	field("grpcurl_path", cfg.Dish.GrpcurlPath)
	field("poll_interval_ms", cfg.Dish.PollIntervalMS)
	field("mobile", cfg.Dish.Mobile)
	field("use_gpsd", cfg.Dish.UseGPSD)
	if cfg.Dish.UseGPSD {
		field("gpsd_host", cfg.Dish.GPSDHost)
	}
	field("latitude", cfg.Dish.Latitude)
	field("longitude", cfg.Dish.Longitude)
	field("altitude", cfg.Dish.Altitude)

	section("catalog")
	field("tle_url", cfg.Catalog.TLEURL)
	field("refresh_hours", cfg.Catalog.RefreshHours)
	field("max_epoch_age_days", cfg.Catalog.MaxEpochAgeDays)

	section("grid")
	field("size", cfg.Grid.Size)
	field("center", fmt.Sprintf("(%d, %d)", cfg.Grid.CenterX, cfg.Grid.CenterY))
	field("span_degrees", cfg.Grid.SpanDegrees)
	field("frame", cfg.Grid.Frame)

	section("window")
	field("duration_seconds", cfg.Window.DurationSeconds)
	field("boundary_offset", cfg.Window.BoundaryOffsetSeconds)
	field("force_close_factor", cfg.Window.ForceCloseFactor)

	section("selector")
	field("min_elevation", cfg.Selector.MinElevation)
	field("fov_radius_degrees", cfg.Selector.FOVRadiusDegrees)
	field("clearance_weight", cfg.Selector.ClearanceWeight)
	field("boresight_weight", cfg.Selector.BoresightWeight)
	field("range_weight", cfg.Selector.RangeWeight)
	field("continuity_weight", cfg.Selector.ContinuityWeight)
	field("max_range_km", cfg.Selector.MaxRangeKm)

	section("output")
	field("csv", cfg.Output.CSV)
	if cfg.Output.CSV {
		field("csv_path", cfg.Output.CSVPath)
	}
	field("record_frames", cfg.Output.RecordFrames)
	field("ring_size", cfg.Output.RingSize)

	section("replay")
	field("enabled", cfg.Replay.Enabled)
	if cfg.Replay.Enabled {
		field("dir", cfg.Replay.Dir)
		field("speed", cfg.Replay.Speed)
	}

	fmt.Println()

	return nil
}
