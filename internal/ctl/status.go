package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Paused        bool   `json:"paused"`
	Mode          string `json:"mode"`
	DataRoot      string `json:"data_root"`
	SessionsDir   string `json:"sessions_dir"`
	Session       string `json:"session"`
	Grid          struct {
		Size  int    `json:"size"`
		Frame string `json:"frame"`
	} `json:"grid"`
	LastEstimate *struct {
		At        string  `json:"at"`
		Slot      uint64  `json:"slot"`
		Satellite string  `json:"satellite"`
		RangeKm   float64 `json:"range_km"`
		Resolved  bool    `json:"resolved"`
	} `json:"last_estimate"`
	Catalog *struct {
		Satellites int    `json:"satellites"`
		LoadedAt   string `json:"loaded_at"`
	} `json:"catalog"`
	Disk *struct {
		TotalBytes     uint64 `json:"total_bytes"`
		UsedBytes      uint64 `json:"used_bytes"`
		AvailableBytes uint64 `json:"available_bytes"`
	} `json:"disk"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	stateStr := colorize(stateColor(s.State), s.State)
	mode := s.Mode
	if mode == "replay" {
		mode = colorize(blue, mode)
	}

	fmt.Println()
	fmt.Println(header("  SKYLOCK STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Daemon:"), s.Name)
	fmt.Printf("  %-12s %s\n", colorize(dim, "State:"), stateStr)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Mode:"), mode)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-12s %dx%d, %s frame\n", colorize(dim, "Grid:"), s.Grid.Size, s.Grid.Size, s.Grid.Frame)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Data:"), s.DataRoot)
	if s.Session != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Session:"), s.Session)
	}
	if s.Catalog != nil {
		fmt.Printf("  %-12s %d satellites, loaded %s\n",
			colorize(dim, "Catalog:"), s.Catalog.Satellites, formatTimestamp(s.Catalog.LoadedAt))
	}
	if le := s.LastEstimate; le != nil {
		sat := colorize(cyan, le.Satellite)
		if !le.Resolved {
			sat = colorize(yellow, "unresolved")
		}
		fmt.Printf("  %-12s %s at %s\n", colorize(dim, "Serving:"), sat, formatTimestamp(le.At))
	}
	if d := s.Disk; d != nil && d.TotalBytes > 0 {
		pct := int(d.UsedBytes * 100 / d.TotalBytes)
		fmt.Printf("  %-12s [%s] %d%% of %s\n",
			colorize(dim, "Disk:"), progressBar(pct, 20), pct, formatBytes(int64(d.TotalBytes)))
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), baseURL)
	fmt.Println()

	return nil
}

// formatTimestamp shortens an RFC 3339 string to local wall-clock time.
// Unparseable input is returned as-is.
func formatTimestamp(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.Local().Format("15:04:05")
}
