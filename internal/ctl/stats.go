package ctl

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stats shows aggregate estimate statistics from the daemon.
func Stats(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		Estimates struct {
			Total         int            `json:"total_estimates"`
			Resolved      int            `json:"resolved"`
			Unresolved    int            `json:"unresolved"`
			Windows       int            `json:"windows"`
			BySatellite   map[string]int `json:"by_satellite"`
			LastAt        string         `json:"last_at"`
			LastSatellite string         `json:"last_satellite"`
		} `json:"estimates"`
		UptimeSeconds int64 `json:"uptime_seconds"`
		LastWindow    *struct {
			Slot    uint64 `json:"slot"`
			Cause   string `json:"cause"`
			Samples int    `json:"samples"`
		} `json:"last_window"`
	}
	if err := getJSON(baseURL, "/api/stats", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	est := resp.Estimates

	fmt.Println()
	fmt.Println(header("  ESTIMATE STATISTICS"))
	fmt.Println("  " + strings.Repeat("─", 42))
	fmt.Printf("  Uptime:           %s\n", formatDuration(time.Duration(resp.UptimeSeconds)*time.Second))
	fmt.Printf("  Windows resolved: %d\n", est.Windows)
	fmt.Printf("  Total estimates:  %d\n", est.Total)
	if est.Total > 0 {
		pct := 100 * est.Resolved / est.Total
		fmt.Printf("  Resolved:         %d (%d%%)\n", est.Resolved, pct)
		fmt.Printf("  Unresolved:       %d\n", est.Unresolved)
	}

	if est.LastSatellite != "" {
		fmt.Printf("  Last serving:     %s at %s\n", est.LastSatellite, formatTimestamp(est.LastAt))
	} else {
		fmt.Printf("  Last serving:     none\n")
	}

	if w := resp.LastWindow; w != nil {
		fmt.Printf("  Last window:      slot %d, %s, %d samples\n", w.Slot, w.Cause, w.Samples)
	}

	if len(est.BySatellite) > 0 {
		names := make([]string, 0, len(est.BySatellite))
		for name := range est.BySatellite {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println()
		fmt.Println(header("  BY SATELLITE"))
		t := newTable("  ", "Satellite", "Estimates")
		t.alignRight(1)
		for _, name := range names {
			t.row(name, fmt.Sprintf("%d", est.BySatellite[name]))
		}
		t.flush()
	}

	fmt.Println()
	return nil
}
