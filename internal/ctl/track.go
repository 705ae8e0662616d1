package ctl

import (
	"fmt"
	"strings"
	"time"
)

// Track shows the obstruction track recovered from the last closed window.
func Track(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		Track *struct {
			Slot    uint64 `json:"slot"`
			Cause   string `json:"cause"`
			Samples int    `json:"samples"`
			Start   string `json:"start"`
			End     string `json:"end"`
			Points  []struct {
				At string `json:"at"`
				X  int    `json:"x"`
				Y  int    `json:"y"`
			} `json:"points"`
		} `json:"track"`
	}
	if err := getJSON(baseURL, "/api/track", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  WINDOW TRACK"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))

	tr := resp.Track
	if tr == nil {
		fmt.Println("  No window has closed yet.")
		fmt.Println()
		return nil
	}

	span := ""
	if start, err := time.Parse(time.RFC3339Nano, tr.Start); err == nil {
		if end, err := time.Parse(time.RFC3339Nano, tr.End); err == nil {
			span = formatDuration(end.Sub(start))
		}
	}

	fmt.Printf("  %-12s %d\n", colorize(dim, "Slot:"), tr.Slot)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Cause:"), tr.Cause)
	fmt.Printf("  %-12s %d\n", colorize(dim, "Samples:"), tr.Samples)
	if span != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Span:"), span)
	}

	if len(tr.Points) > 0 {
		fmt.Println()
		t := newTable("  ", "Time", "Cell")
		for _, p := range tr.Points {
			t.row(formatTimestamp(p.At), fmt.Sprintf("(%d, %d)", p.X, p.Y))
		}
		t.flush()
	}

	fmt.Println()
	return nil
}
