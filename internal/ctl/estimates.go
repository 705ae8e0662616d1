package ctl

import (
	"fmt"
	"net/url"
	"strings"
)

// EstimatesOptions configures the estimates command.
type EstimatesOptions struct {
	Satellite string
	Resolved  bool
	Limit     int
	JSON      bool
}

// Estimates lists recent serving-satellite determinations from the daemon.
func Estimates(baseURL string, opts EstimatesOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	path := "/api/estimates"
	var params []string
	if opts.Satellite != "" {
		params = append(params, "satellite="+url.QueryEscape(opts.Satellite))
	}
	if opts.Resolved {
		params = append(params, "resolved=true")
	}
	if opts.Limit > 0 {
		params = append(params, fmt.Sprintf("limit=%d", opts.Limit))
	}
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}

	var resp struct {
		Estimates []struct {
			At        string  `json:"at"`
			Slot      uint64  `json:"slot"`
			Satellite string  `json:"satellite"`
			RangeKm   float64 `json:"range_km"`
			Score     float64 `json:"score"`
			Resolved  bool    `json:"resolved"`
		} `json:"estimates"`
		Count int `json:"count"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  SERVING ESTIMATES"))

	if len(resp.Estimates) == 0 {
		fmt.Println(colorize(dim, "  ────────────────────────"))
		fmt.Println("  No estimates recorded.")
	} else {
		t := newTable("  ", "Time", "Slot", "Satellite", "Range", "Score")
		t.alignRight(3)
		t.alignRight(4)
		for _, e := range resp.Estimates {
			sat := e.Satellite
			rangeStr := "-"
			scoreStr := "-"
			if e.Resolved {
				rangeStr = fmt.Sprintf("%.0f km", e.RangeKm)
				scoreStr = fmt.Sprintf("%.3f", e.Score)
			} else {
				sat = "unresolved"
			}
			t.row(formatTimestamp(e.At), fmt.Sprintf("%d", e.Slot), sat, rangeStr, scoreStr)
		}
		t.flush()
		fmt.Printf("\n  %s %d\n", colorize(dim, "total:"), resp.Count)
	}

	fmt.Println()
	return nil
}
