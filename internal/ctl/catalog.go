package ctl

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CatalogOptions configures the catalog command.
type CatalogOptions struct {
	Find  string
	Limit int
	JSON  bool
}

// Catalog shows the daemon's orbital catalog and element cache state,
// and optionally searches satellite identities by substring.
func Catalog(baseURL string, opts CatalogOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	path := "/api/catalog"
	var params []string
	if opts.Find != "" {
		params = append(params, "name="+url.QueryEscape(opts.Find))
		if opts.Limit > 0 {
			params = append(params, fmt.Sprintf("limit=%d", opts.Limit))
		}
	}
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}

	var resp struct {
		Loaded     bool   `json:"loaded"`
		Satellites int    `json:"satellites"`
		LoadedAt   string `json:"loaded_at"`
		Cache      struct {
			URL       string `json:"url"`
			Path      string `json:"path"`
			Exists    bool   `json:"exists"`
			Fresh     bool   `json:"fresh"`
			AgeS      int    `json:"age_s"`
			SizeBytes int64  `json:"size_bytes"`
		} `json:"cache"`
		Matches []struct {
			Name    string `json:"name"`
			NoradID int    `json:"norad_id"`
			Epoch   string `json:"epoch"`
		} `json:"matches"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  ORBITAL CATALOG"))
	fmt.Println("  " + strings.Repeat("─", 50))

	if !resp.Loaded {
		fmt.Printf("  Status:     %s\n", colorize(red, "NOT LOADED"))
	} else {
		fmt.Printf("  Satellites: %d\n", resp.Satellites)
		fmt.Printf("  Loaded at:  %s\n", resp.LoadedAt)
	}

	if !resp.Cache.Exists {
		fmt.Printf("  Cache:      %s\n", colorize(red, "NOT FOUND"))
	} else if resp.Cache.Fresh {
		fmt.Printf("  Cache:      %s\n", colorize(green, "FRESH"))
	} else {
		fmt.Printf("  Cache:      %s\n", colorize(yellow, "STALE"))
	}
	if resp.Cache.Exists {
		fmt.Printf("  Age:        %s\n", formatDuration(time.Duration(resp.Cache.AgeS)*time.Second))
		fmt.Printf("  Size:       %s\n", formatBytes(resp.Cache.SizeBytes))
	}
	fmt.Printf("  Source:     %s\n", resp.Cache.URL)
	fmt.Printf("  File:       %s\n", resp.Cache.Path)

	if opts.Find != "" {
		fmt.Println()
		if len(resp.Matches) == 0 {
			fmt.Printf("  No satellites match %q.\n", opts.Find)
		} else {
			t := newTable("  ", "Name", "NORAD ID", "Epoch")
			t.alignRight(1)
			for _, m := range resp.Matches {
				t.row(m.Name, fmt.Sprintf("%d", m.NoradID), m.Epoch)
			}
			t.flush()
		}
	}

	fmt.Println()
	return nil
}
