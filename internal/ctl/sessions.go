package ctl

import (
	"fmt"
	"net/http"
	"strings"
)

// SessionsOptions configures the sessions command.
type SessionsOptions struct {
	Info   string
	Delete string
	JSON   bool
}

// Sessions lists recorded sessions on the daemon, shows one session's
// manifest, or deletes one.
func Sessions(baseURL string, opts SessionsOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if opts.Delete != "" {
		req, err := http.NewRequest(http.MethodDelete, baseURL+"/api/sessions?id="+opts.Delete, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(result)
		}
		if result.OK {
			fmt.Printf("\n  %s  %s\n\n", colorize(green, "DELETED"), result.Message)
		} else {
			fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
		}
		return nil
	}

	if opts.Info != "" {
		var m struct {
			ID        string   `json:"id"`
			StartedAt string   `json:"started_at"`
			EndedAt   string   `json:"ended_at"`
			Frame     string   `json:"frame"`
			GridRows  int      `json:"grid_rows"`
			GridCols  int      `json:"grid_cols"`
			Mobile    bool     `json:"mobile"`
			Snapshots int      `json:"snapshots"`
			Batches   []string `json:"batches"`
		}
		if err := getJSON(baseURL, "/api/sessions?id="+opts.Info, &m); err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(m)
		}

		fmt.Println()
		fmt.Println(header("  SESSION " + m.ID))
		fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
		fmt.Printf("  %-12s %s\n", colorize(dim, "Started:"), m.StartedAt)
		if m.EndedAt != "" {
			fmt.Printf("  %-12s %s\n", colorize(dim, "Ended:"), m.EndedAt)
		}
		fmt.Printf("  %-12s %dx%d, %s frame\n", colorize(dim, "Grid:"), m.GridRows, m.GridCols, m.Frame)
		fmt.Printf("  %-12s %v\n", colorize(dim, "Mobile:"), m.Mobile)
		fmt.Printf("  %-12s %d in %d batches\n", colorize(dim, "Snapshots:"), m.Snapshots, len(m.Batches))
		fmt.Println()
		return nil
	}

	var resp struct {
		Dir      string `json:"dir"`
		Sessions []struct {
			ID        string `json:"id"`
			StartedAt string `json:"started_at"`
			Mobile    bool   `json:"mobile"`
			Snapshots int    `json:"snapshots"`
		} `json:"sessions"`
	}
	if err := getJSON(baseURL, "/api/sessions", &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  RECORDED SESSIONS"))

	if len(resp.Sessions) == 0 {
		fmt.Println(colorize(dim, "  ────────────────────────"))
		fmt.Println("  No recorded sessions found.")
	} else {
		t := newTable("  ", "ID", "Started", "Snapshots", "Mobile")
		t.alignRight(2)
		for _, s := range resp.Sessions {
			mobile := "no"
			if s.Mobile {
				mobile = "yes"
			}
			t.row(s.ID, s.StartedAt, fmt.Sprintf("%d", s.Snapshots), mobile)
		}
		t.flush()
	}

	fmt.Printf("\n  %s %s\n\n", colorize(dim, "dir:"), resp.Dir)
	return nil
}
