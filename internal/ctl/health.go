package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Health queries daemon health via GET /healthz. The daemon upgrades
// the reply to component-level checks when the client asks for JSON,
// so this always requests the detailed form.
func Health(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	req, err := http.NewRequest(http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}
	defer resp.Body.Close()

	// An unhealthy daemon answers 503 with the same JSON shape, so
	// decode the body before looking at the status code.
	var result struct {
		Healthy bool                      `json:"healthy"`
		Checks  map[string]map[string]any `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("HTTP %s", resp.Status)
	}

	if jsonOutput {
		return printJSON(result)
	}

	fmt.Println()
	if result.Healthy {
		fmt.Printf("  %s  skylockd is healthy at %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Printf("  %s  skylockd reported problems at %s\n", colorize(red, "UNHEALTHY"), colorize(dim, baseURL))
	}

	names := make([]string, 0, len(result.Checks))
	for name := range result.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := result.Checks[name]
		ok, _ := check["ok"].(bool)
		mark := colorize(green, "ok")
		detail := ""
		if !ok {
			mark = colorize(red, "fail")
			if msg, has := check["error"].(string); has {
				detail = "  " + colorize(dim, msg)
			}
		}
		fmt.Printf("    %s %s%s\n", padRight(name, 16), mark, detail)
	}
	fmt.Println()

	return nil
}
