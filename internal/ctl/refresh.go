package ctl

import (
	"fmt"
	"strings"
)

// Refresh asks the daemon to fetch a new element set from the catalog
// source, bypassing the cache freshness check.
func Refresh(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	result, err := postCommand(baseURL, "/api/refresh")
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	fmt.Println()
	if result.OK {
		fmt.Printf("  %s  %s\n", colorize(green, "REFRESHED"), result.Message)
	} else {
		fmt.Printf("  %s  %s\n", colorize(red, "FAILED"), result.Error)
	}
	fmt.Println()

	return nil
}
