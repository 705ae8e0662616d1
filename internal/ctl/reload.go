package ctl

import (
	"fmt"
	"strings"
)

// Reload tells the daemon to re-read its config file from disk.
// Collection settings only apply after a restart; the daemon says so
// in its reply.
func Reload(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	result, err := postCommand(baseURL, "/api/reload")
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	if result.OK {
		fmt.Printf("\n  %s  %s\n\n", colorize(green, "RELOADED"), result.Message)
	} else {
		fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
	}
	return nil
}
