package ctl

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pause stops the daemon from ingesting new obstruction frames.
// A window already handed to the resolver still produces estimates.
func Pause(baseURL string, jsonOutput bool) error {
	return pipelineControl(baseURL, "/api/pause", "PAUSED", jsonOutput)
}

// Resume restarts frame ingestion after a pause.
func Resume(baseURL string, jsonOutput bool) error {
	return pipelineControl(baseURL, "/api/resume", "RESUMED", jsonOutput)
}

// Flush asks the pipeline to seal the open window at the next sample
// instead of waiting for the terminal's reset.
func Flush(baseURL string, jsonOutput bool) error {
	return pipelineControl(baseURL, "/api/flush", "FLUSHED", jsonOutput)
}

func pipelineControl(baseURL, path, label string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	result, err := postCommand(baseURL, path)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	if result.OK {
		fmt.Printf("\n  %s  %s\n\n", colorize(green, label), result.Message)
	} else {
		fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
	}
	return nil
}

// commandResult mirrors the pipeline's reply to control commands.
type commandResult struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Satellites int    `json:"satellites,omitempty"`
}

// postCommand posts to a control endpoint and decodes the reply.
// Rejected commands come back with a non-2xx status and the same JSON
// shape, so the body is decoded before the status code matters.
func postCommand(baseURL, path string) (commandResult, error) {
	var result commandResult
	resp, err := httpClient.Post(baseURL+path, "application/json", nil)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("HTTP %s", resp.Status)
	}
	return result, nil
}
