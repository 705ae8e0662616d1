package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // event types to show (empty = all)
	JSON   bool     // output raw JSON per event
}

// Watch connects to the daemon's WebSocket endpoint and streams events to
// the terminal in a human-readable format until interrupted.
func Watch(baseURL string, opts WatchOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	if len(opts.Filter) > 0 {
		// The daemon filters server-side, so unwanted events never
		// cross the wire.
		q := url.Values{}
		q.Set("filter", strings.Join(opts.Filter, ","))
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(green, "connected"), colorize(dim, u.String()))
		if len(opts.Filter) > 0 {
			fmt.Printf("  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))
		fmt.Println()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			if opts.JSON {
				fmt.Println(string(msg))
			} else {
				renderEvent(msg)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Println()
			fmt.Println(colorize(dim, "  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(1*time.Second),
		)
		return nil
	case <-done:
		return nil
	}
}

// renderEvent parses a JSON event and prints it in a human-friendly format.
// Falls back to raw JSON for unrecognized event types.
func renderEvent(raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Printf("  %s\n", string(raw))
		return
	}

	evType, _ := ev["type"].(string)
	ts := formatEventTime(ev)

	switch evType {
	case "heartbeat":
		// Heartbeats are noisy, show them dimmed on a single line.
		state, _ := ev["state"].(string)
		uptime, _ := ev["uptime_seconds"].(float64)
		uptimeStr := formatDuration(time.Duration(uptime) * time.Second)
		fmt.Printf("  %s %s  %s  up %s\n",
			colorize(dim, ts),
			colorize(dim, "heartbeat"),
			colorize(stateColor(state), state),
			colorize(dim, uptimeStr),
		)

	case "state":
		from, _ := ev["from"].(string)
		to, _ := ev["to"].(string)
		fmt.Printf("  %s %s  %s %s %s\n",
			colorize(dim, ts),
			colorize(bold, "STATE"),
			colorize(stateColor(from), from),
			colorize(dim, "->"),
			colorize(stateColor(to), to),
		)

	case "log":
		level, _ := ev["level"].(string)
		message, _ := ev["message"].(string)
		fmt.Printf("  %s %s  %s\n", colorize(dim, ts), formatLogLevel(level), message)

	case "estimate":
		slot, _ := ev["slot"].(float64)
		sat, _ := ev["satellite"].(string)
		rangeKm, _ := ev["range_km"].(float64)
		score, _ := ev["score"].(float64)
		resolved, _ := ev["resolved"].(bool)
		if resolved {
			fmt.Printf("  %s %s  slot %d  %s  %.0f km  score %.3f\n",
				colorize(dim, ts),
				colorize(bold, "ESTIMATE"),
				uint64(slot),
				colorize(cyan, sat),
				rangeKm,
				score,
			)
		} else {
			fmt.Printf("  %s %s  slot %d  %s\n",
				colorize(dim, ts),
				colorize(bold, "ESTIMATE"),
				uint64(slot),
				colorize(yellow, "unresolved"),
			)
		}

	case "window_closed":
		slot, _ := ev["slot"].(float64)
		cause, _ := ev["cause"].(string)
		samples, _ := ev["samples"].(float64)
		obstructed, _ := ev["obstructed"].(float64)

		causeStr := cause
		switch cause {
		case "reset":
			causeStr = colorize(green, cause)
		case "timeout":
			causeStr = colorize(yellow, cause)
		case "flush":
			causeStr = colorize(blue, cause)
		}

		fmt.Printf("  %s %s  slot %d  %s  %d samples  %d obstructed\n",
			colorize(dim, ts),
			colorize(bold, "WINDOW"),
			uint64(slot),
			causeStr,
			int(samples),
			int(obstructed),
		)

	case "reset":
		fmt.Printf("  %s %s  obstruction map wiped\n", colorize(dim, ts), colorize(cyan, "RESET"))

	case "catalog":
		sats, _ := ev["satellites"].(float64)
		fmt.Printf("  %s %s  %d satellites loaded\n", colorize(dim, ts), colorize(bold, "CATALOG"), int(sats))

	case "status":
		snr, _ := ev["snr"].(float64)
		latency, _ := ev["latency_ms"].(float64)
		down, _ := ev["downlink_bps"].(float64)
		up, _ := ev["uplink_bps"].(float64)
		fmt.Printf("  %s %s  snr %.1f  latency %.0f ms  down %s  up %s\n",
			colorize(dim, ts),
			colorize(dim, "status"),
			snr,
			latency,
			formatBitrate(down),
			formatBitrate(up),
		)

	default:
		// Unknown event type. Dump as indented JSON so nothing is lost.
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Printf("  %s\n", string(raw))
			return
		}
		fmt.Printf("  %s\n", string(pretty))
	}
}

// formatEventTime extracts and shortens the timestamp from an event.
func formatEventTime(ev map[string]any) string {
	tsRaw, ok := ev["ts"].(string)
	if !ok {
		return "          "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return tsRaw[:10]
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return padRight(level, 5)
	}
}
