// Package telemetry defines the typed events that flow over the
// WebSocket connection between skylockd and its clients, with
// constructors that stamp the envelope. Clients key off the type field;
// everything else is event-specific.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat    EventType = "heartbeat"
	EventState        EventType = "state"
	EventLog          EventType = "log"
	EventEstimate     EventType = "estimate"
	EventWindowClosed EventType = "window_closed"
	EventReset        EventType = "reset"
	EventCatalog      EventType = "catalog"
	EventStatus       EventType = "status"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

// Kind reports the event's type tag. Embedding Event gives every
// concrete event this method, which is what the hub filters on.
func (e Event) Kind() EventType { return e.Type }

// NowTS returns the current UTC time as an RFC 3339 nano string, the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func envelope(t EventType) Event {
	return Event{Type: t, TS: NowTS()}
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor daemon uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func NewHeartbeat(state string, uptime time.Duration) Heartbeat {
	return Heartbeat{
		Event:         envelope(EventHeartbeat),
		State:         state,
		UptimeSeconds: int64(uptime.Seconds()),
	}
}

// StateTransition is emitted whenever the daemon moves between
// operating states (e.g. RUNNING -> PAUSED).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

func NewStateTransition(from, to string) StateTransition {
	return StateTransition{Event: envelope(EventState), From: from, To: to}
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

func NewLogLine(level, message string) LogLine {
	return LogLine{Event: envelope(EventLog), Level: level, Message: message}
}

// Estimate announces one serving-satellite determination.
type Estimate struct {
	Event
	At        string  `json:"at"`
	Slot      uint64  `json:"slot"`
	Satellite string  `json:"satellite"`
	RangeKm   float64 `json:"range_km,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Resolved  bool    `json:"resolved"`
}

func NewEstimate(at time.Time, slot uint64, satellite string, rangeKm, score float64, resolved bool) Estimate {
	return Estimate{
		Event:     envelope(EventEstimate),
		At:        at.UTC().Format(time.RFC3339),
		Slot:      slot,
		Satellite: satellite,
		RangeKm:   rangeKm,
		Score:     score,
		Resolved:  resolved,
	}
}

// WindowClosed reports one sealed accumulation window. Cause is
// "reset", "timeout", or "flush"; a timeout means the terminal's reset
// signal went missing and the window was force-closed.
type WindowClosed struct {
	Event
	Slot       uint64 `json:"slot"`
	Cause      string `json:"cause"`
	Samples    int    `json:"samples"`
	Obstructed int    `json:"obstructed"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

func NewWindowClosed(slot uint64, cause string, samples, obstructed int, start, end time.Time) WindowClosed {
	return WindowClosed{
		Event:      envelope(EventWindowClosed),
		Slot:       slot,
		Cause:      cause,
		Samples:    samples,
		Obstructed: obstructed,
		Start:      start.UTC().Format(time.RFC3339),
		End:        end.UTC().Format(time.RFC3339),
	}
}

// Reset marks an obstruction map wipe, scheduled or terminal-side.
type Reset struct {
	Event
	At string `json:"at"`
}

func NewReset(at time.Time) Reset {
	return Reset{Event: envelope(EventReset), At: at.UTC().Format(time.RFC3339)}
}

// Catalog reports a catalog load or refresh.
type Catalog struct {
	Event
	Satellites int    `json:"satellites"`
	LoadedAt   string `json:"loaded_at"`
}

func NewCatalog(satellites int, loadedAt time.Time) Catalog {
	return Catalog{
		Event:      envelope(EventCatalog),
		Satellites: satellites,
		LoadedAt:   loadedAt.UTC().Format(time.RFC3339),
	}
}

// Status carries link-quality telemetry for dashboards.
type Status struct {
	Event
	SNR         float64 `json:"snr"`
	LatencyMs   float64 `json:"latency_ms"`
	DownlinkBps float64 `json:"downlink_bps"`
	UplinkBps   float64 `json:"uplink_bps"`
	GPSValid    bool    `json:"gps_valid"`
}

func NewStatus(snr, latencyMs, downlinkBps, uplinkBps float64, gpsValid bool) Status {
	return Status{
		Event:       envelope(EventStatus),
		SNR:         snr,
		LatencyMs:   latencyMs,
		DownlinkBps: downlinkBps,
		UplinkBps:   uplinkBps,
		GPSValid:    gpsValid,
	}
}
