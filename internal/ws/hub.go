// Package ws provides the WebSocket fan-out hub for skylockd telemetry.
// Clients subscribe at /ws, optionally narrowing the stream with a
// filter query parameter of comma-separated event types; components
// publish typed telemetry events and the hub delivers the JSON encoding
// to every subscriber whose filter admits the event's type.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/large-farva/skylock/internal/metrics"
	"github.com/large-farva/skylock/internal/telemetry"
)

// Payload is any event that can be published through the hub. Every
// telemetry event satisfies it through its embedded envelope.
type Payload interface {
	Kind() telemetry.EventType
}

// subscriber pairs a connection with its negotiated event filter.
// A nil allow set admits everything.
type subscriber struct {
	conn  *websocket.Conn
	allow map[telemetry.EventType]struct{}
}

func (s *subscriber) wants(kind telemetry.EventType) bool {
	if s.allow == nil {
		return true
	}
	_, ok := s.allow[kind]
	return ok
}

type outbound struct {
	kind telemetry.EventType
	data []byte
}

// Hub fans telemetry events out to WebSocket subscribers. The Run
// goroutine owns all state; attach, detach, and publish go through
// channels, so the exported methods are safe from any goroutine.
type Hub struct {
	subscribers map[*subscriber]struct{}
	attach      chan *subscriber
	detach      chan *subscriber
	events      chan outbound
	upgrader    websocket.Upgrader
}

// NewHub allocates a hub. Call Run in a goroutine to start delivery.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		attach:      make(chan *subscriber, 16),
		detach:      make(chan *subscriber, 16),
		events:      make(chan outbound, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run delivers events and keepalive pings until ctx is cancelled, then
// closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for s := range h.subscribers {
				_ = s.conn.Close()
			}
			return

		case s := <-h.attach:
			h.subscribers[s] = struct{}{}
			metrics.SetWSClients(len(h.subscribers))

		case s := <-h.detach:
			h.drop(s)
			metrics.SetWSClients(len(h.subscribers))

		case ev := <-h.events:
			for s := range h.subscribers {
				if !s.wants(ev.kind) {
					continue
				}
				_ = s.conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				if err := s.conn.WriteMessage(websocket.TextMessage, ev.data); err != nil {
					h.drop(s)
				}
			}
			metrics.SetWSClients(len(h.subscribers))

		case <-ping.C:
			for s := range h.subscribers {
				_ = s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					h.drop(s)
				}
			}
			metrics.SetWSClients(len(h.subscribers))
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	_ = s.conn.Close()
}

// Publish queues one event for delivery to matching subscribers. A full
// queue drops the event rather than blocking the publisher.
func (h *Hub) Publish(p Payload) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	select {
	case h.events <- outbound{kind: p.Kind(), data: data}:
	default:
	}
}

// Handler upgrades requests to WebSocket subscriptions. The filter
// query parameter narrows the stream to the named event types; absent
// or empty, the subscriber receives every event.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allow := parseFilter(r.URL.Query().Get("filter"))

		// Upgrade writes its own error response on failure.
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := &subscriber{conn: conn, allow: allow}
		h.attach <- sub

		go func() {
			defer func() { h.detach <- sub }()
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				return nil
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

func parseFilter(raw string) map[telemetry.EventType]struct{} {
	if raw == "" {
		return nil
	}
	allow := make(map[telemetry.EventType]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			allow[telemetry.EventType(part)] = struct{}{}
		}
	}
	if len(allow) == 0 {
		return nil
	}
	return allow
}
