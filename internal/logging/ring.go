package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log line, held in memory for the daemon's log
// endpoint.
type Entry struct {
	TS      string `json:"ts"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Ring keeps the most recent log entries. Safe for concurrent use.
type Ring struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
}

// NewRing returns a ring holding up to n entries.
func NewRing(n int) *Ring {
	if n < 1 {
		n = 1
	}
	return &Ring{buf: make([]Entry, n)}
}

// Append stores an entry, evicting the oldest when full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit of the newest entries, oldest first.
// limit <= 0 means everything held.
func (r *Ring) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	start := r.next - limit
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Len returns how many entries the ring currently holds.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// RingHandler tees every record into a Ring, and to an optional emit
// callback, before delegating to the wrapped handler.
type RingHandler struct {
	inner slog.Handler
	ring  *Ring
	emit  func(level, message string)
}

// NewRingHandler wraps inner. emit may be nil.
func NewRingHandler(inner slog.Handler, ring *Ring, emit func(level, message string)) *RingHandler {
	return &RingHandler{inner: inner, ring: ring, emit: emit}
}

func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RingHandler) Handle(ctx context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Message)
	rec.Attrs(func(a slog.Attr) bool {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.String())
		return true
	})

	e := Entry{
		TS:      rec.Time.UTC().Format(time.RFC3339Nano),
		Level:   strings.ToLower(rec.Level.String()),
		Message: b.String(),
	}
	h.ring.Append(e)
	if h.emit != nil {
		h.emit(e.Level, e.Message)
	}
	return h.inner.Handle(ctx, rec)
}

func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RingHandler{inner: h.inner.WithAttrs(attrs), ring: h.ring, emit: h.emit}
}

func (h *RingHandler) WithGroup(name string) slog.Handler {
	return &RingHandler{inner: h.inner.WithGroup(name), ring: h.ring, emit: h.emit}
}
