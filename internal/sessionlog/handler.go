// Package sessionlog keeps the most recent warnings of a running switcher so
// they can be shown to clients without tailing the log.
package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries a Ring keeps when none is given.
const DefaultCapacity = 20

// Entry is one captured log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	// Group is the dot-separated slog group the record was logged under.
	Group string
	// Attrs holds "key=value" pairs in logging order.
	Attrs []string
}

// String renders the entry on one line.
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(e.Level.String())
	b.WriteByte(' ')
	if e.Group != "" {
		b.WriteString(e.Group)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	for _, a := range e.Attrs {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

// Ring is a fixed-size buffer of the newest entries.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRing creates a Ring holding up to capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Add stores e, overwriting the oldest entry when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the stored entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Lines returns Entries rendered with Entry.String.
func (r *Ring) Lines() []string {
	entries := r.Entries()
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	return out
}

// Clear drops every entry.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	r.next = 0
	r.full = false
}

// TeeHandler forwards every record to base and copies records at or above
// minLevel into sink.
type TeeHandler struct {
	base     slog.Handler
	sink     func(Entry)
	minLevel slog.Level
	group    string
	attrs    []string
}

// NewTeeHandler creates a TeeHandler. A nil sink only delegates to base.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, sink func(Entry)) *TeeHandler {
	return &TeeHandler{base: base, sink: sink, minLevel: minLevel}
}

// Enabled defers to the base handler; minLevel only gates the sink.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards record to base, then to the sink when its level qualifies.
// The sink runs even if base fails.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)
	if h.sink == nil || record.Level < h.minLevel {
		return err
	}

	entry := Entry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Group:   h.group,
		Attrs:   append([]string(nil), h.attrs...),
	}
	record.Attrs(func(a slog.Attr) bool {
		entry.Attrs = append(entry.Attrs, formatAttr(h.group, a))
		return true
	})

	func() {
		defer func() {
			if r := recover(); r != nil {
				// stderr, not slog: logging here would re-enter this handler.
				fmt.Fprintf(os.Stderr, "[session-log] sink panicked: %v\n%s\n", r, debug.Stack())
			}
		}()
		h.sink(entry)
	}()
	return err
}

// WithAttrs returns a handler whose base and captured entries carry attrs.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := h.clone()
	next.base = h.base.WithAttrs(attrs)
	for _, a := range attrs {
		next.attrs = append(next.attrs, formatAttr(h.group, a))
	}
	return next
}

// WithGroup returns a handler nested under name.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.base = h.base.WithGroup(name)
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return next
}

func (h *TeeHandler) clone() *TeeHandler {
	c := *h
	c.attrs = append([]string(nil), h.attrs...)
	return &c
}

func formatAttr(group string, a slog.Attr) string {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	return key + "=" + a.Value.Resolve().String()
}
