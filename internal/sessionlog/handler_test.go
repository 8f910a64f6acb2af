package sessionlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func newTestLogger(minLevel slog.Level) (*slog.Logger, *bytes.Buffer, *Ring) {
	var buf bytes.Buffer
	ring := NewRing(4)
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewTeeHandler(base, minLevel, ring.Add)), &buf, ring
}

func TestTeeHandlerCapturesAtThreshold(t *testing.T) {
	logger, buf, ring := newTestLogger(slog.LevelWarn)

	logger.Info("[DEBUG-SWITCH] focused", "name", "Alpha")
	logger.Warn("[DEBUG-hotkey] key binding failed", "key", "f1")
	logger.Error("[DEBUG-PANIC] worker gave up")

	entries := ring.Entries()
	if len(entries) != 2 {
		t.Fatalf("captured %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].Level != slog.LevelWarn || entries[0].Message != "[DEBUG-hotkey] key binding failed" {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if !slices.Equal(entries[0].Attrs, []string{"key=f1"}) {
		t.Fatalf("entries[0].Attrs = %v, want [key=f1]", entries[0].Attrs)
	}
	if entries[1].Level != slog.LevelError {
		t.Fatalf("entries[1].Level = %v, want ERROR", entries[1].Level)
	}
	for _, msg := range []string{"focused", "key binding failed", "worker gave up"} {
		if !strings.Contains(buf.String(), msg) {
			t.Fatalf("base output missing %q:\n%s", msg, buf.String())
		}
	}
}

func TestTeeHandlerGroupsAndAttrs(t *testing.T) {
	logger, _, ring := newTestLogger(slog.LevelWarn)

	logger.With("component", "hotkeys").WithGroup("hook").WithGroup("win32").Warn("unbind failed", "key", "f2")

	entries := ring.Entries()
	if len(entries) != 1 {
		t.Fatalf("captured %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.Group != "hook.win32" {
		t.Fatalf("Group = %q, want hook.win32", got.Group)
	}
	want := []string{"component=hotkeys", "hook.win32.key=f2"}
	if !slices.Equal(got.Attrs, want) {
		t.Fatalf("Attrs = %v, want %v", got.Attrs, want)
	}
}

func TestTeeHandlerEmptyGroupReturnsReceiver(t *testing.T) {
	h := NewTeeHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), slog.LevelWarn, nil)
	if got := h.WithGroup(""); got != h {
		t.Fatal("WithGroup(\"\") returned a new handler")
	}
	if got := h.WithAttrs(nil); got != h {
		t.Fatal("WithAttrs(nil) returned a new handler")
	}
}

func TestTeeHandlerNilSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTeeHandler(slog.NewTextHandler(&buf, nil), slog.LevelWarn, nil))
	logger.Error("still logged")
	if !strings.Contains(buf.String(), "still logged") {
		t.Fatalf("base output = %q", buf.String())
	}
}

func TestTeeHandlerBaseErrorStillCaptures(t *testing.T) {
	ring := NewRing(2)
	h := NewTeeHandler(failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)}, slog.LevelWarn, ring.Add)

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelWarn, "queue full", 0))
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("Handle() error = %v, want base error", err)
	}
	if len(ring.Entries()) != 1 {
		t.Fatal("entry not captured when base handler failed")
	}
}

func TestTeeHandlerSinkPanicIsContained(t *testing.T) {
	h := NewTeeHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), slog.LevelWarn, func(Entry) { panic("boom") })
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "x", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

func TestRingKeepsNewestOldestFirst(t *testing.T) {
	ring := NewRing(3)
	if got := ring.Entries(); len(got) != 0 {
		t.Fatalf("empty ring Entries() = %v", got)
	}
	if ring.Lines() != nil {
		t.Fatal("empty ring Lines() should be nil")
	}

	for i := range 5 {
		ring.Add(Entry{Message: fmt.Sprintf("m%d", i)})
	}
	var got []string
	for _, e := range ring.Entries() {
		got = append(got, e.Message)
	}
	if want := []string{"m2", "m3", "m4"}; !slices.Equal(got, want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}

	ring.Clear()
	if n := len(ring.Entries()); n != 0 {
		t.Fatalf("after Clear len = %d, want 0", n)
	}
}

func TestNewRingDefaultCapacity(t *testing.T) {
	ring := NewRing(0)
	for i := range DefaultCapacity + 1 {
		ring.Add(Entry{Message: fmt.Sprint(i)})
	}
	if n := len(ring.Entries()); n != DefaultCapacity {
		t.Fatalf("len = %d, want %d", n, DefaultCapacity)
	}
}

func TestEntryString(t *testing.T) {
	e := Entry{
		Time:    time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC),
		Level:   slog.LevelWarn,
		Message: "key binding failed",
		Group:   "hook",
		Attrs:   []string{"key=f1"},
	}
	if got, want := e.String(), "13:04:05 WARN hook: key binding failed key=f1"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestRingConcurrentAdd(t *testing.T) {
	ring := NewRing(8)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Go(func() {
			for j := range 50 {
				ring.Add(Entry{Message: fmt.Sprintf("%d-%d", i, j)})
				_ = ring.Lines()
			}
		})
	}
	wg.Wait()
	if n := len(ring.Entries()); n != 8 {
		t.Fatalf("len = %d, want 8", n)
	}
}
