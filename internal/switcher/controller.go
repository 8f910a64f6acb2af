package switcher

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"charswitch/internal/registry"
)

var (
	// ErrOutOfRange is returned when a target index is outside the registry.
	ErrOutOfRange = errors.New("index out of range")
	// ErrStaleWindow is returned when the target handle no longer refers to a live window.
	ErrStaleWindow = errors.New("window handle is stale")
	// ErrFocusFailed is returned when the OS declined to change focus.
	ErrFocusFailed = errors.New("focus request failed")
	// ErrAllWindowsInvalid is returned when next/previous exhausted every candidate.
	ErrAllWindowsInvalid = errors.New("all windows are invalid")
	// ErrNotFound is returned when no binding matches a name lookup.
	ErrNotFound = errors.New("character not found")
	// ErrNoCharacters is returned when navigating an empty registry.
	ErrNoCharacters = errors.New("no characters configured")
	// ErrSwitchSuperseded is returned when the registry was replaced while a
	// focus request was in flight. The window may have been focused, but the
	// cursor was not moved.
	ErrSwitchSuperseded = errors.New("registry changed during switch")
)

// Controller is the cyclic navigation state machine over a registry.
//
// Lock ordering (outer -> inner):
//
//	switchMu -> mu
//
// mu guards reg, current and generation and is never held across adapter
// calls. switchMu serializes whole navigation intents (read cursor, probe
// adapter, commit cursor) so two rapid hotkey presses cannot both advance
// from the same starting index, so it intentionally stays held across the
// adapter calls of one intent (up to n IsValid probes plus one Focus).
// Read-only queries take mu only and are never blocked by a switch.
type Controller struct {
	switchMu sync.Mutex

	mu      sync.Mutex
	reg     *registry.Registry
	current int
	// generation is bumped on every structural registry change. A cursor
	// commit computed against an older generation is dropped.
	generation uint64

	adapter FocusAdapter
}

// New creates a controller over an empty registry.
func New(adapter FocusAdapter) *Controller {
	return &Controller{
		reg:     registry.New(),
		adapter: adapter,
	}
}

// SwitchToPosition focuses the binding at sequence index index.
// The cursor is only moved when focus succeeds and the registry was not
// replaced during the request (ErrSwitchSuperseded).
func (c *Controller) SwitchToPosition(index int) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()
	return c.focusIndex(index)
}

// SwitchToNext focuses the next live window after the cursor, wrapping around.
func (c *Controller) SwitchToNext() error {
	return c.step(1)
}

// SwitchToPrevious focuses the previous live window before the cursor, wrapping around.
func (c *Controller) SwitchToPrevious() error {
	return c.step(-1)
}

// SwitchToName focuses the first binding whose name matches case-insensitively.
func (c *Controller) SwitchToName(name string) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	index := -1
	for i, b := range c.reg.List() {
		if strings.EqualFold(b.Name, name) {
			index = i
			break
		}
	}
	c.mu.Unlock()

	if index < 0 {
		return fmt.Errorf("switch to %q: %w", name, ErrNotFound)
	}
	return c.focusIndex(index)
}

// focusIndex performs one validity probe and one focus request.
// Caller must hold switchMu and must NOT hold mu.
func (c *Controller) focusIndex(index int) error {
	c.mu.Lock()
	b, ok := c.reg.At(index)
	count := c.reg.Count()
	gen := c.generation
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("switch to index %d (count %d): %w", index, count, ErrOutOfRange)
	}
	if !c.adapter.IsValid(b.WindowHandle) {
		slog.Debug("[DEBUG-SWITCH] target window is stale", "name", b.Name, "position", b.Position)
		return fmt.Errorf("switch to %q: %w", b.Name, ErrStaleWindow)
	}
	return c.focusAndCommit(index, b, gen)
}

func (c *Controller) step(dir int) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	bindings := c.reg.List()
	start := c.current
	gen := c.generation
	c.mu.Unlock()

	n := len(bindings)
	if n == 0 {
		return ErrNoCharacters
	}

	// Bounded scan: at most n probes, the last one landing back on start.
	for attempt := 1; attempt <= n; attempt++ {
		index := wrapIndex(start+dir*attempt, n)
		b := bindings[index]
		if !c.adapter.IsValid(b.WindowHandle) {
			slog.Debug("[DEBUG-SWITCH] skipping stale window",
				"name", b.Name, "position", b.Position, "attempt", attempt)
			continue
		}
		return c.focusAndCommit(index, b, gen)
	}
	return fmt.Errorf("step %+d after %d attempts: %w", dir, n, ErrAllWindowsInvalid)
}

// focusAndCommit asks the adapter for focus and, on success, moves the cursor.
// When the registry generation changed meanwhile, the commit is dropped and
// ErrSwitchSuperseded is returned.
func (c *Controller) focusAndCommit(index int, b registry.CharacterBinding, gen uint64) error {
	if !c.adapter.Focus(b.WindowHandle) {
		slog.Debug("[DEBUG-SWITCH] focus request declined", "name", b.Name, "position", b.Position)
		return fmt.Errorf("switch to %q: %w", b.Name, ErrFocusFailed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		// Registry was replaced while the adapter call was in flight; index
		// no longer identifies the same binding.
		slog.Warn("[DEBUG-SWITCH] registry changed during switch, cursor not committed",
			"name", b.Name, "index", index)
		return fmt.Errorf("switch to %q: %w", b.Name, ErrSwitchSuperseded)
	}
	c.current = index
	return nil
}

// CurrentBinding returns the binding under the cursor.
func (c *Controller) CurrentBinding() (registry.CharacterBinding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.At(c.current)
}

// PeekNext returns the binding after the cursor without side effects.
func (c *Controller) PeekNext() (registry.CharacterBinding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.reg.Count()
	if n == 0 {
		return registry.CharacterBinding{}, false
	}
	return c.reg.At(wrapIndex(c.current+1, n))
}

// CurrentIndex returns the cursor. Meaningless when the registry is empty.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// ValidateAll returns the positions whose handles are currently invalid.
func (c *Controller) ValidateAll() []int {
	bindings := c.List()
	var invalid []int
	for _, b := range bindings {
		if !c.adapter.IsValid(b.WindowHandle) {
			invalid = append(invalid, b.Position)
		}
	}
	return invalid
}

// AddBinding inserts or overwrites the binding at position.
func (c *Controller) AddBinding(name string, handle registry.Handle, position int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reg.Add(name, handle, position); err != nil {
		return err
	}
	c.generation++
	c.clampLocked()
	return nil
}

// RemoveBinding drops the binding at position.
func (c *Controller) RemoveBinding(position int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reg.Remove(position)
	c.generation++
	c.clampLocked()
}

// RenameBinding renames the binding at position. Indexes are unaffected.
func (c *Controller) RenameBinding(position int, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reg.Rename(position, name)
}

// List returns the bindings in position order.
func (c *Controller) List() []registry.CharacterBinding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.List()
}

// Count returns the number of bindings.
func (c *Controller) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Count()
}

// clampLocked resets an out-of-range cursor to 0. Caller must hold mu.
func (c *Controller) clampLocked() {
	if c.current < 0 || c.current >= c.reg.Count() {
		c.current = 0
	}
}

// wrapIndex maps i into [0, n) for any sign of i. n must be positive.
func wrapIndex(i, n int) int {
	return ((i % n) + n) % n
}
