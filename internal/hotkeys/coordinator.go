package hotkeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

var (
	// ErrBindingFailed wraps a single key that the hook layer refused to bind.
	ErrBindingFailed = errors.New("hotkey binding failed")
	// ErrInvalidPositionKeys is returned by SetPositionKeys for short input.
	ErrInvalidPositionKeys = errors.New("position keys require one entry per slot")
)

// defaultQueueSize bounds pending key events. A burst beyond this is dropped
// rather than blocking the hook thread.
const defaultQueueSize = 32

// Hook is the OS input-hook facility. onTrigger is invoked on a hook-owned
// goroutine for each key press.
type Hook interface {
	Bind(spec string, onTrigger func()) error
	Unbind(spec string) error
}

var _ Hook = (*Manager)(nil)

// Switcher is the navigation surface the coordinator drives.
type Switcher interface {
	SwitchToPosition(index int) error
	SwitchToNext() error
	SwitchToPrevious() error
}

// Options configures the coordinator's external callbacks. All may be nil.
type Options struct {
	OnToggleOverlay func()
	OnQuit          func()
	// OnResult observes every dispatched action with its outcome.
	OnResult func(action Action, err error)
	// QueueSize overrides defaultQueueSize when positive.
	QueueSize int
}

// Coordinator owns the action -> key table and the hook registration lifecycle.
//
// mu guards table, registered and bound, and is held for the whole of every
// RegisterAll/UnregisterAll so only one re-registration is in flight.
// Dispatch never takes mu.
type Coordinator struct {
	mu         sync.Mutex
	table      TableSnapshot
	registered bool
	bound      []string // specs successfully bound, in bind order

	hook   Hook
	sw     Switcher
	opts   Options
	events chan Action
}

// NewCoordinator creates an unregistered coordinator with the default table.
func NewCoordinator(hook Hook, sw Switcher, opts Options) *Coordinator {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Coordinator{
		table:  DefaultTable(),
		hook:   hook,
		sw:     sw,
		opts:   opts,
		events: make(chan Action, size),
	}
}

// Registered reports whether the coordinator is in the Registered state.
func (c *Coordinator) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// BoundKeys returns the key specs currently bound with the hook.
func (c *Coordinator) BoundKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bound...)
}

// RegisterAll removes every existing binding, then binds each action.
// A key that fails to bind is logged and skipped; the returned error joins
// every ErrBindingFailed. The coordinator is Registered afterwards either way.
func (c *Coordinator) RegisterAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerAllLocked()
}

// UnregisterAll removes every binding and moves to Unregistered.
func (c *Coordinator) UnregisterAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unregisterAllLocked()
}

func (c *Coordinator) registerAllLocked() error {
	if err := c.unregisterAllLocked(); err != nil {
		slog.Warn("[DEBUG-hotkey] stale bindings could not be fully removed", "error", err)
	}

	var errs []error
	for _, e := range c.table.entries() {
		if IsUnbound(e.spec) {
			slog.Debug("[DEBUG-hotkey] action unbound, skipping", "action", e.action.String())
			continue
		}
		if err := c.hook.Bind(e.spec, c.trigger(e.action)); err != nil {
			slog.Warn("[DEBUG-hotkey] key binding failed",
				"action", e.action.String(), "key", e.spec, "error", err)
			errs = append(errs, fmt.Errorf("%w: %s on %q: %w", ErrBindingFailed, e.action, e.spec, err))
			continue
		}
		c.bound = append(c.bound, e.spec)
	}
	c.registered = true

	for key, actions := range c.table.Collisions() {
		names := make([]string, 0, len(actions))
		for _, a := range actions {
			names = append(names, a.String())
		}
		slog.Warn("[DEBUG-hotkey] key shared by several actions", "key", key, "actions", strings.Join(names, ","))
	}
	slog.Info("[DEBUG-hotkey] hotkeys registered", "bound", len(c.bound), "failed", len(errs))
	return errors.Join(errs...)
}

func (c *Coordinator) unregisterAllLocked() error {
	var errs []error
	for _, spec := range c.bound {
		if err := c.hook.Unbind(spec); err != nil {
			slog.Debug("[DEBUG-hotkey] unbind failed", "key", spec, "error", err)
			errs = append(errs, fmt.Errorf("unbind %q: %w", spec, err))
		}
	}
	c.bound = nil
	c.registered = false
	return errors.Join(errs...)
}

// SetPositionKeys replaces the slot keys and re-registers. Only the first
// PositionSlots entries are used; fewer entries leave the table untouched.
func (c *Coordinator) SetPositionKeys(keys []string) error {
	if len(keys) < PositionSlots {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidPositionKeys, len(keys), PositionSlots)
	}
	return c.update(func(t *TableSnapshot) {
		t.PositionKeys = append([]string(nil), keys[:PositionSlots]...)
	})
}

// SetNextKey rebinds the Next action.
func (c *Coordinator) SetNextKey(spec string) error {
	return c.update(func(t *TableSnapshot) { t.NextKey = spec })
}

// SetPreviousKey rebinds the Previous action.
func (c *Coordinator) SetPreviousKey(spec string) error {
	return c.update(func(t *TableSnapshot) { t.PreviousKey = spec })
}

// SetToggleOverlayKey rebinds the ToggleOverlay action.
func (c *Coordinator) SetToggleOverlayKey(spec string) error {
	return c.update(func(t *TableSnapshot) { t.ToggleOverlayKey = spec })
}

// SetQuitKey rebinds the Quit action.
func (c *Coordinator) SetQuitKey(spec string) error {
	return c.update(func(t *TableSnapshot) { t.QuitKey = spec })
}

func (c *Coordinator) update(mutate func(*TableSnapshot)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.table)
	return c.registerAllLocked()
}

// Snapshot returns a copy of the key table.
func (c *Coordinator) Snapshot() TableSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Clone()
}

// LoadSnapshot replaces the key table wholesale, filling missing entries with
// defaults. Bindings are re-applied only when already Registered.
func (c *Coordinator) LoadSnapshot(t TableSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = t.WithDefaults()
	if !c.registered {
		return nil
	}
	return c.registerAllLocked()
}

// trigger returns the hook callback for action. It only enqueues.
func (c *Coordinator) trigger(action Action) func() {
	return func() {
		select {
		case c.events <- action:
		default:
			slog.Warn("[DEBUG-hotkey] event queue full, dropping key press", "action", action.String())
		}
	}
}

// Run dispatches queued key events one at a time until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case action := <-c.events:
			_ = c.Dispatch(action)
		}
	}
}

// Dispatch performs action synchronously. The error is reported through
// OnResult and returned; it is never fatal.
func (c *Coordinator) Dispatch(action Action) error {
	var err error
	switch action.Kind {
	case ActionSlot:
		err = c.sw.SwitchToPosition(action.Slot)
	case ActionNext:
		err = c.sw.SwitchToNext()
	case ActionPrevious:
		err = c.sw.SwitchToPrevious()
	case ActionToggleOverlay:
		if c.opts.OnToggleOverlay != nil {
			c.opts.OnToggleOverlay()
		}
	case ActionQuit:
		if c.opts.OnQuit != nil {
			c.opts.OnQuit()
		}
	default:
		err = fmt.Errorf("unknown action %s", action)
	}

	if err != nil {
		slog.Debug("[DEBUG-hotkey] action failed", "action", action.String(), "error", err)
	}
	if c.opts.OnResult != nil {
		c.opts.OnResult(action, err)
	}
	return err
}
