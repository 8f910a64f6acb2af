package hotkeys

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type hookCall struct {
	op   string // "bind" or "unbind"
	spec string
}

type fakeHook struct {
	mu       sync.Mutex
	calls    []hookCall
	bound    map[string]func()
	failBind map[string]bool
}

func newFakeHook() *fakeHook {
	return &fakeHook{bound: map[string]func(){}, failBind: map[string]bool{}}
}

func (h *fakeHook) Bind(spec string, onTrigger func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hookCall{op: "bind", spec: spec})
	if h.failBind[spec] {
		return errors.New("unsupported key")
	}
	h.bound[spec] = onTrigger
	return nil
}

func (h *fakeHook) Unbind(spec string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hookCall{op: "unbind", spec: spec})
	delete(h.bound, spec)
	return nil
}

// press simulates the OS delivering a key event. It reports whether spec was bound.
func (h *fakeHook) press(spec string) bool {
	h.mu.Lock()
	fn, ok := h.bound[spec]
	h.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

func (h *fakeHook) resetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

func (h *fakeHook) callsSnapshot() []hookCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

type fakeSwitcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *fakeSwitcher) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.err
}

func (s *fakeSwitcher) SwitchToPosition(index int) error {
	return s.record(SlotAction(index).String())
}
func (s *fakeSwitcher) SwitchToNext() error { return s.record("next") }
func (s *fakeSwitcher) SwitchToPrevious() error { return s.record("previous") }

func (s *fakeSwitcher) callsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func TestRegisterAllBindsEveryAction(t *testing.T) {
	hook := newFakeHook()
	c := NewCoordinator(hook, &fakeSwitcher{}, Options{})

	if c.Registered() {
		t.Fatal("new coordinator should be unregistered")
	}
	if err := c.RegisterAll(); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	if !c.Registered() {
		t.Fatal("Registered() = false after RegisterAll")
	}

	want := append(slices.Clone(DefaultPositionKeys),
		DefaultNextKey, DefaultPreviousKey, DefaultToggleOverlayKey, DefaultQuitKey)
	if got := c.BoundKeys(); !slices.Equal(got, want) {
		t.Fatalf("BoundKeys() = %v, want %v", got, want)
	}
}

func TestRegisterAllTwiceDoesNotDoubleBind(t *testing.T) {
	hook := newFakeHook()
	c := NewCoordinator(hook, &fakeSwitcher{}, Options{})
	if err := c.RegisterAll(); err != nil {
		t.Fatal(err)
	}
	hook.resetCalls()

	if err := c.RegisterAll(); err != nil {
		t.Fatal(err)
	}
	calls := hook.callsSnapshot()
	total := PositionSlots + 4
	if len(calls) != 2*total {
		t.Fatalf("hook calls = %d, want %d", len(calls), 2*total)
	}
	for i, call := range calls {
		wantOp := "bind"
		if i < total {
			wantOp = "unbind"
		}
		if call.op != wantOp {
			t.Fatalf("call %d op = %q, want %q (all unbinds precede binds)", i, call.op, wantOp)
		}
	}
	if got := len(hook.bound); got != total {
		t.Fatalf("live hook bindings = %d, want %d", got, total)
	}
}

func TestRegisterAllSurvivesPartialFailure(t *testing.T) {
	hook := newFakeHook()
	hook.failBind["f3"] = true
	hook.failBind[DefaultQuitKey] = true
	c := NewCoordinator(hook, &fakeSwitcher{}, Options{})

	err := c.RegisterAll()
	if !errors.Is(err, ErrBindingFailed) {
		t.Fatalf("RegisterAll() error = %v, want ErrBindingFailed", err)
	}
	if !c.Registered() {
		t.Fatal("coordinator should be Registered despite partial failure")
	}
	bound := c.BoundKeys()
	if len(bound) != PositionSlots+4-2 {
		t.Fatalf("BoundKeys() = %v, want all but two keys", bound)
	}
	if slices.Contains(bound, "f3") || slices.Contains(bound, DefaultQuitKey) {
		t.Fatalf("failed keys must not be reported bound: %v", bound)
	}
	if !hook.press("f4") {
		t.Fatal("f4 should still be bound after f3 failed")
	}
}

func TestRegisterAllSkipsUnboundActions(t *testing.T) {
	hook := newFakeHook()
	c := NewCoordinator(hook, &fakeSwitcher{}, Options{})
	table := DefaultTable()
	table.QuitKey = "none"
	table.PositionKeys[7] = "NONE"
	if err := c.LoadSnapshot(table); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterAll(); err != nil {
		t.Fatal(err)
	}
	bound := c.BoundKeys()
	if slices.Contains(bound, DefaultQuitKey) || slices.Contains(bound, "f8") {
		t.Fatalf("unbound actions were bound: %v", bound)
	}
	if len(bound) != PositionSlots+4-2 {
		t.Fatalf("BoundKeys() len = %d, want %d", len(bound), PositionSlots+2)
	}
}

func TestUnregisterAll(t *testing.T) {
	hook := newFakeHook()
	c := NewCoordinator(hook, &fakeSwitcher{}, Options{})
	if err := c.RegisterAll(); err != nil {
		t.Fatal(err)
	}
	if err := c.UnregisterAll(); err != nil {
		t.Fatalf("UnregisterAll() error = %v", err)
	}
	if c.Registered() {
		t.Fatal("Registered() = true after UnregisterAll")
	}
	if len(hook.bound) != 0 || len(c.BoundKeys()) != 0 {
		t.Fatalf("bindings remain after UnregisterAll: hook=%v coordinator=%v", hook.bound, c.BoundKeys())
	}
}

func TestSetNextKeyRebinds(t *testing.T) {
	hook := newFakeHook()
	sw := &fakeSwitcher{}
	c := NewCoordinator(hook, sw, Options{})
	if err := c.RegisterAll(); err != nil {
		t.Fatal(err)
	}
	hook.resetCalls()

	if err := c.SetNextKey("tab"); err != nil {
		t.Fatalf("SetNextKey() error = %v", err)
	}

	calls := hook.callsSnapshot()
	unbindBacktick := slices.Index(calls, hookCall{op: "unbind", spec: "`"})
	bindTab := slices.Index(calls, hookCall{op: "bind", spec: "tab"})
	if unbindBacktick < 0 || bindTab < 0 || unbindBacktick > bindTab {
		t.Fatalf("expected unbind(`) before bind(tab), got %v", calls)
	}

	if hook.press("`") {
		t.Fatal("backtick is still bound after rebinding Next")
	}
	if !hook.press("tab") {
		t.Fatal("tab is not bound after rebinding Next")
	}
	action := <-c.events
	if action != NextAction {
		t.Fatalf("queued action = %v, want next", action)
	}
	if err := c.Dispatch(action); err != nil {
		t.Fatal(err)
	}
	if got := sw.callsSnapshot(); !slices.Equal(got, []string{"next"}) {
		t.Fatalf("switcher calls = %v, want [next]", got)
	}
	if got := c.Snapshot().NextKey; got != "tab" {
		t.Fatalf("Snapshot().NextKey = %q, want tab", got)
	}
}

func TestSettersUpdateTable(t *testing.T) {
	c := NewCoordinator(newFakeHook(), &fakeSwitcher{}, Options{})

	keys := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"}
	if err := c.SetPositionKeys(keys); err != nil {
		t.Fatal(err)
	}
	if err := c.SetPreviousKey("shift+tab"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetToggleOverlayKey("ctrl+f12"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetQuitKey("none"); err != nil {
		t.Fatal(err)
	}

	got := c.Snapshot()
	if !slices.Equal(got.PositionKeys, keys[:PositionSlots]) {
		t.Fatalf("PositionKeys = %v, want first %d of %v", got.PositionKeys, PositionSlots, keys)
	}
	if got.PreviousKey != "shift+tab" || got.ToggleOverlayKey != "ctrl+f12" || got.QuitKey != "none" {
		t.Fatalf("Snapshot() = %+v", got)
	}
	if !c.Registered() {
		t.Fatal("setters must leave the coordinator Registered")
	}
}

func TestSetPositionKeysRejectsShortList(t *testing.T) {
	hook := newFakeHook()
	c := NewCoordinator(hook, &fakeSwitcher{}, Options{})

	err := c.SetPositionKeys([]string{"1", "2"})
	if !errors.Is(err, ErrInvalidPositionKeys) {
		t.Fatalf("SetPositionKeys(short) error = %v, want ErrInvalidPositionKeys", err)
	}
	if got := c.Snapshot().PositionKeys; !slices.Equal(got, DefaultPositionKeys) {
		t.Fatalf("table changed after rejected update: %v", got)
	}
	if len(hook.callsSnapshot()) != 0 {
		t.Fatal("rejected update must not touch the hook")
	}
}

func TestLoadSnapshot(t *testing.T) {
	t.Run("unregistered does not bind", func(t *testing.T) {
		hook := newFakeHook()
		c := NewCoordinator(hook, &fakeSwitcher{}, Options{})
		if err := c.LoadSnapshot(TableSnapshot{NextKey: "n"}); err != nil {
			t.Fatal(err)
		}
		if len(hook.callsSnapshot()) != 0 {
			t.Fatal("LoadSnapshot on an unregistered coordinator called the hook")
		}
		got := c.Snapshot()
		if got.NextKey != "n" || got.PreviousKey != DefaultPreviousKey {
			t.Fatalf("Snapshot() = %+v, want NextKey n with other defaults", got)
		}
		if !slices.Equal(got.PositionKeys, DefaultPositionKeys) {
			t.Fatalf("PositionKeys = %v, want defaults", got.PositionKeys)
		}
	})

	t.Run("registered rebinds", func(t *testing.T) {
		hook := newFakeHook()
		c := NewCoordinator(hook, &fakeSwitcher{}, Options{})
		if err := c.RegisterAll(); err != nil {
			t.Fatal(err)
		}
		if err := c.LoadSnapshot(TableSnapshot{QuitKey: "ctrl+shift+q"}); err != nil {
			t.Fatal(err)
		}
		if !hook.press("ctrl+shift+q") {
			t.Fatal("loaded quit key is not bound")
		}
		if hook.press(DefaultQuitKey) {
			t.Fatal("old quit key is still bound")
		}
	})
}

func TestDispatch(t *testing.T) {
	sw := &fakeSwitcher{}
	var overlay, quit int
	var results []Action
	c := NewCoordinator(newFakeHook(), sw, Options{
		OnToggleOverlay: func() { overlay++ },
		OnQuit:          func() { quit++ },
		OnResult:        func(a Action, _ error) { results = append(results, a) },
	})

	actions := []Action{SlotAction(2), NextAction, PreviousAction, ToggleOverlayAction, QuitAction}
	for _, a := range actions {
		if err := c.Dispatch(a); err != nil {
			t.Fatalf("Dispatch(%v) error = %v", a, err)
		}
	}

	if got, want := sw.callsSnapshot(), []string{"slot-2", "next", "previous"}; !slices.Equal(got, want) {
		t.Fatalf("switcher calls = %v, want %v", got, want)
	}
	if overlay != 1 || quit != 1 {
		t.Fatalf("overlay=%d quit=%d, want 1 each", overlay, quit)
	}
	if !slices.Equal(results, actions) {
		t.Fatalf("OnResult actions = %v, want %v", results, actions)
	}
}

func TestDispatchReportsSwitchFailure(t *testing.T) {
	wantErr := errors.New("stale")
	sw := &fakeSwitcher{err: wantErr}
	var gotErr error
	c := NewCoordinator(newFakeHook(), sw, Options{
		OnResult: func(_ Action, err error) { gotErr = err },
	})

	if err := c.Dispatch(NextAction); !errors.Is(err, wantErr) {
		t.Fatalf("Dispatch() error = %v, want %v", err, wantErr)
	}
	if !errors.Is(gotErr, wantErr) {
		t.Fatalf("OnResult error = %v, want %v", gotErr, wantErr)
	}
}

func TestRunDrainsHookEvents(t *testing.T) {
	hook := newFakeHook()
	sw := &fakeSwitcher{}
	done := make(chan Action, 4)
	c := NewCoordinator(hook, sw, Options{
		OnResult: func(a Action, _ error) { done <- a },
	})
	if err := c.RegisterAll(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		c.Run(ctx)
	}()

	hook.press("f1")
	hook.press(DefaultPreviousKey)

	for _, want := range []Action{SlotAction(0), PreviousAction} {
		select {
		case got := <-done:
			if got != want {
				t.Fatalf("dispatched %v, want %v", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTriggerDropsWhenQueueFull(t *testing.T) {
	hook := newFakeHook()
	c := NewCoordinator(hook, &fakeSwitcher{}, Options{QueueSize: 1})
	if err := c.RegisterAll(); err != nil {
		t.Fatal(err)
	}

	hook.press("f1")
	hook.press("f2") // must not block

	if got := len(c.events); got != 1 {
		t.Fatalf("queued events = %d, want 1", got)
	}
	if got := <-c.events; got != SlotAction(0) {
		t.Fatalf("queued action = %v, want slot-0", got)
	}
}

func TestConcurrentSettersLeaveConsistentBindings(t *testing.T) {
	hook := newFakeHook()
	c := NewCoordinator(hook, &fakeSwitcher{}, Options{})
	if err := c.RegisterAll(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	specs := []string{"tab", "space", "f9", "f10", "f11", "f12"}
	for _, spec := range specs {
		wg.Go(func() {
			_ = c.SetNextKey(spec)
		})
	}
	wg.Wait()

	next := c.Snapshot().NextKey
	if !slices.Contains(specs, next) {
		t.Fatalf("NextKey = %q, want one of %v", next, specs)
	}
	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.bound) != PositionSlots+4 {
		t.Fatalf("live bindings = %d, want %d (no dangling or double bindings)", len(hook.bound), PositionSlots+4)
	}
	for _, spec := range specs {
		if _, ok := hook.bound[spec]; ok && spec != next {
			t.Fatalf("stale Next binding %q left behind (current %q)", spec, next)
		}
	}
}
