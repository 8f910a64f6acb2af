//go:build darwin || (linux && x11)

package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"
)

// desktopHotkey is one live registration and the goroutine forwarding its
// key-down events.
type desktopHotkey struct {
	hk     *hotkey.Hotkey
	stopCh chan struct{}
	doneCh chan struct{}
}

// Manager binds global hotkeys through golang.design/x/hotkey.
type Manager struct {
	mu     sync.Mutex
	active map[string]*desktopHotkey // keyed by normalized binding
}

// NewManager creates an empty hotkey manager.
func NewManager() *Manager {
	return &Manager{active: map[string]*desktopHotkey{}}
}

// Bind registers spec and calls onTrigger on each press.
func (m *Manager) Bind(spec string, onTrigger func()) error {
	if onTrigger == nil {
		return errors.New("onTrigger callback is required")
	}
	binding, err := ParseBinding(spec)
	if err != nil {
		return err
	}
	mods, key, err := platformChord(binding)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[binding.Normalized()]; exists {
		return fmt.Errorf("hotkey %q is already bound", binding.Normalized())
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register hotkey %q failed: %w", binding.Normalized(), err)
	}

	dh := &desktopHotkey{hk: hk, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	go func() {
		defer close(dh.doneCh)
		keydown := hk.Keydown()
		for {
			select {
			case <-dh.stopCh:
				return
			case _, ok := <-keydown:
				if !ok {
					return
				}
				onTrigger()
			}
		}
	}()

	m.active[binding.Normalized()] = dh
	slog.Debug("[DEBUG-hotkey] registered", "binding", binding.Normalized())
	return nil
}

// Unbind removes the registration for spec. Unknown specs are a no-op.
func (m *Manager) Unbind(spec string) error {
	binding, err := ParseBinding(spec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dh, ok := m.active[binding.Normalized()]
	if !ok {
		return nil
	}
	delete(m.active, binding.Normalized())
	return dh.stop()
}

// Close removes every registration.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, dh := range m.active {
		delete(m.active, key)
		errs = append(errs, dh.stop())
	}
	return errors.Join(errs...)
}

// ActiveBindings returns the normalized bindings currently registered.
func (m *Manager) ActiveBindings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for key := range m.active {
		out = append(out, key)
	}
	return out
}

func (dh *desktopHotkey) stop() error {
	close(dh.stopCh)
	<-dh.doneCh
	return dh.hk.Unregister()
}

// commonKeys are keys the hotkey library names on every desktop platform.
var commonKeys = map[VKey]hotkey.Key{
	vkSpace: hotkey.KeySpace, vkTab: hotkey.KeyTab, vkReturn: hotkey.KeyReturn,
	vkEscape: hotkey.KeyEscape, vkDelete: hotkey.KeyDelete,
	vkLeft: hotkey.KeyLeft, vkRight: hotkey.KeyRight, vkUp: hotkey.KeyUp, vkDown: hotkey.KeyDown,
	vkF1: hotkey.KeyF1, vkF2: hotkey.KeyF2, vkF3: hotkey.KeyF3, vkF4: hotkey.KeyF4,
	vkF5: hotkey.KeyF5, vkF6: hotkey.KeyF6, vkF7: hotkey.KeyF7, vkF8: hotkey.KeyF8,
	vkF9: hotkey.KeyF9, vkF10: hotkey.KeyF10, vkF11: hotkey.KeyF11, vkF12: hotkey.KeyF12,
	vkF13: hotkey.KeyF13, vkF14: hotkey.KeyF14, vkF15: hotkey.KeyF15, vkF16: hotkey.KeyF16,
	vkF17: hotkey.KeyF17, vkF18: hotkey.KeyF18, vkF19: hotkey.KeyF19, vkF20: hotkey.KeyF20,
	'0': hotkey.Key0, '1': hotkey.Key1, '2': hotkey.Key2, '3': hotkey.Key3, '4': hotkey.Key4,
	'5': hotkey.Key5, '6': hotkey.Key6, '7': hotkey.Key7, '8': hotkey.Key8, '9': hotkey.Key9,
	'A': hotkey.KeyA, 'B': hotkey.KeyB, 'C': hotkey.KeyC, 'D': hotkey.KeyD, 'E': hotkey.KeyE,
	'F': hotkey.KeyF, 'G': hotkey.KeyG, 'H': hotkey.KeyH, 'I': hotkey.KeyI, 'J': hotkey.KeyJ,
	'K': hotkey.KeyK, 'L': hotkey.KeyL, 'M': hotkey.KeyM, 'N': hotkey.KeyN, 'O': hotkey.KeyO,
	'P': hotkey.KeyP, 'Q': hotkey.KeyQ, 'R': hotkey.KeyR, 'S': hotkey.KeyS, 'T': hotkey.KeyT,
	'U': hotkey.KeyU, 'V': hotkey.KeyV, 'W': hotkey.KeyW, 'X': hotkey.KeyX, 'Y': hotkey.KeyY,
	'Z': hotkey.KeyZ,
}

// platformChord translates a binding into the hotkey library's values.
func platformChord(b Binding) ([]hotkey.Modifier, hotkey.Key, error) {
	var mods []hotkey.Modifier
	for _, mod := range []Modifier{modControl, modAlt, modShift, modWin} {
		if !b.Has(mod) {
			continue
		}
		pm, ok := modifierMap[mod]
		if !ok {
			return nil, 0, fmt.Errorf("modifier %s is not supported on this platform", normalizeModifierName(mod))
		}
		mods = append(mods, pm)
	}

	if key, ok := commonKeys[b.Key()]; ok {
		return mods, key, nil
	}
	if key, ok := platformKeys[b.Key()]; ok {
		return mods, key, nil
	}
	return nil, 0, fmt.Errorf("key %q is not supported on this platform", b.Normalized())
}
