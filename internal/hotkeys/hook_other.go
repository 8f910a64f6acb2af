//go:build !windows && !darwin && !(linux && x11)

package hotkeys

import (
	"errors"
	"fmt"
	"runtime"
)

// Manager has no OS hook on this target; every Bind fails after validating
// the key so configuration errors still surface. Linux builds get the X11
// hook only with the x11 build tag, since the library aborts the process at
// init when no display is reachable.
type Manager struct{}

// NewManager creates a hotkey manager.
func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Bind(spec string, onTrigger func()) error {
	if onTrigger == nil {
		return errors.New("onTrigger callback is required")
	}
	if _, err := ParseBinding(spec); err != nil {
		return err
	}
	return fmt.Errorf("global hotkeys on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}

func (m *Manager) Unbind(spec string) error {
	_, err := ParseBinding(spec)
	return err
}

func (m *Manager) Close() error { return nil }

func (m *Manager) ActiveBindings() []string { return nil }
