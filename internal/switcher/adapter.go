package switcher

import "charswitch/internal/registry"

// FocusAdapter reports window validity and requests OS focus.
// Both calls may be slow; the controller never holds its state lock across them.
type FocusAdapter interface {
	IsValid(handle registry.Handle) bool
	Focus(handle registry.Handle) bool
}

// WindowInfo describes one candidate game-client window.
type WindowInfo struct {
	Handle  registry.Handle `json:"handle"`
	Title   string          `json:"title"`
	PID     uint32          `json:"pid"`
	Process string          `json:"process"`
}

// WindowDetector enumerates candidate windows in a stable order.
// Used only to seed a registry, never during steady-state switching.
type WindowDetector interface {
	DetectWindows() ([]WindowInfo, error)
}
