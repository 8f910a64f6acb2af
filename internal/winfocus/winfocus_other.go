//go:build !windows

package winfocus

import (
	"fmt"
	"runtime"

	"charswitch/internal/registry"
	"charswitch/internal/switcher"
)

// Adapter is inert off Windows: no handle is ever valid and nothing is
// detected.
type Adapter struct {
	processNames []string
}

func (a *Adapter) IsValid(registry.Handle) bool { return false }

func (a *Adapter) Focus(registry.Handle) bool { return false }

func (a *Adapter) DetectWindows() ([]switcher.WindowInfo, error) {
	return nil, fmt.Errorf("window detection is not supported on %s", runtime.GOOS)
}
