// Package winfocus implements window detection and focus for game clients.
package winfocus

import (
	"strings"

	"charswitch/internal/switcher"
)

// DefaultProcessNames are the executables treated as game clients.
var DefaultProcessNames = []string{"Dofus.exe"}

var (
	_ switcher.FocusAdapter   = (*Adapter)(nil)
	_ switcher.WindowDetector = (*Adapter)(nil)
)

// New returns an adapter that detects windows owned by one of processNames
// (case-insensitive base name). An empty list uses DefaultProcessNames.
func New(processNames []string) *Adapter {
	names := make([]string, 0, len(processNames))
	for _, n := range processNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = append(names, DefaultProcessNames...)
	}
	return &Adapter{processNames: names}
}

// ProcessNames returns the executable names the adapter matches.
func (a *Adapter) ProcessNames() []string {
	return append([]string(nil), a.processNames...)
}

// matchProcess reports whether imagePath's base name is one of names.
// Both separators are accepted so Windows paths match on any build.
func matchProcess(imagePath string, names []string) (string, bool) {
	base := imagePath
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	if base == "" {
		return "", false
	}
	for _, n := range names {
		if strings.EqualFold(base, n) {
			return base, true
		}
	}
	return base, false
}
