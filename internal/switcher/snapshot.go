package switcher

import (
	"fmt"
	"log/slog"

	"charswitch/internal/registry"
)

// Snapshot is the persisted form of the registry and cursor.
type Snapshot struct {
	Bindings     []registry.CharacterBinding `yaml:"bindings" json:"bindings"`
	CurrentIndex int                         `yaml:"currentIndex" json:"currentIndex"`
}

// Status is the read-only view published to display collaborators.
// NextIndex is 0 when Names is empty.
type Status struct {
	Names        []string `json:"names"`
	CurrentIndex int      `json:"currentIndex"`
	NextIndex    int      `json:"nextIndex"`
}

// Namer picks the display name for the i-th detected window during Seed.
type Namer func(i int, w WindowInfo) string

// DefaultName names detected windows PERSO1..PERSO8.
func DefaultName(i int, _ WindowInfo) string {
	return fmt.Sprintf("PERSO%d", i+1)
}

// Snapshot returns a copy of the registry and cursor.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Bindings:     c.reg.List(),
		CurrentIndex: c.current,
	}
}

// LoadSnapshot replaces the registry and cursor wholesale. An out-of-range
// cursor is reset to 0. On error nothing changes.
func (c *Controller) LoadSnapshot(s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reg.Replace(s.Bindings); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	c.current = s.CurrentIndex
	c.generation++
	c.clampLocked()
	return nil
}

// Status returns names, cursor and next index from one consistent read.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	bindings := c.reg.List()
	st := Status{
		Names:        make([]string, 0, len(bindings)),
		CurrentIndex: c.current,
	}
	for _, b := range bindings {
		st.Names = append(st.Names, b.Name)
	}
	if n := len(bindings); n > 0 {
		st.NextIndex = wrapIndex(c.current+1, n)
	}
	return st
}

// Seed replaces the registry with the first MaxSlots detected windows at
// positions 0..n-1 and resets the cursor. A nil namer uses DefaultName.
// Returns the number of bindings created.
func (c *Controller) Seed(detector WindowDetector, namer Namer) (int, error) {
	if namer == nil {
		namer = DefaultName
	}
	windows, err := detector.DetectWindows()
	if err != nil {
		return 0, fmt.Errorf("seed: detect windows: %w", err)
	}
	if len(windows) > registry.MaxSlots {
		slog.Info("[DEBUG-SWITCH] more windows detected than slots, extra windows ignored",
			"detected", len(windows), "slots", registry.MaxSlots)
		windows = windows[:registry.MaxSlots]
	}

	bindings := make([]registry.CharacterBinding, 0, len(windows))
	for i, w := range windows {
		bindings = append(bindings, registry.CharacterBinding{
			Name:         namer(i, w),
			WindowHandle: w.Handle,
			Position:     i,
		})
		slog.Info("[DEBUG-SWITCH] seeded character", "position", i, "title", w.Title, "name", bindings[i].Name)
	}
	if err := c.LoadSnapshot(Snapshot{Bindings: bindings}); err != nil {
		return 0, err
	}
	return len(bindings), nil
}
