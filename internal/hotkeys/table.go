package hotkeys

import (
	"fmt"
	"slices"
	"strings"

	"charswitch/internal/registry"
)

// PositionSlots is the number of position hotkeys, one per registry slot.
const PositionSlots = registry.MaxSlots

// Unbound disables an action when used as its key specification.
const Unbound = "none"

// Default key specifications.
var (
	DefaultPositionKeys     = []string{"f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8"}
	DefaultNextKey          = "`"
	DefaultPreviousKey      = `\`
	DefaultToggleOverlayKey = "ctrl+alt+o"
	DefaultQuitKey          = "ctrl+alt+q"
)

// ActionKind identifies a logical hotkey action.
type ActionKind int

const (
	ActionSlot ActionKind = iota
	ActionNext
	ActionPrevious
	ActionToggleOverlay
	ActionQuit
)

// Action is a logical action. Slot is only meaningful for ActionSlot.
type Action struct {
	Kind ActionKind
	Slot int
}

// SlotAction returns the position-slot action for slot i.
func SlotAction(i int) Action { return Action{Kind: ActionSlot, Slot: i} }

var (
	NextAction          = Action{Kind: ActionNext}
	PreviousAction      = Action{Kind: ActionPrevious}
	ToggleOverlayAction = Action{Kind: ActionToggleOverlay}
	QuitAction          = Action{Kind: ActionQuit}
)

func (a Action) String() string {
	switch a.Kind {
	case ActionSlot:
		return fmt.Sprintf("slot-%d", a.Slot)
	case ActionNext:
		return "next"
	case ActionPrevious:
		return "previous"
	case ActionToggleOverlay:
		return "toggle-overlay"
	case ActionQuit:
		return "quit"
	default:
		return fmt.Sprintf("action(%d)", int(a.Kind))
	}
}

// TableSnapshot is the persisted action -> key specification table.
type TableSnapshot struct {
	PositionKeys     []string `yaml:"positionKeys" json:"positionKeys"`
	NextKey          string   `yaml:"nextKey" json:"nextKey"`
	PreviousKey      string   `yaml:"previousKey" json:"previousKey"`
	ToggleOverlayKey string   `yaml:"toggleOverlayKey" json:"toggleOverlayKey"`
	QuitKey          string   `yaml:"quitKey" json:"quitKey"`
}

// DefaultTable returns the default key table.
func DefaultTable() TableSnapshot {
	return TableSnapshot{
		PositionKeys:     slices.Clone(DefaultPositionKeys),
		NextKey:          DefaultNextKey,
		PreviousKey:      DefaultPreviousKey,
		ToggleOverlayKey: DefaultToggleOverlayKey,
		QuitKey:          DefaultQuitKey,
	}
}

// WithDefaults returns a copy where missing entries take their default and
// PositionKeys has exactly PositionSlots entries.
func (t TableSnapshot) WithDefaults() TableSnapshot {
	out := t.Clone()
	if len(out.PositionKeys) > PositionSlots {
		out.PositionKeys = out.PositionKeys[:PositionSlots]
	}
	for i := range PositionSlots {
		if i >= len(out.PositionKeys) {
			out.PositionKeys = append(out.PositionKeys, DefaultPositionKeys[i])
		} else if strings.TrimSpace(out.PositionKeys[i]) == "" {
			out.PositionKeys[i] = DefaultPositionKeys[i]
		}
	}
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&out.NextKey, DefaultNextKey)
	fill(&out.PreviousKey, DefaultPreviousKey)
	fill(&out.ToggleOverlayKey, DefaultToggleOverlayKey)
	fill(&out.QuitKey, DefaultQuitKey)
	return out
}

// Clone returns a deep copy.
func (t TableSnapshot) Clone() TableSnapshot {
	t.PositionKeys = slices.Clone(t.PositionKeys)
	return t
}

type tableEntry struct {
	action Action
	spec   string
}

// entries lists every action with its key in registration order.
func (t TableSnapshot) entries() []tableEntry {
	out := make([]tableEntry, 0, len(t.PositionKeys)+4)
	for i, spec := range t.PositionKeys {
		out = append(out, tableEntry{action: SlotAction(i), spec: spec})
	}
	return append(out,
		tableEntry{action: NextAction, spec: t.NextKey},
		tableEntry{action: PreviousAction, spec: t.PreviousKey},
		tableEntry{action: ToggleOverlayAction, spec: t.ToggleOverlayKey},
		tableEntry{action: QuitAction, spec: t.QuitKey},
	)
}

// IsUnbound reports whether spec disables its action.
func IsUnbound(spec string) bool {
	trimmed := strings.TrimSpace(spec)
	return trimmed == "" || strings.EqualFold(trimmed, Unbound)
}

// canonicalSpec returns the normalized chord, or the lowercased spec when it
// does not parse.
func canonicalSpec(spec string) string {
	if b, err := ParseBinding(spec); err == nil {
		return b.Normalized()
	}
	return strings.ToLower(strings.TrimSpace(spec))
}

// Collisions returns key specs (normalized) used by more than one action.
func (t TableSnapshot) Collisions() map[string][]Action {
	byKey := map[string][]Action{}
	for _, e := range t.entries() {
		if IsUnbound(e.spec) {
			continue
		}
		key := canonicalSpec(e.spec)
		byKey[key] = append(byKey[key], e.action)
	}
	for key, actions := range byKey {
		if len(actions) < 2 {
			delete(byKey, key)
		}
	}
	return byKey
}

// Equal reports whether t and o bind the same specs to every action.
func (t TableSnapshot) Equal(o TableSnapshot) bool {
	return slices.Equal(t.PositionKeys, o.PositionKeys) &&
		t.NextKey == o.NextKey &&
		t.PreviousKey == o.PreviousKey &&
		t.ToggleOverlayKey == o.ToggleOverlayKey &&
		t.QuitKey == o.QuitKey
}
