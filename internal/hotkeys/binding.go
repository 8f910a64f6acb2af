package hotkeys

// Modifier is a modifier bitmask. Values follow the Win32 MOD_* constants and
// are translated for other platforms by their hook implementation.
type Modifier uint32

// VKey is a platform-neutral key code. Values follow Win32 virtual-key codes.
type VKey uint32

// Binding describes a parsed key specification.
// Construct only via ParseBinding to guarantee invariant consistency.
type Binding struct {
	modifiers  Modifier
	key        VKey
	normalized string
}

// Modifiers returns the modifier bitmask.
func (b Binding) Modifiers() Modifier { return b.modifiers }

// Has reports whether mod is part of the binding.
func (b Binding) Has(mod Modifier) bool { return b.modifiers&mod != 0 }

// Key returns the key code.
func (b Binding) Key() VKey { return b.key }

// Normalized returns the canonical human-readable binding string. Two specs
// that describe the same chord normalize equally.
func (b Binding) Normalized() string { return b.normalized }
