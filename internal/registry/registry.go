package registry

import (
	"errors"
	"fmt"
	"slices"
)

// MaxSlots is the number of initiative positions a registry can hold.
const MaxSlots = 8

// ErrPositionOutOfRange is returned when a position lies outside [0, MaxSlots).
var ErrPositionOutOfRange = errors.New("position out of range")

// Handle is an opaque OS window identifier. The registry never interprets it.
type Handle uintptr

// CharacterBinding associates a character name and a window with a position.
type CharacterBinding struct {
	Name         string `yaml:"name" json:"name"`
	WindowHandle Handle `yaml:"windowHandle" json:"windowHandle"`
	Position     int    `yaml:"position" json:"position"`
}

// Registry is the ordered set of character bindings, sorted by Position.
//
// Registry is not safe for concurrent use. The switcher owns it and guards
// every access with its own lock.
type Registry struct {
	bindings []CharacterBinding
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Add inserts a binding. A binding already at the same position is
// overwritten (last write wins).
func (r *Registry) Add(name string, handle Handle, position int) error {
	if err := checkPosition(position); err != nil {
		return err
	}
	r.bindings = slices.DeleteFunc(r.bindings, func(b CharacterBinding) bool {
		return b.Position == position
	})
	r.bindings = append(r.bindings, CharacterBinding{Name: name, WindowHandle: handle, Position: position})
	r.sort()
	return nil
}

// Remove drops every binding at position.
func (r *Registry) Remove(position int) {
	r.bindings = slices.DeleteFunc(r.bindings, func(b CharacterBinding) bool {
		return b.Position == position
	})
}

// Rename updates the name at position. No-op when the position is empty.
func (r *Registry) Rename(position int, name string) {
	for i := range r.bindings {
		if r.bindings[i].Position == position {
			r.bindings[i].Name = name
			return
		}
	}
}

// List returns a copy of the bindings in position order.
func (r *Registry) List() []CharacterBinding {
	return slices.Clone(r.bindings)
}

// Count returns the number of bindings.
func (r *Registry) Count() int {
	return len(r.bindings)
}

// At returns the binding at sequence index (not position).
func (r *Registry) At(index int) (CharacterBinding, bool) {
	if index < 0 || index >= len(r.bindings) {
		return CharacterBinding{}, false
	}
	return r.bindings[index], true
}

// Replace swaps the whole binding set. Input order does not matter; later
// entries win on duplicate positions. On error the registry is unchanged.
func (r *Registry) Replace(bindings []CharacterBinding) error {
	next := make([]CharacterBinding, 0, len(bindings))
	for _, b := range bindings {
		if err := checkPosition(b.Position); err != nil {
			return fmt.Errorf("binding %q: %w", b.Name, err)
		}
		next = slices.DeleteFunc(next, func(existing CharacterBinding) bool {
			return existing.Position == b.Position
		})
		next = append(next, b)
	}
	r.bindings = next
	r.sort()
	return nil
}

func (r *Registry) sort() {
	slices.SortStableFunc(r.bindings, func(a, b CharacterBinding) int {
		return a.Position - b.Position
	})
}

func checkPosition(position int) error {
	if position < 0 || position >= MaxSlots {
		return fmt.Errorf("%w: %d (want 0..%d)", ErrPositionOutOfRange, position, MaxSlots-1)
	}
	return nil
}
