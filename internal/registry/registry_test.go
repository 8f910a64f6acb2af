package registry

import (
	"errors"
	"slices"
	"testing"
)

func positions(bindings []CharacterBinding) []int {
	out := make([]int, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, b.Position)
	}
	return out
}

func TestAddKeepsPositionOrder(t *testing.T) {
	r := New()
	for _, tc := range []struct {
		name     string
		handle   Handle
		position int
	}{
		{"Cra", 30, 3},
		{"Iop", 10, 0},
		{"Eni", 20, 2},
	} {
		if err := r.Add(tc.name, tc.handle, tc.position); err != nil {
			t.Fatalf("Add(%q) error = %v", tc.name, err)
		}
	}

	if got, want := positions(r.List()), []int{0, 2, 3}; !slices.Equal(got, want) {
		t.Fatalf("positions = %v, want %v", got, want)
	}
	if r.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", r.Count())
	}
}

func TestAddOverwritesDuplicatePosition(t *testing.T) {
	r := New()
	if err := r.Add("Old", 1, 4); err != nil {
		t.Fatal(err)
	}
	if err := r.Add("New", 2, 4); err != nil {
		t.Fatal(err)
	}

	list := r.List()
	if len(list) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(list))
	}
	if list[0].Name != "New" || list[0].WindowHandle != 2 {
		t.Fatalf("binding = %+v, want New/2", list[0])
	}
}

func TestAddRejectsPositionOutsideSlots(t *testing.T) {
	r := New()
	for _, pos := range []int{-1, MaxSlots, 42} {
		if err := r.Add("x", 1, pos); !errors.Is(err, ErrPositionOutOfRange) {
			t.Fatalf("Add(pos=%d) error = %v, want ErrPositionOutOfRange", pos, err)
		}
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", r.Count())
	}
}

func TestRemoveAndRename(t *testing.T) {
	r := New()
	_ = r.Add("A", 1, 0)
	_ = r.Add("B", 2, 1)

	r.Rename(1, "Bee")
	r.Rename(7, "ghost")
	r.Remove(0)
	r.Remove(5)

	list := r.List()
	if len(list) != 1 || list[0].Name != "Bee" || list[0].Position != 1 {
		t.Fatalf("List() = %+v, want [Bee@1]", list)
	}
}

func TestListReturnsCopy(t *testing.T) {
	r := New()
	_ = r.Add("A", 1, 0)
	list := r.List()
	list[0].Name = "mutated"
	if b, _ := r.At(0); b.Name != "A" {
		t.Fatalf("registry mutated through List() copy: %+v", b)
	}
}

func TestAt(t *testing.T) {
	r := New()
	_ = r.Add("A", 1, 5)
	if b, ok := r.At(0); !ok || b.Position != 5 {
		t.Fatalf("At(0) = %+v, %v", b, ok)
	}
	if _, ok := r.At(1); ok {
		t.Fatal("At(1) ok = true on single binding")
	}
	if _, ok := r.At(-1); ok {
		t.Fatal("At(-1) ok = true")
	}
}

func TestReplace(t *testing.T) {
	r := New()
	_ = r.Add("stale", 9, 0)

	err := r.Replace([]CharacterBinding{
		{Name: "C", WindowHandle: 3, Position: 2},
		{Name: "A", WindowHandle: 1, Position: 0},
		{Name: "C2", WindowHandle: 4, Position: 2},
	})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	list := r.List()
	if got, want := positions(list), []int{0, 2}; !slices.Equal(got, want) {
		t.Fatalf("positions = %v, want %v", got, want)
	}
	if list[1].Name != "C2" {
		t.Fatalf("duplicate position kept %q, want C2", list[1].Name)
	}

	if err := r.Replace([]CharacterBinding{{Name: "bad", Position: 8}}); !errors.Is(err, ErrPositionOutOfRange) {
		t.Fatalf("Replace(bad) error = %v, want ErrPositionOutOfRange", err)
	}
	if r.Count() != 2 {
		t.Fatalf("failed Replace changed registry: %+v", r.List())
	}
}
