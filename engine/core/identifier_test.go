package core

import "testing"

type owner struct{ name string }

func TestIdentifiersAcquireRelease(t *testing.T) {
	ids := NewIdentifiers[owner](4)
	a := ids.Acquire(&owner{"a"})
	b := ids.Acquire(&owner{"b"})
	if a != 1 || b != 2 {
		t.Fatalf("ids %d, %d; want 1, 2", a, b)
	}
	if got := ids.Get(a); got == nil || got.name != "a" {
		t.Fatalf("Get(%d) = %v", a, got)
	}
	if err := ids.Release(a); err != nil {
		t.Fatal(err)
	}
	if ids.Get(a) != nil {
		t.Error("released id still resolves")
	}
	if c := ids.Acquire(&owner{"c"}); c != a {
		t.Errorf("acquire after release got %d, want reused %d", c, a)
	}
	if ids.Len() != 2 {
		t.Errorf("Len = %d, want 2", ids.Len())
	}
}

func TestIdentifiersReleaseErrors(t *testing.T) {
	ids := NewIdentifiers[owner](1)
	id := ids.Acquire(&owner{})
	tests := []struct {
		name string
		id   uint64
	}{
		{"zero", 0},
		{"out of range", id + 5},
	}
	for _, tt := range tests {
		if err := ids.Release(tt.id); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
	if err := ids.Release(id); err != nil {
		t.Fatal(err)
	}
	if err := ids.Release(id); err == nil {
		t.Error("double release: expected an error")
	}
}

func TestIdentifiersEachOrder(t *testing.T) {
	var ids Identifiers[owner]
	for i := 0; i < 4; i++ {
		ids.Acquire(&owner{})
	}
	_ = ids.Release(2)

	var seen []uint64
	ids.Each(func(id uint64, _ *owner) { seen = append(seen, id) })
	want := []uint64{1, 3, 4}
	if len(seen) != len(want) {
		t.Fatalf("visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("visited %v, want %v", seen, want)
		}
	}
}
