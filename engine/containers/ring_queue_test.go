package containers

import (
	"errors"
	"testing"
)

func TestRingQueue(t *testing.T) {
	q := NewRingQueue[int](3)
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("dequeue on empty: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue on full: %v", err)
	}
	if v, _ := q.Peek(); v != 1 {
		t.Errorf("peek %d, want 1", v)
	}

	// Wrap the write index around.
	v, _ := q.Dequeue()
	if v != 1 {
		t.Errorf("dequeue %d, want 1", v)
	}
	if err := q.Enqueue(4); err != nil {
		t.Fatal(err)
	}
	var got []int
	for !q.IsEmpty() {
		v, err := q.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, v)
	}
	want := []int{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
	if q.Len() != 0 || q.IsFull() {
		t.Errorf("len %d after drain", q.Len())
	}
}
