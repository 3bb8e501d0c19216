package core

import "fmt"

// Identifiers hands out small integer ids for owners, reusing freed slots.
// Id 0 is never handed out so the zero value can mean "invalid".
type Identifiers[T any] struct {
	owners []*T
}

func NewIdentifiers[T any](capacity int) *Identifiers[T] {
	return &Identifiers[T]{owners: make([]*T, 1, capacity+1)}
}

// Acquire stores owner and returns its id.
func (ids *Identifiers[T]) Acquire(owner *T) uint64 {
	if len(ids.owners) == 0 {
		ids.owners = make([]*T, 1)
	}
	for i := 1; i < len(ids.owners); i++ {
		// Existing free spot. Take it.
		if ids.owners[i] == nil {
			ids.owners[i] = owner
			return uint64(i)
		}
	}
	// No free slots, push a new one.
	ids.owners = append(ids.owners, owner)
	return uint64(len(ids.owners) - 1)
}

// Get returns the owner registered under id, or nil.
func (ids *Identifiers[T]) Get(id uint64) *T {
	if id == 0 || id >= uint64(len(ids.owners)) {
		return nil
	}
	return ids.owners[id]
}

// Release frees the slot so a later Acquire may reuse it.
func (ids *Identifiers[T]) Release(id uint64) error {
	if id == 0 || id >= uint64(len(ids.owners)) {
		return fmt.Errorf("identifier release: id '%d' out of range (max=%d). Nothing was done", id, len(ids.owners)-1)
	}
	if ids.owners[id] == nil {
		return fmt.Errorf("identifier release: id '%d' is not in use", id)
	}
	ids.owners[id] = nil
	return nil
}

// Len returns the number of live ids.
func (ids *Identifiers[T]) Len() int {
	n := 0
	for i := 1; i < len(ids.owners); i++ {
		if ids.owners[i] != nil {
			n++
		}
	}
	return n
}

// Each visits every live id in ascending order.
func (ids *Identifiers[T]) Each(fn func(id uint64, owner *T)) {
	for i := 1; i < len(ids.owners); i++ {
		if ids.owners[i] != nil {
			fn(uint64(i), ids.owners[i])
		}
	}
}
