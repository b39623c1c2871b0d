package ecs

import "fmt"

// ComponentStore is a sparse set of *T keyed by entity. Iteration order is
// insertion order, perturbed only by swap-removal, so it is deterministic for a
// given sequence of operations.
type ComponentStore[T any] struct {
	index map[EntityID]int
	ids   []EntityID
	data  []*T
}

func NewComponentStore[T any]() *ComponentStore[T] {
	return &ComponentStore[T]{
		index: make(map[EntityID]int, 256),
		ids:   make([]EntityID, 0, 256),
		data:  make([]*T, 0, 256),
	}
}

// Set attaches c to id, replacing any existing value.
func (s *ComponentStore[T]) Set(id EntityID, c *T) {
	if i, ok := s.index[id]; ok {
		s.data[i] = c
		return
	}
	s.index[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.data = append(s.data, c)
}

func (s *ComponentStore[T]) Get(id EntityID) (*T, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.data[i], true
}

// MustGet panics when id has no T. A missing component here is a broken
// invariant in the caller, not a runtime condition.
func (s *ComponentStore[T]) MustGet(id EntityID) *T {
	c, ok := s.Get(id)
	if !ok {
		var zero T
		panic(fmt.Sprintf("ecs: entity %s has no %T component", id, zero))
	}
	return c
}

func (s *ComponentStore[T]) Remove(id EntityID) {
	i, ok := s.index[id]
	if !ok {
		return
	}
	last := len(s.ids) - 1
	if i != last {
		s.ids[i] = s.ids[last]
		s.data[i] = s.data[last]
		s.index[s.ids[i]] = i
	}
	s.ids[last] = Nil
	s.data[last] = nil
	s.ids = s.ids[:last]
	s.data = s.data[:last]
	delete(s.index, id)
}

func (s *ComponentStore[T]) Has(id EntityID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *ComponentStore[T]) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the current entity set. Later mutation of the store
// does not affect the returned slice.
func (s *ComponentStore[T]) IDs() []EntityID {
	out := make([]EntityID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Each visits every entity present when the call started. Entities removed
// by fn before they are reached are skipped.
func (s *ComponentStore[T]) Each(fn func(EntityID, *T)) {
	for _, id := range s.IDs() {
		if c, ok := s.Get(id); ok {
			fn(id, c)
		}
	}
}
