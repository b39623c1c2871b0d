package ecs

import "reflect"

// Store is the type-erased view of a ComponentStore the Registry works with.
type Store interface {
	Remove(id EntityID)
	Has(id EntityID) bool
}

type namedStore struct {
	name  string
	store Store
}

// Registry tracks every component store of a World so an entity can be
// cleared from all of them on destroy, or inspected by component name.
type Registry struct {
	stores []namedStore
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]namedStore, 0, 24),
	}
}

// Register adds a store under name. Names are for diagnostics only and are
// not required to be unique.
func (r *Registry) Register(name string, store Store) {
	r.stores = append(r.stores, namedStore{name: name, store: store})
}

// RemoveAll clears the given entity from every registered component store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.store.Remove(id)
	}
}

// Describe lists the names of the stores holding id, in registration order.
func (r *Registry) Describe(id EntityID) []string {
	var names []string
	for _, s := range r.stores {
		if s.store.Has(id) {
			names = append(names, s.name)
		}
	}
	return names
}

// NewStore creates a component store for T and registers it under T's type
// name.
func NewStore[T any](r *Registry) *ComponentStore[T] {
	s := NewComponentStore[T]()
	r.Register(reflect.TypeOf((*T)(nil)).Elem().Name(), s)
	return s
}
