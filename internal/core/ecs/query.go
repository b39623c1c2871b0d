package ecs

import "iter"

// smallest returns the shortest id set to drive a join. The returned slice
// aliases store internals and must be consumed before any mutation.
func smallest(sets ...[]EntityID) []EntityID {
	best := sets[0]
	for _, s := range sets[1:] {
		if len(s) < len(best) {
			best = s
		}
	}
	return best
}

// Each2 iterates over entities that have both component A and B.
// The candidate set is fixed when the call starts; entities that lose either
// component during iteration are skipped.
func Each2[A, B any](sa *ComponentStore[A], sb *ComponentStore[B], fn func(EntityID, *A, *B)) {
	for _, id := range View2(sa, sb).ids() {
		a, ok := sa.Get(id)
		if !ok {
			continue
		}
		b, ok := sb.Get(id)
		if !ok {
			continue
		}
		fn(id, a, b)
	}
}

// Each3 iterates over entities that have components A, B, and C.
func Each3[A, B, C any](sa *ComponentStore[A], sb *ComponentStore[B], sc *ComponentStore[C], fn func(EntityID, *A, *B, *C)) {
	for _, id := range View3(sa, sb, sc).ids() {
		a, ok := sa.Get(id)
		if !ok {
			continue
		}
		b, ok := sb.Get(id)
		if !ok {
			continue
		}
		c, ok := sc.Get(id)
		if !ok {
			continue
		}
		fn(id, a, b, c)
	}
}

// Each4 iterates over entities that have components A, B, C, and D.
func Each4[A, B, C, D any](sa *ComponentStore[A], sb *ComponentStore[B], sc *ComponentStore[C], sd *ComponentStore[D], fn func(EntityID, *A, *B, *C, *D)) {
	for _, id := range View4(sa, sb, sc, sd).ids() {
		a, ok := sa.Get(id)
		if !ok {
			continue
		}
		b, ok := sb.Get(id)
		if !ok {
			continue
		}
		c, ok := sc.Get(id)
		if !ok {
			continue
		}
		d, ok := sd.Get(id)
		if !ok {
			continue
		}
		fn(id, a, b, c, d)
	}
}

// View is a restartable sequence of entities owning every component of a
// query. Each traversal snapshots the matching set when it begins.
type View struct {
	match func(EntityID) bool
	drive func() []EntityID
}

func (v View) ids() []EntityID {
	src := v.drive()
	out := make([]EntityID, 0, len(src))
	for _, id := range src {
		if v.match(id) {
			out = append(out, id)
		}
	}
	return out
}

// All yields the matching entities.
func (v View) All() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for _, id := range v.ids() {
			if !v.match(id) {
				continue
			}
			if !yield(id) {
				return
			}
		}
	}
}

// Slice materializes the matching entities.
func (v View) Slice() []EntityID { return v.ids() }

func View2[A, B any](sa *ComponentStore[A], sb *ComponentStore[B]) View {
	return View{
		match: func(id EntityID) bool { return sa.Has(id) && sb.Has(id) },
		drive: func() []EntityID {
			return smallest(sa.ids, sb.ids)
		},
	}
}

func View3[A, B, C any](sa *ComponentStore[A], sb *ComponentStore[B], sc *ComponentStore[C]) View {
	return View{
		match: func(id EntityID) bool { return sa.Has(id) && sb.Has(id) && sc.Has(id) },
		drive: func() []EntityID {
			return smallest(sa.ids, sb.ids, sc.ids)
		},
	}
}

func View4[A, B, C, D any](sa *ComponentStore[A], sb *ComponentStore[B], sc *ComponentStore[C], sd *ComponentStore[D]) View {
	return View{
		match: func(id EntityID) bool { return sa.Has(id) && sb.Has(id) && sc.Has(id) && sd.Has(id) },
		drive: func() []EntityID {
			return smallest(sa.ids, sb.ids, sc.ids, sd.ids)
		},
	}
}
