package ecs

import (
	"errors"
	"fmt"
)

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on destroy to invalidate stale refs.
// Index 0 is never handed out, so the zero value is Nil.
type EntityID uint64

const Nil EntityID = 0

var ErrEntityAlive = errors.New("ecs: entity already alive")

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == Nil }

func (id EntityID) String() string {
	return fmt.Sprintf("%d:%d", id.Index(), id.Generation())
}

// EntityPool manages entity allocation with generational indices and a free list.
type EntityPool struct {
	generations []uint32
	alive       []bool
	freeList    []uint32
	nextIndex   uint32
	live        int
}

func NewEntityPool() *EntityPool {
	p := &EntityPool{
		generations: make([]uint32, 1, 1024),
		alive:       make([]bool, 1, 1024),
		freeList:    make([]uint32, 0, 256),
		nextIndex:   1,
	}
	return p
}

func (p *EntityPool) Create() EntityID {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.alive[idx] = true
		p.live++
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.grow(idx)
	p.nextIndex++
	p.alive[idx] = true
	p.live++
	return NewEntityID(idx, p.generations[idx])
}

// CreateWithID makes id alive exactly as given. Used when ids are assigned by
// a remote authority. Skipped indices below id go onto the free list.
func (p *EntityPool) CreateWithID(id EntityID) error {
	idx := id.Index()
	if idx == 0 {
		return fmt.Errorf("create %s: index 0 is reserved", id)
	}
	for p.nextIndex <= idx {
		p.grow(p.nextIndex)
		if p.nextIndex != idx {
			p.freeList = append(p.freeList, p.nextIndex)
		}
		p.nextIndex++
	}
	if p.alive[idx] {
		return fmt.Errorf("create %s: %w", id, ErrEntityAlive)
	}
	for i, f := range p.freeList {
		if f == idx {
			p.freeList = append(p.freeList[:i], p.freeList[i+1:]...)
			break
		}
	}
	p.generations[idx] = id.Generation()
	p.alive[idx] = true
	p.live++
	return nil
}

func (p *EntityPool) grow(idx uint32) {
	for int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 0)
		p.alive = append(p.alive, false)
	}
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if idx == 0 || idx >= p.nextIndex {
		return false
	}
	return p.alive[idx] && p.generations[idx] == id.Generation()
}

// Occupant returns the live id holding slot index, if any.
func (p *EntityPool) Occupant(index uint32) (EntityID, bool) {
	if index == 0 || index >= p.nextIndex || !p.alive[index] {
		return Nil, false
	}
	return NewEntityID(index, p.generations[index]), true
}

// Destroy reports whether id was alive.
func (p *EntityPool) Destroy(id EntityID) bool {
	if !p.Alive(id) {
		return false // already destroyed (stale reference)
	}
	idx := id.Index()
	p.generations[idx]++
	p.alive[idx] = false
	p.freeList = append(p.freeList, idx)
	p.live--
	return true
}

// Len returns the number of live entities.
func (p *EntityPool) Len() int { return p.live }
