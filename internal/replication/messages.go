package replication

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
)

// Kind is the leading byte of every message.
type Kind byte

const (
	KindHello            Kind = 1
	KindChat             Kind = 2
	KindEntityCreate     Kind = 3
	KindEntityDelete     Kind = 4
	KindComponentReplace Kind = 5
	KindFullUpdate       Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindChat:
		return "chat"
	case KindEntityCreate:
		return "entity_create"
	case KindEntityDelete:
		return "entity_delete"
	case KindComponentReplace:
		return "component_replace"
	case KindFullUpdate:
		return "full_update"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Message is implemented by every wire message.
type Message interface {
	Kind() Kind
}

// Hello is a peer's join request.
type Hello struct {
	FamilyID int32
	Nickname string
}

type Chat struct {
	From    string
	Content string
}

type EntityCreate struct {
	Entity ecs.EntityID
}

type EntityDelete struct {
	Entity ecs.EntityID
}

// ComponentReplace carries one replicated component by value: a
// component.Named, component.Site, component.Footprint or
// component.RenderMesh.
type ComponentReplace struct {
	Entity ecs.EntityID
	Value  any
}

// FullUpdate is a whole-state snapshot of the replicated components.
// Digest covers the entries only, so two snapshots of an unchanged world
// share a digest whatever their tick.
type FullUpdate struct {
	WorldID uuid.UUID
	Tick    uint64
	Digest  uint64
	Entries []Entry
}

// Entry holds the replicated components of one entity. Absent components
// are nil.
type Entry struct {
	Entity    ecs.EntityID
	Named     *component.Named
	Site      *component.Site
	Footprint *component.Footprint
	Mesh      *component.RenderMesh
}

func (Hello) Kind() Kind            { return KindHello }
func (Chat) Kind() Kind             { return KindChat }
func (EntityCreate) Kind() Kind     { return KindEntityCreate }
func (EntityDelete) Kind() Kind     { return KindEntityDelete }
func (ComponentReplace) Kind() Kind { return KindComponentReplace }
func (*FullUpdate) Kind() Kind      { return KindFullUpdate }
