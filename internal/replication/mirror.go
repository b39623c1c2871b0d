package replication

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/world"
)

// Mirror applies host messages to a peer's local entity store. It only ever
// writes the replicated components; the peer never runs the economy.
type Mirror struct {
	ws      *world.State
	worldID uuid.UUID
	digest  uint64
	synced  bool
	known   map[ecs.EntityID]struct{}
	log     *zap.Logger
}

func NewMirror(ws *world.State, log *zap.Logger) *Mirror {
	return &Mirror{
		ws:    ws,
		known: make(map[ecs.EntityID]struct{}),
		log:   log,
	}
}

// World returns the mirrored store.
func (m *Mirror) World() *world.State { return m.ws }

// WorldID returns the id of the host world last applied.
func (m *Mirror) WorldID() uuid.UUID { return m.worldID }

// Len returns how many host entities are mirrored.
func (m *Mirror) Len() int { return len(m.known) }

// Apply folds one message into the local store. Applying the same message
// twice leaves the store as applying it once.
func (m *Mirror) Apply(msg Message) error {
	switch msg := msg.(type) {
	case EntityCreate:
		return m.ensure(msg.Entity)
	case EntityDelete:
		m.ws.ECS.Destroy(msg.Entity)
		delete(m.known, msg.Entity)
	case ComponentReplace:
		if err := m.ensure(msg.Entity); err != nil {
			return err
		}
		return m.replace(msg.Entity, msg.Value)
	case *FullUpdate:
		return m.applyFull(msg)
	}
	return nil
}

// ensure makes id alive locally. A different generation holding the same
// slot is a stale entity the host has since replaced.
func (m *Mirror) ensure(id ecs.EntityID) error {
	if m.ws.ECS.Alive(id) {
		m.known[id] = struct{}{}
		return nil
	}
	err := m.ws.ECS.CreateEntityWithID(id)
	if errors.Is(err, ecs.ErrEntityAlive) {
		if stale, ok := m.ws.ECS.Pool().Occupant(id.Index()); ok {
			m.ws.ECS.Destroy(stale)
			delete(m.known, stale)
		}
		err = m.ws.ECS.CreateEntityWithID(id)
	}
	if err != nil {
		return fmt.Errorf("mirror %s: %w", id, err)
	}
	m.known[id] = struct{}{}
	return nil
}

func (m *Mirror) replace(id ecs.EntityID, v any) error {
	switch c := v.(type) {
	case component.Named:
		m.ws.Named.Set(id, &c)
	case component.Site:
		m.ws.Site.Set(id, &c)
	case component.Footprint:
		m.ws.Footprint.Set(id, &c)
	case component.RenderMesh:
		m.ws.Mesh.Set(id, &c)
	default:
		return fmt.Errorf("%T: %w", v, ErrUnsupportedComponent)
	}
	return nil
}

func (m *Mirror) reset() {
	for id := range m.known {
		m.ws.ECS.Destroy(id)
	}
	m.known = make(map[ecs.EntityID]struct{})
	m.synced = false
}

// applyFull upserts every entry. Mirrored entities missing from the
// snapshot lose their replicated components but stay alive: only
// entity_delete removes an entity.
func (m *Mirror) applyFull(fu *FullUpdate) error {
	if fu.WorldID != m.worldID {
		if m.worldID != uuid.Nil {
			m.log.Info("host world changed, resetting mirror",
				zap.Stringer("old", m.worldID),
				zap.Stringer("new", fu.WorldID),
			)
		}
		m.reset()
		m.worldID = fu.WorldID
	}
	if m.synced && fu.Digest == m.digest {
		return nil
	}

	present := make(map[ecs.EntityID]struct{}, len(fu.Entries))
	for i := range fu.Entries {
		e := &fu.Entries[i]
		if err := m.ensure(e.Entity); err != nil {
			return err
		}
		present[e.Entity] = struct{}{}
		setOrRemove(m.ws.Named, e.Entity, e.Named)
		setOrRemove(m.ws.Site, e.Entity, e.Site)
		setOrRemove(m.ws.Footprint, e.Entity, e.Footprint)
		setOrRemove(m.ws.Mesh, e.Entity, e.Mesh)
	}
	for id := range m.known {
		if _, ok := present[id]; ok {
			continue
		}
		m.ws.Named.Remove(id)
		m.ws.Site.Remove(id)
		m.ws.Footprint.Remove(id)
		m.ws.Mesh.Remove(id)
	}
	m.digest = fu.Digest
	m.synced = true
	return nil
}

func setOrRemove[T any](store *ecs.ComponentStore[T], id ecs.EntityID, v *T) {
	if v == nil {
		store.Remove(id)
		return
	}
	c := *v
	store.Set(id, &c)
}
