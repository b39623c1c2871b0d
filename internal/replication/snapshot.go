package replication

import (
	"sort"

	"github.com/google/uuid"

	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/world"
)

// Snapshot captures every entity holding the whole replicated set (Named,
// Site, Footprint and RenderMesh), in ascending id order so equal worlds
// encode to equal bytes.
func Snapshot(ws *world.State, worldID uuid.UUID, tick uint64) *FullUpdate {
	ids := ecs.View4(ws.Named, ws.Site, ws.Footprint, ws.Mesh).Slice()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fu := &FullUpdate{WorldID: worldID, Tick: tick, Entries: make([]Entry, 0, len(ids))}
	for _, id := range ids {
		fu.Entries = append(fu.Entries, entryOf(ws, id))
	}
	return fu
}

// replicated reports whether id carries the whole replicated set.
func replicated(ws *world.State, id ecs.EntityID) bool {
	return ws.Named.Has(id) && ws.Site.Has(id) && ws.Footprint.Has(id) && ws.Mesh.Has(id)
}

func entryOf(ws *world.State, id ecs.EntityID) Entry {
	e := Entry{Entity: id}
	if c, ok := ws.Named.Get(id); ok {
		v := *c
		e.Named = &v
	}
	if c, ok := ws.Site.Get(id); ok {
		v := *c
		e.Site = &v
	}
	if c, ok := ws.Footprint.Get(id); ok {
		v := *c
		e.Footprint = &v
	}
	if c, ok := ws.Mesh.Get(id); ok {
		v := *c
		e.Mesh = &v
	}
	return e
}

// replaceAll lists the component_replace messages that bring a peer's copy
// of id up to date.
func replaceAll(ws *world.State, id ecs.EntityID) []Message {
	e := entryOf(ws, id)
	var out []Message
	if e.Named != nil {
		out = append(out, ComponentReplace{Entity: id, Value: *e.Named})
	}
	if e.Site != nil {
		out = append(out, ComponentReplace{Entity: id, Value: *e.Site})
	}
	if e.Footprint != nil {
		out = append(out, ComponentReplace{Entity: id, Value: *e.Footprint})
	}
	if e.Mesh != nil {
		out = append(out, ComponentReplace{Entity: id, Value: *e.Mesh})
	}
	return out
}
