package world

import (
	"fmt"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
)

func cloneCounts(m map[ecs.EntityID]int) map[ecs.EntityID]int {
	out := make(map[ecs.EntityID]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRates(m map[ecs.EntityID]float64) map[ecs.EntityID]float64 {
	out := make(map[ecs.EntityID]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// instantiate copies the fixed allow-list of components from proto onto id.
// Maps are deep-copied so instances never share state with their prototype.
func (s *State) instantiate(id, proto ecs.EntityID, owner int) {
	if n, ok := s.Named.Get(proto); ok {
		s.Named.Set(id, &component.Named{Name: fmt.Sprintf("%s %d", n.Name, id.Index())})
	}
	if d, ok := s.Described.Get(proto); ok {
		c := *d
		s.Described.Set(id, &c)
	}
	if m, ok := s.Mesh.Get(proto); ok {
		c := *m
		s.Mesh.Set(id, &c)
	}
	if f, ok := s.Footprint.Get(proto); ok {
		c := *f
		s.Footprint.Set(id, &c)
	}
	if p, ok := s.Price.Get(proto); ok {
		c := *p
		s.Price.Set(id, &c)
	}
	if _, ok := s.Pickable.Get(proto); ok {
		s.Pickable.Set(id, &component.Pickable{})
	}
	if _, ok := s.Dweller.Get(proto); ok {
		s.Dweller.Set(id, &component.Dweller{})
	}
	if inv, ok := s.Inventory.Get(proto); ok {
		s.Inventory.Set(id, &component.Inventory{Stock: cloneCounts(inv.Stock)})
	}
	if d, ok := s.Demander.Get(proto); ok {
		s.Demander.Set(id, &component.Demander{Rate: cloneRates(d.Rate)})
	}
	if t, ok := s.Trader.Get(proto); ok {
		s.Trader.Set(id, &component.Trader{FamilyID: owner, Bid: cloneRates(t.Bid), Balance: t.Balance})
	}
	if g, ok := s.Generator.Get(proto); ok {
		c := *g
		c.Active, c.Progress = false, 0
		s.Generator.Set(id, &c)
	}
	if p, ok := s.Producer.Get(proto); ok {
		s.Producer.Set(id, &component.Producer{
			Inputs:  cloneCounts(p.Inputs),
			Outputs: cloneCounts(p.Outputs),
			Rate:    p.Rate,
		})
	}
	if m, ok := s.Market.Get(proto); ok {
		s.Market.Set(id, &component.Market{Radius: m.Radius})
	}
	if _, ok := s.Merchant.Get(proto); ok {
		s.Merchant.Set(id, &component.Merchant{})
	}
	if owner != component.NoFamily {
		s.Owned.Set(id, &component.Owned{FamilyIx: owner})
	}
}
