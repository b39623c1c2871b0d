package world

import (
	"fmt"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/data"
	"github.com/tradewind/server/internal/geom"
)

// LoadCatalog creates the commodity and blueprint prototype entities. These
// are created once at startup and never destroyed.
func (s *State) LoadCatalog(commodities *data.CommodityTable, blueprints *data.BlueprintTable) error {
	for _, def := range commodities.All() {
		id := s.ECS.CreateEntity()
		s.Named.Set(id, &component.Named{Name: def.Name})
		s.Price.Set(id, &component.Price{Value: def.Price})
		s.Commodity.Set(id, &component.Commodity{})
		s.commodities = append(s.commodities, id)
		s.commodityName[def.Name] = id
	}

	for _, def := range blueprints.All() {
		id, err := s.addBlueprint(def)
		if err != nil {
			return fmt.Errorf("blueprint %q: %w", def.Name, err)
		}
		s.blueprints = append(s.blueprints, id)
		s.blueprintName[def.Name] = id
		if def.Dwelling {
			s.dwelling = id
		}
	}
	return nil
}

func (s *State) resolveCounts(in map[string]int) (map[ecs.EntityID]int, error) {
	out := make(map[ecs.EntityID]int, len(in))
	for name, q := range in {
		c, ok := s.commodityName[name]
		if !ok {
			return nil, fmt.Errorf("unknown commodity %q", name)
		}
		out[c] = q
	}
	return out, nil
}

func (s *State) addBlueprint(def *data.BlueprintDef) (ecs.EntityID, error) {
	id := s.ECS.CreateEntity()
	s.Blueprint.Set(id, &component.Blueprint{Dwelling: def.Dwelling})
	s.Named.Set(id, &component.Named{Name: def.Name})
	if def.Description != "" {
		s.Described.Set(id, &component.Described{Text: def.Description})
	}
	s.Price.Set(id, &component.Price{Value: def.Price})
	mesh := def.Mesh
	if mesh == "" {
		mesh = def.Name
	}
	s.Mesh.Set(id, &component.RenderMesh{Mesh: mesh})
	if def.Footprint[0] > 0 && def.Footprint[1] > 0 {
		s.Footprint.Set(id, &component.Footprint{Dimensions: geom.C(def.Footprint[0], def.Footprint[1])})
	}
	if def.Pickable {
		s.Pickable.Set(id, &component.Pickable{})
	}
	if def.Dwelling {
		s.Dweller.Set(id, &component.Dweller{})
	}

	// Anything that produces or travels must be able to trade.
	trades := def.Trader || def.Merchant || def.Generator != nil || def.Producer != nil
	if trades {
		s.Trader.Set(id, &component.Trader{FamilyID: component.NoFamily, Bid: map[ecs.EntityID]float64{}})
		s.Inventory.Set(id, &component.Inventory{Stock: map[ecs.EntityID]int{}})
	}
	if def.Merchant {
		s.Merchant.Set(id, &component.Merchant{})
	}
	if g := def.Generator; g != nil {
		out, ok := s.commodityName[g.Output]
		if !ok {
			return ecs.Nil, fmt.Errorf("unknown commodity %q", g.Output)
		}
		s.Generator.Set(id, &component.Generator{Output: out, Rate: g.Rate})
	}
	if p := def.Producer; p != nil {
		in, err := s.resolveCounts(p.Inputs)
		if err != nil {
			return ecs.Nil, err
		}
		out, err := s.resolveCounts(p.Outputs)
		if err != nil {
			return ecs.Nil, err
		}
		s.Producer.Set(id, &component.Producer{Inputs: in, Outputs: out, Rate: p.Rate})
	}
	if len(def.Demand) > 0 {
		rate := make(map[ecs.EntityID]float64, len(def.Demand))
		for name, r := range def.Demand {
			c, ok := s.commodityName[name]
			if !ok {
				return ecs.Nil, fmt.Errorf("unknown commodity %q", name)
			}
			rate[c] = r
		}
		s.Demander.Set(id, &component.Demander{Rate: rate})
	}
	if m := def.Market; m != nil {
		s.Market.Set(id, &component.Market{Radius: m.Radius})
	}
	return id, nil
}

// Commodities returns the commodity entities in catalogue order.
func (s *State) Commodities() []ecs.EntityID { return s.commodities }

func (s *State) CommodityByName(name string) (ecs.EntityID, bool) {
	id, ok := s.commodityName[name]
	return id, ok
}

// BasePrice returns the reference price of commodity c.
func (s *State) BasePrice(c ecs.EntityID) float64 {
	return s.Price.MustGet(c).Value
}

// Blueprints returns the blueprint prototypes in catalogue order.
func (s *State) Blueprints() []ecs.EntityID { return s.blueprints }

func (s *State) BlueprintByName(name string) (ecs.EntityID, bool) {
	id, ok := s.blueprintName[name]
	return id, ok
}

// DwellingBlueprint returns the prototype used by population growth.
func (s *State) DwellingBlueprint() (ecs.EntityID, bool) {
	return s.dwelling, s.dwelling != ecs.Nil
}

// NameOf returns the display name of id, or its numeric form.
func (s *State) NameOf(id ecs.EntityID) string {
	if n, ok := s.Named.Get(id); ok {
		return n.Name
	}
	return id.String()
}
