package world

import (
	"math/rand"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/core/event"
	"github.com/tradewind/server/internal/geom"
)

// Options sizes the map and seeds the world's random source.
type Options struct {
	MapWidth  int32
	MapHeight int32
	Seed      int64
}

// State is the simulation's entity store plus the auxiliary state kept
// beside it: the spatial grid, the family ledger and the catalogue indices.
// Accessed only from the game loop goroutine, so nothing here locks.
type State struct {
	ECS *ecs.World
	Bus *event.Bus

	Named     *ecs.ComponentStore[component.Named]
	Described *ecs.ComponentStore[component.Described]
	Mesh      *ecs.ComponentStore[component.RenderMesh]
	Footprint *ecs.ComponentStore[component.Footprint]
	Site      *ecs.ComponentStore[component.Site]
	Price     *ecs.ComponentStore[component.Price]
	Inventory *ecs.ComponentStore[component.Inventory]
	Demander  *ecs.ComponentStore[component.Demander]
	Dweller   *ecs.ComponentStore[component.Dweller]
	Trader    *ecs.ComponentStore[component.Trader]
	Generator *ecs.ComponentStore[component.Generator]
	Producer  *ecs.ComponentStore[component.Producer]
	Market    *ecs.ComponentStore[component.Market]
	Merchant  *ecs.ComponentStore[component.Merchant]
	Pickable  *ecs.ComponentStore[component.Pickable]
	Owned     *ecs.ComponentStore[component.Owned]
	Commodity *ecs.ComponentStore[component.Commodity]
	Blueprint *ecs.ComponentStore[component.Blueprint]

	Grid     *Grid
	Families []component.Family

	// Rand is the single random source for placement sampling. Seeded once
	// here so a fixed seed reproduces a run.
	Rand *rand.Rand

	commodities   []ecs.EntityID
	commodityName map[string]ecs.EntityID
	blueprints    []ecs.EntityID
	blueprintName map[string]ecs.EntityID
	dwelling      ecs.EntityID
}

func NewState(opts Options, bus *event.Bus) *State {
	if bus == nil {
		bus = event.NewBus()
	}
	w := ecs.NewWorld()
	r := w.Registry()
	return &State{
		ECS:       w,
		Bus:       bus,
		Named:     ecs.NewStore[component.Named](r),
		Described: ecs.NewStore[component.Described](r),
		Mesh:      ecs.NewStore[component.RenderMesh](r),
		Footprint: ecs.NewStore[component.Footprint](r),
		Site:      ecs.NewStore[component.Site](r),
		Price:     ecs.NewStore[component.Price](r),
		Inventory: ecs.NewStore[component.Inventory](r),
		Demander:  ecs.NewStore[component.Demander](r),
		Dweller:   ecs.NewStore[component.Dweller](r),
		Trader:    ecs.NewStore[component.Trader](r),
		Generator: ecs.NewStore[component.Generator](r),
		Producer:  ecs.NewStore[component.Producer](r),
		Market:    ecs.NewStore[component.Market](r),
		Merchant:  ecs.NewStore[component.Merchant](r),
		Pickable:  ecs.NewStore[component.Pickable](r),
		Owned:     ecs.NewStore[component.Owned](r),
		Commodity: ecs.NewStore[component.Commodity](r),
		Blueprint: ecs.NewStore[component.Blueprint](r),
		Grid:      NewGrid(opts.MapWidth, opts.MapHeight),
		Rand:      rand.New(rand.NewSource(opts.Seed)),

		commodityName: make(map[string]ecs.EntityID),
		blueprintName: make(map[string]ecs.EntityID),
	}
}

// AddFamily registers a faction and returns its index.
func (s *State) AddFamily(name string, balance float64) int {
	s.Families = append(s.Families, component.Family{Name: name, Balance: balance})
	return len(s.Families) - 1
}

// Family returns the family at ix, or nil for NoFamily and unknown indices.
func (s *State) Family(ix int) *component.Family {
	if ix < 0 || ix >= len(s.Families) {
		return nil
	}
	return &s.Families[ix]
}

// Destroy removes an entity and everything that refers to it: grid cells,
// market roster entries and, for a market, its commons trader.
func (s *State) Destroy(id ecs.EntityID) bool {
	if !s.ECS.Alive(id) {
		return false
	}
	s.Grid.Release(id)
	if m, ok := s.Market.Get(id); ok && m.Commons != id {
		s.ECS.Destroy(m.Commons)
	}
	s.leaveRoster(id)
	s.ECS.Destroy(id)
	event.Emit(s.Bus, event.EntityDestroyed{Entity: id})
	return true
}

// RosterOf returns the market whose roster lists trader, or Nil.
func (s *State) RosterOf(trader ecs.EntityID) ecs.EntityID {
	found := ecs.Nil
	s.Market.Each(func(id ecs.EntityID, m *component.Market) {
		if found != ecs.Nil {
			return
		}
		for _, t := range m.Trading {
			if t == trader {
				found = id
				return
			}
		}
	})
	return found
}

// JoinRoster appends trader to market's roster unless it is already listed.
func (s *State) JoinRoster(market, trader ecs.EntityID) {
	m := s.Market.MustGet(market)
	for _, t := range m.Trading {
		if t == trader {
			return
		}
	}
	m.Trading = append(m.Trading, trader)
}

// LeaveRoster removes trader from market's roster, preserving order.
func (s *State) LeaveRoster(market, trader ecs.EntityID) {
	m, ok := s.Market.Get(market)
	if !ok {
		return
	}
	for i, t := range m.Trading {
		if t == trader {
			m.Trading = append(m.Trading[:i], m.Trading[i+1:]...)
			return
		}
	}
}

func (s *State) leaveRoster(trader ecs.EntityID) {
	if m := s.RosterOf(trader); m != ecs.Nil {
		s.LeaveRoster(m, trader)
	}
}

// InRadius reports whether id has a Site inside the disc around centre.
func (s *State) InRadius(id ecs.EntityID, centre geom.Vec2, radius float64) bool {
	site, ok := s.Site.Get(id)
	return ok && site.Position.Within(centre, radius)
}
