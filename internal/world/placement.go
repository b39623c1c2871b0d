package world

import (
	"math"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/core/event"
	"github.com/tradewind/server/internal/geom"
)

// dwellingAttempts bounds the disc sampling in SpawnDwelling.
const dwellingAttempts = 5

// BuildCommand is the one mutating command the UI may issue.
type BuildCommand struct {
	Family    int
	Blueprint ecs.EntityID
	Position  geom.Vec2
}

// retry calls fn until it succeeds or limit attempts were made. A limit of 0
// retries forever.
func retry(limit int, fn func() bool) bool {
	for i := 0; limit == 0 || i < limit; i++ {
		if fn() {
			return true
		}
	}
	return false
}

// FootprintCells returns the cells a dims-sized footprint centred on centre
// would cover. The top-left cell is centre − dims/2, rounded.
func FootprintCells(dims geom.Cell, centre geom.Vec2) []geom.Cell {
	tl := geom.C(
		int32(math.Round(centre.X-float64(dims.X)/2)),
		int32(math.Round(centre.Y-float64(dims.Y)/2)),
	)
	return tl.Rect(dims)
}

// CanPlace reports whether proto could be placed centred on centre: every
// footprint cell must be free and in bounds, and a market's disc must not
// touch any existing market's disc.
func (s *State) CanPlace(proto ecs.EntityID, centre geom.Vec2) bool {
	fp, ok := s.Footprint.Get(proto)
	if !ok {
		return false
	}
	for _, c := range FootprintCells(fp.Dimensions, centre) {
		if !s.Grid.InBounds(c) {
			return false
		}
		if _, taken := s.Grid.Occupied(c); taken {
			return false
		}
	}
	if m, ok := s.Market.Get(proto); ok {
		conflict := false
		ecs.Each2(s.Market, s.Site, func(_ ecs.EntityID, other *component.Market, site *component.Site) {
			if centre.Dist(site.Position) <= m.Radius+other.Radius {
				conflict = true
			}
		})
		if conflict {
			return false
		}
	}
	return true
}

// TryPlace instantiates proto at centre for owner. It performs no mutation
// and returns false when CanPlace rejects the position.
func (s *State) TryPlace(owner int, proto ecs.EntityID, centre geom.Vec2) (ecs.EntityID, bool) {
	if !s.CanPlace(proto, centre) {
		return ecs.Nil, false
	}
	fp := s.Footprint.MustGet(proto)

	id := s.ECS.CreateEntity()
	s.instantiate(id, proto, owner)
	s.Site.Set(id, &component.Site{Position: centre})
	s.Grid.Reserve(id, FootprintCells(fp.Dimensions, centre))

	if s.Market.Has(id) {
		s.openMarket(id, centre)
	} else if s.Trader.Has(id) && !s.Merchant.Has(id) {
		s.joinFirstMarket(id, centre)
	}
	event.Emit(s.Bus, event.EntitySpawned{Entity: id, Blueprint: proto})
	return id, true
}

// Build forwards a UI build command to TryPlace.
func (s *State) Build(cmd BuildCommand) (ecs.EntityID, bool) {
	if !s.Blueprint.Has(cmd.Blueprint) {
		return ecs.Nil, false
	}
	return s.TryPlace(cmd.Family, cmd.Blueprint, cmd.Position)
}

// openMarket seeds prices, creates the commons trader and pulls in every
// un-routed trader already standing inside the new radius.
func (s *State) openMarket(id ecs.EntityID, centre geom.Vec2) {
	m := s.Market.MustGet(id)
	m.Prices = make(map[ecs.EntityID]float64, len(s.commodities))
	m.Demand = make(map[ecs.EntityID]float64, len(s.commodities))
	for _, c := range s.commodities {
		m.Prices[c] = s.BasePrice(c)
	}

	commons := s.ECS.CreateEntity()
	s.Named.Set(commons, &component.Named{Name: s.NameOf(id) + " commons"})
	s.Trader.Set(commons, &component.Trader{FamilyID: component.NoFamily, Bid: map[ecs.EntityID]float64{}})
	s.Inventory.Set(commons, &component.Inventory{Stock: map[ecs.EntityID]int{}})
	m.Commons = commons
	m.Trading = []ecs.EntityID{commons}

	ecs.Each2(s.Trader, s.Site, func(t ecs.EntityID, _ *component.Trader, site *component.Site) {
		if t == id || !site.Position.Within(centre, m.Radius) {
			return
		}
		if mc, ok := s.Merchant.Get(t); ok && mc.Route != nil {
			return
		}
		if s.RosterOf(t) != ecs.Nil {
			return
		}
		m.Trading = append(m.Trading, t)
	})
}

func (s *State) joinFirstMarket(id ecs.EntityID, pos geom.Vec2) {
	joined := false
	ecs.Each2(s.Market, s.Site, func(_ ecs.EntityID, m *component.Market, site *component.Site) {
		if joined || !pos.Within(site.Position, m.Radius) {
			return
		}
		m.Trading = append(m.Trading, id)
		joined = true
	})
}

// Spawn places proto at uniformly random positions until one succeeds. The
// caller must guarantee a valid placement exists.
func (s *State) Spawn(proto ecs.EntityID) ecs.EntityID {
	id, _ := s.SpawnAttempts(proto, 0)
	return id
}

// SpawnAttempts is Spawn with an attempt limit (0 = unbounded).
func (s *State) SpawnAttempts(proto ecs.EntityID, limit int) (ecs.EntityID, bool) {
	fp, ok := s.Footprint.Get(proto)
	if !ok {
		return ecs.Nil, false
	}
	w, h := s.Grid.Width(), s.Grid.Height()
	if w <= 0 || h <= 0 {
		return ecs.Nil, false
	}
	var placed ecs.EntityID
	ok = retry(limit, func() bool {
		tl := geom.C(s.Rand.Int31n(w)-w/2, s.Rand.Int31n(h)-h/2)
		centre := tl.Vec().Add(fp.Dimensions.Vec().Scale(0.5))
		id, ok := s.TryPlace(component.NoFamily, proto, centre)
		placed = id
		return ok
	})
	return placed, ok
}

// SamplePointInDisc returns a point uniformly distributed over the disc.
func (s *State) SamplePointInDisc(centre geom.Vec2, radius float64) geom.Vec2 {
	r := radius * math.Sqrt(s.Rand.Float64())
	theta := 2 * math.Pi * s.Rand.Float64()
	return centre.Add(geom.V(r*math.Cos(theta), r*math.Sin(theta)))
}

// SpawnDwelling tries to place the dwelling blueprint inside the market's
// disc, giving up after a few attempts. On success the market's population
// grows by one.
func (s *State) SpawnDwelling(market ecs.EntityID) bool {
	proto, ok := s.DwellingBlueprint()
	if !ok {
		return false
	}
	m := s.Market.MustGet(market)
	centre := s.Site.MustGet(market).Position
	owner := component.NoFamily
	if o, ok := s.Owned.Get(market); ok {
		owner = o.FamilyIx
	}
	placed := retry(dwellingAttempts, func() bool {
		_, ok := s.TryPlace(owner, proto, s.SamplePointInDisc(centre, m.Radius))
		return ok
	})
	if placed {
		m.Population++
	}
	return placed
}

// CreateMerchant instantiates a merchant prototype at a world position. It
// reserves no grid cells and joins no roster: it is en route until embarked
// and arrived.
func (s *State) CreateMerchant(owner int, proto ecs.EntityID, at geom.Vec2) (ecs.EntityID, bool) {
	if !s.Merchant.Has(proto) || !s.Blueprint.Has(proto) {
		return ecs.Nil, false
	}
	id := s.ECS.CreateEntity()
	s.instantiate(id, proto, owner)
	s.Site.Set(id, &component.Site{Position: at})
	event.Emit(s.Bus, event.EntitySpawned{Entity: id, Blueprint: proto})
	return id, true
}
