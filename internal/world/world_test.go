package world

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/core/event"
	"github.com/tradewind/server/internal/data"
	"github.com/tradewind/server/internal/geom"
)

const testCommodities = `name,price
Barley,8
Bread,25
`

const testBlueprints = `
blueprints:
  - name: market
    price: 400
    footprint: [3, 3]
    market: {radius: 12}
  - name: field
    price: 40
    footprint: [2, 2]
    generator: {output: Barley, rate: 0.25}
  - name: dwelling
    footprint: [1, 1]
    dwelling: true
    demand: {Bread: 0.1}
  - name: merchant
    merchant: true
`

func newTestState(t *testing.T, size int32) *State {
	t.Helper()
	commodities, err := data.ParseCommodities(strings.NewReader(testCommodities))
	require.NoError(t, err)
	blueprints, err := data.ParseBlueprints([]byte(testBlueprints), commodities)
	require.NoError(t, err)

	s := NewState(Options{MapWidth: size, MapHeight: size, Seed: 7}, nil)
	require.NoError(t, s.LoadCatalog(commodities, blueprints))
	return s
}

func mustBlueprint(t *testing.T, s *State, name string) ecs.EntityID {
	t.Helper()
	id, ok := s.BlueprintByName(name)
	require.True(t, ok, name)
	return id
}

func mustCommodity(t *testing.T, s *State, name string) ecs.EntityID {
	t.Helper()
	id, ok := s.CommodityByName(name)
	require.True(t, ok, name)
	return id
}

func TestLoadCatalogPrototypes(t *testing.T) {
	s := newTestState(t, 64)

	assert.Len(t, s.Commodities(), 2)
	assert.Len(t, s.Blueprints(), 4)
	assert.Equal(t, 25.0, s.BasePrice(mustCommodity(t, s, "Bread")))

	field := mustBlueprint(t, s, "field")
	assert.True(t, s.Trader.Has(field))
	assert.True(t, s.Inventory.Has(field))
	assert.Equal(t, "field", s.Mesh.MustGet(field).Mesh)

	merchant := mustBlueprint(t, s, "merchant")
	assert.False(t, s.Footprint.Has(merchant))
	assert.True(t, s.Trader.Has(merchant))

	dwelling, ok := s.DwellingBlueprint()
	require.True(t, ok)
	assert.Equal(t, mustBlueprint(t, s, "dwelling"), dwelling)
}

func TestTryPlaceExclusiveCells(t *testing.T) {
	s := newTestState(t, 64)
	field := mustBlueprint(t, s, "field")

	id, ok := s.TryPlace(component.NoFamily, field, geom.V(0, 0))
	require.True(t, ok)
	assert.Len(t, s.Grid.Cells(id), 4)
	for _, c := range s.Grid.Cells(id) {
		holder, taken := s.Grid.Occupied(c)
		assert.True(t, taken)
		assert.Equal(t, id, holder)
	}

	before := s.ECS.Len()
	_, ok = s.TryPlace(component.NoFamily, field, geom.V(0, 0))
	assert.False(t, ok)
	_, ok = s.TryPlace(component.NoFamily, field, geom.V(1, 1))
	assert.False(t, ok, "overlaps one cell")
	assert.Equal(t, before, s.ECS.Len(), "a rejected placement creates nothing")

	_, ok = s.TryPlace(component.NoFamily, field, geom.V(2, 0))
	assert.True(t, ok, "adjacent placement")
}

func TestTryPlaceOutOfBounds(t *testing.T) {
	s := newTestState(t, 32)
	field := mustBlueprint(t, s, "field")

	_, ok := s.TryPlace(component.NoFamily, field, geom.V(15.5, 0))
	assert.False(t, ok)
	_, ok = s.TryPlace(component.NoFamily, field, geom.V(-15, -15))
	assert.True(t, ok)
}

func TestMarketDiscsMustNotTouch(t *testing.T) {
	s := newTestState(t, 80)
	market := mustBlueprint(t, s, "market")

	_, ok := s.TryPlace(component.NoFamily, market, geom.V(-20, 0))
	require.True(t, ok)
	_, ok = s.TryPlace(component.NoFamily, market, geom.V(2, 0))
	assert.False(t, ok, "radii 12+12 reach past 22")
	_, ok = s.TryPlace(component.NoFamily, market, geom.V(20, 0))
	assert.True(t, ok)
}

func TestOpenMarketCreatesCommonsAndAdoptsTraders(t *testing.T) {
	s := newTestState(t, 80)
	field := mustBlueprint(t, s, "field")
	market := mustBlueprint(t, s, "market")

	early, ok := s.TryPlace(component.NoFamily, field, geom.V(6, 0))
	require.True(t, ok)
	assert.Equal(t, ecs.Nil, s.RosterOf(early))

	far, ok := s.TryPlace(component.NoFamily, field, geom.V(30, 30))
	require.True(t, ok)

	m, ok := s.TryPlace(component.NoFamily, market, geom.V(0, 0))
	require.True(t, ok)
	mk := s.Market.MustGet(m)
	require.Len(t, mk.Trading, 2)
	assert.Equal(t, mk.Commons, mk.Trading[0])
	assert.Equal(t, early, mk.Trading[1])
	assert.Equal(t, ecs.Nil, s.RosterOf(far))
	assert.Equal(t, s.NameOf(m)+" commons", s.NameOf(mk.Commons))
	assert.False(t, s.Site.Has(mk.Commons))

	for _, c := range s.Commodities() {
		assert.Equal(t, s.BasePrice(c), mk.Prices[c])
	}

	late, ok := s.TryPlace(component.NoFamily, field, geom.V(-6, 0))
	require.True(t, ok)
	assert.Equal(t, m, s.RosterOf(late))
}

func TestInstantiateDeepCopies(t *testing.T) {
	s := newTestState(t, 64)
	dwelling := mustBlueprint(t, s, "dwelling")
	bread := mustCommodity(t, s, "Bread")

	id, ok := s.TryPlace(1, dwelling, geom.V(0, 0))
	require.True(t, ok)
	s.Demander.MustGet(id).Rate[bread] = 9
	assert.Equal(t, 0.1, s.Demander.MustGet(dwelling).Rate[bread])
	assert.Equal(t, 1, s.Owned.MustGet(id).FamilyIx)
	assert.True(t, strings.HasPrefix(s.NameOf(id), "dwelling "))
	assert.False(t, s.Blueprint.Has(id))
}

func TestSpawnDwellingGrowsPopulation(t *testing.T) {
	s := newTestState(t, 80)
	m, ok := s.TryPlace(component.NoFamily, mustBlueprint(t, s, "market"), geom.V(0, 0))
	require.True(t, ok)

	placed := 0
	for i := 0; i < 10; i++ {
		if s.SpawnDwelling(m) {
			placed++
		}
	}
	require.Positive(t, placed)
	assert.Equal(t, placed, s.Market.MustGet(m).Population)

	centre := s.Site.MustGet(m).Position
	ecs.Each2(s.Dweller, s.Site, func(id ecs.EntityID, _ *component.Dweller, site *component.Site) {
		assert.True(t, site.Position.Within(centre, 12), "dwelling %s outside the disc", id)
	})
}

func TestDestroyMarketRemovesCommons(t *testing.T) {
	s := newTestState(t, 80)
	m, ok := s.TryPlace(component.NoFamily, mustBlueprint(t, s, "market"), geom.V(0, 0))
	require.True(t, ok)
	commons := s.Market.MustGet(m).Commons
	f, ok := s.TryPlace(component.NoFamily, mustBlueprint(t, s, "field"), geom.V(5, 5))
	require.True(t, ok)

	require.True(t, s.Destroy(f))
	assert.NotContains(t, s.Market.MustGet(m).Trading, f)
	assert.Empty(t, s.Grid.Cells(f))

	require.True(t, s.Destroy(m))
	assert.False(t, s.ECS.Alive(commons))
	assert.False(t, s.Destroy(m), "already gone")
	assert.Equal(t, 2, event.Pending[event.EntityDestroyed](s.Bus))
}

func TestBuildRejectsNonBlueprint(t *testing.T) {
	s := newTestState(t, 64)
	_, ok := s.Build(BuildCommand{Family: 0, Blueprint: mustCommodity(t, s, "Barley")})
	assert.False(t, ok)

	_, ok = s.Build(BuildCommand{Family: 0, Blueprint: mustBlueprint(t, s, "field"), Position: geom.V(3, 3)})
	assert.True(t, ok)
}

func TestEmbarkBidsTowardFirstStop(t *testing.T) {
	s := newTestState(t, 80)
	m, ok := s.TryPlace(component.NoFamily, mustBlueprint(t, s, "market"), geom.V(0, 0))
	require.True(t, ok)
	barley := mustCommodity(t, s, "Barley")
	bread := mustCommodity(t, s, "Bread")

	id, ok := s.CreateMerchant(0, mustBlueprint(t, s, "merchant"), geom.V(10, 10))
	require.True(t, ok)
	assert.Empty(t, s.Grid.Cells(id))
	s.Inventory.MustGet(id).Stock[barley] = 2
	s.Inventory.MustGet(id).Stock[bread] = 1

	stop := component.Stop{Where: m, LeaveWith: map[ecs.EntityID]int{barley: 5}}
	s.Embark(id, component.Route{Stops: []component.Stop{stop}})

	mc := s.Merchant.MustGet(id)
	require.NotNil(t, mc.Route)
	assert.Equal(t, 0, mc.NextStopIx)
	bid := s.Trader.MustGet(id).Bid
	assert.Equal(t, 3.0, bid[barley])
	assert.Equal(t, -1.0, bid[bread])
	assert.False(t, s.StopSatisfied(id, stop))

	s.Inventory.MustGet(id).Stock[barley] = 5
	s.Inventory.MustGet(id).Stock[bread] = 0
	assert.True(t, s.StopSatisfied(id, stop))

	assert.Panics(t, func() { s.Embark(id, component.Route{}) })
}

func TestPopulate(t *testing.T) {
	s := newTestState(t, 128)
	res := s.Populate(GenConfig{Seed: 3, Markets: 2, Fields: 6, Merchants: 1, Owner: component.NoFamily})

	require.Equal(t, 2, res.Markets)
	assert.Equal(t, 2, s.Market.Len()-1, "plus the prototype")
	assert.LessOrEqual(t, res.Fields, 6)
	assert.Equal(t, 1, res.Merchants)

	ecs.Each2(s.Generator, s.Site, func(id ecs.EntityID, _ *component.Generator, _ *component.Site) {
		assert.NotEqual(t, ecs.Nil, s.RosterOf(id), "field %s is not on a roster", id)
	})
	s.Merchant.Each(func(id ecs.EntityID, m *component.Merchant) {
		if s.Blueprint.Has(id) {
			return
		}
		require.NotNil(t, m.Route)
		assert.Len(t, m.Route.Stops, 2)
	})
}
