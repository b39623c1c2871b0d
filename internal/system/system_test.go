package system

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/core/event"
	"github.com/tradewind/server/internal/data"
	"github.com/tradewind/server/internal/geom"
	"github.com/tradewind/server/internal/persist"
	"github.com/tradewind/server/internal/world"
)

const testCommodities = `name,price
Barley,8
Wheat,10
Flour,18
Bread,25
`

const testBlueprints = `
blueprints:
  - name: market
    footprint: [3, 3]
    market: {radius: 5}
  - name: barley_field
    footprint: [2, 2]
    generator: {output: Barley, rate: 0.0714285714285714}
  - name: stall
    footprint: [1, 1]
    trader: true
  - name: mill
    footprint: [2, 2]
    producer:
      inputs: {Wheat: 2}
      outputs: {Flour: 1}
      rate: 0.5
  - name: dwelling
    footprint: [1, 1]
    dwelling: true
    demand: {Bread: 0.1}
  - name: merchant
    merchant: true
`

type fixture struct {
	ws       *world.State
	economy  *EconomySystem
	merchant *MerchantSystem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	commodities, err := data.ParseCommodities(strings.NewReader(testCommodities))
	require.NoError(t, err)
	blueprints, err := data.ParseBlueprints([]byte(testBlueprints), commodities)
	require.NoError(t, err)

	ws := world.NewState(world.Options{MapWidth: 64, MapHeight: 64, Seed: 5}, nil)
	require.NoError(t, ws.LoadCatalog(commodities, blueprints))
	ws.AddFamily("Crown", 100)
	ws.AddFamily("Guild", 100)
	return &fixture{
		ws:       ws,
		economy:  NewEconomySystem(ws, zap.NewNop()),
		merchant: NewMerchantSystem(ws, zap.NewNop()),
	}
}

func (f *fixture) commodity(t *testing.T, name string) ecs.EntityID {
	t.Helper()
	id, ok := f.ws.CommodityByName(name)
	require.True(t, ok, name)
	return id
}

func (f *fixture) place(t *testing.T, owner int, blueprint string, x, y float64) ecs.EntityID {
	t.Helper()
	proto, ok := f.ws.BlueprintByName(blueprint)
	require.True(t, ok, blueprint)
	id, ok := f.ws.TryPlace(owner, proto, geom.V(x, y))
	require.True(t, ok, "place %s at (%v, %v)", blueprint, x, y)
	return id
}

func TestGeneratorFillsOneUnit(t *testing.T) {
	f := newFixture(t)
	barley := f.commodity(t, "Barley")
	market := f.place(t, 0, "market", 0, 0)
	field := f.place(t, 0, "barley_field", 3, 0)
	require.Contains(t, f.ws.Market.MustGet(market).Trading, field)

	for i := 0; i < 55; i++ {
		f.economy.Step(0.25)
	}
	assert.Zero(t, f.ws.Inventory.MustGet(field).Stock[barley])
	assert.True(t, f.ws.Generator.MustGet(field).Active)

	f.economy.Step(0.25)
	assert.Equal(t, 1, f.ws.Inventory.MustGet(field).Stock[barley])
	assert.Equal(t, -1.0, f.ws.Trader.MustGet(field).Bid[barley])
	assert.InDelta(t, 0, f.ws.Generator.MustGet(field).Progress, 1e-6)
}

func TestGeneratorProgressStaysBounded(t *testing.T) {
	f := newFixture(t)
	barley := f.commodity(t, "Barley")
	f.place(t, 0, "market", 0, 0)
	field := f.place(t, 0, "barley_field", 3, 0)
	idle := f.place(t, 0, "barley_field", 25, 25)

	f.economy.Step(1000)
	g := f.ws.Generator.MustGet(field)
	assert.Equal(t, 1, f.ws.Inventory.MustGet(field).Stock[barley], "one unit per tick at most")
	assert.LessOrEqual(t, g.Progress, 1.0)

	f.ws.Inventory.MustGet(field).Stock[barley] = StockCap
	f.economy.Step(1000)
	assert.Equal(t, StockCap, f.ws.Inventory.MustGet(field).Stock[barley])
	assert.Equal(t, 1.0, g.Progress)

	assert.False(t, f.ws.Generator.MustGet(idle).Active, "outside every market")
	assert.Zero(t, f.ws.Generator.MustGet(idle).Progress)
}

func TestTwoTradersSettle(t *testing.T) {
	f := newFixture(t)
	wheat := f.commodity(t, "Wheat")
	market := f.place(t, component.NoFamily, "market", 0, 0)
	buyer := f.place(t, 0, "stall", 3, 0)
	seller := f.place(t, 1, "stall", 0, 3)

	f.ws.Trader.MustGet(buyer).Bid[wheat] = 5
	f.ws.Trader.MustGet(seller).Bid[wheat] = -5
	f.ws.Inventory.MustGet(seller).Stock[wheat] = 5

	f.economy.Step(0.25)

	assert.Zero(t, f.ws.Trader.MustGet(buyer).Bid[wheat])
	assert.Zero(t, f.ws.Trader.MustGet(seller).Bid[wheat])
	assert.Equal(t, 5, f.ws.Inventory.MustGet(buyer).Stock[wheat])
	assert.Zero(t, f.ws.Inventory.MustGet(seller).Stock[wheat])
	assert.Equal(t, -10.0, f.ws.Trader.MustGet(buyer).Balance)
	assert.Equal(t, 10.0, f.ws.Trader.MustGet(seller).Balance)
	assert.Equal(t, 90.0, f.ws.Family(0).Balance)
	assert.Equal(t, 110.0, f.ws.Family(1).Balance)
	assert.Equal(t, 10.0, f.ws.Market.MustGet(market).Prices[wheat], "balanced market keeps its price")
	assert.Equal(t, 1, event.Pending[event.TradeCompleted](f.ws.Bus))
}

func TestFractionalBidsDoNotTrade(t *testing.T) {
	f := newFixture(t)
	wheat := f.commodity(t, "Wheat")
	f.place(t, 0, "market", 0, 0)
	buyer := f.place(t, 0, "stall", 3, 0)
	seller := f.place(t, 1, "stall", 0, 3)

	f.ws.Trader.MustGet(buyer).Bid[wheat] = 0.5
	f.ws.Trader.MustGet(seller).Bid[wheat] = -3
	f.ws.Inventory.MustGet(seller).Stock[wheat] = 3

	f.economy.Step(0.25)
	assert.Equal(t, 3, f.ws.Inventory.MustGet(seller).Stock[wheat])
	assert.Zero(t, event.Pending[event.TradeCompleted](f.ws.Bus))
}

func TestPricesStayWithinBounds(t *testing.T) {
	f := newFixture(t)
	bread := f.commodity(t, "Bread")
	market := f.place(t, 0, "market", 0, 0)
	m := f.ws.Market.MustGet(market)

	f.ws.Trader.MustGet(m.Commons).Bid[bread] = 1e6
	f.economy.Step(0.25)
	assert.Equal(t, 37.5, m.Prices[bread])
	assert.InDelta(t, -0.05, m.GrowthRate, 1e-12)
	assert.Zero(t, m.Growth, "nothing to shrink")

	f.ws.Trader.MustGet(m.Commons).Bid[bread] = 0
	stall := f.place(t, 0, "stall", 3, 0)
	f.ws.Trader.MustGet(stall).Bid[bread] = -1e6
	f.economy.Step(0.25)
	assert.Equal(t, 12.5, m.Prices[bread])
	assert.InDelta(t, 0.05, m.GrowthRate, 1e-12)
}

func TestProducerConservesInputs(t *testing.T) {
	f := newFixture(t)
	wheat, flour := f.commodity(t, "Wheat"), f.commodity(t, "Flour")
	f.place(t, 0, "market", 0, 0)
	mill := f.place(t, 0, "mill", 3, 0)
	inv := f.ws.Inventory.MustGet(mill)
	inv.Stock[wheat] = 2

	f.economy.Step(0.25)
	p := f.ws.Producer.MustGet(mill)
	assert.True(t, p.Producing)
	assert.Zero(t, inv.Stock[wheat], "inputs are debited when the cycle starts")

	for i := 0; i < 7; i++ {
		f.economy.Step(0.25)
	}
	assert.True(t, p.Producing)
	assert.Zero(t, inv.Stock[flour])

	f.economy.Step(0.25)
	assert.False(t, p.Producing)
	assert.Equal(t, 1, inv.Stock[flour])
	assert.Equal(t, -1.0, f.ws.Trader.MustGet(mill).Bid[flour])

	f.economy.Step(0.25)
	assert.False(t, p.Producing)
	assert.Equal(t, 2.0, f.ws.Trader.MustGet(mill).Bid[wheat], "short inputs become a bid")
}

func TestGrowthSpawnsDwellings(t *testing.T) {
	f := newFixture(t)
	bread := f.commodity(t, "Bread")
	market := f.place(t, 0, "market", 0, 0)
	m := f.ws.Market.MustGet(market)
	m.Prices[bread] = 12.5
	m.Growth = 0.99

	stall := f.place(t, 0, "stall", 3, 0)
	f.ws.Trader.MustGet(stall).Bid[bread] = -1e6
	f.economy.Step(0.25)

	assert.Equal(t, 1, m.Population)
	assert.Len(t, f.ws.Dweller.IDs(), 2, "prototype plus one dwelling")
	assert.Less(t, m.Growth, 1.0)
}

func TestDemandAccruesOnCommons(t *testing.T) {
	f := newFixture(t)
	bread := f.commodity(t, "Bread")
	market := f.place(t, 0, "market", 0, 0)
	f.place(t, 0, "dwelling", 3, 0)
	f.place(t, 0, "dwelling", 25, 25)
	m := f.ws.Market.MustGet(market)

	f.economy.Step(0.25)
	assert.InDelta(t, 0.1*0.25, f.ws.Trader.MustGet(m.Commons).Bid[bread], 1e-12, "only the dwelling in radius demands")

	f.economy.Step(0.25)
	assert.InDelta(t, 0.1*0.5, f.ws.Trader.MustGet(m.Commons).Bid[bread], 1e-12)
}

func TestPopulationIsRecounted(t *testing.T) {
	f := newFixture(t)
	market := f.place(t, 0, "market", 0, 0)
	f.place(t, 0, "dwelling", 3, 0)
	f.place(t, 0, "dwelling", 0, 3)
	f.place(t, 0, "dwelling", 25, 25)
	m := f.ws.Market.MustGet(market)
	m.Population = 7

	f.economy.Step(0.25)
	assert.Equal(t, 2, m.Population)
	assert.Zero(t, m.GrowthRate, "prices at base")
}

func TestNegativeGrowthAbandonsDwellings(t *testing.T) {
	f := newFixture(t)
	market := f.place(t, 0, "market", 0, 0)
	first := f.place(t, 0, "dwelling", 3, 0)
	second := f.place(t, 0, "dwelling", 0, 3)
	m := f.ws.Market.MustGet(market)
	for _, c := range f.ws.Commodities() {
		m.Prices[c] = 1.5 * f.ws.BasePrice(c)
	}
	m.Growth = -0.9

	f.economy.Step(0.25)
	assert.InDelta(t, -0.2, m.GrowthRate, 1e-12)
	// -0.9 - 0.05 floors to -1: one dwelling goes and one unit comes back.
	assert.InDelta(t, 0.05, m.Growth, 1e-9)
	assert.Equal(t, 1, m.Population)
	assert.NotEqual(t, f.ws.ECS.Alive(first), f.ws.ECS.Alive(second), "exactly one dwelling abandoned")
	assert.Equal(t, 1, event.Pending[event.EntityDestroyed](f.ws.Bus))
}

func (f *fixture) merchantRoute(t *testing.T) (ecs.EntityID, ecs.EntityID, ecs.EntityID) {
	t.Helper()
	barley := f.commodity(t, "Barley")
	home := f.place(t, 0, "market", 0, 0)
	away := f.place(t, 0, "market", 12, 0)
	proto, ok := f.ws.BlueprintByName("merchant")
	require.True(t, ok)
	cart, ok := f.ws.CreateMerchant(0, proto, geom.V(0, 0))
	require.True(t, ok)
	f.ws.Embark(cart, component.Route{Stops: []component.Stop{
		{Where: home, LeaveWith: map[ecs.EntityID]int{barley: 1}},
		{Where: away, LeaveWith: map[ecs.EntityID]int{}},
	}})
	return cart, home, away
}

func TestMerchantCompletesCycle(t *testing.T) {
	f := newFixture(t)
	barley := f.commodity(t, "Barley")
	cart, home, away := f.merchantRoute(t)
	inv := f.ws.Inventory.MustGet(cart)
	m := f.ws.Merchant.MustGet(cart)

	f.merchant.Step(1)
	assert.False(t, f.ws.Site.Has(cart), "docked")
	assert.Equal(t, home, f.ws.RosterOf(cart))
	assert.Equal(t, 1.0, f.ws.Trader.MustGet(cart).Bid[barley])

	f.merchant.Step(1)
	assert.Equal(t, home, f.ws.RosterOf(cart), "waits until the stop is satisfied")

	inv.Stock[barley] = 1
	f.merchant.Step(1)
	require.True(t, f.ws.Site.Has(cart))
	assert.Equal(t, ecs.Nil, f.ws.RosterOf(cart))
	assert.Equal(t, 1, m.NextStopIx)
	assert.Equal(t, -1.0, f.ws.Trader.MustGet(cart).Bid[barley])

	for i := 0; i < 11; i++ {
		f.merchant.Step(1)
	}
	assert.InDelta(t, 11, f.ws.Site.MustGet(cart).Position.X, 1e-9)
	f.merchant.Step(1)
	assert.False(t, f.ws.Site.Has(cart))
	assert.Equal(t, away, f.ws.RosterOf(cart))

	inv.Stock[barley] = 0
	f.merchant.Step(1)
	assert.Equal(t, 0, m.NextStopIx, "route wraps to the first stop")
	assert.Equal(t, 1.0, f.ws.Trader.MustGet(cart).Bid[barley])
}

func TestMerchantToDestroyedMarketPanics(t *testing.T) {
	f := newFixture(t)
	cart, _, away := f.merchantRoute(t)
	f.merchant.Step(1)
	f.ws.Inventory.MustGet(cart).Stock[f.commodity(t, "Barley")] = 1
	f.merchant.Step(1)

	f.ws.Destroy(away)
	assert.Panics(t, func() { f.merchant.Step(1) })
}

func TestEventSystemDeliversLastTick(t *testing.T) {
	bus := event.NewBus()
	sys := NewEventSystem(bus)
	var got []event.TradeCompleted
	event.Subscribe(bus, func(ev event.TradeCompleted) { got = append(got, ev) })

	event.Emit(bus, event.TradeCompleted{Units: 2})
	sys.Update(250 * time.Millisecond)
	assert.Equal(t, []event.TradeCompleted{{Units: 2}}, got)

	sys.Update(250 * time.Millisecond)
	assert.Len(t, got, 1)
}

type ledgerSink struct {
	trades []persist.TradeRecord
	prices []persist.PriceSample
	fail   error
}

func (l *ledgerSink) WriteTrades(_ context.Context, t []persist.TradeRecord) error {
	if l.fail != nil {
		return l.fail
	}
	l.trades = append(l.trades, t...)
	return nil
}

func (l *ledgerSink) WritePrices(_ context.Context, s []persist.PriceSample) error {
	if l.fail != nil {
		return l.fail
	}
	l.prices = append(l.prices, s...)
	return nil
}

func TestLedgerJournalsTrades(t *testing.T) {
	f := newFixture(t)
	wheat := f.commodity(t, "Wheat")
	market := f.place(t, component.NoFamily, "market", 0, 0)
	buyer := f.place(t, 0, "stall", 3, 0)
	seller := f.place(t, 1, "stall", 0, 3)
	f.ws.Trader.MustGet(buyer).Bid[wheat] = 2
	f.ws.Trader.MustGet(seller).Bid[wheat] = -2
	f.ws.Inventory.MustGet(seller).Stock[wheat] = 2

	sink := &ledgerSink{fail: errors.New("database down")}
	worldID := uuid.New()
	ledger := NewLedgerSystem(f.ws, persist.NewJournal(sink, zap.NewNop()), worldID, zap.NewNop(), 2)
	events := NewEventSystem(f.ws.Bus)

	f.economy.Step(0.25)
	events.Update(0)
	ledger.Update(0)
	ledger.Update(0)
	assert.Empty(t, sink.trades, "failed flush keeps the batch")

	sink.fail = nil
	ledger.Update(0)
	ledger.Update(0)
	require.Len(t, sink.trades, 1)
	tr := sink.trades[0]
	assert.Equal(t, worldID, tr.WorldID)
	assert.Equal(t, uint64(market), tr.Market)
	assert.Equal(t, "Wheat", tr.Commodity)
	assert.Equal(t, 0, tr.BuyerFamily)
	assert.Equal(t, 1, tr.SellerFamily)
	assert.Equal(t, 2, tr.Units)
	assert.Equal(t, 10.0, tr.Price)
	assert.Len(t, sink.prices, 2*4, "two samples of every commodity")
}

type lineRecorder struct{ lines []string }

func (r *lineRecorder) Exec(line string) error {
	r.lines = append(r.lines, line)
	if line == "bad" {
		return errors.New("syntax error")
	}
	return nil
}

func TestConsoleSystemDrainsQueuedLines(t *testing.T) {
	lines := make(chan string, 4)
	rec := &lineRecorder{}
	sys := NewConsoleSystem(rec, lines, zap.NewNop())

	sys.Update(0)
	assert.Empty(t, rec.lines)

	lines <- "families()"
	lines <- "bad"
	lines <- "markets()"
	sys.Update(0)
	assert.Equal(t, []string{"families()", "bad", "markets()"}, rec.lines)

	close(lines)
	sys.Update(0)
	assert.Len(t, rec.lines, 3)
}
