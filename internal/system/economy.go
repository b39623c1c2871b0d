package system

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/core/event"
	coresys "github.com/tradewind/server/internal/core/system"
	"github.com/tradewind/server/internal/geom"
	"github.com/tradewind/server/internal/world"
)

const (
	// StockCap stops a generator from emitting while it already holds this
	// many units of its output.
	StockCap = 10

	priceStep       = 0.0002
	priceFloor      = 0.5
	priceCeiling    = 1.5
	growthPerPrice  = 0.1
	growthRateFloor = -1.0 / 3
	growthRateCeil  = 1.0 / 4
	demandQuantum   = 0.01

	// progressEpsilon absorbs accumulated rounding so rate*dt sums that are
	// exactly 1 on paper cross on the intended tick.
	progressEpsilon = 1e-9
)

// EconomySystem runs the economic tick once per market. Phase 2 (Update).
//
// Each pass, in order: generators, producers, demand accrual, trade matching,
// demand aggregation, pricing, population count, growth rate, growth.
type EconomySystem struct {
	world *world.State
	log   *zap.Logger
}

func NewEconomySystem(ws *world.State, log *zap.Logger) *EconomySystem {
	return &EconomySystem{world: ws, log: log}
}

func (s *EconomySystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *EconomySystem) Update(dt time.Duration) {
	s.Step(dt.Seconds())
}

// Step advances every market by dt seconds.
func (s *EconomySystem) Step(dt float64) {
	ws := s.world

	// A generator is active only while some market covers it this tick.
	ws.Generator.Each(func(_ ecs.EntityID, g *component.Generator) {
		g.Active = false
	})

	ecs.Each2(ws.Market, ws.Site, func(id ecs.EntityID, m *component.Market, site *component.Site) {
		centre := site.Position
		s.runGenerators(m, centre, dt)
		s.runProducers(m, centre, dt)
		s.accrueDemand(m, centre, dt)
		s.matchTrades(id, m)
		s.aggregateDemand(m)
		s.updatePrices(m)
		s.countPopulation(m, centre)
		s.updateGrowthRate(m)
		s.applyGrowth(id, m, centre, dt)
	})
}

func crossed(progress float64) bool {
	return progress+progressEpsilon >= 1
}

func clampProgress(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}

func (s *EconomySystem) runGenerators(m *component.Market, centre geom.Vec2, dt float64) {
	ws := s.world
	for _, id := range ecs.View4(ws.Generator, ws.Inventory, ws.Trader, ws.Site).Slice() {
		if !ws.InRadius(id, centre, m.Radius) {
			continue
		}
		g := ws.Generator.MustGet(id)
		inv := ws.Inventory.MustGet(id)
		tr := ws.Trader.MustGet(id)

		g.Active = true
		g.Progress += g.Rate * dt
		if crossed(g.Progress) && inv.Stock[g.Output] < StockCap {
			inv.Stock[g.Output]++
			tr.Bid[g.Output]--
			g.Progress--
		}
		g.Progress = clampProgress(g.Progress)
	}
}

func (s *EconomySystem) runProducers(m *component.Market, centre geom.Vec2, dt float64) {
	ws := s.world
	for _, id := range ecs.View4(ws.Producer, ws.Inventory, ws.Site, ws.Trader).Slice() {
		if !ws.InRadius(id, centre, m.Radius) {
			continue
		}
		p := ws.Producer.MustGet(id)
		inv := ws.Inventory.MustGet(id)
		tr := ws.Trader.MustGet(id)

		if p.Producing {
			p.Progress += p.Rate * dt
			if crossed(p.Progress) {
				for c, q := range p.Outputs {
					inv.Stock[c] += q
					tr.Bid[c] -= float64(q)
				}
				p.Progress = 0
				p.Producing = false
			}
			p.Progress = clampProgress(p.Progress)
			continue
		}

		covered := true
		for c, q := range p.Inputs {
			if inv.Stock[c] < q {
				covered = false
				break
			}
		}
		if covered {
			for c, q := range p.Inputs {
				inv.Stock[c] -= q
			}
			p.Producing = true
			continue
		}
		for c, q := range p.Inputs {
			tr.Bid[c] = math.Max(0, float64(q-inv.Stock[c]))
		}
	}
}

func (s *EconomySystem) accrueDemand(m *component.Market, centre geom.Vec2, dt float64) {
	ws := s.world
	commons, ok := ws.Trader.Get(m.Commons)
	if !ok {
		return
	}
	ws.Demander.Each(func(id ecs.EntityID, d *component.Demander) {
		if !ws.InRadius(id, centre, m.Radius) {
			return
		}
		for c, rate := range d.Rate {
			commons.Bid[c] += rate * dt
		}
	})
}

// matchTrades settles every buyer/seller pair on the roster, in roster
// order. The market price is charged once per trade, whatever the quantity.
func (s *EconomySystem) matchTrades(market ecs.EntityID, m *component.Market) {
	ws := s.world
	for _, c := range ws.Commodities() {
		price := m.Prices[c]
		for _, a := range m.Trading {
			buyer := ws.Trader.MustGet(a)
			for _, b := range m.Trading {
				if a == b || buyer.Bid[c] <= 0 {
					continue
				}
				seller := ws.Trader.MustGet(b)
				if seller.Bid[c] >= 0 {
					continue
				}
				want := math.Min(buyer.Bid[c], -seller.Bid[c])
				from := ws.Inventory.MustGet(b)
				if float64(from.Stock[c]) < want {
					continue
				}
				movement := int(math.Floor(want))
				if movement < 1 {
					continue
				}
				to := ws.Inventory.MustGet(a)

				buyer.Bid[c] -= float64(movement)
				seller.Bid[c] += float64(movement)
				to.Stock[c] += movement
				from.Stock[c] -= movement
				buyer.Balance -= price
				seller.Balance += price
				if f := ws.Family(buyer.FamilyID); f != nil {
					f.Balance -= price
				}
				if f := ws.Family(seller.FamilyID); f != nil {
					f.Balance += price
				}
				event.Emit(ws.Bus, event.TradeCompleted{
					Market:    market,
					Commodity: c,
					Buyer:     a,
					Seller:    b,
					Units:     movement,
					Price:     price,
				})
			}
		}
	}
}

func (s *EconomySystem) aggregateDemand(m *component.Market) {
	ws := s.world
	for _, c := range ws.Commodities() {
		total := 0.0
		for _, t := range m.Trading {
			bid := ws.Trader.MustGet(t).Bid[c]
			total += math.Max(0, math.Floor(bid/demandQuantum)*demandQuantum)
		}
		m.Demand[c] = total
	}
}

func (s *EconomySystem) updatePrices(m *component.Market) {
	ws := s.world
	for _, c := range ws.Commodities() {
		stock := 0.0
		for _, t := range m.Trading {
			if bid := ws.Trader.MustGet(t).Bid[c]; bid < 0 {
				stock -= bid
			}
		}
		disparity := math.Floor(m.Demand[c]) - stock
		if disparity == 0 {
			continue
		}
		base := ws.BasePrice(c)
		p := m.Prices[c] + disparity*priceStep
		m.Prices[c] = math.Max(base*priceFloor, math.Min(base*priceCeiling, p))
	}
}

func (s *EconomySystem) countPopulation(m *component.Market, centre geom.Vec2) {
	ws := s.world
	n := 0
	ecs.Each2(ws.Dweller, ws.Site, func(_ ecs.EntityID, _ *component.Dweller, site *component.Site) {
		if site.Position.Within(centre, m.Radius) {
			n++
		}
	})
	m.Population = n
}

func (s *EconomySystem) updateGrowthRate(m *component.Market) {
	ws := s.world
	rate := 0.0
	for _, c := range ws.Commodities() {
		base := ws.BasePrice(c)
		rate += (base - m.Prices[c]) / base * growthPerPrice
	}
	m.GrowthRate = math.Max(growthRateFloor, math.Min(growthRateCeil, rate))
}

func (s *EconomySystem) applyGrowth(id ecs.EntityID, m *component.Market, centre geom.Vec2, dt float64) {
	ws := s.world
	m.Growth += m.GrowthRate * dt

	for math.Floor(m.Growth) > 0 {
		if !ws.SpawnDwelling(id) {
			break
		}
		m.Growth--
	}

	for math.Floor(m.Growth) < 0 {
		victim := ecs.Nil
		ecs.Each2(ws.Dweller, ws.Site, func(d ecs.EntityID, _ *component.Dweller, site *component.Site) {
			if victim == ecs.Nil && site.Position.Within(centre, m.Radius) {
				victim = d
			}
		})
		if victim == ecs.Nil {
			// Nobody left to move out.
			m.Growth = 0
			break
		}
		ws.Destroy(victim)
		m.Population--
		m.Growth++
		s.log.Debug("dwelling abandoned",
			zap.String("market", ws.NameOf(id)),
			zap.Stringer("dwelling", victim),
		)
	}
}
