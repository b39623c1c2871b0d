package system

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	coresys "github.com/tradewind/server/internal/core/system"
	"github.com/tradewind/server/internal/geom"
	"github.com/tradewind/server/internal/world"
)

// MerchantSpeed is how far a merchant travels per second, in cells.
const MerchantSpeed = 1.0

// MerchantSystem drives every embarked merchant around its route.
// Phase 3 (PostUpdate), after the economy has had a chance to fill bids.
//
// A merchant with a Site is en route. A merchant without one is docked in
// its current stop's roster and leaves as soon as its stock matches the stop.
type MerchantSystem struct {
	world *world.State
	log   *zap.Logger
}

func NewMerchantSystem(ws *world.State, log *zap.Logger) *MerchantSystem {
	return &MerchantSystem{world: ws, log: log}
}

func (s *MerchantSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *MerchantSystem) Update(dt time.Duration) {
	s.Step(dt.Seconds())
}

// Step advances every merchant by dt seconds.
func (s *MerchantSystem) Step(dt float64) {
	ws := s.world
	ws.Merchant.Each(func(id ecs.EntityID, m *component.Merchant) {
		if m.Route == nil || ws.Blueprint.Has(id) {
			return
		}
		stop := m.Route.Stops[m.NextStopIx]
		dest := s.marketSite(id, stop.Where)

		if site, ok := ws.Site.Get(id); ok {
			s.travel(id, site, stop.Where, dest, dt)
			return
		}
		if !ws.StopSatisfied(id, stop) {
			return
		}
		ws.LeaveRoster(stop.Where, id)
		ws.Site.Set(id, &component.Site{Position: dest})
		m.NextStopIx = (m.NextStopIx + 1) % len(m.Route.Stops)
		ws.BidToward(id, m.Route.Stops[m.NextStopIx])
		s.log.Debug("merchant departed",
			zap.String("merchant", ws.NameOf(id)),
			zap.String("from", ws.NameOf(stop.Where)),
			zap.Int("next_stop", m.NextStopIx),
		)
	})
}

// marketSite returns the position of a route stop. Routes are assumed valid
// for the lifetime of the world, so a vanished market is a broken invariant.
func (s *MerchantSystem) marketSite(merchant, market ecs.EntityID) geom.Vec2 {
	site, ok := s.world.Site.Get(market)
	if !ok || !s.world.Market.Has(market) {
		panic(fmt.Sprintf("merchant %s routed to missing market %s", merchant, market))
	}
	return site.Position
}

func (s *MerchantSystem) travel(id ecs.EntityID, site *component.Site, market ecs.EntityID, dest geom.Vec2, dt float64) {
	ws := s.world
	step := MerchantSpeed * dt
	if site.Position.Dist(dest) <= step {
		ws.Site.Remove(id)
		ws.JoinRoster(market, id)
		s.log.Debug("merchant docked",
			zap.String("merchant", ws.NameOf(id)),
			zap.String("market", ws.NameOf(market)),
		)
		return
	}
	site.Position = site.Position.Add(dest.Sub(site.Position).Normalize().Scale(step))
}
