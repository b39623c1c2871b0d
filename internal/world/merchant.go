package world

import (
	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
)

// Embark installs route on merchant and sets its bids toward the first stop.
// This is the only entry point into the itinerary cycle.
func (s *State) Embark(merchant ecs.EntityID, route component.Route) {
	if len(route.Stops) == 0 {
		panic("world: embark on an empty route")
	}
	m := s.Merchant.MustGet(merchant)
	r := route
	m.Route = &r
	m.NextStopIx = 0
	s.BidToward(merchant, r.Stops[0])
}

// BidToward sets merchant's bids to the difference between what stop requires
// it to leave with and what it holds: negative sells, positive buys.
func (s *State) BidToward(merchant ecs.EntityID, stop component.Stop) {
	t := s.Trader.MustGet(merchant)
	inv := s.Inventory.MustGet(merchant)
	t.Bid = make(map[ecs.EntityID]float64, len(s.commodities))
	for _, c := range s.commodities {
		if delta := stop.LeaveWith[c] - inv.Stock[c]; delta != 0 {
			t.Bid[c] = float64(delta)
		}
	}
}

// StopSatisfied reports whether the merchant's stock matches stop exactly
// for every known commodity.
func (s *State) StopSatisfied(merchant ecs.EntityID, stop component.Stop) bool {
	inv := s.Inventory.MustGet(merchant)
	for _, c := range s.commodities {
		if inv.Stock[c] != stop.LeaveWith[c] {
			return false
		}
	}
	return true
}
