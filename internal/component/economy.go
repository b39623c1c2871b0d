package component

import "github.com/tradewind/server/internal/core/ecs"

// NoFamily is the family id of traders that belong to nobody, such as a
// market's commons.
const NoFamily = -1

// Inventory holds physical quantities keyed by commodity entity.
type Inventory struct {
	Stock map[ecs.EntityID]int
}

// Demander accrues demand per second into its market's commons.
type Demander struct {
	Rate map[ecs.EntityID]float64
}

// Dweller tags population entities (dwellings).
type Dweller struct{}

// Trader is the unit of market participation. A positive bid wants to buy
// that quantity; a negative bid offers to sell.
type Trader struct {
	FamilyID int
	Bid      map[ecs.EntityID]float64
	Balance  float64
}

// Generator produces one commodity out of nothing while inside a market.
// Progress stays within [0, 1].
type Generator struct {
	Active   bool
	Output   ecs.EntityID
	Rate     float64
	Progress float64
}

// Producer converts a batch of inputs into outputs. Inputs are debited when
// a cycle starts, outputs are credited when Progress crosses 1.
type Producer struct {
	Inputs    map[ecs.EntityID]int
	Outputs   map[ecs.EntityID]int
	Rate      float64
	Producing bool
	Progress  float64
}

// Market is the hub that owns a commons trader and the roster of traders
// within Radius.
type Market struct {
	Prices     map[ecs.EntityID]float64
	Demand     map[ecs.EntityID]float64
	Commons    ecs.EntityID
	Trading    []ecs.EntityID
	Radius     float64
	Population int
	GrowthRate float64
	Growth     float64
}
