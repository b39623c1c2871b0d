package event

import "github.com/tradewind/server/internal/core/ecs"

// TradeCompleted fires exactly once per matched trade. It is the on_trade
// signal consumed by audio, the ledger and anything else that listens.
type TradeCompleted struct {
	Market    ecs.EntityID
	Commodity ecs.EntityID
	Buyer     ecs.EntityID
	Seller    ecs.EntityID
	Units     int
	Price     float64
}

// EntitySpawned fires when an entity is instantiated from a blueprint.
type EntitySpawned struct {
	Entity    ecs.EntityID
	Blueprint ecs.EntityID
}

type EntityDestroyed struct {
	Entity ecs.EntityID
}

type PeerJoined struct {
	SessionID uint64
	FamilyID  int
	Nickname  string
}

type PeerLeft struct {
	SessionID uint64
}
