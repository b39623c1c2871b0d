package component

import "github.com/tradewind/server/internal/core/ecs"

// Merchant drives a trader along a cyclic route of market stops.
type Merchant struct {
	Route      *Route
	NextStopIx int
}

type Route struct {
	Stops []Stop
}

// Stop is one market visit. The merchant leaves Where only once its stock
// matches LeaveWith exactly; commodities absent from LeaveWith mean zero.
type Stop struct {
	Where     ecs.EntityID
	LeaveWith map[ecs.EntityID]int
}
