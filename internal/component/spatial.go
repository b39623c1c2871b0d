package component

import "github.com/tradewind/server/internal/geom"

// Footprint is the integer grid extent an entity reserves when placed.
type Footprint struct {
	Dimensions geom.Cell
}

// Site is the entity's current world position. Present only while placed;
// a docked merchant has none.
type Site struct {
	Position geom.Vec2
}
