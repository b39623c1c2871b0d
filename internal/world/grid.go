package world

import (
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/geom"
)

// Grid maps integer cells to the entity occupying them. It is unbounded as a
// map but placement treats [-w/2, w/2) × [-h/2, h/2) as the playable area.
// Only placement writes to it.
type Grid struct {
	cells  map[geom.Cell]ecs.EntityID
	owned  map[ecs.EntityID][]geom.Cell
	width  int32
	height int32
}

func NewGrid(width, height int32) *Grid {
	return &Grid{
		cells:  make(map[geom.Cell]ecs.EntityID),
		owned:  make(map[ecs.EntityID][]geom.Cell),
		width:  width,
		height: height,
	}
}

func (g *Grid) Width() int32  { return g.width }
func (g *Grid) Height() int32 { return g.height }

// InBounds reports whether c lies inside the playable area.
func (g *Grid) InBounds(c geom.Cell) bool {
	return c.X >= -g.width/2 && c.X < g.width/2 && c.Y >= -g.height/2 && c.Y < g.height/2
}

// Occupied returns the entity holding c, if any.
func (g *Grid) Occupied(c geom.Cell) (ecs.EntityID, bool) {
	id, ok := g.cells[c]
	return id, ok
}

// Reserve records id as the occupant of every cell.
func (g *Grid) Reserve(id ecs.EntityID, cells []geom.Cell) {
	for _, c := range cells {
		g.cells[c] = id
	}
	g.owned[id] = append(g.owned[id], cells...)
}

// Release frees every cell held by id.
func (g *Grid) Release(id ecs.EntityID) {
	for _, c := range g.owned[id] {
		if g.cells[c] == id {
			delete(g.cells, c)
		}
	}
	delete(g.owned, id)
}

// Cells returns the cells reserved by id.
func (g *Grid) Cells(id ecs.EntityID) []geom.Cell {
	return g.owned[id]
}

// Len returns the number of occupied cells.
func (g *Grid) Len() int {
	return len(g.cells)
}
