package geom

import "math"

// Vec2 is a continuous world position or direction.
type Vec2 struct {
	X float64
	Y float64
}

func V(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

func (v Vec2) Add(o Vec2) Vec2               { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2               { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(k float64) Vec2          { return Vec2{v.X * k, v.Y * k} }
func (v Vec2) Len() float64                  { return math.Hypot(v.X, v.Y) }
func (v Vec2) Dist(o Vec2) float64           { return v.Sub(o).Len() }
func (v Vec2) Within(o Vec2, r float64) bool { return v.Dist(o) <= r }

// Normalize returns the unit vector in v's direction, or the zero vector.
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Cell is an integer grid coordinate. Also used for integer extents.
type Cell struct {
	X int32
	Y int32
}

func C(x, y int32) Cell { return Cell{X: x, Y: y} }

// Vec returns the cell as a continuous position.
func (c Cell) Vec() Vec2 { return Vec2{float64(c.X), float64(c.Y)} }

// Rect enumerates the cells of a w×h rectangle whose top-left is c.
func (c Cell) Rect(dims Cell) []Cell {
	if dims.X <= 0 || dims.Y <= 0 {
		return nil
	}
	out := make([]Cell, 0, int(dims.X)*int(dims.Y))
	for y := int32(0); y < dims.Y; y++ {
		for x := int32(0); x < dims.X; x++ {
			out = append(out, Cell{c.X + x, c.Y + y})
		}
	}
	return out
}
