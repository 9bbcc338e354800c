// Package grid maps integer tile coordinates to cell identifiers and their movement costs.
package grid

import "fmt"

// Coord identifies a tile. Y is always 0 on the current maps but kept so
// coordinates line up with 3D world positions.
type Coord struct {
	X, Y, Z int
}

// C is shorthand for a ground-level coordinate.
func C(x, z int) Coord {
	return Coord{X: x, Z: z}
}

// Add returns c offset by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{c.X + d.X, c.Y + d.Y, c.Z + d.Z}
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Direction is one step of the 8-neighborhood.
type Direction struct {
	Offset   Coord
	Diagonal bool
}

// Neighbors8 lists the eight ground-plane steps, cardinals and diagonals alternating.
var Neighbors8 = [8]Direction{
	{Coord{0, 0, 1}, false},  // S
	{Coord{-1, 0, 1}, true},  // SW
	{Coord{-1, 0, 0}, false}, // W
	{Coord{-1, 0, -1}, true}, // NW
	{Coord{0, 0, -1}, false}, // N
	{Coord{1, 0, -1}, true},  // NE
	{Coord{1, 0, 0}, false},  // E
	{Coord{1, 0, 1}, true},   // SE
}
