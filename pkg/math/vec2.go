package math

import "math"

// Vec2 is a 2D vector, used for ground-plane (XZ) directions.
type Vec2 struct {
	X, Y float64
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}

// Length returns the magnitude.
func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalize returns a unit vector.
func (v Vec2) Normalize() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Heading returns the angle in radians, measured from +Y towards +X.
// For an XZ direction this is the yaw that turns +Z onto the direction.
func (v Vec2) Heading() float64 {
	return math.Atan2(v.X, v.Y)
}
