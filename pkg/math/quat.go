package math

import "math"

// Up is the world vertical axis.
var Up = Vec3{X: 0, Y: 1, Z: 0}

// Quat represents a quaternion for 3D rotations.
// Components are stored as X, Y, Z, W where W is the scalar part.
type Quat struct {
	X, Y, Z, W float64
}

// QuatIdentity returns an identity quaternion (no rotation).
func QuatIdentity() Quat {
	return Quat{X: 0, Y: 0, Z: 0, W: 1}
}

// QuatFromAxisAngle creates a quaternion from axis-angle rotation.
// axis should be normalized, angle is in radians.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	s, c := math.Sincos(angle / 2)
	return Quat{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: c,
	}
}

// QuatLookAt returns the yaw-only rotation whose -Z axis points along dir
// projected onto the ground plane. A zero or vertical dir yields identity.
func QuatLookAt(dir Vec3) Quat {
	flat := dir.XZ()
	if flat.Length() < 1e-9 {
		return QuatIdentity()
	}
	return QuatFromAxisAngle(Up, math.Atan2(-flat.X, -flat.Y))
}

// Normalize returns a normalized quaternion.
func (q Quat) Normalize() Quat {
	length := math.Sqrt(q.Dot(q))
	if length < 1e-9 {
		return QuatIdentity()
	}
	inv := 1 / length
	return Quat{X: q.X * inv, Y: q.Y * inv, Z: q.Z * inv, W: q.W * inv}
}

// Dot returns the dot product of two quaternions.
func (q Quat) Dot(other Quat) float64 {
	return q.X*other.X + q.Y*other.Y + q.Z*other.Z + q.W*other.W
}

// Mul multiplies two quaternions (combines rotations, other applied first).
func (q Quat) Mul(other Quat) Quat {
	return Quat{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Yaw returns the heading of the rotated +Z axis in radians, measured from +Z towards +X.
func (q Quat) Yaw() float64 {
	f := q.Rotate(Vec3{Z: 1})
	return math.Atan2(f.X, f.Z)
}

// ApproxEqual reports whether q and other describe the same rotation within eps.
func (q Quat) ApproxEqual(other Quat, eps float64) bool {
	return 1-math.Abs(q.Normalize().Dot(other.Normalize())) <= eps
}
