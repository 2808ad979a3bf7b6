// Package angle provides the two degree conventions used throughout the
// autopilot: compass headings in [0, 360) and signed orientations in
// (-180, +180]. Keeping them as distinct types prevents the two from being
// silently mixed in arithmetic.
package angle

import "math"

// Heading is a compass bearing in [0, 360), measured clockwise from
// geographic north.
type Heading float64

// SignedAngle is an orientation in (-180, +180] relative to a local zero.
type SignedAngle float64

// Normalize maps any real degree value into (-180, +180].
func Normalize(a float64) SignedAngle {
	if math.IsNaN(a) {
		return SignedAngle(a)
	}
	a = math.Mod(a, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return SignedAngle(a)
}

// Normalize returns a itself reduced into (-180, +180].
func (a SignedAngle) Normalize() SignedAngle {
	return Normalize(float64(a))
}

// ToHeading reduces a into [0, 360).
func (a SignedAngle) ToHeading() Heading {
	h := math.Mod(float64(a), 360)
	if h < 0 {
		h += 360
	}
	return Heading(h)
}

// Signed reduces h into (-180, +180].
func (h Heading) Signed() SignedAngle {
	return Normalize(float64(h))
}

// IsNaN reports whether a is NaN, used throughout the autopilot geometry
// to represent "no target".
func (a SignedAngle) IsNaN() bool {
	return math.IsNaN(float64(a))
}
