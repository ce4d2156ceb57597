// Package wheel maps a spin outcome to a wheel rotation and back.
//
// Segments are laid out clockwise starting at the pointer position (-90°, top-center).
// Segment i spans [-90 + i·arc, -90 + (i+1)·arc) where arc = 360/count. All angles are in degrees.
package wheel

import "math"

const (
	MinSegments = 1
	MaxSegments = 15

	// PointerAngle is where the fixed pointer sits, expressed in [0, 360).
	PointerAngle = 270.0

	defaultJitter = 5.0
)

// jitterHalfWidths is indexed by segment count.
var jitterHalfWidths = map[int]float64{
	2:  90,
	3:  60,
	4:  45,
	5:  36,
	6:  30,
	7:  25,
	8:  22,
	9:  20,
	10: 18,
	11: 16,
	12: 15,
	13: 13,
	14: 12,
	15: 12,
}

// Normalize maps any angle into [0, 360).
func Normalize(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// Arc returns the angular width of one segment.
func Arc(count int) float64 {
	return 360 / float64(count)
}

// StartAngle returns the normalized start of segment i.
func StartAngle(count, i int) float64 {
	return Normalize(-90 + float64(i)*Arc(count))
}

// EndAngle returns the normalized (exclusive) end of segment i.
func EndAngle(count, i int) float64 {
	return Normalize(-90 + float64(i+1)*Arc(count))
}

// CenterAngle returns the normalized center of segment i.
func CenterAngle(count, i int) float64 {
	arc := Arc(count)
	return Normalize(-90 + float64(i)*arc + arc/2)
}

// JitterHalfWidth returns the half-width of the random window used around a forced segment center.
func JitterHalfWidth(count int) float64 {
	if w, ok := jitterHalfWidths[count]; ok {
		return w
	}
	return defaultJitter
}

// SegmentAt returns the index of the segment whose arc contains angle, or -1.
// A segment whose normalized start is not below its end wraps through 0°.
func SegmentAt(count int, angle float64) int {
	angle = Normalize(angle)
	for i := 0; i < count; i++ {
		start, end := StartAngle(count, i), EndAngle(count, i)
		if start < end {
			if angle >= start && angle < end {
				return i
			}
			continue
		}
		if angle >= start || angle < end {
			return i
		}
	}
	return -1
}

// RotationFor returns the clockwise rotation in [0, 360) that brings angle under the pointer.
func RotationFor(angle float64) float64 {
	return Normalize(PointerAngle - Normalize(angle) + 360)
}

// PinAngle returns the unrotated wheel angle sitting under the pointer after a total rotation.
func PinAngle(rotation float64) float64 {
	return Normalize(-90 - Normalize(rotation) + 360)
}
