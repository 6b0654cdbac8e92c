// Package utils contains small numeric, error and goroutine helpers shared by the arm packages.
package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// NormalizeDeg wraps an angle into (-180, 180].
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// Round rounds f to the given number of decimal places.
func Round(f float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(f*shift) / shift
}

const epsilon = 1e-6

// Float64AlmostEqual compares two float64s and returns if the difference between them is less than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// AlmostZero reports whether f is within 1e-6 of zero.
func AlmostZero(f float64) bool {
	return Float64AlmostEqual(f, 0, epsilon)
}

// AbsInt64 returns the absolute value of n.
func AbsInt64(n int64) int64 {
	if n < 0 {
		return -1 * n
	}
	return n
}

// Clamp limits f to [low, high].
func Clamp(f, low, high float64) float64 {
	return math.Max(low, math.Min(high, f))
}
