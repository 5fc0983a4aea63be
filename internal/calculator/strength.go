package calculator

import "math"

// Strength bounds shared by every method.
const (
	MinStrength = 1
	MaxStrength = 10
)

// ClampStrength bounds v to [MinStrength, MaxStrength].
func ClampStrength(v int) int {
	if v < MinStrength {
		return MinStrength
	}
	if v > MaxStrength {
		return MaxStrength
	}
	return v
}

// roundStrength rounds half away from zero, then clamps.
func roundStrength(f float64) int {
	if math.IsNaN(f) {
		return MinStrength
	}
	return ClampStrength(int(math.Round(f)))
}

// within reports whether a and b are closer than tol, relative to ref.
func within(a, b, ref, tol float64) bool {
	if ref == 0 {
		return a == b
	}
	return math.Abs(a-b)/math.Abs(ref) < tol
}
