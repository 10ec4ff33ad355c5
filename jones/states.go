package jones

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// invSqrt2 normalizes the equal-amplitude presets.
const invSqrt2 = 1 / math.Sqrt2

// Horizontal returns linear polarization along x: [1, 0]
func Horizontal() PolarizationState {
	return PolarizationState{Ex: 1, Ey: 0}
}

// Vertical returns linear polarization along y: [0, 1]
func Vertical() PolarizationState {
	return PolarizationState{Ex: 0, Ey: 1}
}

// Diagonal returns linear polarization at +45°: [1, 1]/√2
func Diagonal() PolarizationState {
	return PolarizationState{Ex: complex(invSqrt2, 0), Ey: complex(invSqrt2, 0)}
}

// Antidiagonal returns linear polarization at -45°: [1, -1]/√2
func Antidiagonal() PolarizationState {
	return PolarizationState{Ex: complex(invSqrt2, 0), Ey: complex(-invSqrt2, 0)}
}

// RightCircular returns right circular polarization: [1, -i]/√2.
// With the e^{-iωt} time convention the field tip traces clockwise when
// viewed against the propagation direction.
func RightCircular() PolarizationState {
	return PolarizationState{Ex: complex(invSqrt2, 0), Ey: complex(0, -invSqrt2)}
}

// LeftCircular returns left circular polarization: [1, +i]/√2
func LeftCircular() PolarizationState {
	return PolarizationState{Ex: complex(invSqrt2, 0), Ey: complex(0, invSqrt2)}
}

// PresetNames lists the named preset states in display order.
func PresetNames() []string {
	return []string{"H", "V", "+45", "-45", "RCP", "LCP"}
}

// StateByName resolves a preset name to its state. Matching is
// case-insensitive and accepts the common long forms.
func StateByName(name string) (PolarizationState, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "H", "HORIZONTAL":
		return Horizontal(), true
	case "V", "VERTICAL":
		return Vertical(), true
	case "+45", "D", "DIAGONAL":
		return Diagonal(), true
	case "-45", "A", "ANTIDIAGONAL":
		return Antidiagonal(), true
	case "RCP", "R", "RIGHT-CIRCULAR":
		return RightCircular(), true
	case "LCP", "L", "LEFT-CIRCULAR":
		return LeftCircular(), true
	}
	return PolarizationState{}, false
}

// RandomState draws a state uniformly from the unit sphere in C^2 by
// normalizing four iid standard normal draws. A nil rng falls back to a
// time-seeded source.
func RandomState(rng *rand.Rand) PolarizationState {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	for {
		s := PolarizationState{
			Ex: complex(rng.NormFloat64(), rng.NormFloat64()),
			Ey: complex(rng.NormFloat64(), rng.NormFloat64()),
		}
		// Resample on the (measure-zero) chance all four draws are tiny.
		if s.Norm() > 1e-6 {
			return s.Normalized()
		}
	}
}
