package jones

import (
	"math"
	"math/cmplx"
)

// Mul returns the matrix product a*b.
// Applying the result is equivalent to applying b first, then a.
func Mul(a, b JonesMatrix) JonesMatrix {
	return JonesMatrix{
		A: a.A*b.A + a.B*b.C,
		B: a.A*b.B + a.B*b.D,
		C: a.C*b.A + a.D*b.C,
		D: a.C*b.B + a.D*b.D,
	}
}

// Apply returns the matrix-vector product m * s:
//
//	Ex' = A*Ex + B*Ey
//	Ey' = C*Ex + D*Ey
func Apply(m JonesMatrix, s PolarizationState) PolarizationState {
	return PolarizationState{
		Ex: m.A*s.Ex + m.B*s.Ey,
		Ey: m.C*s.Ex + m.D*s.Ey,
	}
}

// Rotation returns the real rotation matrix for an angle in degrees:
// [[cos, -sin], [sin, cos]]
func Rotation(deg float64) JonesMatrix {
	rad := deg * math.Pi / 180
	c := complex(math.Cos(rad), 0)
	s := complex(math.Sin(rad), 0)
	return JonesMatrix{A: c, B: -s, C: s, D: c}
}

// Rotated returns the element m with its axes reoriented by deg degrees:
// R(deg) * m * R(-deg)
func Rotated(m JonesMatrix, deg float64) JonesMatrix {
	return Mul(Rotation(deg), Mul(m, Rotation(-deg)))
}

// Polarizer returns an ideal linear polarizer with its transmission axis
// along x: [[1,0],[0,0]]. It is a lossy projection, not unitary: horizontal
// light passes unchanged, vertical light is annihilated.
func Polarizer() JonesMatrix {
	return JonesMatrix{A: 1}
}

// Retarder returns a wave plate with retardance gamma (radians), fast axis
// along x, in the symmetric-phase convention: phase -gamma/2 on Ex, +gamma/2
// on Ey. Unitary with determinant 1, so squaring a quarter-wave plate gives
// a half-wave plate exactly rather than up to a global phase.
func Retarder(gamma float64) JonesMatrix {
	return JonesMatrix{
		A: cmplx.Exp(complex(0, -gamma/2)),
		D: cmplx.Exp(complex(0, gamma/2)),
	}
}

// QuarterWave returns a quarter-wave plate at zero orientation (gamma = pi/2)
func QuarterWave() JonesMatrix {
	return Retarder(math.Pi / 2)
}

// HalfWave returns a half-wave plate at zero orientation (gamma = pi)
func HalfWave() JonesMatrix {
	return Retarder(math.Pi)
}

// PolarizerAt returns a linear polarizer with its transmission axis at deg degrees
func PolarizerAt(deg float64) JonesMatrix {
	return Rotated(Polarizer(), deg)
}

// QuarterWaveAt returns a quarter-wave plate with its fast axis at deg degrees
func QuarterWaveAt(deg float64) JonesMatrix {
	return Rotated(QuarterWave(), deg)
}

// HalfWaveAt returns a half-wave plate with its fast axis at deg degrees
func HalfWaveAt(deg float64) JonesMatrix {
	return Rotated(HalfWave(), deg)
}

// NormalizeAngle normalizes an angle in degrees to the range [0, 360)
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// SignedAngle normalizes an angle in degrees to the range [-180, 180)
func SignedAngle(deg float64) float64 {
	deg = NormalizeAngle(deg)
	if deg >= 180 {
		deg -= 360
	}
	return deg
}
