package jones

import (
	"math"
	"math/cmplx"
)

// Handedness classifies the rotation sense of the polarization ellipse.
type Handedness string

const (
	HandednessLinear Handedness = "linear"
	HandednessRight  Handedness = "right"
	HandednessLeft   Handedness = "left"
)

// Ellipse describes the polarization ellipse of a fully polarized state:
// its Stokes parameters and the derived geometry.
type Ellipse struct {
	S0             float64    `json:"s0"`             // Total intensity
	S1             float64    `json:"s1"`             // Horizontal/vertical preference
	S2             float64    `json:"s2"`             // +45/-45 preference
	S3             float64    `json:"s3"`             // Circular preference, >0 right-handed
	OrientationDeg float64    `json:"orientationDeg"` // Major axis azimuth, [-90, 90)
	EllipticityDeg float64    `json:"ellipticityDeg"` // Ellipticity angle, [-45, 45]
	SemiMajor      float64    `json:"semiMajor"`
	SemiMinor      float64    `json:"semiMinor"`
	Handedness     Handedness `json:"handedness"`
}

// Analyze computes the polarization ellipse of a state.
//
// With the e^{-i w t} time convention the field tip of a right-handed state
// (S3 > 0) traces the ellipse clockwise in the x-y plane; TraceEllipse
// produces a ring whose winding agrees with this classification.
func Analyze(s PolarizationState) Ellipse {
	ax := cmplx.Abs(s.Ex)
	ay := cmplx.Abs(s.Ey)
	cross := s.Ex * cmplx.Conj(s.Ey)

	e := Ellipse{
		S0: ax*ax + ay*ay,
		S1: ax*ax - ay*ay,
		S2: 2 * real(cross),
		S3: 2 * imag(cross),
	}
	if e.S0 < 1e-24 {
		e.Handedness = HandednessLinear
		return e
	}

	// Azimuth of the major axis, halved atan2 puts it in [-90, 90].
	e.OrientationDeg = 0.5 * math.Atan2(e.S2, e.S1) * 180 / math.Pi
	if e.OrientationDeg >= 90 {
		e.OrientationDeg -= 180
	}

	// Ellipticity angle from the circular fraction, clamped against
	// float noise pushing the asin argument past 1.
	frac := e.S3 / e.S0
	if frac > 1 {
		frac = 1
	} else if frac < -1 {
		frac = -1
	}
	chi := 0.5 * math.Asin(frac)
	e.EllipticityDeg = chi * 180 / math.Pi

	amp := math.Sqrt(e.S0)
	e.SemiMajor = amp * math.Cos(chi)
	e.SemiMinor = amp * math.Abs(math.Sin(chi))

	switch {
	case math.Abs(frac) < 1e-9:
		e.Handedness = HandednessLinear
	case frac > 0:
		e.Handedness = HandednessRight
	default:
		e.Handedness = HandednessLeft
	}
	return e
}

// InnerProduct returns the Hermitian inner product <a, b> with the
// conjugate on the first argument.
func InnerProduct(a, b PolarizationState) complex128 {
	return cmplx.Conj(a.Ex)*b.Ex + cmplx.Conj(a.Ey)*b.Ey
}

// DistanceUpToPhase returns the minimum Euclidean distance between a and
// e^{i phi} b over all global phases phi. Two states describing the same
// physical polarization are at distance zero regardless of phase.
func DistanceUpToPhase(a, b PolarizationState) float64 {
	d := a.Intensity() + b.Intensity() - 2*cmplx.Abs(InnerProduct(a, b))
	if d < 0 {
		d = 0
	}
	return math.Sqrt(d)
}
