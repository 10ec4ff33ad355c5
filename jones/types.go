package jones

import (
	"encoding/json"
	"math"
	"math/cmplx"
)

// PolarizationState is a Jones vector: the complex amplitudes of the x and y
// components of a transverse electric field. Physical states carry unit norm
// (|Ex|^2 + |Ey|^2 = 1); intermediate results may not, e.g. after an absorbing
// element, so normalization is explicit rather than automatic.
type PolarizationState struct {
	Ex complex128
	Ey complex128
}

// JonesMatrix is a 2x2 complex operator acting on polarization states,
// laid out row-major: [[A, B], [C, D]].
type JonesMatrix struct {
	A complex128
	B complex128
	C complex128
	D complex128
}

// Identity returns the identity operator (no optical effect)
func Identity() JonesMatrix {
	return JonesMatrix{A: 1, B: 0, C: 0, D: 1}
}

// NewState builds a state from raw component amplitudes without normalizing
func NewState(ex, ey complex128) PolarizationState {
	return PolarizationState{Ex: ex, Ey: ey}
}

// Norm returns the Euclidean norm sqrt(|Ex|^2 + |Ey|^2)
func (s PolarizationState) Norm() float64 {
	return math.Sqrt(s.Intensity())
}

// Intensity returns the total optical intensity |Ex|^2 + |Ey|^2
func (s PolarizationState) Intensity() float64 {
	ax := cmplx.Abs(s.Ex)
	ay := cmplx.Abs(s.Ey)
	return ax*ax + ay*ay
}

// IsZero reports whether the state carries no field at all, as after a
// crossed polarizer. The threshold guards against float noise.
func (s PolarizationState) IsZero() bool {
	return s.Intensity() < 1e-24
}

// Normalized returns the state scaled to unit norm. A zero state is returned
// unchanged: there is no polarization direction to preserve.
func (s PolarizationState) Normalized() PolarizationState {
	n := s.Norm()
	if n < 1e-12 {
		return s
	}
	inv := complex(1/n, 0)
	return PolarizationState{Ex: s.Ex * inv, Ey: s.Ey * inv}
}

// Scale multiplies both components by a complex factor
func (s PolarizationState) Scale(f complex128) PolarizationState {
	return PolarizationState{Ex: s.Ex * f, Ey: s.Ey * f}
}

// Distance returns the Euclidean distance between two states treated as
// vectors in C^2: sqrt(|a.Ex-b.Ex|^2 + |a.Ey-b.Ey|^2). Phase sensitive;
// DistanceUpToPhase ignores the unobservable global phase.
func (s PolarizationState) Distance(o PolarizationState) float64 {
	return math.Sqrt(s.DistanceSq(o))
}

// DistanceSq returns the sum of squared component magnitude differences,
// the residual the angle search minimizes.
func (s PolarizationState) DistanceSq(o PolarizationState) float64 {
	dx := cmplx.Abs(s.Ex - o.Ex)
	dy := cmplx.Abs(s.Ey - o.Ey)
	return dx*dx + dy*dy
}

// stateJSON is the wire form of a state: each component as a [re, im] pair.
type stateJSON struct {
	Ex [2]float64 `json:"ex"`
	Ey [2]float64 `json:"ey"`
}

// MarshalJSON encodes the state with each complex component as a [re, im] pair
func (s PolarizationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Ex: [2]float64{real(s.Ex), imag(s.Ex)},
		Ey: [2]float64{real(s.Ey), imag(s.Ey)},
	})
}

// UnmarshalJSON decodes the [re, im] pair encoding produced by MarshalJSON
func (s *PolarizationState) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Ex = complex(raw.Ex[0], raw.Ex[1])
	s.Ey = complex(raw.Ey[0], raw.Ey[1])
	return nil
}
