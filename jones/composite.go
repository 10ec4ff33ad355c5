package jones

import "fmt"

// Element kinds accepted in apply chains and scenario files.
const (
	ElementPolarizer = "polarizer"
	ElementQuarter   = "quarter"
	ElementHalf      = "half"
)

// QuarterHalfQuarter returns the composite operator of a quarter-wave plate
// at theta1, a half-wave plate at theta2 and a quarter-wave plate at theta3,
// in that optical order: Q(theta3) * H(theta2) * Q(theta1). The theta1 plate
// acts on the state first; the product does not commute.
//
// With det-1 retarders this stack ranges over all of SU(2), so a suitable
// angle triple maps any fully polarized state onto any other.
func QuarterHalfQuarter(theta1, theta2, theta3 float64) JonesMatrix {
	return Mul(QuarterWaveAt(theta3), Mul(HalfWaveAt(theta2), QuarterWaveAt(theta1)))
}

// Element is one optical element in an apply chain: a kind plus the
// orientation of its axis in degrees.
type Element struct {
	Type  string  `json:"type" yaml:"type"`
	Angle float64 `json:"angle" yaml:"angle"`
}

// Matrix returns the Jones matrix for the element at its orientation
func (e Element) Matrix() (JonesMatrix, error) {
	switch e.Type {
	case ElementPolarizer:
		return PolarizerAt(e.Angle), nil
	case ElementQuarter:
		return QuarterWaveAt(e.Angle), nil
	case ElementHalf:
		return HalfWaveAt(e.Angle), nil
	}
	return JonesMatrix{}, fmt.Errorf("unknown element type %q (want polarizer, quarter or half)", e.Type)
}

// String renders the element as e.g. "quarter @ 15.00°"
func (e Element) String() string {
	return fmt.Sprintf("%s @ %.2f°", e.Type, SignedAngle(e.Angle))
}

// ApplyChain passes the state through each element in order (first element
// first) and returns the final state.
func ApplyChain(s PolarizationState, elements []Element) (PolarizationState, error) {
	out := s
	for i, e := range elements {
		m, err := e.Matrix()
		if err != nil {
			return PolarizationState{}, fmt.Errorf("element %d: %w", i, err)
		}
		out = Apply(m, out)
	}
	return out, nil
}

// ChainMatrix composes an element chain into a single operator. Applying it
// is equivalent to ApplyChain over the same elements.
func ChainMatrix(elements []Element) (JonesMatrix, error) {
	m := Identity()
	for i, e := range elements {
		em, err := e.Matrix()
		if err != nil {
			return JonesMatrix{}, fmt.Errorf("element %d: %w", i, err)
		}
		m = Mul(em, m)
	}
	return m, nil
}
