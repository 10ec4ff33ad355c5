package jones

import (
	"fmt"
	"strings"
)

// Summary bundles a state with its derived ellipse and display text, the
// per-bench document served by the summary endpoint.
type Summary struct {
	State   PolarizationState `json:"state"`
	Ellipse Ellipse           `json:"ellipse"`
	Text    string            `json:"text"`
}

// Summarize builds the full summary for a state
func Summarize(s PolarizationState) Summary {
	return Summary{State: s, Ellipse: Analyze(s), Text: Describe(s)}
}

// Describe renders a state as a two-line text block, all numbers to two
// decimals:
//
//	Ex = +0.71+0.00i  Ey = +0.00-0.71i
//	intensity = 1.00  orientation = 0.00°  ellipticity = -45.00°  handedness = right
func Describe(s PolarizationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ex = %s  Ey = %s\n", formatComplex(s.Ex), formatComplex(s.Ey))
	if s.IsZero() {
		b.WriteString("no field (zero state)\n")
		return b.String()
	}
	e := Analyze(s)
	fmt.Fprintf(&b, "intensity = %.2f  orientation = %.2f°  ellipticity = %.2f°  handedness = %s\n",
		e.S0, fixZero(e.OrientationDeg), fixZero(e.EllipticityDeg), e.Handedness)
	return b.String()
}

// String renders the state compactly as "[+0.71+0.00i, +0.00-0.71i]"
func (s PolarizationState) String() string {
	return fmt.Sprintf("[%s, %s]", formatComplex(s.Ex), formatComplex(s.Ey))
}

// formatComplex renders a complex amplitude with signed two-decimal parts
func formatComplex(c complex128) string {
	return fmt.Sprintf("%+.2f%+.2fi", fixZero(real(c)), fixZero(imag(c)))
}

// fixZero collapses negative zero so summaries never print "-0.00"
func fixZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}
