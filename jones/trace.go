package jones

import (
	"math"
	"math/cmplx"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"gonum.org/v1/gonum/floats"
)

// fieldAt returns the instantaneous real field (x, y) at the given phase
// of the optical cycle: E(t) = Re{(Ex, Ey) e^{-i phase}}.
func fieldAt(s PolarizationState, phase float64) (float64, float64) {
	rot := cmplx.Exp(complex(0, -phase))
	return real(s.Ex * rot), real(s.Ey * rot)
}

// TraceEllipse samples the tip of the real electric field over one optical
// period and returns the closed x-y curve as a ring. The ring winding
// encodes handedness: a right-handed state (S3 > 0) traces clockwise, so
// Orientation() returns orb.CW for it.
func TraceEllipse(s PolarizationState, samples int) orb.Ring {
	if samples < 3 {
		samples = 256
	}
	ring := make(orb.Ring, 0, samples+1)
	for i := 0; i < samples; i++ {
		phase := 2 * math.Pi * float64(i) / float64(samples)
		x, y := fieldAt(s, phase)
		ring = append(ring, orb.Point{x, y})
	}
	// Close the ring back at phase zero.
	ring = append(ring, ring[0])
	return ring
}

// TraceProjections samples the two orthogonal time-domain projections of
// the field, x(t) and y(t), over the given number of optical periods. Time
// is normalized to periods on the first coordinate.
func TraceProjections(s PolarizationState, samples, periods int) (orb.LineString, orb.LineString) {
	if samples < 2 {
		samples = 256
	}
	if periods < 1 {
		periods = 2
	}
	xs := make(orb.LineString, 0, samples)
	ys := make(orb.LineString, 0, samples)
	for _, t := range floats.Span(make([]float64, samples), 0, float64(periods)) {
		x, y := fieldAt(s, 2*math.Pi*t)
		xs = append(xs, orb.Point{t, x})
		ys = append(ys, orb.Point{t, y})
	}
	return xs, ys
}

// SimplifyTrace reduces a trace with Douglas-Peucker at the given tolerance.
// Endpoints are preserved. Returns the input unchanged if simplification
// produces an unexpected geometry type.
func SimplifyTrace(line orb.LineString, tolerance float64) orb.LineString {
	if len(line) <= 2 || tolerance <= 0 {
		return line
	}
	simplified := simplify.DouglasPeucker(tolerance).Simplify(line.Clone())
	result, ok := simplified.(orb.LineString)
	if !ok {
		return line
	}
	return result
}

// SimplifyRing reduces a closed trace with Douglas-Peucker at the given
// tolerance, keeping the ring closed.
func SimplifyRing(ring orb.Ring, tolerance float64) orb.Ring {
	if len(ring) <= 4 || tolerance <= 0 {
		return ring
	}
	simplified := simplify.DouglasPeucker(tolerance).Simplify(ring.Clone())
	result, ok := simplified.(orb.Ring)
	if !ok {
		return ring
	}
	return result
}

// ResampleTrace redistributes a trace to exactly count points spaced
// uniformly by arc length, preserving both endpoints.
func ResampleTrace(line orb.LineString, count int) orb.LineString {
	if count < 2 || len(line) < 2 {
		return line
	}

	// Cumulative arc length along the polyline.
	cumLen := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		dx := line[i][0] - line[i-1][0]
		dy := line[i][1] - line[i-1][1]
		cumLen[i] = cumLen[i-1] + math.Hypot(dx, dy)
	}
	total := cumLen[len(cumLen)-1]
	if total == 0 {
		// Degenerate trace, all points coincide.
		out := make(orb.LineString, count)
		for i := range out {
			out[i] = line[0]
		}
		return out
	}

	// Uniformly spaced arc-length stops, endpoints pinned below.
	targets := floats.Span(make([]float64, count), 0, total)

	out := make(orb.LineString, 0, count)
	out = append(out, line[0])
	seg := 1
	for i := 1; i < count-1; i++ {
		targetLen := targets[i]
		for seg < len(line)-1 && cumLen[seg] < targetLen {
			seg++
		}
		segLen := cumLen[seg] - cumLen[seg-1]
		frac := 0.0
		if segLen > 0 {
			frac = (targetLen - cumLen[seg-1]) / segLen
		}
		out = append(out, orb.Point{
			line[seg-1][0] + frac*(line[seg][0]-line[seg-1][0]),
			line[seg-1][1] + frac*(line[seg][1]-line[seg-1][1]),
		})
	}
	out = append(out, line[len(line)-1])
	return out
}
