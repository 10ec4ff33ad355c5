package jones

import (
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer renders polarization traces as vector graphics. The canvas
// is square with the field origin at its center; canvas y grows upward, so
// field coordinates map without a flip and the trace winding on screen
// matches the physical rotation sense.
type VectorRenderer struct {
	Traces            []TraceSpec
	Size              float64 // Canvas side in millimeters (default 160)
	Padding           float64 // Padding in millimeters
	Samples           int
	Grid              bool
	SimplifyTolerance float64           // Douglas-Peucker tolerance in field units; 0 disables
	Resolution        canvas.Resolution // Resolution for PNG output (default: 300 DPI)
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer() *VectorRenderer {
	return &VectorRenderer{
		Size:              160.0,
		Padding:           12.0,
		Samples:           256,
		Grid:              true,
		SimplifyTolerance: 0.002,           // Field units, invisible at print scale
		Resolution:        canvas.DPI(300), // 300 DPI default for PNG output
	}
}

// Configure applies settings from the render config section
func (r *VectorRenderer) Configure(rc RenderConfig) {
	if rc.Samples > 0 {
		r.Samples = rc.Samples
	}
	if rc.SimplifyTolerance > 0 {
		r.SimplifyTolerance = rc.SimplifyTolerance
	}
	r.Grid = rc.GridEnabled()
}

// AddTrace appends a labeled state drawn in the given color
func (r *VectorRenderer) AddTrace(label string, s PolarizationState, c color.RGBA) {
	r.Traces = append(r.Traces, TraceSpec{Label: label, State: s, Color: c})
}

// AddTraceHex appends a labeled state drawn in a hex color like "#00AAFF"
func (r *VectorRenderer) AddTraceHex(label string, s PolarizationState, hex string) {
	r.AddTrace(label, s, parseHexColor(hex))
}

// AddMutedTrace appends a secondary trace, drawn faded and dashed
func (r *VectorRenderer) AddMutedTrace(label string, s PolarizationState, c color.RGBA) {
	r.Traces = append(r.Traces, TraceSpec{Label: label, State: s, Color: c, Muted: true})
}

// AddMutedTraceHex appends a secondary trace in a hex color like "#00AAFF"
func (r *VectorRenderer) AddMutedTraceHex(label string, s PolarizationState, hex string) {
	r.AddMutedTrace(label, s, parseHexColor(hex))
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the traces as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	size := r.size()

	svgRenderer := svg.New(w, size, size, nil)
	r.renderToCanvas(svgRenderer, size)

	// Close SVG renderer to write closing tags
	return svgRenderer.Close()
}

// RenderToPNG writes the traces as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	size := r.size()

	rast := rasterizer.New(size, size, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, size)

	// Rasterizer implements draw.Image, which embeds image.Image
	return png.Encode(w, rast)
}

// SaveSVG renders the traces to an SVG file
func (r *VectorRenderer) SaveSVG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.RenderToSVG(f)
}

func (r *VectorRenderer) size() float64 {
	if r.Size <= 0 {
		return 160.0
	}
	return r.Size
}

// extent returns the symmetric plot range in field units, never below one
// so the unit circle guide always fits.
func (r *VectorRenderer) extent() float64 {
	extent := 1.0
	for _, t := range r.Traces {
		if amp := math.Sqrt(t.State.Intensity()); amp > extent {
			extent = amp
		}
	}
	return extent * 1.15
}

// renderToCanvas draws the full scene onto a canvas renderer (shared logic
// for SVG and PNG output).
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, size float64) {
	// Draw white background
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(size, size), bgStyle, canvas.Identity)

	extent := r.extent()
	scale := (size/2 - r.Padding) / extent
	center := size / 2

	// Helper to transform field coords to canvas coords
	toCanvas := func(p orb.Point) (float64, float64) {
		return center + p[0]*scale, center + p[1]*scale
	}

	// Grid lines every half field unit, dashed
	if r.Grid {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.3
		gridStyle.Dashes = []float64{1.5, 1.5}

		for g := 0.5; g < extent; g += 0.5 {
			for _, off := range []float64{g * scale, -g * scale} {
				v := &canvas.Path{}
				v.MoveTo(center+off, r.Padding)
				v.LineTo(center+off, size-r.Padding)
				renderer.RenderPath(v, gridStyle, canvas.Identity)

				h := &canvas.Path{}
				h.MoveTo(r.Padding, center+off)
				h.LineTo(size-r.Padding, center+off)
				renderer.RenderPath(h, gridStyle, canvas.Identity)
			}
		}
	}

	// Axes through the origin
	axisStyle := canvas.DefaultStyle
	axisStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	axisStyle.Stroke = canvas.Paint{Color: color.RGBA{150, 150, 150, 255}}
	axisStyle.StrokeWidth = 0.4

	xAxis := &canvas.Path{}
	xAxis.MoveTo(r.Padding, center)
	xAxis.LineTo(size-r.Padding, center)
	renderer.RenderPath(xAxis, axisStyle, canvas.Identity)

	yAxis := &canvas.Path{}
	yAxis.MoveTo(center, r.Padding)
	yAxis.LineTo(center, size-r.Padding)
	renderer.RenderPath(yAxis, axisStyle, canvas.Identity)

	// Unit amplitude guide circle
	guideStyle := canvas.DefaultStyle
	guideStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	guideStyle.Stroke = canvas.Paint{Color: color.RGBA{205, 205, 205, 255}}
	guideStyle.StrokeWidth = 0.3

	guide := canvas.Circle(scale).Translate(center, center)
	renderer.RenderPath(guide, guideStyle, canvas.Identity)

	samples := r.Samples
	if samples < 3 {
		samples = 256
	}

	// Trace each state, secondary traces dashed behind the primary ones
	for _, t := range r.Traces {
		c := t.Color
		if t.Muted {
			c = mutedColor(c)
		}

		ring := TraceEllipse(t.State, samples)
		if r.SimplifyTolerance > 0 {
			ring = SimplifyRing(ring, r.SimplifyTolerance)
		}

		traceStyle := canvas.DefaultStyle
		traceStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		traceStyle.Stroke = canvas.Paint{Color: c}
		traceStyle.StrokeWidth = 0.8
		if t.Muted {
			traceStyle.StrokeWidth = 0.6
			traceStyle.Dashes = []float64{2.0, 1.5}
		}

		cp := &canvas.Path{}
		for i, pt := range ring {
			x, y := toCanvas(pt)
			if i == 0 {
				cp.MoveTo(x, y)
			} else {
				cp.LineTo(x, y)
			}
		}
		cp.Close()
		renderer.RenderPath(cp, traceStyle, canvas.Identity)

		r.drawMarker(renderer, t.State, ring, toCanvas, c)
	}
}

// drawMarker marks the phase-zero point of a trace and, for winding states,
// an arrowhead showing the travel direction an eighth into the cycle.
func (r *VectorRenderer) drawMarker(renderer canvasRenderer, s PolarizationState, ring orb.Ring, toCanvas func(orb.Point) (float64, float64), c color.RGBA) {
	if len(ring) < 2 {
		return
	}
	x0, y0 := toCanvas(ring[0])

	dotStyle := canvas.DefaultStyle
	dotStyle.Fill = canvas.Paint{Color: c}
	dotStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Circle(1.1).Translate(x0, y0), dotStyle, canvas.Identity)

	if Analyze(s).Handedness == HandednessLinear {
		return
	}

	i := len(ring) / 8
	if i+1 >= len(ring) {
		return
	}
	ax, ay := toCanvas(ring[i])
	bx, by := toCanvas(ring[i+1])
	angle := math.Atan2(by-ay, bx-ax)

	arrowStyle := canvas.DefaultStyle
	arrowStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	arrowStyle.Stroke = canvas.Paint{Color: c}
	arrowStyle.StrokeWidth = 0.8

	const barb = 2.4
	arrow := &canvas.Path{}
	for _, spread := range []float64{2.6, -2.6} {
		arrow.MoveTo(bx, by)
		arrow.LineTo(bx+barb*math.Cos(angle+spread), by+barb*math.Sin(angle+spread))
	}
	renderer.RenderPath(arrow, arrowStyle, canvas.Identity)
}

// RenderProjectionsToSVG writes the x(t) and y(t) projection curves as an
// SVG to the provided writer.
func (r *VectorRenderer) RenderProjectionsToSVG(w io.Writer) error {
	width, height := r.projectionSize()

	svgRenderer := svg.New(w, width, height, nil)
	r.renderProjectionsToCanvas(svgRenderer, width, height)

	return svgRenderer.Close()
}

// RenderProjectionsToPNG writes the x(t) and y(t) projection curves as a
// PNG to the provided writer.
func (r *VectorRenderer) RenderProjectionsToPNG(w io.Writer) error {
	width, height := r.projectionSize()

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderProjectionsToCanvas(rast, width, height)

	return png.Encode(w, rast)
}

// projectionSize returns the strip canvas dimensions, twice as wide as tall
func (r *VectorRenderer) projectionSize() (float64, float64) {
	size := r.size()
	return size, size / 2
}

// renderProjectionsToCanvas draws the time-domain projections over two
// optical periods on the shared amplitude scale. x(t) is the solid curve;
// y(t) sits thinner and faded behind it.
func (r *VectorRenderer) renderProjectionsToCanvas(renderer canvasRenderer, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	const periods = 2
	extent := r.extent()
	left := r.Padding
	right := width - r.Padding
	span := right - left
	midY := height / 2
	ampScale := (height/2 - r.Padding) / extent
	if span <= 0 || ampScale <= 0 {
		return
	}

	// Canvas y grows upward, so positive field values plot above the axis
	toCanvas := func(p orb.Point) (float64, float64) {
		return left + span*p[0]/periods, midY + p[1]*ampScale
	}

	// Time axis with a tick at each period boundary
	axisStyle := canvas.DefaultStyle
	axisStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	axisStyle.Stroke = canvas.Paint{Color: color.RGBA{150, 150, 150, 255}}
	axisStyle.StrokeWidth = 0.4

	axis := &canvas.Path{}
	axis.MoveTo(left, midY)
	axis.LineTo(right, midY)
	renderer.RenderPath(axis, axisStyle, canvas.Identity)

	for p := 0; p <= periods; p++ {
		tx := left + span*float64(p)/periods
		tick := &canvas.Path{}
		tick.MoveTo(tx, midY-1.5)
		tick.LineTo(tx, midY+1.5)
		renderer.RenderPath(tick, axisStyle, canvas.Identity)
	}

	samples := r.Samples
	if samples < 2 {
		samples = 256
	}

	for _, t := range r.Traces {
		c := t.Color
		if t.Muted {
			c = mutedColor(c)
		}

		xs, ys := TraceProjections(t.State, samples, periods)
		if r.SimplifyTolerance > 0 {
			xs = SimplifyTrace(xs, r.SimplifyTolerance)
			ys = SimplifyTrace(ys, r.SimplifyTolerance)
		}

		r.drawProjectionLine(renderer, ys, toCanvas, mutedColor(c), 0.5, t.Muted)
		r.drawProjectionLine(renderer, xs, toCanvas, c, 0.8, t.Muted)
	}
}

// drawProjectionLine strokes one open projection curve
func (r *VectorRenderer) drawProjectionLine(renderer canvasRenderer, line orb.LineString, toCanvas func(orb.Point) (float64, float64), c color.RGBA, strokeWidth float64, dashed bool) {
	if len(line) < 2 {
		return
	}

	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: canvas.Transparent}
	style.Stroke = canvas.Paint{Color: c}
	style.StrokeWidth = strokeWidth
	if dashed {
		style.Dashes = []float64{2.0, 1.5}
	}

	cp := &canvas.Path{}
	for i, pt := range line {
		x, y := toCanvas(pt)
		if i == 0 {
			cp.MoveTo(x, y)
		} else {
			cp.LineTo(x, y)
		}
	}
	renderer.RenderPath(cp, style, canvas.Identity)
}

// RenderStateSVG renders a single state's trace to an SVG file
func RenderStateSVG(s PolarizationState, path string) error {
	r := NewVectorRenderer()
	r.AddTrace("state", s, DefaultTraceColors()[0])
	return r.SaveSVG(path)
}

// RenderTransformSVG renders an input state and the output it maps to,
// input dashed behind the output.
func RenderTransformSVG(input, output PolarizationState, path string) error {
	r := NewVectorRenderer()
	colors := DefaultTraceColors()
	r.AddMutedTrace("input", input, colors[0])
	r.AddTrace("output", output, colors[1])
	return r.SaveSVG(path)
}
