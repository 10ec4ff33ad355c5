package jones

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultTraceColors returns distinct trace colors, strongest first
func DefaultTraceColors() []color.RGBA {
	return []color.RGBA{
		{30, 110, 220, 255}, // Blue
		{220, 60, 40, 255},  // Red
		{30, 160, 70, 255},  // Green
		{200, 150, 20, 255}, // Goldenrod
	}
}

// TraceSpec names one state to draw with its color
type TraceSpec struct {
	Label string
	State PolarizationState
	Color color.RGBA
	Muted bool // Secondary trace, faded toward the background
}

// EllipseRenderer renders polarization ellipse traces into a raster image:
// axes, optional grid, the unit amplitude guide circle, one closed trace per
// state with a handedness marker, and a time-domain projection strip.
type EllipseRenderer struct {
	Traces      []TraceSpec
	Width       int  // Canvas width in pixels (default 800)
	Height      int  // Canvas height in pixels (default 600)
	Samples     int  // Trace samples per optical period (default 256)
	Grid        bool // Background grid
	Projections bool // x(t), y(t) strip under the ellipse panel
	Padding     int
}

// NewEllipseRenderer creates a renderer with default settings
func NewEllipseRenderer() *EllipseRenderer {
	return &EllipseRenderer{
		Width:       800,
		Height:      600,
		Samples:     256,
		Grid:        true,
		Projections: true,
		Padding:     30,
	}
}

// Configure applies settings from the render config section
func (r *EllipseRenderer) Configure(rc RenderConfig) {
	if rc.Width > 0 {
		r.Width = rc.Width
	}
	if rc.Height > 0 {
		r.Height = rc.Height
	}
	if rc.Samples > 0 {
		r.Samples = rc.Samples
	}
	r.Grid = rc.GridEnabled()
}

// AddTrace appends a labeled state drawn in the given color
func (r *EllipseRenderer) AddTrace(label string, s PolarizationState, c color.RGBA) {
	r.Traces = append(r.Traces, TraceSpec{Label: label, State: s, Color: c})
}

// AddTraceHex appends a labeled state drawn in a hex color like "#00AAFF"
func (r *EllipseRenderer) AddTraceHex(label string, s PolarizationState, hex string) {
	r.AddTrace(label, s, parseHexColor(hex))
}

// AddMutedTrace appends a secondary trace faded toward the background
func (r *EllipseRenderer) AddMutedTrace(label string, s PolarizationState, c color.RGBA) {
	r.Traces = append(r.Traces, TraceSpec{Label: label, State: s, Color: c, Muted: true})
}

// AddMutedTraceHex appends a secondary trace in a hex color like "#00AAFF"
func (r *EllipseRenderer) AddMutedTraceHex(label string, s PolarizationState, hex string) {
	r.AddMutedTrace(label, s, parseHexColor(hex))
}

// CalculateExtent returns the symmetric plot range: the largest field
// amplitude over all traces plus headroom, never below one so the unit
// circle guide always fits.
func (r *EllipseRenderer) CalculateExtent() float64 {
	extent := 1.0
	for _, t := range r.Traces {
		if amp := math.Sqrt(t.State.Intensity()); amp > extent {
			extent = amp
		}
	}
	return extent * 1.15
}

// Render creates the trace image
func (r *EllipseRenderer) Render() *image.RGBA {
	width, height := r.Width, r.Height
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}

	// Limit size
	if width > 4000 {
		width = 4000
	}
	if height > 4000 {
		height = 4000
	}

	// Create image with light background
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}

	panelH := height
	if r.Projections {
		panelH = height * 2 / 3
	}

	extent := r.CalculateExtent()

	// Square plot area centered in the ellipse panel
	side := panelH - 2*r.Padding
	if w := width - 2*r.Padding; w < side {
		side = w
	}
	if side < 10 {
		side = 10
	}
	scale := float64(side) / 2 / extent
	cx := width / 2
	cy := panelH / 2

	// Helper to convert field coords to image coords; image y grows downward
	toImage := func(p orb.Point) (int, int) {
		return cx + int(p[0]*scale), cy - int(p[1]*scale)
	}

	if r.Grid {
		r.drawGrid(img, cx, cy, side, scale, extent)
	}
	r.drawPlotAxes(img, cx, cy, side)
	r.drawUnitCircle(img, cx, cy, scale)

	samples := r.Samples
	if samples < 3 {
		samples = 256
	}

	for _, t := range r.Traces {
		c := t.Color
		if t.Muted {
			c = mutedColor(c)
		}

		ring := TraceEllipse(t.State, samples)
		for i := 1; i < len(ring); i++ {
			x0, y0 := toImage(ring[i-1])
			x1, y1 := toImage(ring[i])
			drawLine(img, x0, y0, x1, y1, 2, c)
		}
		r.drawHandednessMarker(img, t.State, ring, toImage, c)
	}

	r.drawLegend(img)

	labelColor := color.RGBA{60, 60, 60, 255}
	drawText(img, cx+side/2-14, cy-4, "Ex", labelColor)
	drawText(img, cx+6, cy-side/2+12, "Ey", labelColor)

	if r.Projections {
		r.drawProjections(img, width, height, panelH, extent, samples)
	}

	return img
}

// SavePNG saves the rendered image to a file
func (r *EllipseRenderer) SavePNG(path string) error {
	img := r.Render()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}

// drawGrid draws light grid lines every half field unit across the plot area
func (r *EllipseRenderer) drawGrid(img *image.RGBA, cx, cy, side int, scale, extent float64) {
	gridColor := color.RGBA{222, 222, 222, 255}
	half := side / 2
	for g := 0.5; g < extent; g += 0.5 {
		d := int(g * scale)
		if d > half {
			break
		}
		for _, off := range []int{d, -d} {
			drawLine(img, cx+off, cy-half, cx+off, cy+half, 1, gridColor)
			drawLine(img, cx-half, cy+off, cx+half, cy+off, 1, gridColor)
		}
	}
}

// drawPlotAxes draws the Ex and Ey axes through the origin
func (r *EllipseRenderer) drawPlotAxes(img *image.RGBA, cx, cy, side int) {
	axisColor := color.RGBA{150, 150, 150, 255}
	half := side / 2
	drawLine(img, cx-half, cy, cx+half, cy, 1, axisColor)
	drawLine(img, cx, cy-half, cx, cy+half, 1, axisColor)
}

// drawUnitCircle draws the guide circle of unit field amplitude
func (r *EllipseRenderer) drawUnitCircle(img *image.RGBA, cx, cy int, scale float64) {
	guideColor := color.RGBA{205, 205, 205, 255}
	bounds := img.Bounds()
	steps := 360
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		x := cx + int(scale*math.Cos(a))
		y := cy - int(scale*math.Sin(a))
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, guideColor)
		}
	}
}

// drawHandednessMarker marks the phase-zero point of a trace and, for
// circular or elliptical states, an arrowhead showing the travel direction.
// A linear trace has no winding to point out, so it only gets the dot.
func (r *EllipseRenderer) drawHandednessMarker(img *image.RGBA, s PolarizationState, ring orb.Ring, toImage func(orb.Point) (int, int), c color.RGBA) {
	if len(ring) < 2 {
		return
	}
	x0, y0 := toImage(ring[0])
	drawCircle(img, x0, y0, 3, c)

	if Analyze(s).Handedness == HandednessLinear {
		return
	}

	i := len(ring) / 8
	if i+1 >= len(ring) {
		return
	}
	ax, ay := toImage(ring[i])
	bx, by := toImage(ring[i+1])
	angle := math.Atan2(float64(by-ay), float64(bx-ax))
	drawArrow(img, bx, by, angle, 9, c)
}

// drawProjections draws the x(t) and y(t) strip under the ellipse panel,
// two optical periods on the shared amplitude scale. x(t) is the thick
// solid curve; y(t) is thinner and faded.
func (r *EllipseRenderer) drawProjections(img *image.RGBA, width, height, panelH int, extent float64, samples int) {
	const periods = 2
	stripTop := panelH
	stripH := height - panelH
	cy := stripTop + stripH/2
	left := r.Padding
	right := width - r.Padding
	span := right - left
	if span <= 0 || stripH <= 2*r.Padding {
		return
	}
	ampScale := float64(stripH/2-r.Padding) / extent
	if ampScale <= 0 {
		return
	}

	axisColor := color.RGBA{150, 150, 150, 255}
	textColor := color.RGBA{60, 60, 60, 255}
	drawLine(img, left, cy, right, cy, 1, axisColor)
	for p := 0; p <= periods; p++ {
		tx := left + span*p/periods
		drawLine(img, tx, cy-4, tx, cy+4, 1, axisColor)
		drawText(img, tx-3, cy+16, fmt.Sprintf("%d", p), textColor)
	}
	drawText(img, right-8, cy-8, "t", textColor)

	toImage := func(p orb.Point) (int, int) {
		x := left + int(float64(span)*p[0]/periods)
		y := cy - int(p[1]*ampScale)
		return x, y
	}

	for _, t := range r.Traces {
		c := t.Color
		if t.Muted {
			c = mutedColor(c)
		}

		xs, ys := TraceProjections(t.State, samples, periods)
		yc := mutedColor(c)
		for i := 1; i < len(ys); i++ {
			x0, y0 := toImage(ys[i-1])
			x1, y1 := toImage(ys[i])
			drawLine(img, x0, y0, x1, y1, 1, yc)
		}
		for i := 1; i < len(xs); i++ {
			x0, y0 := toImage(xs[i-1])
			x1, y1 := toImage(xs[i])
			drawLine(img, x0, y0, x1, y1, 2, c)
		}
	}
}

// drawLegend adds a swatch and summary line per trace in the top-left corner
func (r *EllipseRenderer) drawLegend(img *image.RGBA) {
	y := 15
	for _, t := range r.Traces {
		c := t.Color
		if t.Muted {
			c = mutedColor(c)
		}

		// Draw color swatch (12x12 square)
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-6, c)
			}
		}

		// Face7x13 has no degree glyph, so the legend spells out "deg"
		e := Analyze(t.State)
		text := fmt.Sprintf("%s  orient %+.2f deg  ellip %+.2f deg  %s",
			t.Label, fixZero(e.OrientationDeg), fixZero(e.EllipticityDeg), e.Handedness)
		drawText(img, 28, y+4, text, color.RGBA{0, 0, 0, 255})

		y += 18
	}
}

// RenderStatePNG renders a single state's traces to a PNG file
func RenderStatePNG(s PolarizationState, path string) error {
	r := NewEllipseRenderer()
	r.AddTrace("state", s, DefaultTraceColors()[0])
	return r.SavePNG(path)
}

// RenderTransformPNG renders an input state and the output it maps to,
// with the input faded behind the output.
func RenderTransformPNG(input, output PolarizationState, path string) error {
	r := NewEllipseRenderer()
	colors := DefaultTraceColors()
	r.AddMutedTrace("input", input, colors[0])
	r.AddTrace("output", output, colors[1])
	return r.SavePNG(path)
}

// mutedColor fades a color toward the background so secondary traces sit
// behind the primary ones
func mutedColor(c color.RGBA) color.RGBA {
	mix := func(v uint8) uint8 {
		return uint8((uint32(v)*2 + 240*3) / 5)
	}
	return color.RGBA{mix(c.R), mix(c.G), mix(c.B), 255}
}

// drawLine draws a line with the given thickness in pixels
func drawLine(img *image.RGBA, x0, y0, x1, y1, thickness int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	errVal := dx + dy

	bounds := img.Bounds()
	for {
		for ty := 0; ty < thickness; ty++ {
			for tx := 0; tx < thickness; tx++ {
				px, py := x0+tx, y0+ty
				if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
					img.Set(px, py, c)
				}
			}
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * errVal
		if e2 >= dy {
			errVal += dy
			x0 += sx
		}
		if e2 <= dx {
			errVal += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawArrow draws a V-shaped arrowhead at (x, y) opening against angleRad
func drawArrow(img *image.RGBA, x, y int, angleRad float64, size int, c color.RGBA) {
	for _, spread := range []float64{2.6, -2.6} {
		bx := x + int(float64(size)*math.Cos(angleRad+spread))
		by := y + int(float64(size)*math.Sin(angleRad+spread))
		drawLine(img, x, y, bx, by, 2, c)
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA
func parseHexColor(hex string) color.RGBA {
	// Default to red if parsing fails
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}

	// Remove # prefix if present
	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	_, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
	if err != nil {
		return defaultColor
	}

	return color.RGBA{r, g, b, 255}
}
