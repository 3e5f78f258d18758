package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/omr"
)

// Mark is one classified bubble to draw on the aligned sheet.
type Mark struct {
	CX, CY    int
	Radius    int
	Inner     int
	State     omr.State
	FillRatio float64
}

// Palette assigns a color to each bubble state.
type Palette struct {
	Marked    colorful.Color
	Unmarked  colorful.Color
	Ambiguous colorful.Color
	Outline   colorful.Color
}

// DefaultPalette returns green for marked, gray for unmarked, orange for
// ambiguous and blue for marker outlines.
func DefaultPalette() Palette {
	return Palette{
		Marked:    colorful.Color{R: 0.10, G: 0.65, B: 0.25},
		Unmarked:  colorful.Color{R: 0.55, G: 0.55, B: 0.55},
		Ambiguous: colorful.Color{R: 0.95, G: 0.55, B: 0.05},
		Outline:   colorful.Color{R: 0.10, G: 0.35, B: 0.90},
	}
}

// ParsePalette builds a palette from "#RRGGBB" strings. Empty strings keep
// the default color for that entry.
func ParsePalette(marked, unmarked, ambiguous string) (Palette, error) {
	p := DefaultPalette()
	for _, entry := range []struct {
		hex string
		dst *colorful.Color
	}{
		{marked, &p.Marked},
		{unmarked, &p.Unmarked},
		{ambiguous, &p.Ambiguous},
	} {
		if entry.hex == "" {
			continue
		}
		c, err := colorful.Hex(entry.hex)
		if err != nil {
			return p, fmt.Errorf("invalid color %q: %w", entry.hex, err)
		}
		*entry.dst = c
	}
	return p, nil
}

func (p Palette) forState(s omr.State) colorful.Color {
	switch s {
	case omr.Marked:
		return p.Marked
	case omr.Ambiguous:
		return p.Ambiguous
	default:
		return p.Unmarked
	}
}

// Annotate draws classified bubbles and detected marker outlines over a copy
// of img.
//
// Each bubble gets a two-pixel ring at its printed radius and a one-pixel
// ring at its sampling radius. The ring color is the state color, faded
// toward white in L*a*b* space as the fill ratio drops, so weak marks are
// visibly weaker. The fill ratio is printed as a percentage next to the
// bubble.
func Annotate(img image.Image, marks []Mark, markers []geometry.Quad, p Palette) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Rect, img, bounds.Min, draw.Src)

	white := colorful.Color{R: 1, G: 1, B: 1}
	labelFG := color.RGBA{255, 255, 255, 255}

	for _, m := range marks {
		fill := math.Max(0, math.Min(1, m.FillRatio))
		c := toRGBA(p.forState(m.State).BlendLab(white, 0.6*(1-fill)))
		drawRing(out, m.CX, m.CY, m.Radius, 2, c)
		if m.Inner > 0 && m.Inner < m.Radius {
			drawRing(out, m.CX, m.CY, m.Inner, 1, c)
		}
		label := fmt.Sprintf("%d", int(math.Round(fill*100)))
		drawLabel(out, m.CX+m.Radius+3, m.CY-3, label, labelFG, toRGBA(p.forState(m.State)))
	}

	outline := toRGBA(p.Outline)
	for _, q := range markers {
		for i := range q {
			a, b := q[i], q[(i+1)%4]
			drawLine(out, int(math.Round(a.X)), int(math.Round(a.Y)), int(math.Round(b.X)), int(math.Round(b.Y)), outline)
		}
	}
	return out
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// drawRing draws a circle outline of the given thickness (growing inward).
func drawRing(img *image.RGBA, cx, cy, radius, thickness int, c color.RGBA) {
	outer := float64(radius) + 0.5
	inner := float64(radius-thickness) + 0.5
	for y := cy - radius - 1; y <= cy+radius+1; y++ {
		for x := cx - radius - 1; x <= cx+radius+1; x++ {
			d := math.Hypot(float64(x-cx), float64(y-cy))
			if d <= outer && d > inner && (image.Point{X: x, Y: y}).In(img.Rect) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawLine draws a one-pixel line with Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		if (image.Point{X: x0, Y: y0}).In(img.Rect) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
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

// drawLabel draws a simple text label at the given position using a 3x5
// pixel font. Characters without a glyph leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
		'.': {"000", "000", "000", "000", "010"},
		'-': {"000", "000", "111", "000", "000"},
	}

	bounds := img.Bounds()
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			px, py := x+dx, y+dy
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				img.Set(px, py, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					px, py := cx+col, y+row
					if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
						img.Set(px, py, fg)
					}
				}
			}
		}
		cx += charWidth
	}
}
