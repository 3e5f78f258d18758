package detection

import (
	"image"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
)

// component is one 8-connected region of foreground pixels.
type component struct {
	// minX, minY, maxX, maxY is the inclusive bounding box.
	minX, minY, maxX, maxY int
	pixels                 int
	// spans holds the leftmost and rightmost pixel of each row, indexed
	// from minY.
	spans [][2]int
}

func (c *component) width() int  { return c.maxX - c.minX + 1 }
func (c *component) height() int { return c.maxY - c.minY + 1 }

// outline returns the pixel-corner points of every row span. Corners sit
// half a pixel outside the pixel centers, so the hull of the outline covers
// the component exactly.
func (c *component) outline() []geometry.Point {
	pts := make([]geometry.Point, 0, len(c.spans)*4)
	for i, s := range c.spans {
		y := float64(c.minY + i)
		left, right := float64(s[0])-0.5, float64(s[1])+0.5
		pts = append(pts,
			geometry.Point{X: left, Y: y - 0.5},
			geometry.Point{X: right, Y: y - 0.5},
			geometry.Point{X: left, Y: y + 0.5},
			geometry.Point{X: right, Y: y + 0.5},
		)
	}
	return pts
}

// touchesBorder reports whether the component reaches the image edge.
func (c *component) touchesBorder(w, h int) bool {
	return c.minX == 0 || c.minY == 0 || c.maxX == w-1 || c.maxY == h-1
}

// findComponents labels the foreground regions of a binary map, keeping
// those whose bounding box is at least minSide pixels on both axes.
//
// Uses an iterative stack-based fill with 8-connectivity. The raster scan
// always enters a component at its topmost row, so row spans can be
// indexed from the seed's Y.
func findComponents(bin *image.Gray, minSide int) []*component {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	visited := make([]bool, w*h)
	var comps []*component
	var stack []image.Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || bin.Pix[y*bin.Stride+x] != imaging.Foreground {
				continue
			}
			c := &component{minX: x, minY: y, maxX: x, maxY: y}
			visited[y*w+x] = true
			stack = append(stack[:0], image.Point{X: x, Y: y})

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				c.add(p)

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							continue
						}
						i := ny*w + nx
						if visited[i] || bin.Pix[ny*bin.Stride+nx] != imaging.Foreground {
							continue
						}
						visited[i] = true
						stack = append(stack, image.Point{X: nx, Y: ny})
					}
				}
			}

			if c.width() >= minSide && c.height() >= minSide {
				comps = append(comps, c)
			}
		}
	}
	return comps
}

func (c *component) add(p image.Point) {
	c.pixels++
	c.minX = min(c.minX, p.X)
	c.maxX = max(c.maxX, p.X)
	c.maxY = max(c.maxY, p.Y)

	row := p.Y - c.minY
	for len(c.spans) <= row {
		c.spans = append(c.spans, [2]int{-1, -1})
	}
	s := &c.spans[row]
	if s[0] < 0 || p.X < s[0] {
		s[0] = p.X
	}
	if p.X > s[1] {
		s[1] = p.X
	}
}
