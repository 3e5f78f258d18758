package classify

import (
	"fmt"
	"image"

	"github.com/ironsheep/omr-reader/internal/imaging"
)

// FillRatio returns the share of ink pixels inside the circle of the given
// radius around (cx, cy).
//
// Coordinates are in the image's own space, so a SubImage of a larger map
// is sampled at the same points as the map itself. The circle's bounding
// box is clipped to bin.Rect first; only mask pixels inside the image count
// toward either side of the ratio. A box that misses the image entirely, or
// a mask with no pixels, is an error.
func FillRatio(bin *image.Gray, cx, cy, radius int) (float64, error) {
	b := bin.Rect
	x0, x1 := max(b.Min.X, cx-radius), min(b.Max.X, cx+radius+1)
	y0, y1 := max(b.Min.Y, cy-radius), min(b.Max.Y, cy+radius+1)
	if x0 >= x1 || y0 >= y1 {
		return 0, fmt.Errorf("sampling circle at (%d,%d) r=%d outside image bounds %v", cx, cy, radius, b)
	}

	r2 := radius * radius
	mask, ink := 0, 0
	for y := y0; y < y1; y++ {
		dy := y - cy
		row := bin.Pix[bin.PixOffset(x0, y):]
		for x := x0; x < x1; x++ {
			dx := x - cx
			if dx*dx+dy*dy > r2 {
				continue
			}
			mask++
			if row[x-x0] == imaging.Foreground {
				ink++
			}
		}
	}
	if mask == 0 {
		return 0, fmt.Errorf("sampling circle at (%d,%d) r=%d has an empty mask", cx, cy, radius)
	}
	return float64(ink) / float64(mask), nil
}
