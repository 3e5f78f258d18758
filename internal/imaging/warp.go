package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/omr-reader/internal/geometry"
)

// WarpPerspective renders src through the projective transform h (source →
// destination pixel coordinates) into a width x height canvas.
//
// # Algorithm
//
// Each destination pixel (x, y) is mapped back through h⁻¹ into the source
// and sampled bilinearly from the four surrounding source pixels. Samples
// that fall outside the source are black, matching a constant-border warp.
func WarpPerspective(src image.Image, h geometry.Matrix3, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", width, height)
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, fmt.Errorf("transform is not invertible: %w", err)
	}

	s := imaging.Clone(src)
	sw, sh := s.Rect.Dx(), s.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+width*4]
		for x := 0; x < width; x++ {
			p, ok := inv.Apply(geometry.Point{X: float64(x), Y: float64(y)})
			if !ok {
				continue
			}
			if p.X <= -1 || p.Y <= -1 || p.X >= float64(sw) || p.Y >= float64(sh) {
				row[x*4+3] = 255
				continue
			}
			x0 := int(math.Floor(p.X))
			y0 := int(math.Floor(p.Y))
			fx := p.X - float64(x0)
			fy := p.Y - float64(y0)

			var acc [4]float64
			for _, tap := range [4]struct {
				dx, dy int
				w      float64
			}{
				{0, 0, (1 - fx) * (1 - fy)},
				{1, 0, fx * (1 - fy)},
				{0, 1, (1 - fx) * fy},
				{1, 1, fx * fy},
			} {
				sx, sy := x0+tap.dx, y0+tap.dy
				if tap.w == 0 {
					continue
				}
				if sx < 0 || sy < 0 || sx >= sw || sy >= sh {
					acc[3] += 255 * tap.w
					continue
				}
				i := sy*s.Stride + sx*4
				acc[0] += float64(s.Pix[i]) * tap.w
				acc[1] += float64(s.Pix[i+1]) * tap.w
				acc[2] += float64(s.Pix[i+2]) * tap.w
				acc[3] += float64(s.Pix[i+3]) * tap.w
			}
			row[x*4] = saturate(acc[0])
			row[x*4+1] = saturate(acc[1])
			row[x*4+2] = saturate(acc[2])
			row[x*4+3] = saturate(acc[3])
		}
	}
	return out, nil
}

// CropClipped crops r out of img after clipping it to the image bounds.
// It fails when nothing of r lies inside the image.
func CropClipped(img image.Image, r image.Rectangle) (*image.NRGBA, image.Rectangle, error) {
	clipped := r.Intersect(img.Bounds())
	if clipped.Empty() {
		return nil, clipped, fmt.Errorf("crop region %v outside image bounds %v", r, img.Bounds())
	}
	return imaging.Crop(img, clipped), clipped, nil
}
