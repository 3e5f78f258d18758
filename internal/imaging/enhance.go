package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// backgroundScale is the downsampling factor used to estimate the
// illumination field. The field is smooth at sigma ~35 px, so estimating it
// at quarter resolution loses nothing visible.
const backgroundScale = 4

// FlattenIllumination divides the image by a heavily blurred copy of itself
// and rescales to 0..255, removing shadows and lighting gradients while
// keeping local ink contrast.
//
//	out = src * 255 / blur(src, sigma)
//
// Pixels whose background estimate is zero become 0.
func FlattenIllumination(g *image.Gray, sigma float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	bg := estimateBackground(g, sigma)

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		b := bg.Pix[y*bg.Stride : y*bg.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			if b[x] == 0 {
				continue
			}
			dst[x] = saturate(float64(v) * 255 / float64(b[x]))
		}
	}
	return out
}

func estimateBackground(g *image.Gray, sigma float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w < backgroundScale*16 || h < backgroundScale*16 {
		return GaussianBlur(g, sigma)
	}
	small := imaging.Resize(g, w/backgroundScale, h/backgroundScale, imaging.Box)
	small = imaging.Blur(small, sigma/backgroundScale)
	return firstChannel(imaging.Resize(small, w, h, imaging.Linear))
}

// ContrastStretch applies out = |alpha*in + beta| saturated to 0..255.
func ContrastStretch(g *image.Gray, alpha, beta float64) *image.Gray {
	var lut [256]uint8
	for i := range lut {
		lut[i] = saturate(math.Abs(alpha*float64(i) + beta))
	}
	adjusted := imaging.AdjustFunc(g, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
	return firstChannel(adjusted)
}

// CLAHE performs contrast-limited adaptive histogram equalization.
//
// # Algorithm
//
// The image is split into tilesX x tilesY tiles. Each tile's histogram is
// clipped at clipLimit times the mean bin height; the clipped excess is
// spread evenly over all bins and the tile's equalization table is built
// from the cumulative histogram. Every output pixel bilinearly interpolates
// the tables of the four tiles whose centers surround it, which hides the
// tile seams.
func CLAHE(g *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return cloneGray(g)
	}
	tilesX = clamp(tilesX, 1, w)
	tilesY = clamp(tilesY, 1, h)
	tw := (w + tilesX - 1) / tilesX
	th := (h + tilesY - 1) / tilesY
	tilesX = (w + tw - 1) / tw
	tilesY = (h + th - 1) / th

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tw, ty*th
			x1, y1 := min(x0+tw, w), min(y0+th, h)
			luts[ty*tilesX+tx] = tileLUT(g, x0, y0, x1, y1, clipLimit)
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)/float64(th) - 0.5
		ty0, ty1, ay := interpCells(fy, tilesY)
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			fx := (float64(x)+0.5)/float64(tw) - 0.5
			tx0, tx1, ax := interpCells(fx, tilesX)

			top := (1-ax)*float64(luts[ty0*tilesX+tx0][v]) + ax*float64(luts[ty0*tilesX+tx1][v])
			bottom := (1-ax)*float64(luts[ty1*tilesX+tx0][v]) + ax*float64(luts[ty1*tilesX+tx1][v])
			dst[x] = saturate((1-ay)*top + ay*bottom)
		}
	}
	return out
}

// interpCells returns the two neighboring tile indices around fractional
// tile coordinate f and the weight of the second one.
func interpCells(f float64, n int) (int, int, float64) {
	if f <= 0 {
		return 0, 0, 0
	}
	i0 := int(f)
	if i0 >= n-1 {
		return n - 1, n - 1, 0
	}
	return i0, i0 + 1, f - float64(i0)
}

func tileLUT(g *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		for _, v := range g.Pix[y*g.Stride+x0 : y*g.Stride+x1] {
			hist[v]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	if clipLimit > 0 {
		limit := int(clipLimit * float64(area) / 256)
		if limit < 1 {
			limit = 1
		}
		excess := 0
		for i, c := range hist {
			if c > limit {
				excess += c - limit
				hist[i] = limit
			}
		}
		share, rem := excess/256, excess%256
		for i := range hist {
			hist[i] += share
		}
		if rem > 0 {
			step := max(256/rem, 1)
			for i := 0; i < 256 && rem > 0; i += step {
				hist[i]++
				rem--
			}
		}
	}

	var lut [256]uint8
	scale := 255 / float64(area)
	cdf := 0
	for i, c := range hist {
		cdf += c
		lut[i] = saturate(float64(cdf) * scale)
	}
	return lut
}

// EnhanceColor applies CLAHE to the lightness channel of a color image in
// CIE L*a*b* space, leaving chroma untouched. Used on crops handed to
// external readers, where color must survive but faint marks need contrast.
func EnhanceColor(img image.Image, clipLimit float64, tiles int) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()

	type ab struct{ a, b float64 }
	chroma := make([]ab, w*h)
	light := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + x*4
			c := colorful.Color{
				R: float64(src.Pix[i]) / 255,
				G: float64(src.Pix[i+1]) / 255,
				B: float64(src.Pix[i+2]) / 255,
			}
			l, a, b := c.Lab()
			chroma[y*w+x] = ab{a, b}
			light.Pix[y*light.Stride+x] = saturate(l * 255)
		}
	}

	light = CLAHE(light, clipLimit, tiles, tiles)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ch := chroma[y*w+x]
			l := float64(light.Pix[y*light.Stride+x]) / 255
			r, g, b := colorful.Lab(l, ch.a, ch.b).Clamped().RGB255()
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = r, g, b
			out.Pix[i+3] = src.Pix[y*src.Stride+x*4+3]
		}
	}
	return out
}
