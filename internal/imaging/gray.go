package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

// ToGray converts img to an 8-bit luminance image whose bounds start at
// (0,0). Luminance uses the ITU-R BT.601 weights (0.299 R + 0.587 G +
// 0.114 B).
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	return firstChannel(imaging.Grayscale(img))
}

// firstChannel copies the red channel of an NRGBA image into a Gray image.
// Used after operations on grayscale data that return NRGBA.
func firstChannel(n *image.NRGBA) *image.Gray {
	return channelOf(n.Pix, n.Stride, n.Rect.Dx(), n.Rect.Dy())
}

func channelOf(pix []uint8, stride, w, h int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := pix[y*stride : y*stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}

// GaussianBlur5 applies a 5x5 Gaussian blur to a grayscale image.
//
// Uses a standard 5x5 Gaussian kernel with sigma ≈ 1.4:
//
//	1  4  7  4  1
//	4 16 26 16  4
//	7 26 41 26  7
//	4 16 26 16  4
//	1  4  7  4  1
//
// Total kernel sum = 273, used for normalization.
// Border pixels use clamped (replicated) edge values.
func GaussianBlur5(g *image.Gray) *image.Gray {
	kernel := [5][5]int{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}
	const kernelSum = 273

	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for ky := -2; ky <= 2; ky++ {
				py := clamp(y+ky, 0, h-1)
				row := g.Pix[py*g.Stride:]
				for kx := -2; kx <= 2; kx++ {
					px := clamp(x+kx, 0, w-1)
					sum += int(row[px]) * kernel[ky+2][kx+2]
				}
			}
			out.Pix[y*out.Stride+x] = uint8((sum + kernelSum/2) / kernelSum)
		}
	}
	return out
}

// GaussianBlur blurs a grayscale image with the given standard deviation.
func GaussianBlur(g *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return cloneGray(g)
	}
	return firstChannel(imaging.Blur(g, sigma))
}

// Denoise applies a light Gaussian smoothing of the given radius.
func Denoise(g *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return cloneGray(g)
	}
	out := blur.Gaussian(g, radius)
	return channelOf(out.Pix, out.Stride, out.Rect.Dx(), out.Rect.Dy())
}

// Downscale shrinks g so its longer side is at most maxDim pixels and
// returns the factor that maps the result back to the original size
// (original = scaled * factor). Images already small enough, or a maxDim of
// zero, are returned unchanged with factor 1.
func Downscale(g *image.Gray, maxDim int) (*image.Gray, float64) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	longest := max(w, h)
	if maxDim <= 0 || longest <= maxDim {
		return g, 1
	}
	factor := float64(longest) / float64(maxDim)
	nw := max(1, int(math.Round(float64(w)/factor)))
	nh := max(1, int(math.Round(float64(h)/factor)))
	small := firstChannel(imaging.Resize(g, nw, nh, imaging.Box))
	return small, float64(w) / float64(nw)
}

func cloneGray(g *image.Gray) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.Rect.Dx(), g.Rect.Dy()))
	for y := 0; y < out.Rect.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+out.Rect.Dx()], g.Pix[y*g.Stride:])
	}
	return out
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// saturate rounds v and clamps it to the 8-bit range.
func saturate(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
