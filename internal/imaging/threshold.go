package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/histogram"
)

// Foreground is the value of ink pixels in a binary map; background is 0.
const Foreground = 255

// OtsuThreshold returns the gray level that maximizes the between-class
// variance of the image histogram.
//
// # Algorithm
//
// For each candidate level t the histogram is split into a dark class
// [0, t] and a light class (t, 255]. With class weights wB, wF and means
// mB, mF the between-class variance is
//
//	wB * wF * (mB - mF)^2
//
// and the first t reaching the maximum is returned. A uniform image returns
// its only gray level.
func OtsuThreshold(g *image.Gray) uint8 {
	bins := histogram.NewRGBAHistogram(g).R.Bins

	total := 0
	var sum float64
	for i, c := range bins {
		total += c
		sum += float64(i * c)
	}

	var sumB, best float64
	wB, level := 0, 0
	for i, c := range bins {
		wB += c
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			if best == 0 {
				level = i
			}
			break
		}
		sumB += float64(i * c)
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = i
		}
	}
	return uint8(level)
}

// BinarizeInverse marks every pixel at or below level as Foreground.
func BinarizeInverse(g *image.Gray, level uint8) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			if v <= level {
				dst[x] = Foreground
			}
		}
	}
	return out
}

// AdaptiveSigma returns the Gaussian standard deviation conventionally paired
// with an odd block size: 0.3*((block-1)/2 - 1) + 0.8.
func AdaptiveSigma(blockSize int) float64 {
	return 0.3*(float64(blockSize-1)*0.5-1) + 0.8
}

// AdaptiveThresholdInverse marks a pixel as Foreground when it is darker
// than its Gaussian-weighted neighborhood mean minus c. blockSize is the
// neighborhood diameter in pixels.
func AdaptiveThresholdInverse(g *image.Gray, blockSize int, c float64) *image.Gray {
	mean := GaussianBlur(g, AdaptiveSigma(blockSize))
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		loc := mean.Pix[y*mean.Stride : y*mean.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			if float64(v) <= float64(loc[x])-c {
				dst[x] = Foreground
			}
		}
	}
	return out
}

// ForegroundFraction returns the share of Foreground pixels in a binary map.
func ForegroundFraction(bin *image.Gray) float64 {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	n := 0
	for y := 0; y < h; y++ {
		for _, v := range bin.Pix[y*bin.Stride : y*bin.Stride+w] {
			if v == Foreground {
				n++
			}
		}
	}
	return float64(n) / float64(w*h)
}
