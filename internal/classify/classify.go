// Package classify measures how much of each bubble is filled with ink and
// sorts bubbles into marked, unmarked and ambiguous.
package classify

import (
	"image"
	"sort"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/omr"
)

// Robust-mode parameters.
const (
	illuminationSigma = 35.0
	claheClipLimit    = 3.0
	claheTiles        = 8
	denoiseRadius     = 0.8
	adaptiveBlock     = 35
	adaptiveC         = 6.0
)

// Classify builds the binary map of an aligned sheet and classifies every
// bubble on it. Results are sorted by (group, row, col).
//
// Preconditions are checked before any pixel work and fail with
// omr.KindPrecondition. A bubble whose sampling circle misses the image
// fails with omr.KindBubbleRead.
func Classify(img image.Image, bubbles []geometry.BubblePlacement, cfg omr.ReadConfig) ([]omr.BubbleReadResult, error) {
	if err := checkInputs(img == nil || img.Bounds().Empty(), bubbles, cfg); err != nil {
		return nil, err
	}
	return ClassifyBinary(BuildBinaryMap(img, cfg), bubbles, cfg)
}

func checkInputs(emptyImage bool, bubbles []geometry.BubblePlacement, cfg omr.ReadConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(bubbles) == 0 {
		return omr.Preconditionf("bubble list is empty")
	}
	if emptyImage {
		return omr.Preconditionf("image is empty")
	}
	return nil
}

// BuildBinaryMap converts an aligned sheet into an ink map (ink = 255).
//
// Standard mode: grayscale, 5x5 Gaussian blur, global Otsu threshold.
//
// Robust mode, for shadows and glare:
//
//  1. Divide the grayscale image by its sigma-35 blur to flatten lighting.
//  2. CLAHE with clip limit 3 on an 8x8 tile grid.
//  3. Linear stretch |alpha*v + beta| with the configured contrast values.
//  4. Light Gaussian denoise.
//  5. Adaptive Gaussian threshold over a 35 px block with offset 6.
func BuildBinaryMap(img image.Image, cfg omr.ReadConfig) *image.Gray {
	gray := imaging.ToGray(img)
	if !cfg.RobustMode {
		blurred := imaging.GaussianBlur5(gray)
		return imaging.BinarizeInverse(blurred, imaging.OtsuThreshold(blurred))
	}
	flat := imaging.FlattenIllumination(gray, illuminationSigma)
	eq := imaging.CLAHE(flat, claheClipLimit, claheTiles, claheTiles)
	stretched := imaging.ContrastStretch(eq, cfg.ContrastAlpha, cfg.ContrastBeta)
	smooth := imaging.Denoise(stretched, denoiseRadius)
	return imaging.AdaptiveThresholdInverse(smooth, adaptiveBlock, adaptiveC)
}

// ClassifyBinary classifies bubbles against an existing ink map. It lets
// several bubble sets (questions, auxiliary blocks) share one map.
func ClassifyBinary(bin *image.Gray, bubbles []geometry.BubblePlacement, cfg omr.ReadConfig) ([]omr.BubbleReadResult, error) {
	if err := checkInputs(bin == nil || bin.Rect.Empty(), bubbles, cfg); err != nil {
		return nil, err
	}

	results := make([]omr.BubbleReadResult, 0, len(bubbles))
	for _, b := range bubbles {
		pc := b.PixelCircle(cfg.PxPerMM, cfg.InnerRadiusFactor)
		ratio, err := FillRatio(bin, pc.CX, pc.CY, pc.Inner)
		if err != nil {
			return nil, omr.BubbleReadf("bubble %q: %v", b.BubbleID, err)
		}
		results = append(results, omr.BubbleReadResult{
			BubbleID:  b.BubbleID,
			GroupID:   b.GroupID,
			Row:       b.Row,
			Col:       b.Col,
			Label:     b.Label,
			FillRatio: ratio,
			State:     omr.Classify(ratio, cfg.MarkedThreshold, cfg.UnmarkedThreshold),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		return geometry.Less(a.GroupID, a.Row, a.Col, b.GroupID, b.Row, b.Col)
	})
	return results, nil
}
