//go:build tesseract

package ocr

import (
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/omr-reader/internal/imaging"
)

const backendName = "gosseract"

func (r *Recognizer) recognize(img image.Image) (*Result, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if r.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(r.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(r.languages()...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if r.Whitelist != "" {
		if err := client.SetWhitelist(r.Whitelist); err != nil {
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	// Word boxes are optional; some engine builds cannot report them.
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return newResult(text, nil), nil
	}
	words := make([]Word, 0, len(boxes))
	for _, box := range boxes {
		words = append(words, Word{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds: Bounds{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
		})
	}
	return newResult(text, words), nil
}

// GetInfo reports the linked Tesseract version.
func GetInfo() Info {
	client := gosseract.NewClient()
	defer client.Close()
	return Info{Available: true, Backend: backendName, Version: client.Version()}
}
