//go:build !tesseract

package ocr

import "image"

func (r *Recognizer) recognize(image.Image) (*Result, error) {
	return nil, ErrUnavailable
}

// GetInfo reports that no engine is linked.
func GetInfo() Info {
	return Info{Available: false, Backend: "none", Error: ErrUnavailable.Error()}
}
