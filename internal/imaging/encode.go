package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// EncodedImage is an image serialized for transport.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ToBase64PNG encodes img as a base64 PNG payload.
func ToBase64PNG(img image.Image) (*EncodedImage, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &EncodedImage{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    "image/png",
	}, nil
}

// JPEGToBase64 wraps already-encoded JPEG bytes.
func JPEGToBase64(data []byte, width, height int) *EncodedImage {
	return &EncodedImage{
		Width:       width,
		Height:      height,
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    "image/jpeg",
	}
}
