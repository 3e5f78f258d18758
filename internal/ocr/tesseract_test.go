//go:build tesseract

package ocr

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// textImage renders text with basicfont and scales it up so the engine sees
// glyphs of a readable size.
func textImage(text string, scale int) *image.RGBA {
	w, h := len(text)*7+40, 40
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(20), Y: fixed.I(25)},
	}
	d.DrawString(text)

	img := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
	for y := 0; y < h*scale; y++ {
		for x := 0; x < w*scale; x++ {
			img.Set(x, y, small.At(x/scale, y/scale))
		}
	}
	return img
}

func TestRecognize_RenderedText(t *testing.T) {
	res, err := NewRecognizer("eng").Recognize(textImage("HELLO", 4))
	if err != nil {
		t.Skipf("tesseract not usable here: %v", err)
	}
	if !strings.Contains(strings.ToUpper(res.Text), "HELLO") {
		t.Errorf("Text = %q, want it to contain HELLO", res.Text)
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("Confidence = %v, want (0, 1]", res.Confidence)
	}
}

func TestRecognize_Whitelist(t *testing.T) {
	r := &Recognizer{Language: "eng", Whitelist: "0123456789"}
	res, err := r.Recognize(textImage("2024", 4))
	if err != nil {
		t.Skipf("tesseract not usable here: %v", err)
	}
	if strings.TrimSpace(res.Text) != "2024" {
		t.Errorf("Text = %q, want 2024", res.Text)
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if !info.Available || info.Backend != backendName {
		t.Errorf("GetInfo() = %+v", info)
	}
}
