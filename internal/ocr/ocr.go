package ocr

import (
	"errors"
	"image"
	"strings"
)

// ErrUnavailable is returned when the binary was built without an OCR engine.
var ErrUnavailable = errors.New("ocr engine not available in this build")

// DefaultLanguage is the Tesseract language code used when none is set.
const DefaultLanguage = "eng"

// Bounds is a rectangle in pixel coordinates of the recognized image.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// Word is one recognized word with its location and confidence.
type Word struct {
	Text string `json:"text"`

	// Confidence is the engine's score scaled to 0.0 - 1.0.
	Confidence float64 `json:"confidence"`

	Bounds Bounds `json:"bounds"`
}

// Result is the text recognized in one image.
type Result struct {
	// Text is the recognized text with surrounding whitespace removed.
	Text string `json:"text"`

	// Confidence is the mean word confidence, 0 when no words were found.
	Confidence float64 `json:"confidence"`

	// Words may be empty even when Text is not, if the engine could not
	// report word boxes.
	Words []Word `json:"words"`
}

// Info describes the OCR subsystem.
type Info struct {
	Available bool   `json:"available"`
	Backend   string `json:"backend"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Recognizer runs OCR on in-memory images. The zero value recognizes English
// with the engine's default data directory.
type Recognizer struct {
	// Language is a Tesseract language code such as "eng" or "spa". Several
	// languages can be joined with '+'.
	Language string

	// TessdataPrefix overrides the language data directory.
	TessdataPrefix string

	// Whitelist, when set, restricts recognition to these characters.
	Whitelist string
}

// NewRecognizer returns a recognizer for the given language.
func NewRecognizer(language string) *Recognizer {
	return &Recognizer{Language: language}
}

func (r *Recognizer) languages() []string {
	lang := r.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	return strings.Split(lang, "+")
}

// Recognize extracts the text of img.
func (r *Recognizer) Recognize(img image.Image) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("ocr: empty image")
	}
	return r.recognize(img)
}

// newResult trims the text and averages word confidences, dropping empty
// words.
func newResult(text string, words []Word) *Result {
	kept := make([]Word, 0, len(words))
	var sum float64
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		kept = append(kept, w)
		sum += w.Confidence
	}
	res := &Result{Text: strings.TrimSpace(text), Words: kept}
	if len(kept) > 0 {
		res.Confidence = sum / float64(len(kept))
	}
	return res
}
