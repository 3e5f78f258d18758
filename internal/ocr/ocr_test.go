package ocr

import (
	"image"
	"reflect"
	"testing"
)

func TestNewResult(t *testing.T) {
	words := []Word{
		{Text: "ANA", Confidence: 0.9},
		{Text: " ", Confidence: 0.1},
		{Text: "PEREZ", Confidence: 0.7},
	}
	res := newResult("  ANA PEREZ\n", words)

	if res.Text != "ANA PEREZ" {
		t.Errorf("Text = %q, want %q", res.Text, "ANA PEREZ")
	}
	if len(res.Words) != 2 {
		t.Fatalf("got %d words, want 2 (blank word dropped)", len(res.Words))
	}
	if diff := res.Confidence - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want 0.8", res.Confidence)
	}
}

func TestNewResult_NoWords(t *testing.T) {
	res := newResult("text without boxes", nil)
	if res.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", res.Confidence)
	}
	if res.Words == nil {
		t.Error("Words should be an empty slice, not nil")
	}
}

func TestRecognizer_Languages(t *testing.T) {
	tests := []struct {
		language string
		want     []string
	}{
		{"", []string{"eng"}},
		{"spa", []string{"spa"}},
		{"spa+eng", []string{"spa", "eng"}},
	}
	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			got := NewRecognizer(tt.language).languages()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("languages() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecognize_EmptyImage(t *testing.T) {
	r := NewRecognizer("eng")
	if _, err := r.Recognize(nil); err == nil {
		t.Error("Recognize(nil) should fail")
	}
	if _, err := r.Recognize(image.NewGray(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("Recognize on an empty image should fail")
	}
}
