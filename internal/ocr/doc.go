// Package ocr recognizes text in handwrite regions of an aligned sheet.
//
// Recognition is advisory: a block read through OCR is always flagged for
// manual review, and the recognized text only pre-fills the reviewer's form.
//
// # Backends
//
// Builds with the "tesseract" tag use the Tesseract engine through
// gosseract/v2. Tesseract and its language data must be installed:
//   - Ubuntu/Debian: apt-get install libtesseract-dev tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Language data for other scripts comes in tesseract-ocr-<lang> packages.
// TessdataPrefix points the engine at a non-standard data directory.
//
// Without the tag Recognize returns ErrUnavailable and Info reports the
// engine as missing; the rest of the read is unaffected.
package ocr
