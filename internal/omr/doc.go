// Package omr holds the vocabulary shared by every stage of the answer-sheet
// read pipeline: the error taxonomy, the tri-state bubble classification, and
// the explicit read configuration.
//
// # Error Taxonomy
//
// All stages return *Error values tagged with a Kind. A read either succeeds
// completely or fails with exactly one Kind; partially populated reports are
// never returned. Use KindOf to switch over the failure:
//
//	switch omr.KindOf(err) {
//	case omr.KindCaptureQuality:
//	    // ask for a new photo
//	case omr.KindInvalidMetadata:
//	    // template bug
//	}
//
// # Configuration
//
// ReadConfig is an immutable value threaded through each call. There are no
// package-level thresholds; DefaultReadConfig returns the calibrated values.
package omr
