package omr

import (
	"errors"
	"fmt"
)

// Kind identifies which stage of a read rejected its input.
//
// Every failure in the read pipeline is fatal to the current read and carries
// exactly one Kind. Callers switch on the Kind (see KindOf) to map failures to
// exit codes or transport-level responses.
type Kind int

const (
	// KindUnknown is reported by KindOf for errors that did not originate in
	// the read pipeline.
	KindUnknown Kind = iota

	// KindInvalidMetadata: the template description is malformed or incomplete
	// (missing keys, wrong marker count, bad option references).
	KindInvalidMetadata

	// KindInvalidImage: the uploaded bytes could not be decoded as an image.
	KindInvalidImage

	// KindMarkerDetectionFailed: no fiducials were found, or a required corner
	// id was not among the detected markers.
	KindMarkerDetectionFailed

	// KindCaptureQuality: the markers were found but the capture is unusable
	// (quadrilateral too small or too skewed).
	KindCaptureQuality

	// KindHomography: the projective transform or the output canvas size
	// could not be derived.
	KindHomography

	// KindBubbleRead: bubble geometry outside the aligned image, zero-area
	// masks, or a broken option/result bijection.
	KindBubbleRead

	// KindPrecondition: caller-supplied parameters are out of range.
	KindPrecondition
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindInvalidMetadata:       "invalid_metadata",
	KindInvalidImage:          "invalid_image",
	KindMarkerDetectionFailed: "marker_detection_failed",
	KindCaptureQuality:        "capture_quality",
	KindHomography:            "homography",
	KindBubbleRead:            "bubble_read",
	KindPrecondition:          "precondition",
}

// String returns the snake_case name used in reports and JSON-RPC error data.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type returned by the read pipeline.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind. This lets callers
// write errors.Is(err, omr.ErrCaptureQuality) without caring about the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind-only targets for errors.Is.
var (
	ErrInvalidMetadata       = &Error{Kind: KindInvalidMetadata}
	ErrInvalidImage          = &Error{Kind: KindInvalidImage}
	ErrMarkerDetectionFailed = &Error{Kind: KindMarkerDetectionFailed}
	ErrCaptureQuality        = &Error{Kind: KindCaptureQuality}
	ErrHomography            = &Error{Kind: KindHomography}
	ErrBubbleRead            = &Error{Kind: KindBubbleRead}
	ErrPrecondition          = &Error{Kind: KindPrecondition}
)

// KindOf extracts the Kind of err, or KindUnknown if err is not (and does not
// wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// InvalidMetadataf builds a KindInvalidMetadata error.
func InvalidMetadataf(format string, args ...interface{}) error {
	return newf(KindInvalidMetadata, format, args...)
}

// InvalidImage wraps a decode failure.
func InvalidImage(msg string, err error) error {
	return &Error{Kind: KindInvalidImage, Msg: msg, Err: err}
}

// MarkerDetectionf builds a KindMarkerDetectionFailed error.
func MarkerDetectionf(format string, args ...interface{}) error {
	return newf(KindMarkerDetectionFailed, format, args...)
}

// CaptureQualityf builds a KindCaptureQuality error.
func CaptureQualityf(format string, args ...interface{}) error {
	return newf(KindCaptureQuality, format, args...)
}

// Homographyf builds a KindHomography error.
func Homographyf(format string, args ...interface{}) error {
	return newf(KindHomography, format, args...)
}

// BubbleReadf builds a KindBubbleRead error.
func BubbleReadf(format string, args ...interface{}) error {
	return newf(KindBubbleRead, format, args...)
}

// Preconditionf builds a KindPrecondition error.
func Preconditionf(format string, args ...interface{}) error {
	return newf(KindPrecondition, format, args...)
}
