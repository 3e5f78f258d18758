package main

import "github.com/ironsheep/omr-reader/internal/omr"

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitReview  = 10
)

var kindExitCodes = map[omr.Kind]int{
	omr.KindInvalidMetadata:       3,
	omr.KindInvalidImage:          4,
	omr.KindMarkerDetectionFailed: 5,
	omr.KindCaptureQuality:        6,
	omr.KindHomography:            7,
	omr.KindBubbleRead:            8,
	omr.KindPrecondition:          9,
}

// exitCode maps a read failure to its process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if code, ok := kindExitCodes[omr.KindOf(err)]; ok {
		return code
	}
	return exitFailure
}
