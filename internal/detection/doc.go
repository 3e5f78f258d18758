// Package detection locates and decodes the square fiducial markers printed
// in the corners of answer sheets.
//
// Markers follow the ArUco layout: an n x n grid of black and white payload
// cells framed by a one-cell black border. A [Dictionary] maps marker ids to
// payload codes; the builtin table covers the corner markers placed by the
// sheet generator.
//
// Two backends implement [Detector]. [ContourDetector] is pure Go and is
// always available. Building with the gocv tag replaces the default backend
// returned by [New] with OpenCV's ArUco module, which supports every
// predefined dictionary.
//
// # Coordinate System
//
// Marker corners are reported in source-image pixels with the pixel-center
// convention: pixel (x, y) covers [x-0.5, x+0.5] x [y-0.5, y+0.5]. X grows
// rightward and Y downward. Corners are listed clockwise starting at the
// marker's own top-left corner, so a photo taken upside down still reports
// each marker's printed orientation.
package detection
