//go:build !gocv

package detection

// New returns the detector compiled into this binary. Without the gocv
// build tag that is the pure-Go contour detector.
func New(opts Options) Detector {
	return NewContourDetector(opts)
}
