// Package align rectifies a photographed answer sheet onto the template's
// canonical page using the four corner fiducials.
package align

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/omr-reader/internal/detection"
	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/template"
)

// Capture-quality limits checked before any transform is computed.
const (
	// MinAreaRatio is the smallest share of the photo the marker
	// quadrilateral may cover.
	MinAreaRatio = 0.08

	// MaxSideRatio is the largest allowed longest/shortest side ratio of the
	// marker quadrilateral.
	MaxSideRatio = 3.0

	// minSidePx is the side length below which the quadrilateral is
	// considered collapsed.
	minSidePx = 1.0
)

// Result is the rectified sheet plus the geometry used to produce it.
type Result struct {
	Aligned    *image.NRGBA
	Homography geometry.Matrix3

	// DetectedMarkerIDs lists every decoded marker id, ascending. It may
	// include ids the template does not use.
	DetectedMarkerIDs []int

	OutputWidthPx  int
	OutputHeightPx int

	// SourceQuad holds the detected centers of the template's corner
	// markers in photo pixels, ordered top-left, top-right, bottom-right,
	// bottom-left.
	SourceQuad geometry.Quad

	AreaRatio float64
	SideRatio float64

	Markers []detection.Marker
}

type options struct {
	detector detection.Detector
}

// Option configures Align.
type Option func(*options)

// WithDetector replaces the default marker detector.
func WithDetector(d detection.Detector) Option {
	return func(o *options) { o.detector = d }
}

// DefaultDetector is the detector Align uses unless WithDetector is given.
func DefaultDetector() detection.Detector {
	return detection.New(detection.DefaultOptions())
}

// Align detects the template's corner markers in img and warps the photo
// onto a canvas of the page size at pxPerMM.
//
// # Algorithm
//
//  1. Check pxPerMM and the template's marker dictionary, page and markers,
//     and that the detector can decode every corner marker id.
//  2. Detect markers. Each marker's center is the centroid of its corners.
//  3. Build the source quadrilateral from the expected id of each corner,
//     in the order top-left, top-right, bottom-right, bottom-left.
//  4. Gate the capture: the quadrilateral must cover at least MinAreaRatio
//     of the photo and its side ratio must not exceed MaxSideRatio.
//  5. Build the destination quadrilateral from the markers' millimeter
//     centers scaled by pxPerMM.
//  6. Solve the source→destination homography.
//  7. Size the canvas as round(width_mm·pxPerMM) x round(height_mm·pxPerMM).
//  8. Warp the photo into the canvas.
//
// Errors carry an omr.Kind: Precondition, InvalidMetadata,
// MarkerDetectionFailed, CaptureQuality or Homography.
func Align(img image.Image, tpl *template.Template, pxPerMM float64, opts ...Option) (*Result, error) {
	if pxPerMM <= 0 || math.IsNaN(pxPerMM) || math.IsInf(pxPerMM, 0) {
		return nil, omr.Preconditionf("px_per_mm must be > 0 (got %g)", pxPerMM)
	}
	if err := checkTemplate(tpl); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, omr.Preconditionf("image is empty")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.detector == nil {
		o.detector = DefaultDetector()
	}

	if err := CheckMarkers(tpl, o.detector); err != nil {
		return nil, err
	}

	markers, err := o.detector.Detect(img, tpl.DictionaryID)
	if err != nil {
		if errors.Is(err, detection.ErrUnsupportedDictionary) {
			return nil, &omr.Error{Kind: omr.KindMarkerDetectionFailed, Msg: "marker dictionary not supported", Err: err}
		}
		return nil, &omr.Error{Kind: omr.KindMarkerDetectionFailed, Msg: "marker detection failed", Err: err}
	}
	if len(markers) == 0 {
		return nil, omr.MarkerDetectionf("no %s markers detected", tpl.DictionaryID)
	}

	src, err := SourceQuad(markers, tpl)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	areaRatio, sideRatio, err := CheckCapture(src, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}

	var dst geometry.Quad
	for i, c := range geometry.CornerOrder {
		dst[i] = tpl.Marker(c).Center(pxPerMM)
	}

	h, err := geometry.PerspectiveTransform(src, dst)
	if err != nil {
		return nil, &omr.Error{Kind: omr.KindHomography, Msg: "failed to compute marker homography", Err: err}
	}

	w, ht := tpl.Page.PixelSize(pxPerMM)
	if w <= 0 || ht <= 0 {
		return nil, omr.Homographyf("invalid output size %dx%d for page %gx%g mm at %g px/mm",
			w, ht, tpl.Page.WidthMM, tpl.Page.HeightMM, pxPerMM)
	}

	aligned, err := imaging.WarpPerspective(img, h, w, ht)
	if err != nil {
		return nil, &omr.Error{Kind: omr.KindHomography, Msg: "warp failed", Err: err}
	}

	ids := make([]int, len(markers))
	for i, m := range markers {
		ids[i] = m.ID
	}
	sort.Ints(ids)

	return &Result{
		Aligned:           aligned,
		Homography:        h,
		DetectedMarkerIDs: ids,
		OutputWidthPx:     w,
		OutputHeightPx:    ht,
		SourceQuad:        src,
		AreaRatio:         areaRatio,
		SideRatio:         sideRatio,
		Markers:           markers,
	}, nil
}

func checkTemplate(tpl *template.Template) error {
	if tpl == nil {
		return omr.InvalidMetadataf("metadata is missing")
	}
	if tpl.DictionaryID == "" {
		return omr.InvalidMetadataf("metadata missing marker dictionary id")
	}
	if tpl.Page.WidthMM <= 0 || tpl.Page.HeightMM <= 0 {
		return omr.InvalidMetadataf("metadata page size must be positive (got %gx%g mm)", tpl.Page.WidthMM, tpl.Page.HeightMM)
	}
	seen := make(map[int]geometry.Corner, 4)
	for _, c := range geometry.CornerOrder {
		m := tpl.Marker(c)
		if m.Corner != c {
			return omr.InvalidMetadataf("metadata must declare exactly 4 markers, one per corner (missing %s)", c)
		}
		if prev, dup := seen[m.MarkerID]; dup {
			return omr.InvalidMetadataf("marker id %d used for both %s and %s", m.MarkerID, prev, c)
		}
		seen[m.MarkerID] = c
	}
	return nil
}

// CheckMarkers reports whether d can decode every corner marker tpl
// declares. An unsupported dictionary is MarkerDetectionFailed, as it would
// be from Detect; a supported dictionary whose id d cannot decode is
// InvalidMetadata naming the corner. Detectors that do not implement
// detection.Coverage are not checked.
func CheckMarkers(tpl *template.Template, d detection.Detector) error {
	if tpl == nil {
		return omr.InvalidMetadataf("metadata is missing")
	}
	cov, ok := d.(detection.Coverage)
	if !ok {
		return nil
	}
	for _, c := range geometry.CornerOrder {
		m := tpl.Marker(c)
		err := cov.CheckMarker(tpl.DictionaryID, m.MarkerID)
		switch {
		case err == nil:
		case errors.Is(err, detection.ErrUnsupportedDictionary):
			return &omr.Error{Kind: omr.KindMarkerDetectionFailed, Msg: "marker dictionary not supported", Err: err}
		default:
			return &omr.Error{
				Kind: omr.KindInvalidMetadata,
				Msg:  fmt.Sprintf("%s marker id %d cannot be decoded by the %s detector", c, m.MarkerID, d.Name()),
				Err:  err,
			}
		}
	}
	return nil
}

// SourceQuad picks the detected center of each corner's expected marker,
// in the order top-left, top-right, bottom-right, bottom-left.
func SourceQuad(markers []detection.Marker, tpl *template.Template) (geometry.Quad, error) {
	byID := make(map[int]geometry.Point, len(markers))
	for _, m := range markers {
		byID[m.ID] = m.Corners.Centroid()
	}

	var q geometry.Quad
	for i, c := range geometry.CornerOrder {
		want := tpl.Marker(c).MarkerID
		p, ok := byID[want]
		if !ok {
			return q, omr.MarkerDetectionf("marker id %d for corner %s not detected (found %s)", want, c, idList(markers))
		}
		q[i] = p
	}
	return q, nil
}

// CheckCapture applies the capture-quality gate to a source quadrilateral
// in a width x height photo. It returns the area and side ratios on
// success.
func CheckCapture(q geometry.Quad, width, height int) (areaRatio, sideRatio float64, err error) {
	imageArea := float64(width) * float64(height)
	if imageArea <= 0 {
		return 0, 0, omr.Preconditionf("image is empty")
	}
	areaRatio = q.Area() / imageArea
	if areaRatio < MinAreaRatio {
		return areaRatio, 0, omr.CaptureQualityf("capture area too small: markers cover %.1f%% of the photo (minimum %.0f%%)",
			areaRatio*100, MinAreaRatio*100)
	}
	sideRatio, minSide := q.SideRatio()
	if minSide < minSidePx {
		return areaRatio, sideRatio, omr.CaptureQualityf("capture geometry degenerate: shortest side %.2f px", minSide)
	}
	if sideRatio > MaxSideRatio {
		return areaRatio, sideRatio, omr.CaptureQualityf("perspective too extreme: side ratio %.2f (maximum %.1f)",
			sideRatio, MaxSideRatio)
	}
	return areaRatio, sideRatio, nil
}

func idList(markers []detection.Marker) string {
	if len(markers) == 0 {
		return "none"
	}
	ids := make([]int, len(markers))
	for i, m := range markers {
		ids[i] = m.ID
	}
	sort.Ints(ids)
	return fmt.Sprint(ids)
}
