//go:build gocv

package detection

import (
	"fmt"
	"image"
	"sort"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
)

var opencvDictionaries = map[string]gocv.ArucoDictionaryCode{
	"DICT_4X4_50":   gocv.ArucoDict4x4_50,
	"DICT_4X4_100":  gocv.ArucoDict4x4_100,
	"DICT_4X4_250":  gocv.ArucoDict4x4_250,
	"DICT_4X4_1000": gocv.ArucoDict4x4_1000,
	"DICT_5X5_50":   gocv.ArucoDict5x5_50,
	"DICT_5X5_100":  gocv.ArucoDict5x5_100,
	"DICT_5X5_250":  gocv.ArucoDict5x5_250,
	"DICT_5X5_1000": gocv.ArucoDict5x5_1000,
	"DICT_6X6_50":   gocv.ArucoDict6x6_50,
	"DICT_6X6_100":  gocv.ArucoDict6x6_100,
	"DICT_6X6_250":  gocv.ArucoDict6x6_250,
	"DICT_6X6_1000": gocv.ArucoDict6x6_1000,
	"DICT_7X7_50":   gocv.ArucoDict7x7_50,
	"DICT_7X7_100":  gocv.ArucoDict7x7_100,
	"DICT_7X7_250":  gocv.ArucoDict7x7_250,
	"DICT_7X7_1000": gocv.ArucoDict7x7_1000,
}

// New returns the OpenCV ArUco detector, which covers the full dictionary
// family. The contour detector options are ignored.
func New(Options) Detector {
	return &OpenCVDetector{}
}

// OpenCVDetector wraps OpenCV's ArUco module.
type OpenCVDetector struct{}

// Name returns "opencv".
func (d *OpenCVDetector) Name() string { return "opencv" }

// CheckMarker accepts any id below the dictionary's capacity, which is the
// number after the last underscore of its name.
func (d *OpenCVDetector) CheckMarker(dictionary string, id int) error {
	if _, ok := opencvDictionaries[dictionary]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDictionary, dictionary)
	}
	capacity, _ := strconv.Atoi(dictionary[strings.LastIndex(dictionary, "_")+1:])
	if id < 0 || id >= capacity {
		return fmt.Errorf("%w: id %d outside %s (0-%d)", ErrUndecodableMarker, id, dictionary, capacity-1)
	}
	return nil
}

// Detect runs OpenCV marker detection on the grayscale photo.
func (d *OpenCVDetector) Detect(img image.Image, dictionary string) ([]Marker, error) {
	code, ok := opencvDictionaries[dictionary]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDictionary, dictionary)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}

	gray := imaging.ToGray(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	buf := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(buf[y*w:(y+1)*w], gray.Pix[y*gray.Stride:])
	}
	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create mat: %w", err)
	}
	defer mat.Close()

	det := gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(code), gocv.NewArucoDetectorParameters())
	defer det.Close()

	corners, ids, _ := det.DetectMarkers(mat)

	found := make(map[int]Marker)
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}
		var q geometry.Quad
		for k, p := range corners[i] {
			q[k] = geometry.Point{X: float64(p.X), Y: float64(p.Y)}
		}
		m := Marker{ID: id, Corners: q, Center: q.Centroid(), Area: q.Area()}
		if prev, seen := found[id]; !seen || m.Area > prev.Area {
			found[id] = m
		}
	}

	markers := make([]Marker, 0, len(found))
	for _, m := range found {
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].ID < markers[j].ID })
	return markers, nil
}
