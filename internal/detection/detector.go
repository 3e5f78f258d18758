package detection

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
)

// ErrUnsupportedDictionary is returned when a detector cannot decode the
// requested dictionary.
var ErrUnsupportedDictionary = errors.New("unsupported marker dictionary")

// Marker is one decoded fiducial.
type Marker struct {
	// ID is the dictionary index of the decoded code.
	ID int `json:"id"`

	// Corners are in source-image pixels, clockwise starting at the
	// marker's own top-left corner (independent of how the photo is
	// rotated).
	Corners geometry.Quad `json:"corners"`

	// Center is the mean of the four corners.
	Center geometry.Point `json:"center"`

	// Area is the corner quadrilateral's area in square pixels.
	Area float64 `json:"area"`
}

// Detector finds fiducial markers of one dictionary in a photo.
type Detector interface {
	// Detect returns the decoded markers sorted by ID. Each ID appears at
	// most once. An empty result is not an error.
	Detect(img image.Image, dictionary string) ([]Marker, error)

	// Name identifies the backend in reports.
	Name() string
}

// Coverage is implemented by detectors that can tell, before any photo is
// read, whether they decode a given marker.
type Coverage interface {
	// CheckMarker returns nil when id of dictionary can be decoded. Otherwise
	// the error wraps ErrUnsupportedDictionary or ErrUndecodableMarker.
	CheckMarker(dictionary string, id int) error
}

// Options tunes the contour detector. Zero values select the defaults.
type Options struct {
	// MaxDimension bounds the longer side of the image used for detection.
	// Larger photos are downscaled first; corners are mapped back.
	MaxDimension int

	// MinSidePx is the smallest marker side, in detection pixels.
	MinSidePx int

	// MaxBorderErrorRate is the share of border cells allowed to read white.
	MaxBorderErrorRate float64

	// MaxBitErrors is the Hamming distance tolerated when matching codes.
	MaxBitErrors int

	// MinContrast is the smallest gray difference between the darkest and
	// lightest cell of a candidate.
	MinContrast float64
}

// DefaultOptions returns the detector defaults.
func DefaultOptions() Options {
	return Options{
		MaxDimension:       1600,
		MinSidePx:          12,
		MaxBorderErrorRate: 0.35,
		MaxBitErrors:       1,
		MinContrast:        40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxDimension > 0 {
		d.MaxDimension = o.MaxDimension
	}
	if o.MinSidePx > 0 {
		d.MinSidePx = o.MinSidePx
	}
	if o.MaxBorderErrorRate > 0 {
		d.MaxBorderErrorRate = o.MaxBorderErrorRate
	}
	if o.MaxBitErrors > 0 {
		d.MaxBitErrors = o.MaxBitErrors
	}
	if o.MinContrast > 0 {
		d.MinContrast = o.MinContrast
	}
	return d
}

// ContourDetector is the pure-Go marker detector.
type ContourDetector struct {
	opts Options
}

// NewContourDetector returns a detector with the given options; zero fields
// take their defaults.
func NewContourDetector(opts Options) *ContourDetector {
	return &ContourDetector{opts: opts.withDefaults()}
}

// Name returns "contour".
func (d *ContourDetector) Name() string { return "contour" }

// CheckMarker reports whether id has a code in the builtin dictionary table.
func (d *ContourDetector) CheckMarker(dictionary string, id int) error {
	dict, ok := LookupDictionary(dictionary)
	if !ok {
		return fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedDictionary, dictionary, SupportedDictionaries())
	}
	if _, ok := dict.codes[id]; !ok {
		return fmt.Errorf("%w: id %d not in builtin %s table (have %v)", ErrUndecodableMarker, id, dict.Name, dict.IDs())
	}
	return nil
}

// Detect finds and decodes square markers.
//
// # Algorithm
//
//  1. Convert to grayscale and downscale to Options.MaxDimension.
//  2. Binarize twice: a global Otsu threshold, then an adaptive threshold
//     that survives uneven lighting. Dark pixels are foreground.
//  3. Label 8-connected dark components, dropping small ones and those
//     touching the image edge.
//  4. Take each component's convex hull and fit a quadrilateral to it.
//     Candidates whose hull is not well covered by the quad, or whose sides
//     are very unequal, are rejected.
//  5. Sample the (n+2)x(n+2) cell grid through the unit-square→quad
//     homography, threshold the cell means at their midrange, check the
//     black border and match the n x n payload against the dictionary in
//     all four rotations.
//  6. Map corners back to source pixels. When an ID is found more than
//     once, the largest candidate wins.
func (d *ContourDetector) Detect(img image.Image, dictionary string) ([]Marker, error) {
	dict, ok := LookupDictionary(dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedDictionary, dictionary, SupportedDictionaries())
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}

	gray := imaging.ToGray(img)
	small, scale := imaging.Downscale(gray, d.opts.MaxDimension)
	w, h := small.Rect.Dx(), small.Rect.Dy()

	found := make(map[int]Marker)
	for _, bin := range d.binarize(small) {
		for _, c := range findComponents(bin, d.opts.MinSidePx) {
			if c.touchesBorder(w, h) || c.width() > w*9/10 || c.height() > h*9/10 {
				continue
			}
			quad, ok := d.candidateQuad(c)
			if !ok {
				continue
			}
			id, rotation, ok := d.decode(small, quad, dict)
			if !ok {
				continue
			}
			m := toMarker(id, rotation, quad, scale)
			if prev, seen := found[id]; !seen || m.Area > prev.Area {
				found[id] = m
			}
		}
	}

	markers := make([]Marker, 0, len(found))
	for _, m := range found {
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].ID < markers[j].ID })
	return markers, nil
}

func (d *ContourDetector) binarize(g *image.Gray) []*image.Gray {
	block := max(15, min(g.Rect.Dx(), g.Rect.Dy())/20) | 1
	return []*image.Gray{
		imaging.BinarizeInverse(g, imaging.OtsuThreshold(g)),
		imaging.AdaptiveThresholdInverse(g, block, 7),
	}
}

func (d *ContourDetector) candidateQuad(c *component) (geometry.Quad, bool) {
	hull := geometry.ConvexHull(c.outline())
	quad, ok := fitQuad(hull)
	if !ok || !quadIsConvex(quad) {
		return geometry.Quad{}, false
	}
	hullArea := geometry.PolygonArea(hull)
	quadArea := quad.Area()
	if hullArea <= 0 || quadArea/hullArea < 0.85 {
		return geometry.Quad{}, false
	}
	// A marker's dark cells include the whole border ring.
	if float64(c.pixels) < 0.3*quadArea {
		return geometry.Quad{}, false
	}
	ratio, minSide := quad.SideRatio()
	if minSide < float64(d.opts.MinSidePx) || ratio > 4 {
		return geometry.Quad{}, false
	}
	return quad, true
}

// decode reads the marker grid inside quad. rotation is the number of
// clockwise quarter turns from the observed grid to the stored code.
func (d *ContourDetector) decode(g *image.Gray, quad geometry.Quad, dict *Dictionary) (id, rotation int, ok bool) {
	cells := dict.Size + 2
	n := float64(cells)
	unit := geometry.Quad{{X: 0, Y: 0}, {X: n, Y: 0}, {X: n, Y: n}, {X: 0, Y: n}}
	hm, err := geometry.PerspectiveTransform(unit, quad)
	if err != nil {
		return 0, 0, false
	}

	means := make([][]float64, cells)
	lo, hi := math.Inf(1), math.Inf(-1)
	for r := 0; r < cells; r++ {
		means[r] = make([]float64, cells)
		for c := 0; c < cells; c++ {
			var sum float64
			samples := 0
			for _, oy := range [3]float64{0.3, 0.5, 0.7} {
				for _, ox := range [3]float64{0.3, 0.5, 0.7} {
					p, ok := hm.Apply(geometry.Point{X: float64(c) + ox, Y: float64(r) + oy})
					if !ok {
						continue
					}
					sum += sampleBilinear(g, p)
					samples++
				}
			}
			if samples == 0 {
				return 0, 0, false
			}
			m := sum / float64(samples)
			means[r][c] = m
			lo, hi = math.Min(lo, m), math.Max(hi, m)
		}
	}
	if hi-lo < d.opts.MinContrast {
		return 0, 0, false
	}
	mid := (lo + hi) / 2

	borderCells, borderErrors := 0, 0
	payload := make([][]bool, dict.Size)
	for r := 0; r < cells; r++ {
		for c := 0; c < cells; c++ {
			white := means[r][c] > mid
			if r == 0 || c == 0 || r == cells-1 || c == cells-1 {
				borderCells++
				if white {
					borderErrors++
				}
				continue
			}
			if payload[r-1] == nil {
				payload[r-1] = make([]bool, dict.Size)
			}
			payload[r-1][c-1] = white
		}
	}
	if float64(borderErrors) > d.opts.MaxBorderErrorRate*float64(borderCells) {
		return 0, 0, false
	}

	id, rotation, _, ok = dict.match(payload, d.opts.MaxBitErrors)
	return id, rotation, ok
}

// toMarker maps a detection-scale quad back to source pixels and reorders it
// so the marker's own top-left corner comes first.
//
// If the observed grid needs k clockwise turns to match the code, the
// marker sits rotated k quarter turns counter-clockwise in the photo and its
// top-left corner is quad vertex (4-k) mod 4.
func toMarker(id, rotation int, quad geometry.Quad, scale float64) Marker {
	start := (4 - rotation) % 4
	var corners geometry.Quad
	for i := range corners {
		p := quad[(start+i)%4]
		corners[i] = geometry.Point{
			X: (p.X+0.5)*scale - 0.5,
			Y: (p.Y+0.5)*scale - 0.5,
		}
	}
	return Marker{
		ID:      id,
		Corners: corners,
		Center:  corners.Centroid(),
		Area:    corners.Area(),
	}
}

// sampleBilinear reads g at a fractional position, clamping to the edges.
func sampleBilinear(g *image.Gray, p geometry.Point) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	x := math.Max(0, math.Min(p.X, float64(w-1)))
	y := math.Max(0, math.Min(p.Y, float64(h-1)))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	at := func(px, py int) float64 { return float64(g.Pix[py*g.Stride+px]) }
	top := at(x0, y0)*(1-fx) + at(x1, y0)*fx
	bottom := at(x0, y1)*(1-fx) + at(x1, y1)*fx
	return top*(1-fy) + bottom*fy
}
