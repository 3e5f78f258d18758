package geometry

import (
	"encoding/json"
	"fmt"
	"math"
)

// Page is the physical sheet size in millimeters.
type Page struct {
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
}

// PixelSize returns the canvas size of the page at the given density,
// rounding each dimension to the nearest pixel.
func (p Page) PixelSize(pxPerMM float64) (int, int) {
	return int(math.Round(p.WidthMM * pxPerMM)), int(math.Round(p.HeightMM * pxPerMM))
}

// Rect is an axis-aligned rectangle in millimeters, origin at the top-left
// corner of the page.
type Rect struct {
	XMM      float64 `json:"x_mm"`
	YMM      float64 `json:"y_mm"`
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
}

// PixelBounds converts the rectangle to pixel coordinates, grown by marginMM
// on every side. The result is not clipped.
func (r Rect) PixelBounds(pxPerMM, marginMM float64) (x0, y0, x1, y1 int) {
	m := math.Round(marginMM * pxPerMM)
	x := math.Round(r.XMM * pxPerMM)
	y := math.Round(r.YMM * pxPerMM)
	w := math.Round(r.WidthMM * pxPerMM)
	h := math.Round(r.HeightMM * pxPerMM)
	return int(x - m), int(y - m), int(x + w + m), int(y + h + m)
}

// Corner names one of the four page corners a fiducial is anchored to.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

// CornerOrder is the fixed traversal used to build source and destination
// quadrilaterals: clockwise from the top-left.
var CornerOrder = [4]Corner{TopLeft, TopRight, BottomRight, BottomLeft}

var cornerNames = [...]string{
	TopLeft:     "top_left",
	TopRight:    "top_right",
	BottomRight: "bottom_right",
	BottomLeft:  "bottom_left",
}

func (c Corner) String() string {
	if int(c) >= 0 && int(c) < len(cornerNames) {
		return cornerNames[c]
	}
	return fmt.Sprintf("corner(%d)", int(c))
}

// ParseCorner maps a corner name to its Corner.
func ParseCorner(name string) (Corner, error) {
	for i, n := range cornerNames {
		if n == name {
			return Corner(i), nil
		}
	}
	return 0, fmt.Errorf("unknown corner %q", name)
}

// MarshalJSON encodes the corner by name.
func (c Corner) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a corner name.
func (c *Corner) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseCorner(name)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarkerPlacement is a fiducial anchored at one corner of the page.
type MarkerPlacement struct {
	MarkerID  int     `json:"marker_id"`
	Corner    Corner  `json:"corner"`
	CenterXMM float64 `json:"center_x_mm"`
	CenterYMM float64 `json:"center_y_mm"`
	SizeMM    float64 `json:"size_mm,omitempty"`
}

// Center returns the marker center scaled to pixels.
func (m MarkerPlacement) Center(pxPerMM float64) Point {
	return Point{X: m.CenterXMM * pxPerMM, Y: m.CenterYMM * pxPerMM}
}

// BubblePlacement is one printed circular mark.
//
// The (GroupID, Row, Col) triple is the stable ordering key used for every
// bubble-level listing.
type BubblePlacement struct {
	BubbleID  string  `json:"bubble_id"`
	GroupID   string  `json:"group_id"`
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	Label     string  `json:"label"`
	CenterXMM float64 `json:"center_x_mm"`
	CenterYMM float64 `json:"center_y_mm"`
	RadiusMM  float64 `json:"radius_mm"`
}

// PixelCircle is a bubble projected onto the aligned canvas.
type PixelCircle struct {
	CX, CY int
	Radius int
	Inner  int
}

// PixelCircle converts the bubble to pixel coordinates. The radius is at
// least one pixel, and so is the inner (sampling) radius.
func (b BubblePlacement) PixelCircle(pxPerMM, innerRadiusFactor float64) PixelCircle {
	radius := int(math.Round(b.RadiusMM * pxPerMM))
	if radius < 1 {
		radius = 1
	}
	inner := int(math.Round(float64(radius) * innerRadiusFactor))
	if inner < 1 {
		inner = 1
	}
	return PixelCircle{
		CX:     int(math.Round(b.CenterXMM * pxPerMM)),
		CY:     int(math.Round(b.CenterYMM * pxPerMM)),
		Radius: radius,
		Inner:  inner,
	}
}

// Less orders bubbles by (GroupID, Row, Col).
func Less(groupA string, rowA, colA int, groupB string, rowB, colB int) bool {
	if groupA != groupB {
		return groupA < groupB
	}
	if rowA != rowB {
		return rowA < rowB
	}
	return colA < colB
}
