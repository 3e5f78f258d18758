package geometry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Point is a 2D coordinate. Depending on context it is in pixels or
// millimeters; the type does not track units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Quad is a quadrilateral given in traversal order (clockwise from the
// top-left when it describes a page).
type Quad [4]Point

// Area returns the absolute shoelace area of the quadrilateral.
func (q Quad) Area() float64 {
	return PolygonArea(q[:])
}

// SideLengths returns the four edge lengths: q0→q1, q1→q2, q2→q3, q3→q0.
func (q Quad) SideLengths() [4]float64 {
	var sides [4]float64
	for i := range q {
		sides[i] = q[i].Dist(q[(i+1)%4])
	}
	return sides
}

// SideRatio returns max/min side length and the shortest side. When the
// shortest side is zero the ratio is +Inf.
func (q Quad) SideRatio() (ratio, minSide float64) {
	sides := q.SideLengths()
	minSide = floats.Min(sides[:])
	maxSide := floats.Max(sides[:])
	if minSide <= 0 {
		return math.Inf(1), minSide
	}
	return maxSide / minSide, minSide
}

// Centroid returns the mean of the four vertices.
func (q Quad) Centroid() Point {
	var c Point
	for _, p := range q {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= 4
	c.Y /= 4
	return c
}

// PolygonArea computes the absolute area of a simple polygon using the
// shoelace formula.
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

// ConvexHull returns the convex hull of pts in counter-clockwise order
// (clockwise on screen, since image Y grows downward), using Andrew's
// monotone chain. Collinear points are dropped.
func ConvexHull(pts []Point) []Point {
	if len(pts) < 3 {
		out := make([]Point, len(pts))
		copy(out, pts)
		return out
	}
	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	cross := func(o, a, b Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	hull := make([]Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// OrderClockwise sorts four points clockwise on screen around their centroid
// and rotates the result so the vertex nearest the top-left (smallest X+Y)
// comes first.
func OrderClockwise(q Quad) Quad {
	c := q.Centroid()
	pts := q
	sort.Slice(pts[:], func(i, j int) bool {
		return math.Atan2(pts[i].Y-c.Y, pts[i].X-c.X) < math.Atan2(pts[j].Y-c.Y, pts[j].X-c.X)
	})
	start := 0
	for i := 1; i < 4; i++ {
		if pts[i].X+pts[i].Y < pts[start].X+pts[start].Y {
			start = i
		}
	}
	var out Quad
	for i := 0; i < 4; i++ {
		out[i] = pts[(start+i)%4]
	}
	return out
}
