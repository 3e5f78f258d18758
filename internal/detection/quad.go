package detection

import (
	"math"

	"github.com/ironsheep/omr-reader/internal/geometry"
)

// fitQuad approximates a convex hull by a quadrilateral.
//
// # Algorithm
//
// The two hull vertices farthest apart form a diagonal. The remaining two
// corners are the vertices with the largest perpendicular distance from that
// diagonal on either side. For a square seen in perspective the diagonal's
// endpoints are opposite corners, and the farthest points on each side are
// the other two corners. The result is ordered clockwise from the top-left.
func fitQuad(hull []geometry.Point) (geometry.Quad, bool) {
	if len(hull) < 4 {
		return geometry.Quad{}, false
	}

	var a, b geometry.Point
	best := -1.0
	for i := range hull {
		for j := i + 1; j < len(hull); j++ {
			if d := hull[i].Dist(hull[j]); d > best {
				best, a, b = d, hull[i], hull[j]
			}
		}
	}
	if best <= 0 {
		return geometry.Quad{}, false
	}

	var left, right geometry.Point
	maxLeft, maxRight := 0.0, 0.0
	for _, p := range hull {
		// signed distance scaled by |ab|
		cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
		if cross > maxLeft {
			maxLeft, left = cross, p
		}
		if -cross > maxRight {
			maxRight, right = -cross, p
		}
	}
	if maxLeft/best < 1 || maxRight/best < 1 {
		return geometry.Quad{}, false
	}
	return geometry.OrderClockwise(geometry.Quad{a, left, b, right}), true
}

// quadIsConvex reports whether the four vertices turn consistently.
func quadIsConvex(q geometry.Quad) bool {
	sign := 0.0
	for i := range q {
		p0, p1, p2 := q[i], q[(i+1)%4], q[(i+2)%4]
		cross := (p1.X-p0.X)*(p2.Y-p1.Y) - (p1.Y-p0.Y)*(p2.X-p1.X)
		if math.Abs(cross) < 1e-9 {
			return false
		}
		if sign == 0 {
			sign = cross
		} else if sign*cross < 0 {
			return false
		}
	}
	return true
}
