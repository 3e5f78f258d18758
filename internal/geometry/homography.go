package geometry

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix3 is a row-major 3x3 projective transform:
//
//	| m[0] m[1] m[2] |
//	| m[3] m[4] m[5] |
//	| m[6] m[7] m[8] |
type Matrix3 [9]float64

// ErrDegenerate is returned when four point correspondences do not define a
// unique projective transform (three collinear points, repeated points).
var ErrDegenerate = errors.New("degenerate point configuration")

// Identity returns the identity transform.
func Identity() Matrix3 {
	return Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps p through the transform. ok is false when p maps to infinity.
func (m Matrix3) Apply(p Point) (Point, bool) {
	w := m[6]*p.X + m[7]*p.Y + m[8]
	if w == 0 || math.IsNaN(w) {
		return Point{}, false
	}
	return Point{
		X: (m[0]*p.X + m[1]*p.Y + m[2]) / w,
		Y: (m[3]*p.X + m[4]*p.Y + m[5]) / w,
	}, true
}

// Mul returns m*o (apply o first, then m).
func (m Matrix3) Mul(o Matrix3) Matrix3 {
	var r Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += m[i*3+k] * o[k*3+j]
			}
			r[i*3+j] = s
		}
	}
	return r
}

// Inverse returns the inverse transform, normalized so the bottom-right
// element is 1.
func (m Matrix3) Inverse() (Matrix3, error) {
	dense := mat.NewDense(3, 3, m[:])
	var inv mat.Dense
	if err := inv.Inverse(dense); err != nil {
		return Matrix3{}, err
	}
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = inv.At(i, j)
		}
	}
	return out.normalized()
}

func (m Matrix3) normalized() (Matrix3, error) {
	if m[8] == 0 || math.IsNaN(m[8]) || math.IsInf(m[8], 0) {
		return Matrix3{}, ErrDegenerate
	}
	s := m[8]
	for i := range m {
		m[i] /= s
		if math.IsNaN(m[i]) || math.IsInf(m[i], 0) {
			return Matrix3{}, ErrDegenerate
		}
	}
	return m, nil
}

// PerspectiveTransform computes the homography H with H*src[i] = dst[i] for
// the four correspondences.
//
// # Algorithm
//
// Each correspondence contributes two rows of the 8x8 direct linear transform
// system with h22 fixed to 1:
//
//	x' = (h00 X + h01 Y + h02) / (h20 X + h21 Y + 1)
//	y' = (h10 X + h11 Y + h12) / (h20 X + h21 Y + 1)
//
// Both point sets are first normalized (centroid at the origin, mean distance
// sqrt(2)) so the system stays well conditioned for pixel-scale inputs; the
// solution is then de-normalized: H = Tdst⁻¹ · Hn · Tsrc.
func PerspectiveTransform(src, dst Quad) (Matrix3, error) {
	if src.Area() < 1e-9 || dst.Area() < 1e-9 {
		return Matrix3{}, ErrDegenerate
	}

	tSrc, nSrc, err := normalizePoints(src)
	if err != nil {
		return Matrix3{}, err
	}
	tDst, nDst, err := normalizePoints(dst)
	if err != nil {
		return Matrix3{}, err
	}

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		X, Y := nSrc[i].X, nSrc[i].Y
		x, y := nDst[i].X, nDst[i].Y
		r := 2 * i
		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		// A mat.Condition error still carries a solution; anything else
		// means the system is singular.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Matrix3{}, ErrDegenerate
		}
	}

	hn := Matrix3{
		h.AtVec(0), h.AtVec(1), h.AtVec(2),
		h.AtVec(3), h.AtVec(4), h.AtVec(5),
		h.AtVec(6), h.AtVec(7), 1,
	}
	tDstInv, err := tDst.Inverse()
	if err != nil {
		return Matrix3{}, ErrDegenerate
	}
	return tDstInv.Mul(hn).Mul(tSrc).normalized()
}

// normalizePoints returns the similarity transform T that moves the centroid
// of q to the origin and scales the mean distance to sqrt(2), and the
// transformed points.
func normalizePoints(q Quad) (Matrix3, Quad, error) {
	c := q.Centroid()
	var mean float64
	for _, p := range q {
		mean += p.Dist(c)
	}
	mean /= 4
	if mean < 1e-12 {
		return Matrix3{}, Quad{}, ErrDegenerate
	}
	s := math.Sqrt2 / mean
	t := Matrix3{s, 0, -s * c.X, 0, s, -s * c.Y, 0, 0, 1}
	var out Quad
	for i, p := range q {
		out[i] = Point{X: (p.X - c.X) * s, Y: (p.Y - c.Y) * s}
	}
	return t, out, nil
}
