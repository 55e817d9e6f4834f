package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography estimates the 3x3 homography mapping src to dst with the
// normalized direct linear transform. At least four correspondences are
// required. The returned matrix is scaled so that H[2][2] == 1 when possible.
func Homography(src, dst []Point2) (*mat.Dense, error) {
	n := len(src)
	if n < 4 || n != len(dst) {
		return nil, ErrTooFewPoints
	}

	ts, srcN := normalizePoints(src)
	td, dstN := normalizePoints(dst)
	if ts == nil || td == nil {
		return nil, ErrDegenerate
	}

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, ErrDegenerate
	}
	values := svd.Values(nil)
	// Rank deficiency beyond the expected null vector means collinear input.
	if len(values) >= 8 && values[7] < 1e-12*values[0] {
		return nil, ErrDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// H = Td^-1 * Hn * Ts
	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return nil, ErrDegenerate
	}
	var tmp, h mat.Dense
	tmp.Mul(&tdInv, hn)
	h.Mul(&tmp, ts)

	if s := h.At(2, 2); math.Abs(s) > 1e-15 {
		h.Scale(1/s, &h)
	}
	if !AllFinite(math.MaxFloat64, h.RawMatrix().Data...) {
		return nil, ErrDegenerate
	}
	return &h, nil
}

// ApplyHomography maps p through h.
func ApplyHomography(h mat.Matrix, p Point2) Point2 {
	x := h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)
	y := h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)
	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)
	return Point2{X: x / w, Y: y / w}
}

// normalizePoints translates the centroid to the origin and scales the mean
// distance to sqrt(2).
func normalizePoints(pts []Point2) (*mat.Dense, []Point2) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	if meanDist < 1e-12 {
		return nil, nil
	}
	s := math.Sqrt2 / meanDist

	out := make([]Point2, len(pts))
	for i, p := range pts {
		out[i] = Point2{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})
	return t, out
}
