package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rodrigues converts a rotation vector (axis * angle) to a 3x3 rotation matrix.
func Rodrigues(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	if theta < 1e-12 {
		// First-order expansion: I + [r]x
		return mat.NewDense(3, 3, []float64{
			1, -rvec.Z, rvec.Y,
			rvec.Z, 1, -rvec.X,
			-rvec.Y, rvec.X, 1,
		})
	}

	k := rvec.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return mat.NewDense(3, 3, []float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	})
}

// RotationVector converts a rotation matrix back to a rotation vector.
func RotationVector(r mat.Matrix) r3.Vector {
	tr := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := math.Max(-1, math.Min(1, (tr-1)/2))
	theta := math.Acos(cosTheta)

	axis := r3.Vector{
		X: r.At(2, 1) - r.At(1, 2),
		Y: r.At(0, 2) - r.At(2, 0),
		Z: r.At(1, 0) - r.At(0, 1),
	}

	if theta < 1e-9 {
		return axis.Mul(0.5)
	}

	if math.Pi-theta < 1e-6 {
		// Near pi the antisymmetric part vanishes, recover the axis from the
		// diagonal instead.
		x := math.Sqrt(math.Max(0, (r.At(0, 0)+1)/2))
		y := math.Sqrt(math.Max(0, (r.At(1, 1)+1)/2))
		z := math.Sqrt(math.Max(0, (r.At(2, 2)+1)/2))
		switch {
		case x >= y && x >= z:
			if r.At(0, 1) < 0 {
				y = -y
			}
			if r.At(0, 2) < 0 {
				z = -z
			}
		case y >= z:
			if r.At(0, 1) < 0 {
				x = -x
			}
			if r.At(1, 2) < 0 {
				z = -z
			}
		default:
			if r.At(0, 2) < 0 {
				x = -x
			}
			if r.At(1, 2) < 0 {
				y = -y
			}
		}
		return r3.Vector{X: x, Y: y, Z: z}.Normalize().Mul(theta)
	}

	return axis.Mul(theta / (2 * math.Sin(theta)))
}

// NearestRotation projects an arbitrary 3x3 matrix onto SO(3).
func NearestRotation(m mat.Matrix) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// Flip the last singular direction to keep a proper rotation.
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r
}

// Column returns column j of a 3x3 matrix as a vector.
func Column(m mat.Matrix, j int) r3.Vector {
	return r3.Vector{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
}
