package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Point2 is an image-space point in pixels (or normalized coordinates where noted).
type Point2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size is an image or board size.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Model selects the lens distortion model.
type Model int

const (
	// Pinhole uses Brown-Conrady distortion (k1, k2, p1, p2, k3).
	Pinhole Model = iota
	// Fisheye uses the equidistant model (k1..k4).
	Fisheye
)

// NumDistortion returns how many distortion coefficients the model carries.
func (m Model) NumDistortion() int {
	if m == Fisheye {
		return 4
	}
	return 5
}

// Camera is a calibrated camera: intrinsics plus distortion.
type Camera struct {
	Model      Model
	Fx, Fy     float64
	Cx, Cy     float64
	Distortion []float64
}

// NewCamera builds a Camera from a row-major 3x3 camera matrix.
func NewCamera(model Model, matrix []float64, dist []float64) Camera {
	c := Camera{Model: model, Distortion: make([]float64, model.NumDistortion())}
	if len(matrix) == 9 {
		c.Fx, c.Cx = matrix[0], matrix[2]
		c.Fy, c.Cy = matrix[4], matrix[5]
	}
	copy(c.Distortion, dist)
	return c
}

// Matrix returns the row-major 3x3 camera matrix.
func (c Camera) Matrix() []float64 {
	return []float64{
		c.Fx, 0, c.Cx,
		0, c.Fy, c.Cy,
		0, 0, 1,
	}
}

func (c Camera) dist(i int) float64 {
	if i < len(c.Distortion) {
		return c.Distortion[i]
	}
	return 0
}

// Project maps a point in camera coordinates to pixels.
func (c Camera) Project(p r3.Vector) Point2 {
	x, y := p.X/p.Z, p.Y/p.Z
	xd, yd := c.distort(x, y)
	return Point2{X: c.Fx*xd + c.Cx, Y: c.Fy*yd + c.Cy}
}

func (c Camera) distort(x, y float64) (float64, float64) {
	if c.Model == Fisheye {
		r := math.Hypot(x, y)
		if r < 1e-12 {
			return x, y
		}
		theta := math.Atan(r)
		t2 := theta * theta
		thetaD := theta * (1 + t2*(c.dist(0)+t2*(c.dist(1)+t2*(c.dist(2)+t2*c.dist(3)))))
		scale := thetaD / r
		return x * scale, y * scale
	}

	k1, k2, p1, p2, k3 := c.dist(0), c.dist(1), c.dist(2), c.dist(3), c.dist(4)
	r2 := x*x + y*y
	radial := 1 + r2*(k1+r2*(k2+r2*k3))
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}

// Normalize removes the intrinsics and the distortion from a pixel, returning
// the ideal normalized image coordinate.
func (c Camera) Normalize(p Point2) Point2 {
	x0 := (p.X - c.Cx) / c.Fx
	y0 := (p.Y - c.Cy) / c.Fy

	if c.Model == Fisheye {
		thetaD := math.Hypot(x0, y0)
		if thetaD < 1e-12 {
			return Point2{X: x0, Y: y0}
		}
		theta := thetaD
		for i := 0; i < 20; i++ {
			t2 := theta * theta
			theta = thetaD / (1 + t2*(c.dist(0)+t2*(c.dist(1)+t2*(c.dist(2)+t2*c.dist(3)))))
		}
		scale := math.Tan(theta) / thetaD
		return Point2{X: x0 * scale, Y: y0 * scale}
	}

	k1, k2, p1, p2, k3 := c.dist(0), c.dist(1), c.dist(2), c.dist(3), c.dist(4)
	x, y := x0, y0
	for i := 0; i < 20; i++ {
		r2 := x*x + y*y
		icdist := 1 / (1 + r2*(k1+r2*(k2+r2*k3)))
		dx := 2*p1*x*y + p2*(r2+2*x*x)
		dy := p1*(r2+2*y*y) + 2*p2*x*y
		x = (x0 - dx) * icdist
		y = (y0 - dy) * icdist
	}
	return Point2{X: x, Y: y}
}

// Transform applies a rigid transform (rotation vector + translation) to p.
func Transform(p r3.Vector, rvec, tvec r3.Vector) r3.Vector {
	r := Rodrigues(rvec)
	return mulVec(r, p).Add(tvec)
}

func mulVec(m *mat.Dense, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z,
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z,
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z,
	}
}

// AllFinite reports whether every value is finite and within limit in magnitude.
func AllFinite(limit float64, values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
			return false
		}
	}
	return true
}
