package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Options controls which camera parameters Calibrate estimates.
type Options struct {
	Model Model

	// Guess seeds the intrinsics instead of the closed-form initialization.
	Guess *Camera

	// FixPrincipalPoint keeps cx, cy at their initial value.
	FixPrincipalPoint bool
	// AspectRatio, when positive, fixes fx/fy to this value.
	AspectRatio float64
	// ZeroTangentDist forces p1 = p2 = 0 (pinhole only).
	ZeroTangentDist bool
	// FixK holds radial coefficients k1..k5 at their initial value. For the
	// pinhole model only k1..k3 exist, so FixK[3] and FixK[4] have no effect.
	FixK [5]bool
}

// Calibration is the outcome of a Calibrate call.
type Calibration struct {
	Camera        Camera
	RVecs         []r3.Vector
	TVecs         []r3.Vector
	RMS           float64
	PerViewErrors []float64
}

const viewParams = 6

// Calibrate estimates intrinsics, distortion and per-view extrinsics from
// planar object points (Z == 0) and their detected image projections.
func Calibrate(objectPoints [][]r3.Vector, imagePoints [][]Point2, size Size, opts Options) (*Calibration, error) {
	nViews := len(imagePoints)
	if nViews == 0 {
		return nil, ErrNoViews
	}
	if len(objectPoints) != nViews {
		return nil, ErrMismatchedViews
	}
	offsets := make([]int, nViews+1)
	for v := range imagePoints {
		if len(objectPoints[v]) != len(imagePoints[v]) {
			return nil, ErrMismatchedViews
		}
		if len(imagePoints[v]) < 4 {
			return nil, ErrTooFewPoints
		}
		offsets[v+1] = offsets[v] + len(imagePoints[v])
	}

	cam, err := initCamera(objectPoints, imagePoints, size, opts)
	if err != nil {
		return nil, err
	}

	nd := opts.Model.NumDistortion()
	base := 4 + nd
	params := make([]float64, base+viewParams*nViews)
	params[0], params[1], params[2], params[3] = cam.Fx, cam.Fy, cam.Cx, cam.Cy
	copy(params[4:base], cam.Distortion)

	for v := range imagePoints {
		rvec, tvec, err := viewExtrinsics(objectPoints[v], imagePoints[v], cam)
		if err != nil {
			return nil, err
		}
		rvec, tvec = refineExtrinsics(objectPoints[v], imagePoints[v], cam, rvec, tvec)
		setView(params[base+viewParams*v:], rvec, tvec)
	}

	free := freeMask(len(params), base, opts)
	decode := func(p []float64) Camera {
		c := Camera{Model: opts.Model, Fx: p[0], Fy: p[1], Cx: p[2], Cy: p[3], Distortion: p[4:base]}
		if opts.AspectRatio > 0 {
			c.Fx = opts.AspectRatio * c.Fy
		}
		return c
	}

	problem := &lmProblem{
		nResidual: 2 * offsets[nViews],
		free:      free,
		maxIter:   100,
		epsilon:   1e-12,
		residuals: func(p []float64, out []float64) {
			c := decode(p)
			for v := range imagePoints {
				rvec, tvec := getView(p[base+viewParams*v:])
				viewResiduals(objectPoints[v], imagePoints[v], c, rvec, tvec, out[2*offsets[v]:2*offsets[v+1]])
			}
		},
		blocks: func(idx int) (int, int) {
			if idx < base {
				return 0, 2 * offsets[nViews]
			}
			v := (idx - base) / viewParams
			return 2 * offsets[v], 2 * offsets[v+1]
		},
	}
	problem.solve(params)

	final := decode(params)
	result := &Calibration{
		Camera: Camera{
			Model:      final.Model,
			Fx:         final.Fx,
			Fy:         final.Fy,
			Cx:         final.Cx,
			Cy:         final.Cy,
			Distortion: append([]float64(nil), final.Distortion...),
		},
		RVecs:         make([]r3.Vector, nViews),
		TVecs:         make([]r3.Vector, nViews),
		PerViewErrors: make([]float64, nViews),
	}

	var totalErr float64
	for v := range imagePoints {
		rvec, tvec := getView(params[base+viewParams*v:])
		result.RVecs[v], result.TVecs[v] = rvec, tvec
		viewErr := ViewError(objectPoints[v], imagePoints[v], result.Camera, rvec, tvec)
		totalErr += viewErr
		result.PerViewErrors[v] = math.Sqrt(viewErr / float64(len(imagePoints[v])))
	}
	result.RMS = math.Sqrt(totalErr / float64(offsets[nViews]))
	return result, nil
}

// ViewError returns the sum of squared reprojection distances of one view.
func ViewError(object []r3.Vector, image []Point2, cam Camera, rvec, tvec r3.Vector) float64 {
	res := make([]float64, 2*len(image))
	viewResiduals(object, image, cam, rvec, tvec, res)
	return sumSquares(res)
}

func viewResiduals(object []r3.Vector, image []Point2, cam Camera, rvec, tvec r3.Vector, out []float64) {
	r := Rodrigues(rvec)
	for i, p := range object {
		proj := cam.Project(mulVec(r, p).Add(tvec))
		out[2*i] = proj.X - image[i].X
		out[2*i+1] = proj.Y - image[i].Y
	}
}

func freeMask(n, base int, opts Options) []bool {
	free := make([]bool, n)
	for i := range free {
		free[i] = true
	}
	if opts.AspectRatio > 0 {
		free[0] = false
	}
	if opts.FixPrincipalPoint {
		free[2], free[3] = false, false
	}

	if opts.Model == Fisheye {
		for i := 0; i < 4; i++ {
			if opts.FixK[i] {
				free[4+i] = false
			}
		}
		return free
	}

	// k1, k2, p1, p2, k3
	if opts.FixK[0] {
		free[4] = false
	}
	if opts.FixK[1] {
		free[5] = false
	}
	if opts.ZeroTangentDist {
		free[6], free[7] = false, false
	}
	if opts.FixK[2] {
		free[8] = false
	}
	return free
}

func setView(dst []float64, rvec, tvec r3.Vector) {
	dst[0], dst[1], dst[2] = rvec.X, rvec.Y, rvec.Z
	dst[3], dst[4], dst[5] = tvec.X, tvec.Y, tvec.Z
}

func getView(src []float64) (r3.Vector, r3.Vector) {
	return r3.Vector{X: src[0], Y: src[1], Z: src[2]}, r3.Vector{X: src[3], Y: src[4], Z: src[5]}
}

// initCamera produces the starting intrinsics for the refinement.
func initCamera(objectPoints [][]r3.Vector, imagePoints [][]Point2, size Size, opts Options) (Camera, error) {
	nd := opts.Model.NumDistortion()
	if opts.Guess != nil {
		c := *opts.Guess
		c.Model = opts.Model
		c.Distortion = make([]float64, nd)
		copy(c.Distortion, opts.Guess.Distortion)
		if opts.ZeroTangentDist && opts.Model == Pinhole {
			c.Distortion[2], c.Distortion[3] = 0, 0
		}
		if opts.AspectRatio > 0 {
			c.Fx = opts.AspectRatio * c.Fy
		}
		return c, nil
	}

	cx := float64(size.Width-1) / 2
	cy := float64(size.Height-1) / 2
	cam := Camera{Model: opts.Model, Cx: cx, Cy: cy, Distortion: make([]float64, nd)}

	if opts.Model == Fisheye {
		f := float64(max(size.Width, size.Height)) / math.Pi
		cam.Fx, cam.Fy = f, f
		if opts.AspectRatio > 0 {
			cam.Fx = opts.AspectRatio * cam.Fy
		}
		return cam, nil
	}

	fx, fy, ok := closedFormFocal(objectPoints, imagePoints, cx, cy)
	if !ok {
		fx, fy = float64(size.Width), float64(size.Width)
	}
	if opts.AspectRatio > 0 {
		tf := (fx + fy) / (opts.AspectRatio + 1)
		fx, fy = opts.AspectRatio*tf, tf
	}
	cam.Fx, cam.Fy = fx, fy
	return cam, nil
}

// closedFormFocal estimates fx and fy from the vanishing-point constraints of
// each view's homography with the principal point held at (cx, cy).
func closedFormFocal(objectPoints [][]r3.Vector, imagePoints [][]Point2, cx, cy float64) (float64, float64, bool) {
	nViews := len(imagePoints)
	a := mat.NewDense(2*nViews, 2, nil)
	b := mat.NewVecDense(2*nViews, nil)

	for v := range imagePoints {
		src := make([]Point2, len(objectPoints[v]))
		for i, p := range objectPoints[v] {
			src[i] = Point2{X: p.X, Y: p.Y}
		}
		hm, err := Homography(src, imagePoints[v])
		if err != nil {
			return 0, 0, false
		}
		h := [3]float64{hm.At(0, 0) - hm.At(2, 0)*cx, hm.At(1, 0) - hm.At(2, 0)*cy, hm.At(2, 0)}
		g := [3]float64{hm.At(0, 1) - hm.At(2, 1)*cx, hm.At(1, 1) - hm.At(2, 1)*cy, hm.At(2, 1)}
		var d1, d2 [3]float64
		for j := 0; j < 3; j++ {
			d1[j] = (h[j] + g[j]) * 0.5
			d2[j] = (h[j] - g[j]) * 0.5
		}
		normalize3(&h)
		normalize3(&g)
		normalize3(&d1)
		normalize3(&d2)

		a.Set(2*v, 0, h[0]*g[0])
		a.Set(2*v, 1, h[1]*g[1])
		b.SetVec(2*v, -h[2]*g[2])
		a.Set(2*v+1, 0, d1[0]*d2[0])
		a.Set(2*v+1, 1, d1[1]*d2[1])
		b.SetVec(2*v+1, -d1[2]*d2[2])
	}

	var f mat.VecDense
	if err := f.SolveVec(a, b); err != nil {
		return 0, 0, false
	}
	fx := math.Sqrt(math.Abs(1 / f.AtVec(0)))
	fy := math.Sqrt(math.Abs(1 / f.AtVec(1)))
	if !AllFinite(1e9, fx, fy) || fx < 1 || fy < 1 {
		return 0, 0, false
	}
	return fx, fy, true
}

func normalize3(v *[3]float64) {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n < 1e-300 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

// viewExtrinsics recovers a planar target's pose from its homography in
// normalized image coordinates.
func viewExtrinsics(object []r3.Vector, image []Point2, cam Camera) (r3.Vector, r3.Vector, error) {
	src := make([]Point2, len(object))
	dst := make([]Point2, len(image))
	for i, p := range object {
		src[i] = Point2{X: p.X, Y: p.Y}
		dst[i] = cam.Normalize(image[i])
	}
	h, err := Homography(src, dst)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}

	h1, h2, h3 := Column(h, 0), Column(h, 1), Column(h, 2)
	n1, n2 := h1.Norm(), h2.Norm()
	if n1 < 1e-12 || n2 < 1e-12 {
		return r3.Vector{}, r3.Vector{}, ErrDegenerate
	}
	lambda := 2 / (n1 + n2)
	t := h3.Mul(lambda)
	if t.Z < 0 {
		lambda = -lambda
		t = t.Mul(-1)
	}
	r1 := h1.Mul(lambda)
	r2 := h2.Mul(lambda)
	r3v := r1.Cross(r2)

	m := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})
	return RotationVector(NearestRotation(m)), t, nil
}

// refineExtrinsics minimizes one view's reprojection error with the
// intrinsics held fixed.
func refineExtrinsics(object []r3.Vector, image []Point2, cam Camera, rvec, tvec r3.Vector) (r3.Vector, r3.Vector) {
	params := make([]float64, viewParams)
	setView(params, rvec, tvec)
	free := make([]bool, viewParams)
	for i := range free {
		free[i] = true
	}
	problem := &lmProblem{
		nResidual: 2 * len(image),
		free:      free,
		maxIter:   20,
		epsilon:   1e-12,
		residuals: func(p []float64, out []float64) {
			rv, tv := getView(p)
			viewResiduals(object, image, cam, rv, tv, out)
		},
	}
	problem.solve(params)
	return getView(params)
}
