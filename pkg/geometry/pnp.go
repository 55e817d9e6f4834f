package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/optimize"
)

// SolvePlanarPnP estimates the pose of a planar object (Z == 0) from at least
// four image projections. The initial pose comes from the homography and is
// refined by minimizing the reprojection error.
func SolvePlanarPnP(object []r3.Vector, image []Point2, cam Camera) (rvec, tvec r3.Vector, err error) {
	if len(object) < 4 || len(object) != len(image) {
		return r3.Vector{}, r3.Vector{}, ErrTooFewPoints
	}

	rvec, tvec, err = viewExtrinsics(object, image, cam)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}

	res := make([]float64, 2*len(image))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			rv, tv := getView(x)
			viewResiduals(object, image, cam, rv, tv, res)
			return sumSquares(res)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 5000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 50,
		},
	}

	x0 := make([]float64, viewParams)
	setView(x0, rvec, tvec)
	initial := problem.Func(x0)

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		// The homography pose is still usable when refinement stalls.
		return rvec, tvec, nil
	}
	if result.F < initial {
		rvec, tvec = getView(result.X)
	}
	if !AllFinite(math.MaxFloat64, rvec.X, rvec.Y, rvec.Z, tvec.X, tvec.Y, tvec.Z) {
		return r3.Vector{}, r3.Vector{}, fmt.Errorf("pose is not finite: %w", ErrDegenerate)
	}
	return rvec, tvec, nil
}
