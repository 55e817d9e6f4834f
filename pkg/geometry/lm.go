package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// residualFunc writes the residual vector for params into out.
type residualFunc func(params []float64, out []float64)

// lmProblem is a nonlinear least-squares problem solved with
// Levenberg-Marquardt. Only parameters with free[i] == true are optimized.
type lmProblem struct {
	residuals residualFunc
	nResidual int
	free      []bool
	// blocks maps a parameter index to the residual range it influences; nil
	// means the parameter touches every residual.
	blocks func(param int) (lo, hi int)

	maxIter int
	epsilon float64
}

// solve refines params in place and returns the final sum of squared residuals.
func (p *lmProblem) solve(params []float64) float64 {
	freeIdx := make([]int, 0, len(params))
	for i, f := range p.free {
		if f {
			freeIdx = append(freeIdx, i)
		}
	}

	r := make([]float64, p.nResidual)
	p.residuals(params, r)
	cost := sumSquares(r)
	if len(freeIdx) == 0 {
		return cost
	}

	m := len(freeIdx)
	jac := mat.NewDense(p.nResidual, m, nil)
	rTrial := make([]float64, p.nResidual)
	trial := make([]float64, len(params))
	lambda := 1e-3

	for iter := 0; iter < p.maxIter; iter++ {
		p.jacobian(params, r, freeIdx, jac)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		rv := mat.NewVecDense(p.nResidual, r)
		var g mat.VecDense
		g.MulVec(jac.T(), rv)

		improved := false
		var stepNorm float64
		for attempt := 0; attempt < 12; attempt++ {
			a := mat.DenseCopyOf(&jtj)
			for i := 0; i < m; i++ {
				d := jtj.At(i, i)
				a.Set(i, i, d+lambda*math.Max(d, 1e-12))
			}
			var delta mat.VecDense
			if err := delta.SolveVec(a, &g); err != nil {
				lambda *= 10
				continue
			}

			copy(trial, params)
			stepNorm = 0
			for k, idx := range freeIdx {
				step := -delta.AtVec(k)
				trial[idx] += step
				stepNorm += step * step
			}
			p.residuals(trial, rTrial)
			trialCost := sumSquares(rTrial)
			if !math.IsNaN(trialCost) && trialCost < cost {
				copy(params, trial)
				copy(r, rTrial)
				relChange := (cost - trialCost) / math.Max(cost, 1e-300)
				cost = trialCost
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				if relChange < p.epsilon {
					return cost
				}
				break
			}
			lambda *= 10
		}
		if !improved || math.Sqrt(stepNorm) < p.epsilon {
			break
		}
	}
	return cost
}

// jacobian fills jac with forward-difference derivatives of the residuals.
func (p *lmProblem) jacobian(params, r []float64, freeIdx []int, jac *mat.Dense) {
	shifted := make([]float64, len(params))
	copy(shifted, params)
	rShift := make([]float64, p.nResidual)

	for k, idx := range freeIdx {
		h := 1e-6 * math.Max(math.Abs(params[idx]), 1e-2)
		shifted[idx] = params[idx] + h
		p.residuals(shifted, rShift)
		shifted[idx] = params[idx]

		lo, hi := 0, p.nResidual
		if p.blocks != nil {
			lo, hi = p.blocks(idx)
		}
		for i := 0; i < p.nResidual; i++ {
			if i < lo || i >= hi {
				jac.Set(i, k, 0)
				continue
			}
			jac.Set(i, k, (rShift[i]-r[i])/h)
		}
	}
}

func sumSquares(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}
