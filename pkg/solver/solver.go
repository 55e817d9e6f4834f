// Package solver turns accumulated samples into a persisted calibration
// result, and serves earlier results from the calibration file.
package solver

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/golang/geo/r3"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/store"
)

const finiteLimit = 1e15

// now and calibrate are test seams.
var (
	now       = time.Now
	calibrate = geometry.Calibrate
)

// Solver runs the calibration engine for a profile.
type Solver struct {
	profile *config.Profile
	calls   int
}

func New(p *config.Profile) *Solver {
	return &Solver{profile: p}
}

// Calls reports how many times Solve ran.
func (s *Solver) Calls() int {
	return s.calls
}

// Solve calibrates from samples taken at imageSize and persists the result
// to the profile's output file. samples is not modified.
func (s *Solver) Solve(samples [][]geometry.Point2, imageSize geometry.Size) (*calibration.Result, error) {
	s.calls++
	p := s.profile

	grid := ObjectGrid(p.Pattern, p.BoardSize, p.SquareSize)
	objectPoints := make([][]r3.Vector, len(samples))
	for i := range samples {
		objectPoints[i] = grid
	}

	logrus.WithFields(logrus.Fields{
		"views":     len(samples),
		"imageSize": imageSize,
		"fisheye":   p.Fisheye,
	}).Info("running camera calibration")

	c, err := calibrate(objectPoints, samples, imageSize, Options(p))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to calibrate from %d views", len(samples))
	}

	cam := c.Camera.Matrix()
	if !geometry.AllFinite(finiteLimit, cam...) || !geometry.AllFinite(finiteLimit, c.Camera.Distortion...) {
		return nil, ErrNonFinite
	}

	r := &calibration.Result{
		CalibrationTime:      now(),
		NrOfFrames:           len(samples),
		ImageSize:            imageSize,
		BoardSize:            p.BoardSize,
		SquareSize:           p.SquareSize,
		MarkerSize:           p.MarkerSize,
		AspectRatio:          p.AspectRatio,
		Flags:                p.Flags,
		Fisheye:              p.Fisheye,
		CameraMatrix:         cam,
		Distortion:           c.Camera.Distortion,
		AvgReprojectionError: c.RMS,
		PerViewErrors:        c.PerViewErrors,
		ImagePoints:          samples,
	}
	r.Extrinsics = make([][6]float64, len(c.RVecs))
	for i := range c.RVecs {
		rv, tv := c.RVecs[i], c.TVecs[i]
		r.Extrinsics[i] = [6]float64{rv.X, rv.Y, rv.Z, tv.X, tv.Y, tv.Z}
	}
	r.GridPoints = make([][3]float64, len(grid))
	for i, g := range grid {
		r.GridPoints[i] = [3]float64{g.X, g.Y, g.Z}
	}

	logrus.WithFields(logrus.Fields{
		"rms":    r.AvgReprojectionError,
		"camera": r.CameraMatrix,
		"dist":   r.Distortion,
	}).Info("calibration succeeded")

	if err := store.Save(p.OutputFileName, r, StoreOptions(p)); err != nil {
		return nil, err
	}
	logrus.WithField("path", p.OutputFileName).Info("calibration result saved")
	return r, nil
}

// ObjectGrid returns the board's feature positions in board coordinates
// (Z == 0), in the order the detector reports them.
func ObjectGrid(pattern calibration.Pattern, board geometry.Size, square float64) []r3.Vector {
	w, h := board.Width, board.Height
	if pattern == calibration.PatternCharucoBoard {
		w, h = w-1, h-1
	}
	pts := make([]r3.Vector, 0, max(w*h, 0))
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			x := float64(j) * square
			if pattern == calibration.PatternAsymmetricCirclesGrid {
				x = float64(2*j+i%2) * square
			}
			pts = append(pts, r3.Vector{X: x, Y: float64(i) * square})
		}
	}
	return pts
}

// Options maps the profile's flags onto the geometry engine.
func Options(p *config.Profile) geometry.Options {
	opts := geometry.Options{
		Model:             geometry.Pinhole,
		FixPrincipalPoint: p.FixPrincipalPoint,
		FixK:              p.FixK,
	}
	if p.Fisheye {
		opts.Model = geometry.Fisheye
		opts.FixK[4] = false
		return opts
	}
	opts.ZeroTangentDist = p.ZeroTangentDist
	if p.Flags.Has(calibration.FlagFixAspectRatio) {
		opts.AspectRatio = p.AspectRatio
	}
	return opts
}

// StoreOptions selects the optional file sections the profile asks for.
func StoreOptions(p *config.Profile) store.Options {
	return store.Options{
		PerViewErrors: p.WritePerViewErrors,
		Extrinsics:    p.WriteExtrinsics,
		ImagePoints:   p.WritePoints,
		GridPoints:    p.WriteGrid,
	}
}

// Runner produces a fresh calibration, typically by running a capture
// session that calls Solve.
type Runner interface {
	Run(ctx context.Context) (*calibration.Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) (*calibration.Result, error)

func (f RunnerFunc) Run(ctx context.Context) (*calibration.Result, error) {
	return f(ctx)
}

// CalculateCameraParameters returns the cached calibration for p when one
// is usable, and otherwise runs runner. The cached file is trusted as-is.
func CalculateCameraParameters(ctx context.Context, p *config.Profile, runner Runner) (*calibration.Result, error) {
	r, err := store.Load(p.OutputFileName)
	if err == nil {
		logrus.WithFields(logrus.Fields{
			"path": p.OutputFileName,
			"rms":  r.AvgReprojectionError,
		}).Info("using cached calibration")
		return r, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logrus.WithField("path", p.OutputFileName).Debug("no cached calibration")
	} else {
		logrus.WithError(err).WithField("path", p.OutputFileName).Debug("cached calibration unusable")
	}

	return runner.Run(ctx)
}
