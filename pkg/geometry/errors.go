package geometry

import "errors"

var (
	// ErrTooFewPoints is returned when a solve has fewer correspondences than it needs.
	ErrTooFewPoints = errors.New("too few point correspondences")
	// ErrDegenerate is returned when the input geometry does not constrain the solution.
	ErrDegenerate = errors.New("degenerate point configuration")
	// ErrNoViews is returned when calibration is asked to run without samples.
	ErrNoViews = errors.New("no views to calibrate from")
	// ErrMismatchedViews is returned when a view's image and object points differ in length.
	ErrMismatchedViews = errors.New("object and image point counts differ")
)
