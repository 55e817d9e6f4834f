package solver

import "errors"

// ErrNonFinite is returned when the solved camera matrix or distortion
// coefficients contain NaN, Inf or values beyond ±1e15.
var ErrNonFinite = errors.New("calibration result is not finite")
