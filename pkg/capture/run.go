package capture

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/source"
	"github.com/charlie0129/markercam/pkg/vision"
)

// ErrNotCalibrated is returned by Run when the input ends or the user stops
// the session before a calibration succeeded.
var ErrNotCalibrated = errors.New("capture ended without a calibration")

// Detector finds calibration targets in frames.
type Detector interface {
	Detect(f vision.Frame) (bool, []geometry.Point2)
}

// Preview receives frames for display while calibrated.
type Preview interface {
	WriteFrame(f vision.Frame) error
}

// Loop wires a session to its collaborators.
type Loop struct {
	Session  *Session
	Source   source.FrameSource
	Detector Detector

	// Flipper is required when FlipVertical is set.
	Flipper      vision.Flipper
	FlipVertical bool

	// Undistorter and Preview are optional.
	Undistorter vision.Undistorter
	Preview     Preview

	Controls *control.Queue

	// ExitOnCalibrated ends the loop as soon as a calibration succeeds
	// instead of waiting for a stop event or the end of input.
	ExitOnCalibrated bool
}

// Run drives the session until the input ends, a stop event arrives or ctx
// is done. It returns the session's calibration.
func (l *Loop) Run(ctx context.Context) (*calibration.Result, error) {
	s := l.Session
	for {
		if s.Ready() {
			_ = s.Calibrate()
		}
		if l.ExitOnCalibrated && s.Phase() == calibration.PhaseCalibrated {
			break
		}

		f, err := l.Source.Next(ctx)
		if errors.Is(err, source.ErrEndOfStream) {
			logrus.Info("input exhausted")
			_ = s.Finish()
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			logrus.WithError(err).Warn("failed to read frame")
		} else {
			l.process(f)
		}

		if s.Handle(l.Controls.Poll()) {
			logrus.Info("capture stopped by user")
			break
		}
	}

	if r := s.Result(); r != nil {
		return r, nil
	}
	return nil, ErrNotCalibrated
}

// process consumes f and closes it.
func (l *Loop) process(f vision.Frame) {
	s := l.Session
	if l.FlipVertical && l.Flipper != nil {
		flipped, err := l.Flipper.FlipVertical(f)
		if err != nil {
			logrus.WithError(err).Warn("failed to flip frame")
		} else {
			_ = f.Close()
			f = flipped
		}
	}
	defer f.Close()

	found, points := l.Detector.Detect(f)
	s.Offer(found, points, f.Size())

	if l.Preview == nil || s.Phase() != calibration.PhaseCalibrated || !s.ShowUndistorted() || l.Undistorter == nil {
		return
	}
	undistorted, err := l.Undistorter.Undistort(f, s.Result().Camera())
	if err != nil {
		logrus.WithError(err).Debug("failed to undistort frame")
		return
	}
	defer undistorted.Close()
	if err := l.Preview.WriteFrame(undistorted); err != nil {
		logrus.WithError(err).Debug("failed to write preview")
	}
}
