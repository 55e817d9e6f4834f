package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/utils/ptr"
	"github.com/charlie0129/markercam/pkg/vision"
)

// ErrInvalidProfile matches every *ValidationError with errors.Is.
var ErrInvalidProfile = errors.New("invalid calibration profile")

// minSize is the smallest accepted physical square size.
const minSize = 10e-6

// ValidationError lists every rule a profile broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidProfile, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidProfile
}

// Validate turns a raw profile into a Profile. The opener is used to probe
// camera and video inputs; it may be nil when the input is an image list.
func Validate(raw RawFileConfig, opener vision.CaptureOpener) (*Profile, error) {
	c := raw.withDefaults()
	var problems []string
	invalid := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		logrus.Error(msg)
		problems = append(problems, msg)
	}

	p := &Profile{
		BoardSize:          geometry.Size{Width: *c.BoardWidth, Height: *c.BoardHeight},
		SquareSize:         *c.SquareSize,
		MarkerSize:         *c.MarkerSize,
		PoseMarkerSize:     *c.PoseMarkerSize,
		WindowSize:         *c.WindowSize,
		NrFrames:           *c.NrFrames,
		AspectRatio:        *c.FixAspectRatio,
		ZeroTangentDist:    *c.ZeroTangentDist,
		FixPrincipalPoint:  *c.FixPrincipalPoint,
		Fisheye:            ptr.Deref(c.UseFisheyeModel, false),
		WritePoints:        *c.WritePoints,
		WriteExtrinsics:    *c.WriteExtrinsics,
		WriteGrid:          *c.WriteGrid,
		WritePerViewErrors: *c.WritePerViewErrors,
		OutputFileName:     *c.OutputFileName,
		ShowUndistorted:    *c.ShowUndistorted,
		FlipVertical:       ptr.Deref(c.FlipVertical, false),
		Input:              *c.Input,
		Delay:              time.Duration(*c.InputDelay) * time.Millisecond,
		FixK: [5]bool{
			ptr.Deref(c.FixK1, false),
			ptr.Deref(c.FixK2, false),
			ptr.Deref(c.FixK3, false),
			ptr.Deref(c.FixK4, false),
			ptr.Deref(c.FixK5, false),
		},
	}

	if p.BoardSize.Width <= 0 || p.BoardSize.Height <= 0 {
		invalid("invalid board size: %d %d", p.BoardSize.Width, p.BoardSize.Height)
	}
	if p.SquareSize <= minSize {
		invalid("invalid calibration square size %g", p.SquareSize)
	}
	if p.NrFrames <= 0 {
		invalid("invalid number of frames %d", p.NrFrames)
	}
	if p.PoseMarkerSize <= minSize {
		// Calibration still works; pose streaming will reject this later.
		logrus.Warnf("invalid pose marker size %g", p.PoseMarkerSize)
	}
	if p.WindowSize <= 0 {
		invalid("invalid window size %d", p.WindowSize)
	}

	p.Pattern = calibration.ParsePattern(*c.CalibrationPattern)
	if p.Pattern == calibration.PatternNotExisting {
		invalid("calibration pattern does not exist: %s", *c.CalibrationPattern)
	}

	dict, err := vision.ParseDictionary(*c.ArucoDictName)
	if err != nil {
		invalid("%v", err)
	}
	p.Dictionary = dict

	resolveInput(p, opener)
	switch {
	case p.InputType == InputInvalid:
		invalid("input does not exist: %q", p.Input)
	case p.InputType == InputImageList && len(p.ImageList) == 0:
		invalid("image list %q is empty", p.Input)
	}

	p.Flags = composeFlags(p)

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return p, nil
}

// resolveInput classifies the input descriptor. Camera and video inputs are
// opened once to verify they are usable and then released.
func resolveInput(p *Profile, opener vision.CaptureOpener) {
	p.InputType = InputInvalid
	if p.Input == "" {
		return
	}

	if p.Input[0] >= '0' && p.Input[0] <= '9' {
		end := 0
		for end < len(p.Input) && p.Input[end] >= '0' && p.Input[end] <= '9' {
			end++
		}
		id, err := strconv.Atoi(p.Input[:end])
		if err != nil {
			return
		}
		p.CameraID = id
		p.InputType = InputCamera
	} else {
		if IsListOfImages(p.Input) {
			list, err := ReadImageList(p.Input)
			if err == nil {
				p.InputType = InputImageList
				p.ImageList = list
				p.NrFrames = min(p.NrFrames, len(list))
				return
			}
			logrus.WithError(err).Debugf("%s is not an image list, trying it as a video", p.Input)
		}
		p.InputType = InputVideoFile
	}

	if opener == nil {
		p.InputType = InputInvalid
		return
	}

	var capture vision.Capture
	var err error
	if p.InputType == InputCamera {
		capture, err = opener.OpenCamera(p.CameraID)
	} else {
		capture, err = opener.OpenVideo(p.Input)
	}
	if err != nil {
		logrus.WithError(err).Debug("failed to open input")
		p.InputType = InputInvalid
		return
	}
	if err := capture.Close(); err != nil {
		logrus.WithError(err).Warn("failed to release input after probing")
	}
}

// composeFlags builds the solver bitmask. The fisheye vocabulary replaces the
// pinhole one entirely; aspect ratio and K5 have no fisheye equivalent.
func composeFlags(p *Profile) calibration.Flags {
	if p.Fisheye {
		flags := calibration.FisheyeFixSkew | calibration.FisheyeRecomputeExtrinsic
		fix := []calibration.Flags{calibration.FisheyeFixK1, calibration.FisheyeFixK2, calibration.FisheyeFixK3, calibration.FisheyeFixK4}
		for i, f := range fix {
			if p.FixK[i] {
				flags |= f
			}
		}
		if p.FixPrincipalPoint {
			flags |= calibration.FisheyeFixPrincipalPoint
		}
		return flags
	}

	var flags calibration.Flags
	if p.FixPrincipalPoint {
		flags |= calibration.FlagFixPrincipalPoint
	}
	if p.ZeroTangentDist {
		flags |= calibration.FlagZeroTangentDist
	}
	if p.AspectRatio != 0 {
		flags |= calibration.FlagFixAspectRatio
	}
	fix := []calibration.Flags{calibration.FlagFixK1, calibration.FlagFixK2, calibration.FlagFixK3, calibration.FlagFixK4, calibration.FlagFixK5}
	for i, f := range fix {
		if p.FixK[i] {
			flags |= f
		}
	}
	return flags
}
