package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/vision"
)

// InputType is the resolved kind of the profile's input descriptor.
type InputType int

const (
	InputInvalid InputType = iota
	InputCamera
	InputVideoFile
	InputImageList
)

func (t InputType) String() string {
	switch t {
	case InputCamera:
		return "CAMERA"
	case InputVideoFile:
		return "VIDEO_FILE"
	case InputImageList:
		return "IMAGE_LIST"
	default:
		return "INVALID"
	}
}

// Profile is a validated calibration profile. It is only produced by
// Validate and is not modified afterwards.
type Profile struct {
	BoardSize      geometry.Size
	Pattern        calibration.Pattern
	SquareSize     float64
	MarkerSize     float64
	PoseMarkerSize float64
	WindowSize     int
	Dictionary     vision.Dictionary

	NrFrames          int
	AspectRatio       float64
	ZeroTangentDist   bool
	FixPrincipalPoint bool
	FixK              [5]bool
	Fisheye           bool
	Flags             calibration.Flags

	WritePoints        bool
	WriteExtrinsics    bool
	WriteGrid          bool
	WritePerViewErrors bool
	OutputFileName     string

	ShowUndistorted bool
	FlipVertical    bool

	Input     string
	InputType InputType
	CameraID  int
	ImageList []string
	Delay     time.Duration
}

// CharucoBoard describes the profile's ChArUco target.
func (p *Profile) CharucoBoard() vision.CharucoBoard {
	return vision.CharucoBoard{
		Size:       p.BoardSize,
		SquareSize: p.SquareSize,
		MarkerSize: p.MarkerSize,
		Dictionary: p.Dictionary,
	}
}

// Live reports whether the input is a continuous capture rather than a
// pre-enumerated image list.
func (p *Profile) Live() bool {
	return p.InputType == InputCamera || p.InputType == InputVideoFile
}

func (p *Profile) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"board":           p.BoardSize,
		"pattern":         p.Pattern.String(),
		"squareSize":      p.SquareSize,
		"markerSize":      p.MarkerSize,
		"poseMarkerSize":  p.PoseMarkerSize,
		"dictionary":      p.Dictionary.String(),
		"nrFrames":        p.NrFrames,
		"fisheye":         p.Fisheye,
		"flags":           p.Flags.Comment(p.Fisheye),
		"input":           p.Input,
		"inputType":       p.InputType.String(),
		"delay":           p.Delay,
		"output":          p.OutputFileName,
		"showUndistorted": p.ShowUndistorted,
	}
}
