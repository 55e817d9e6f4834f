package calibration

import (
	"time"

	"github.com/charlie0129/markercam/pkg/geometry"
)

// Phase defines the states of the capture state machine.
type Phase string

const (
	// PhaseDetection waits for an explicit start trigger.
	PhaseDetection Phase = "Detection"
	// PhaseCapturing accumulates samples.
	PhaseCapturing Phase = "Capturing"
	// PhaseCalibrated holds a solved calibration for this session.
	PhaseCalibrated Phase = "Calibrated"
)

// Pattern is a calibration target layout.
type Pattern int

const (
	PatternNotExisting Pattern = iota
	PatternChessboard
	PatternCharucoBoard
	PatternCirclesGrid
	PatternAsymmetricCirclesGrid
)

var patternNames = map[Pattern]string{
	PatternChessboard:            "CHESSBOARD",
	PatternCharucoBoard:          "CHARUCOBOARD",
	PatternCirclesGrid:           "CIRCLES_GRID",
	PatternAsymmetricCirclesGrid: "ASYMMETRIC_CIRCLES_GRID",
}

func (p Pattern) String() string {
	if s, ok := patternNames[p]; ok {
		return s
	}
	return "NOT_EXISTING"
}

// ParsePattern matches a case-sensitive pattern name. Unknown names yield
// PatternNotExisting.
func ParsePattern(s string) Pattern {
	for p, name := range patternNames {
		if name == s {
			return p
		}
	}
	return PatternNotExisting
}

// Result is a solved camera calibration.
type Result struct {
	CalibrationTime time.Time `json:"calibrationTime"`
	NrOfFrames      int       `json:"nrOfFrames"`

	ImageSize   geometry.Size `json:"imageSize"`
	BoardSize   geometry.Size `json:"boardSize"`
	SquareSize  float64       `json:"squareSize"`
	MarkerSize  float64       `json:"markerSize"`
	AspectRatio float64       `json:"aspectRatio,omitempty"`
	Flags       Flags         `json:"flags"`
	Fisheye     bool          `json:"fisheye"`

	// CameraMatrix is the row-major 3x3 intrinsic matrix.
	CameraMatrix []float64 `json:"cameraMatrix"`
	Distortion   []float64 `json:"distortion"`

	AvgReprojectionError float64   `json:"avgReprojectionError"`
	PerViewErrors        []float64 `json:"perViewErrors,omitempty"`
	// Extrinsics holds one (rvec, tvec) 6-tuple per view.
	Extrinsics  [][6]float64        `json:"extrinsics,omitempty"`
	ImagePoints [][]geometry.Point2 `json:"imagePoints,omitempty"`
	GridPoints  [][3]float64        `json:"gridPoints,omitempty"`
}

// Camera converts the result into a geometry camera model.
func (r *Result) Camera() geometry.Camera {
	model := geometry.Pinhole
	if r.Fisheye {
		model = geometry.Fisheye
	}
	return geometry.NewCamera(model, r.CameraMatrix, r.Distortion)
}

// Status is a synthesized view model exposed via the daemon HTTP API.
type Status struct {
	Phase           Phase     `json:"phase"`
	Samples         int       `json:"samples"`
	Target          int       `json:"target"`
	ShowUndistorted bool      `json:"showUndistorted"`
	Calibrated      bool      `json:"calibrated"`
	RMS             float64   `json:"rms,omitempty"`
	Streaming       bool      `json:"streaming"`
	FramesRead      uint64    `json:"framesRead"`
	PosesFound      uint64    `json:"posesFound"`
	PosesSent       uint64    `json:"posesSent"`
	SendErrors      uint64    `json:"sendErrors"`
	StartedAt       time.Time `json:"startedAt"`
	Message         string    `json:"message,omitempty"`
}
