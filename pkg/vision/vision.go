// Package vision declares the boundary between markercam and the image
// processing toolkit. Feature extraction, frame I/O and undistortion are
// consumed through these interfaces; pkg/vision/opencv provides the gocv
// implementation and tests substitute fakes.
package vision

import (
	"errors"

	"github.com/charlie0129/markercam/pkg/geometry"
)

// ErrNoFrame is returned by Capture.Read when the device or file yields no
// more frames.
var ErrNoFrame = errors.New("no frame available")

// Frame is a decoded image owned by the toolkit. Callers must Close it.
type Frame interface {
	Size() geometry.Size
	Close() error
}

// Capture is an opened camera or video file.
type Capture interface {
	Read() (Frame, error)
	Close() error
}

// CaptureOpener opens inputs by descriptor.
type CaptureOpener interface {
	OpenCamera(index int) (Capture, error)
	OpenVideo(path string) (Capture, error)
	ReadImage(path string) (Frame, error)
}

// CharucoBoard describes a ChArUco target.
type CharucoBoard struct {
	Size       geometry.Size
	SquareSize float64
	MarkerSize float64
	Dictionary Dictionary
}

// BoardFinder extracts calibration target points from a frame.
type BoardFinder interface {
	// FindChessboard returns the inner corners in row-major order.
	FindChessboard(f Frame, size geometry.Size, fastCheck bool) ([]geometry.Point2, bool)
	// RefineCorners moves corners to sub-pixel accuracy within a
	// (2*window+1) search area.
	RefineCorners(f Frame, corners []geometry.Point2, window int) []geometry.Point2
	FindCirclesGrid(f Frame, size geometry.Size, asymmetric bool) ([]geometry.Point2, bool)
	// FindCharucoCorners returns the detected interior chessboard corners. It
	// may return fewer than (w-1)*(h-1) points.
	FindCharucoCorners(f Frame, board CharucoBoard) []geometry.Point2
}

// Marker is a detected fiducial marker. Corners are in the toolkit's order:
// top-left, top-right, bottom-right, bottom-left.
type Marker struct {
	ID      int
	Corners [4]geometry.Point2
}

// MarkerDetector finds fiducial markers of a dictionary.
type MarkerDetector interface {
	DetectMarkers(f Frame, dict Dictionary) []Marker
}

// Undistorter removes lens distortion from a frame.
type Undistorter interface {
	Undistort(f Frame, cam geometry.Camera) (Frame, error)
}

// Flipper mirrors a frame around its horizontal axis.
type Flipper interface {
	FlipVertical(f Frame) (Frame, error)
}

// Toolkit is the complete set of operations markercam needs.
type Toolkit interface {
	CaptureOpener
	BoardFinder
	MarkerDetector
	Undistorter
	Flipper
}
