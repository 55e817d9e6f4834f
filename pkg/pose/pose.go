// Package pose estimates the 6-DOF pose of a square fiducial marker.
package pose

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/vision"
)

// Pose is a marker pose in camera coordinates.
type Pose struct {
	Seq       uint64    `json:"seq"`
	MarkerID  int       `json:"marker"`
	Timestamp time.Time `json:"ts"`

	Translation r3.Vector `json:"t"`
	// Up and Forward are the marker's Y and Z axes.
	Up      r3.Vector `json:"u"`
	Forward r3.Vector `json:"f"`
}

// now is a test seam.
var now = time.Now

// Estimator finds the first marker of a dictionary in a frame and solves
// its pose.
type Estimator struct {
	detector vision.MarkerDetector
	dict     vision.Dictionary
	camera   geometry.Camera
	object   []r3.Vector
}

// NewEstimator builds an estimator for markers with the given side length,
// in the same unit as the returned translation.
func NewEstimator(detector vision.MarkerDetector, dict vision.Dictionary, camera geometry.Camera, markerSize float64) *Estimator {
	return &Estimator{
		detector: detector,
		dict:     dict,
		camera:   camera,
		object:   MarkerCorners(markerSize),
	}
}

// MarkerCorners returns the marker outline centred on the origin, in the
// detector's corner order.
func MarkerCorners(size float64) []r3.Vector {
	h := size / 2
	return []r3.Vector{
		{X: -h, Y: h},
		{X: h, Y: h},
		{X: h, Y: -h},
		{X: -h, Y: -h},
	}
}

// Estimate returns the pose of the first detected marker. Seq is left for
// the caller to assign.
func (e *Estimator) Estimate(f vision.Frame) (Pose, bool) {
	markers := e.detector.DetectMarkers(f, e.dict)
	if len(markers) == 0 {
		return Pose{}, false
	}
	m := markers[0]

	rvec, tvec, err := geometry.SolvePlanarPnP(e.object, m.Corners[:], e.camera)
	if err != nil {
		logrus.WithError(err).WithField("marker", m.ID).Debug("pose solve failed")
		return Pose{}, false
	}
	if tvec.Z <= 0 {
		logrus.WithField("marker", m.ID).Debug("marker behind camera")
		return Pose{}, false
	}

	r := geometry.Rodrigues(rvec)
	return Pose{
		MarkerID:    m.ID,
		Timestamp:   now(),
		Translation: tvec,
		Up:          geometry.Column(r, 1),
		Forward:     geometry.Column(r, 2),
	}, true
}
