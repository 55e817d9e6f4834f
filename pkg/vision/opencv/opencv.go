// Package opencv implements vision.Toolkit on top of gocv.
package opencv

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/vision"
)

var _ vision.Toolkit = &Toolkit{}

// Toolkit is the gocv-backed vision toolkit.
type Toolkit struct{}

// New returns a Toolkit.
func New() *Toolkit {
	return &Toolkit{}
}

type frame struct {
	mat gocv.Mat
}

func (f *frame) Size() geometry.Size {
	return geometry.Size{Width: f.mat.Cols(), Height: f.mat.Rows()}
}

func (f *frame) Close() error {
	return f.mat.Close()
}

func matOf(f vision.Frame) (gocv.Mat, error) {
	fr, ok := f.(*frame)
	if !ok || fr == nil {
		return gocv.Mat{}, fmt.Errorf("frame %T was not produced by the opencv toolkit", f)
	}
	return fr.mat, nil
}

type capture struct {
	vc *gocv.VideoCapture
}

func (c *capture) Read() (vision.Frame, error) {
	m := gocv.NewMat()
	if ok := c.vc.Read(&m); !ok || m.Empty() {
		_ = m.Close()
		return nil, vision.ErrNoFrame
	}
	return &frame{mat: m}, nil
}

func (c *capture) Close() error {
	return c.vc.Close()
}

func (t *Toolkit) OpenCamera(index int) (vision.Capture, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open camera %d", index)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, pkgerrors.Errorf("camera %d is not available", index)
	}
	return &capture{vc: vc}, nil
}

func (t *Toolkit) OpenVideo(path string) (vision.Capture, error) {
	vc, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open video %s", path)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, pkgerrors.Errorf("video %s could not be opened", path)
	}
	return &capture{vc: vc}, nil
}

func (t *Toolkit) ReadImage(path string) (vision.Frame, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	if m.Empty() {
		_ = m.Close()
		return nil, pkgerrors.Errorf("failed to read image %s", path)
	}
	return &frame{mat: m}, nil
}

func gray(m gocv.Mat) (gocv.Mat, bool) {
	if m.Channels() == 1 {
		return m, false
	}
	g := gocv.NewMat()
	gocv.CvtColor(m, &g, gocv.ColorBGRToGray)
	return g, true
}

func pointsFromMat(m gocv.Mat) []geometry.Point2 {
	pts := make([]geometry.Point2, 0, m.Rows())
	for i := 0; i < m.Rows(); i++ {
		v := m.GetVecfAt(i, 0)
		pts = append(pts, geometry.Point2{X: float64(v[0]), Y: float64(v[1])})
	}
	return pts
}

func matFromPoints(pts []geometry.Point2) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	for i, p := range pts {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}

func (t *Toolkit) FindChessboard(f vision.Frame, size geometry.Size, fastCheck bool) ([]geometry.Point2, bool) {
	m, err := matOf(f)
	if err != nil {
		logrus.WithError(err).Debug("FindChessboard")
		return nil, false
	}

	corners := gocv.NewMat()
	defer corners.Close()

	flags := gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage
	if fastCheck {
		flags |= gocv.CalibCBFastCheck
	}
	if !gocv.FindChessboardCorners(m, image.Pt(size.Width, size.Height), &corners, flags) {
		return nil, false
	}
	return pointsFromMat(corners), true
}

func (t *Toolkit) RefineCorners(f vision.Frame, pts []geometry.Point2, window int) []geometry.Point2 {
	m, err := matOf(f)
	if err != nil || len(pts) == 0 {
		return pts
	}
	g, owned := gray(m)
	if owned {
		defer g.Close()
	}

	corners := matFromPoints(pts)
	defer corners.Close()

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, 30, 1e-4)
	gocv.CornerSubPix(g, &corners, image.Pt(window, window), image.Pt(-1, -1), criteria)
	return pointsFromMat(corners)
}

func (t *Toolkit) FindCirclesGrid(f vision.Frame, size geometry.Size, asymmetric bool) ([]geometry.Point2, bool) {
	m, err := matOf(f)
	if err != nil {
		logrus.WithError(err).Debug("FindCirclesGrid")
		return nil, false
	}
	g, owned := gray(m)
	if owned {
		defer g.Close()
	}

	detector := gocv.NewSimpleBlobDetector()
	defer detector.Close()

	keypoints := detector.Detect(g)
	if len(keypoints) != size.Width*size.Height {
		return nil, false
	}
	centers := make([]geometry.Point2, len(keypoints))
	for i, kp := range keypoints {
		centers[i] = geometry.Point2{X: kp.X, Y: kp.Y}
	}
	return vision.OrderGrid(centers, size, asymmetric)
}

func (t *Toolkit) FindCharucoCorners(f vision.Frame, board vision.CharucoBoard) []geometry.Point2 {
	corners := board.InterpolateCorners(t.DetectMarkers(f, board.Dictionary))
	if len(corners) == 0 {
		return nil
	}
	return t.RefineCorners(f, corners, 3)
}

func (t *Toolkit) DetectMarkers(f vision.Frame, dict vision.Dictionary) []vision.Marker {
	m, err := matOf(f)
	if err != nil {
		logrus.WithError(err).Debug("DetectMarkers")
		return nil
	}

	dictionary := gocv.GetPredefinedDictionary(gocv.ArucoDictionaryCode(dict))
	detector := gocv.NewArucoDetectorWithParams(dictionary, gocv.NewArucoDetectorParameters())
	defer detector.Close()

	corners, ids, _ := detector.DetectMarkers(m)
	markers := make([]vision.Marker, 0, len(ids))
	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) != 4 {
			continue
		}
		mk := vision.Marker{ID: id}
		for j, c := range corners[i] {
			mk.Corners[j] = geometry.Point2{X: float64(c.X), Y: float64(c.Y)}
		}
		markers = append(markers, mk)
	}
	return markers
}

func cameraMats(cam geometry.Camera) (gocv.Mat, gocv.Mat) {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for i, v := range cam.Matrix() {
		k.SetDoubleAt(i/3, i%3, v)
	}
	d := gocv.NewMatWithSize(1, len(cam.Distortion), gocv.MatTypeCV64F)
	for i, v := range cam.Distortion {
		d.SetDoubleAt(0, i, v)
	}
	return k, d
}

func (t *Toolkit) Undistort(f vision.Frame, cam geometry.Camera) (vision.Frame, error) {
	m, err := matOf(f)
	if err != nil {
		return nil, err
	}
	k, d := cameraMats(cam)
	defer k.Close()
	defer d.Close()

	dst := gocv.NewMat()
	if cam.Model == geometry.Fisheye {
		gocv.FisheyeUndistortImage(m, &dst, k, d)
	} else {
		gocv.Undistort(m, &dst, k, d, k)
	}
	return &frame{mat: dst}, nil
}

func (t *Toolkit) FlipVertical(f vision.Frame) (vision.Frame, error) {
	m, err := matOf(f)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	gocv.Flip(m, &dst, 0)
	return &frame{mat: dst}, nil
}

// ImageWriter stores preview frames as numbered PNG files in a directory.
type ImageWriter struct {
	dir string
	seq int
}

// NewImageWriter creates dir if needed.
func NewImageWriter(dir string) (*ImageWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create preview directory %s", dir)
	}
	return &ImageWriter{dir: dir}, nil
}

func (w *ImageWriter) WriteFrame(f vision.Frame) error {
	m, err := matOf(f)
	if err != nil {
		return err
	}
	name := filepath.Join(w.dir, fmt.Sprintf("preview-%06d.png", w.seq))
	w.seq++
	if !gocv.IMWrite(name, m) {
		return pkgerrors.Errorf("failed to write preview %s", name)
	}
	return nil
}
