package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/events"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/pose"
	"github.com/charlie0129/markercam/pkg/store"
	"github.com/charlie0129/markercam/pkg/transport"
	"github.com/charlie0129/markercam/pkg/vision"
)

var cachedCamera = geometry.Camera{Model: geometry.Pinhole, Fx: 700, Fy: 700, Cx: 320, Cy: 240, Distortion: make([]float64, 5)}

type markerFrame struct {
	marker  *vision.Marker
	flipped bool
}

func (*markerFrame) Size() geometry.Size { return geometry.Size{Width: 640, Height: 480} }
func (*markerFrame) Close() error        { return nil }

// markerToolkit serves images named "marker*" with one projected marker and
// every other image empty.
type markerToolkit struct {
	flips int
}

func (k *markerToolkit) OpenCamera(int) (vision.Capture, error)  { return nil, errors.New("no camera") }
func (k *markerToolkit) OpenVideo(string) (vision.Capture, error) { return nil, errors.New("no video") }

func (k *markerToolkit) ReadImage(path string) (vision.Frame, error) {
	if !strings.HasPrefix(filepath.Base(path), "marker") {
		return &markerFrame{}, nil
	}
	m := &vision.Marker{ID: 4}
	for i, c := range pose.MarkerCorners(50) {
		m.Corners[i] = cachedCamera.Project(geometry.Transform(c, r3.Vector{X: 0.1}, r3.Vector{Z: 500}))
	}
	return &markerFrame{marker: m}, nil
}

func (k *markerToolkit) FindChessboard(vision.Frame, geometry.Size, bool) ([]geometry.Point2, bool) {
	return nil, false
}
func (k *markerToolkit) RefineCorners(_ vision.Frame, p []geometry.Point2, _ int) []geometry.Point2 {
	return p
}
func (k *markerToolkit) FindCirclesGrid(vision.Frame, geometry.Size, bool) ([]geometry.Point2, bool) {
	return nil, false
}
func (k *markerToolkit) FindCharucoCorners(vision.Frame, vision.CharucoBoard) []geometry.Point2 {
	return nil
}

func (k *markerToolkit) DetectMarkers(f vision.Frame, _ vision.Dictionary) []vision.Marker {
	if m := f.(*markerFrame).marker; m != nil {
		return []vision.Marker{*m}
	}
	return nil
}

func (k *markerToolkit) Undistort(f vision.Frame, _ geometry.Camera) (vision.Frame, error) {
	return f, nil
}

func (k *markerToolkit) FlipVertical(f vision.Frame) (vision.Frame, error) {
	k.flips++
	mf := *f.(*markerFrame)
	mf.flipped = true
	return &mf, nil
}

type recordingTransport struct {
	sent [][]byte
}

func (t *recordingTransport) Send(b []byte) error { t.sent = append(t.sent, b); return nil }
func (t *recordingTransport) Close() error        { return nil }
func (t *recordingTransport) String() string      { return "record://" }

func newPipeline(t *testing.T, images ...string) (*Pipeline, *recordingTransport) {
	t.Helper()
	dir := t.TempDir()
	p := &config.Profile{
		BoardSize:      geometry.Size{Width: 9, Height: 6},
		Pattern:        calibration.PatternChessboard,
		SquareSize:     25,
		PoseMarkerSize: 50,
		WindowSize:     11,
		NrFrames:       len(images),
		OutputFileName: filepath.Join(dir, "camera.yaml"),
		InputType:      config.InputImageList,
		ImageList:      images,
	}
	tr := &recordingTransport{}
	return &Pipeline{
		Profile:       p,
		Toolkit:       &markerToolkit{},
		Hub:           events.NewEventHub(),
		Controls:      control.NewQueue(1),
		openTransport: func(string) (transport.Transport, error) { return tr, nil },
	}, tr
}

func saveCached(t *testing.T, path string) {
	t.Helper()
	err := store.Save(path, &calibration.Result{
		ImageSize:            geometry.Size{Width: 640, Height: 480},
		CameraMatrix:         cachedCamera.Matrix(),
		Distortion:           cachedCamera.Distortion,
		AvgReprojectionError: 0.25,
		NrOfFrames:           10,
	}, store.Options{})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunWithCachedCalibration(t *testing.T) {
	p, tr := newPipeline(t, "marker0.png", "empty.png", "marker1.png")
	saveCached(t, p.Profile.OutputFileName)
	ch := p.Hub.Subscribe()

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(tr.sent) != 2 {
		t.Fatalf("sent %d poses, want 2", len(tr.sent))
	}
	if !strings.HasPrefix(string(tr.sent[0]), "0 4 t ") || !strings.HasPrefix(string(tr.sent[1]), "1 4 t ") {
		t.Errorf("sent = %q", tr.sent)
	}

	st := p.Status()
	if !st.Calibrated || st.RMS != 0.25 || st.PosesSent != 2 || st.FramesRead != 3 || st.Streaming {
		t.Errorf("Status() = %+v", st)
	}

	ev := <-ch
	solved, _ := events.DecodeAs[events.CalibrationSolvedEvent](ev)
	if ev.Name != events.CalibrationSolved || !solved.Cached {
		t.Errorf("first event = %s %+v, want cached calibration", ev.Name, solved)
	}
}

func TestStreamFlipsFrames(t *testing.T) {
	p, _ := newPipeline(t, "marker0.png", "marker1.png")
	p.Profile.FlipVertical = true
	saveCached(t, p.Profile.OutputFileName)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := p.Toolkit.(*markerToolkit).flips; got != 2 {
		t.Errorf("flips = %d, want 2", got)
	}
}

func TestStreamRejectsMarkerSize(t *testing.T) {
	p, _ := newPipeline(t, "marker0.png")
	p.Profile.PoseMarkerSize = 0
	err := p.Stream(context.Background(), &calibration.Result{CameraMatrix: cachedCamera.Matrix(), Distortion: cachedCamera.Distortion})
	if !errors.Is(err, ErrMarkerSize) {
		t.Errorf("Stream() error = %v, want %v", err, ErrMarkerSize)
	}
}

func TestCalibrateFailsWithoutSamples(t *testing.T) {
	p, _ := newPipeline(t, "empty0.png", "empty1.png")
	if _, err := p.Calibrate(context.Background()); err == nil {
		t.Fatalf("Calibrate() succeeded without any board in view")
	}
	st := p.Status()
	if st.Calibrated || st.Message == "" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestInvalidateCalibration(t *testing.T) {
	p, _ := newPipeline(t, "marker0.png")
	saveCached(t, p.Profile.OutputFileName)
	if err := p.InvalidateCalibration(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(p.Profile.OutputFileName); err == nil {
		t.Errorf("calibration file still loadable after invalidation")
	}
}
