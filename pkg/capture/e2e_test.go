package capture

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/detect"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/solver"
	"github.com/charlie0129/markercam/pkg/source"
	"github.com/charlie0129/markercam/pkg/store"
	"github.com/charlie0129/markercam/pkg/utils/ptr"
	"github.com/charlie0129/markercam/pkg/vision"
)

// synthToolkit renders nothing: each "image" carries the exact projection
// of a 9x6 chessboard seen by a known camera.
type synthToolkit struct {
	camera geometry.Camera
	grid   []r3.Vector
	views  map[string][2]r3.Vector
}

type synthFrame struct {
	corners []geometry.Point2
}

func (f *synthFrame) Size() geometry.Size { return geometry.Size{Width: 640, Height: 480} }
func (f *synthFrame) Close() error        { return nil }

func (k *synthToolkit) OpenCamera(int) (vision.Capture, error) { return nil, errors.New("no camera") }
func (k *synthToolkit) OpenVideo(string) (vision.Capture, error) {
	return nil, errors.New("no video")
}

func (k *synthToolkit) ReadImage(path string) (vision.Frame, error) {
	v, ok := k.views[filepath.Base(path)]
	if !ok {
		return nil, os.ErrNotExist
	}
	f := &synthFrame{}
	for _, p := range k.grid {
		f.corners = append(f.corners, k.camera.Project(geometry.Transform(p, v[0], v[1])))
	}
	return f, nil
}

func (k *synthToolkit) FindChessboard(f vision.Frame, size geometry.Size, _ bool) ([]geometry.Point2, bool) {
	c := f.(*synthFrame).corners
	return c, len(c) == size.Width*size.Height
}

func (k *synthToolkit) RefineCorners(_ vision.Frame, pts []geometry.Point2, _ int) []geometry.Point2 {
	return pts
}

func (k *synthToolkit) FindCirclesGrid(vision.Frame, geometry.Size, bool) ([]geometry.Point2, bool) {
	return nil, false
}

func (k *synthToolkit) FindCharucoCorners(vision.Frame, vision.CharucoBoard) []geometry.Point2 {
	return nil
}

func TestEndToEndChessboardImageList(t *testing.T) {
	dir := t.TempDir()
	names := []string{"view0.png", "view1.png", "view2.png"}
	list := filepath.Join(dir, "images.yaml")
	content := "images:\n"
	for _, n := range names {
		content += "  - " + filepath.Join(dir, n) + "\n"
	}
	if err := os.WriteFile(list, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tk := &synthToolkit{
		camera: geometry.Camera{Model: geometry.Pinhole, Fx: 600, Fy: 600, Cx: 319.5, Cy: 239.5, Distortion: make([]float64, 5)},
		grid:   solver.ObjectGrid(calibration.PatternChessboard, geometry.Size{Width: 9, Height: 6}, 25),
		views: map[string][2]r3.Vector{
			"view0.png": {{X: 0.30, Y: 0.10}, {X: -100, Y: -60, Z: 520}},
			"view1.png": {{X: -0.25, Y: 0.30, Z: 0.10}, {X: -90, Y: -70, Z: 600}},
			"view2.png": {{X: 0.10, Y: -0.35, Z: -0.05}, {X: -110, Y: -50, Z: 480}},
		},
	}

	output := filepath.Join(dir, "camera.yaml")
	p, err := config.Validate(config.RawFileConfig{
		NrFrames:       ptr.To(3),
		FixK3:          ptr.To(true),
		Input:          ptr.To(list),
		OutputFileName: ptr.To(output),
	}, tk)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.InputType != config.InputImageList {
		t.Fatalf("InputType = %s, want %s", p.InputType, config.InputImageList)
	}

	src, err := source.Open(p, tk)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	s := NewSession(p, src.Live(), solver.New(p), nil)
	loop := &Loop{Session: s, Source: src, Detector: detect.New(p, tk)}
	r, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.Phase() != calibration.PhaseCalibrated {
		t.Errorf("phase = %s, want %s", s.Phase(), calibration.PhaseCalibrated)
	}
	if math.IsNaN(r.AvgReprojectionError) || math.IsInf(r.AvgReprojectionError, 0) {
		t.Errorf("RMS = %v, want finite", r.AvgReprojectionError)
	}
	if r.NrOfFrames != 3 {
		t.Errorf("NrOfFrames = %d, want 3", r.NrOfFrames)
	}

	saved, err := store.Load(output)
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	if len(saved.CameraMatrix) != 9 {
		t.Errorf("saved camera matrix has %d entries, want 9", len(saved.CameraMatrix))
	}
	if math.Abs(saved.CameraMatrix[0]-600) > 5 {
		t.Errorf("saved fx = %g, want ~600", saved.CameraMatrix[0])
	}

	b, _ := os.ReadFile(output)
	if !strings.Contains(string(b), "# flags:") {
		t.Errorf("saved file lacks the flags comment")
	}
}
