package solver

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/store"
)

func testProfile(t *testing.T) *config.Profile {
	t.Helper()
	return &config.Profile{
		BoardSize:          geometry.Size{Width: 9, Height: 6},
		Pattern:            calibration.PatternChessboard,
		SquareSize:         25,
		NrFrames:           3,
		ZeroTangentDist:    true,
		FixK:               [5]bool{2: true},
		Flags:              calibration.FlagZeroTangentDist | calibration.FlagFixK3,
		WriteExtrinsics:    true,
		WritePerViewErrors: true,
		OutputFileName:     filepath.Join(t.TempDir(), "camera.yaml"),
	}
}

var views = []struct{ rvec, tvec r3.Vector }{
	{r3.Vector{X: 0.30, Y: 0.10}, r3.Vector{X: -100, Y: -60, Z: 520}},
	{r3.Vector{X: -0.25, Y: 0.30, Z: 0.10}, r3.Vector{X: -90, Y: -70, Z: 600}},
	{r3.Vector{X: 0.10, Y: -0.35, Z: -0.05}, r3.Vector{X: -110, Y: -50, Z: 480}},
}

func syntheticSamples(p *config.Profile) [][]geometry.Point2 {
	cam := geometry.Camera{Model: geometry.Pinhole, Fx: 600, Fy: 600, Cx: 320, Cy: 240, Distortion: []float64{-0.05, 0, 0, 0, 0}}
	grid := ObjectGrid(p.Pattern, p.BoardSize, p.SquareSize)
	var samples [][]geometry.Point2
	for _, v := range views {
		pts := make([]geometry.Point2, len(grid))
		for i, g := range grid {
			pts[i] = cam.Project(geometry.Transform(g, v.rvec, v.tvec))
		}
		samples = append(samples, pts)
	}
	return samples
}

func TestSolvePersists(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	p := testProfile(t)
	s := New(p)
	samples := syntheticSamples(p)

	r, err := s.Solve(samples, geometry.Size{Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if s.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", s.Calls())
	}
	if math.IsNaN(r.AvgReprojectionError) || r.AvgReprojectionError > 1e-2 {
		t.Errorf("AvgReprojectionError = %g", r.AvgReprojectionError)
	}
	if len(r.Extrinsics) != len(samples) || len(r.PerViewErrors) != len(samples) {
		t.Errorf("per-view data for %d/%d views, want %d", len(r.Extrinsics), len(r.PerViewErrors), len(samples))
	}
	if !r.CalibrationTime.Equal(fixed) || r.NrOfFrames != 3 {
		t.Errorf("metadata = %v, %d", r.CalibrationTime, r.NrOfFrames)
	}

	loaded, err := store.Load(p.OutputFileName)
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	for i := range r.CameraMatrix {
		if loaded.CameraMatrix[i] != r.CameraMatrix[i] {
			t.Errorf("persisted CameraMatrix[%d] = %v, want %v", i, loaded.CameraMatrix[i], r.CameraMatrix[i])
		}
	}
}

func TestSolveTooFewViews(t *testing.T) {
	p := testProfile(t)
	if _, err := New(p).Solve(nil, geometry.Size{Width: 640, Height: 480}); err == nil {
		t.Errorf("Solve() with no samples succeeded")
	}
}

func TestSolveRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		cam  geometry.Camera
	}{
		{name: "nan focal", cam: geometry.Camera{Fx: math.NaN(), Fy: 600, Cx: 320, Cy: 240, Distortion: make([]float64, 5)}},
		{name: "huge distortion", cam: geometry.Camera{Fx: 600, Fy: 600, Cx: 320, Cy: 240, Distortion: []float64{2e15, 0, 0, 0, 0}}},
		{name: "infinite center", cam: geometry.Camera{Fx: 600, Fy: 600, Cx: math.Inf(-1), Cy: 240, Distortion: make([]float64, 5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calibrate = func([][]r3.Vector, [][]geometry.Point2, geometry.Size, geometry.Options) (*geometry.Calibration, error) {
				return &geometry.Calibration{Camera: tt.cam, RMS: 0.1}, nil
			}
			defer func() { calibrate = geometry.Calibrate }()

			p := testProfile(t)
			_, err := New(p).Solve(syntheticSamples(p), geometry.Size{Width: 640, Height: 480})
			if !errors.Is(err, ErrNonFinite) {
				t.Errorf("Solve() error = %v, want %v", err, ErrNonFinite)
			}
			if _, err := os.Stat(p.OutputFileName); !os.IsNotExist(err) {
				t.Errorf("calibration file written after a non-finite solve: %v", err)
			}
		})
	}
}

func TestSolveFailureWritesNothing(t *testing.T) {
	p := testProfile(t)
	samples := syntheticSamples(p)
	for i := range samples[0] {
		samples[0][i] = geometry.Point2{X: math.NaN(), Y: math.NaN()}
	}
	if _, err := New(p).Solve(samples, geometry.Size{Width: 640, Height: 480}); err == nil {
		t.Errorf("Solve() with NaN samples succeeded")
	}
	if _, err := os.Stat(p.OutputFileName); !os.IsNotExist(err) {
		t.Errorf("calibration file written after a failed solve: %v", err)
	}
}

func TestObjectGrid(t *testing.T) {
	tests := []struct {
		name    string
		pattern calibration.Pattern
		board   geometry.Size
		n       int
		idx     int
		want    r3.Vector
	}{
		{name: "chessboard", pattern: calibration.PatternChessboard, board: geometry.Size{Width: 4, Height: 3}, n: 12, idx: 5, want: r3.Vector{X: 2, Y: 2}},
		{name: "charuco shrinks", pattern: calibration.PatternCharucoBoard, board: geometry.Size{Width: 5, Height: 4}, n: 12, idx: 5, want: r3.Vector{X: 2, Y: 2}},
		{name: "asymmetric offset", pattern: calibration.PatternAsymmetricCirclesGrid, board: geometry.Size{Width: 4, Height: 3}, n: 12, idx: 5, want: r3.Vector{X: 6, Y: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ObjectGrid(tt.pattern, tt.board, 2)
			if len(got) != tt.n {
				t.Fatalf("len = %d, want %d", len(got), tt.n)
			}
			if got[tt.idx] != tt.want {
				t.Errorf("grid[%d] = %v, want %v", tt.idx, got[tt.idx], tt.want)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	p := &config.Profile{
		AspectRatio:       1.5,
		ZeroTangentDist:   true,
		FixPrincipalPoint: true,
		FixK:              [5]bool{true, false, false, false, true},
		Flags:             calibration.FlagFixAspectRatio,
	}
	got := Options(p)
	if got.Model != geometry.Pinhole || got.AspectRatio != 1.5 || !got.ZeroTangentDist || !got.FixPrincipalPoint {
		t.Errorf("pinhole Options() = %+v", got)
	}

	p.Fisheye = true
	got = Options(p)
	if got.Model != geometry.Fisheye || got.AspectRatio != 0 || got.ZeroTangentDist || got.FixK[4] {
		t.Errorf("fisheye Options() = %+v", got)
	}
}
