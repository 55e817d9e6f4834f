package detect

import (
	"testing"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/vision"
)

// fakeFinder returns n points from whichever extractor is called and records
// the calls.
type fakeFinder struct {
	n         int
	found     bool
	calls     []string
	fastCheck bool
	refined   int
	window    int
}

func (f *fakeFinder) points() []geometry.Point2 {
	pts := make([]geometry.Point2, f.n)
	for i := range pts {
		pts[i] = geometry.Point2{X: float64(i), Y: float64(i)}
	}
	return pts
}

func (f *fakeFinder) FindChessboard(_ vision.Frame, _ geometry.Size, fastCheck bool) ([]geometry.Point2, bool) {
	f.calls = append(f.calls, "chessboard")
	f.fastCheck = fastCheck
	return f.points(), f.found
}

func (f *fakeFinder) RefineCorners(_ vision.Frame, pts []geometry.Point2, window int) []geometry.Point2 {
	f.refined++
	f.window = window
	return pts
}

func (f *fakeFinder) FindCirclesGrid(_ vision.Frame, _ geometry.Size, asymmetric bool) ([]geometry.Point2, bool) {
	if asymmetric {
		f.calls = append(f.calls, "asymmetric")
	} else {
		f.calls = append(f.calls, "circles")
	}
	return f.points(), f.found
}

func (f *fakeFinder) FindCharucoCorners(vision.Frame, vision.CharucoBoard) []geometry.Point2 {
	f.calls = append(f.calls, "charuco")
	return f.points()
}

func TestDetectDispatch(t *testing.T) {
	board := geometry.Size{Width: 9, Height: 6}
	tests := []struct {
		name      string
		pattern   calibration.Pattern
		fisheye   bool
		n         int
		found     bool
		wantFound bool
		wantCall  string
		wantRefin int
	}{
		{name: "chessboard", pattern: calibration.PatternChessboard, n: 54, found: true, wantFound: true, wantCall: "chessboard", wantRefin: 1},
		{name: "chessboard not found", pattern: calibration.PatternChessboard, n: 54, wantCall: "chessboard"},
		{name: "chessboard wrong count", pattern: calibration.PatternChessboard, n: 53, found: true, wantCall: "chessboard"},
		{name: "charuco interior corners", pattern: calibration.PatternCharucoBoard, n: 40, wantFound: true, wantCall: "charuco"},
		{name: "charuco full grid is rejected", pattern: calibration.PatternCharucoBoard, n: 54, wantCall: "charuco"},
		{name: "charuco partial is rejected", pattern: calibration.PatternCharucoBoard, n: 12, wantCall: "charuco"},
		{name: "circles", pattern: calibration.PatternCirclesGrid, n: 54, found: true, wantFound: true, wantCall: "circles"},
		{name: "asymmetric circles", pattern: calibration.PatternAsymmetricCirclesGrid, n: 54, found: true, wantFound: true, wantCall: "asymmetric"},
		{name: "unknown pattern", pattern: calibration.PatternNotExisting, n: 54, found: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finder := &fakeFinder{n: tt.n, found: tt.found}
			d := New(&config.Profile{Pattern: tt.pattern, BoardSize: board, WindowSize: 11, Fisheye: tt.fisheye}, finder)
			found, pts := d.Detect(nil)
			if found != tt.wantFound {
				t.Fatalf("Detect() found = %v, want %v", found, tt.wantFound)
			}
			if found && len(pts) != d.Target() {
				t.Errorf("len(points) = %d, want %d", len(pts), d.Target())
			}
			if !found && pts != nil {
				t.Errorf("Detect() returned points for a miss")
			}
			if tt.wantCall == "" && len(finder.calls) != 0 {
				t.Errorf("calls = %v, want none", finder.calls)
			}
			if tt.wantCall != "" && (len(finder.calls) != 1 || finder.calls[0] != tt.wantCall) {
				t.Errorf("calls = %v, want [%s]", finder.calls, tt.wantCall)
			}
			if finder.refined != tt.wantRefin {
				t.Errorf("refined %d times, want %d", finder.refined, tt.wantRefin)
			}
		})
	}
}

func TestChessboardOptions(t *testing.T) {
	for _, fisheye := range []bool{false, true} {
		finder := &fakeFinder{n: 4, found: true}
		d := New(&config.Profile{Pattern: calibration.PatternChessboard, BoardSize: geometry.Size{Width: 2, Height: 2}, WindowSize: 5, Fisheye: fisheye}, finder)
		if found, _ := d.Detect(nil); !found {
			t.Fatalf("fisheye=%v: Detect() found = false", fisheye)
		}
		if finder.fastCheck == fisheye {
			t.Errorf("fisheye=%v: fastCheck = %v", fisheye, finder.fastCheck)
		}
		if finder.window != 5 {
			t.Errorf("fisheye=%v: refinement window = %d, want 5", fisheye, finder.window)
		}
	}
}

func TestTarget(t *testing.T) {
	board := geometry.Size{Width: 5, Height: 7}
	tests := []struct {
		pattern calibration.Pattern
		want    int
	}{
		{calibration.PatternChessboard, 35},
		{calibration.PatternCharucoBoard, 24},
		{calibration.PatternCirclesGrid, 35},
		{calibration.PatternAsymmetricCirclesGrid, 35},
		{calibration.PatternNotExisting, 0},
	}
	for _, tt := range tests {
		d := New(&config.Profile{Pattern: tt.pattern, BoardSize: board}, &fakeFinder{})
		if got := d.Target(); got != tt.want {
			t.Errorf("%v: Target() = %d, want %d", tt.pattern, got, tt.want)
		}
	}
}
