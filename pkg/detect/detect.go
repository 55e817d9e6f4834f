// Package detect extracts calibration target points from frames, dispatching
// on the profile's pattern.
package detect

import (
	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/vision"
)

type extractor func(d *Detector, f vision.Frame) ([]geometry.Point2, bool)

type entry struct {
	// target returns how many points a complete detection yields.
	target  func(board geometry.Size) int
	extract extractor
	refine  bool
}

func fullGrid(b geometry.Size) int     { return b.Width * b.Height }
func interiorGrid(b geometry.Size) int { return (b.Width - 1) * (b.Height - 1) }

var table = map[calibration.Pattern]entry{
	calibration.PatternChessboard: {
		target: fullGrid,
		extract: func(d *Detector, f vision.Frame) ([]geometry.Point2, bool) {
			// Fast check rejects strongly distorted boards.
			return d.finder.FindChessboard(f, d.board, !d.fisheye)
		},
		refine: true,
	},
	calibration.PatternCharucoBoard: {
		target: interiorGrid,
		extract: func(d *Detector, f vision.Frame) ([]geometry.Point2, bool) {
			pts := d.finder.FindCharucoCorners(f, d.charuco)
			return pts, len(pts) > 0
		},
	},
	calibration.PatternCirclesGrid: {
		target: fullGrid,
		extract: func(d *Detector, f vision.Frame) ([]geometry.Point2, bool) {
			return d.finder.FindCirclesGrid(f, d.board, false)
		},
	},
	calibration.PatternAsymmetricCirclesGrid: {
		target: fullGrid,
		extract: func(d *Detector, f vision.Frame) ([]geometry.Point2, bool) {
			return d.finder.FindCirclesGrid(f, d.board, true)
		},
	},
}

// Detector finds the profile's calibration target in frames.
type Detector struct {
	finder  vision.BoardFinder
	entry   entry
	ok      bool
	board   geometry.Size
	charuco vision.CharucoBoard
	fisheye bool
	window  int
}

func New(p *config.Profile, finder vision.BoardFinder) *Detector {
	e, ok := table[p.Pattern]
	return &Detector{
		finder:  finder,
		entry:   e,
		ok:      ok,
		board:   p.BoardSize,
		charuco: p.CharucoBoard(),
		fisheye: p.Fisheye,
		window:  p.WindowSize,
	}
}

// Target returns the number of points a complete detection yields.
func (d *Detector) Target() int {
	if !d.ok {
		return 0
	}
	return d.entry.target(d.board)
}

// Detect returns the target's points in row-major order. A partial detection
// is reported as not found.
func (d *Detector) Detect(f vision.Frame) (bool, []geometry.Point2) {
	if !d.ok {
		return false, nil
	}
	pts, found := d.entry.extract(d, f)
	if !found || len(pts) != d.Target() {
		return false, nil
	}
	if d.entry.refine {
		pts = d.finder.RefineCorners(f, pts, d.window)
	}
	return true, pts
}
