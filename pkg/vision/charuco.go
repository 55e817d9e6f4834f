package vision

import (
	"github.com/charlie0129/markercam/pkg/geometry"
)

type square struct{ x, y int }

// markerSquares lists, by marker ID, the board square that carries each
// marker. Markers sit on the squares where x and y have different parity.
func (b CharucoBoard) markerSquares() []square {
	var out []square
	for y := 0; y < b.Size.Height; y++ {
		for x := 0; x < b.Size.Width; x++ {
			if y%2 == x%2 {
				continue
			}
			out = append(out, square{x: x, y: y})
		}
	}
	return out
}

// InterpolateCorners estimates the interior chessboard corners of a ChArUco
// board from its detected markers. A corner is returned only when one of the
// four squares around it carries a detected marker. Corners come back in
// row-major order over the (w-1)x(h-1) interior grid, skipping the ones that
// are not observed.
func (b CharucoBoard) InterpolateCorners(markers []Marker) []geometry.Point2 {
	squares := b.markerSquares()
	seen := make(map[square]bool)
	var src, dst []geometry.Point2

	off := (b.SquareSize - b.MarkerSize) / 2
	for _, m := range markers {
		if m.ID < 0 || m.ID >= len(squares) {
			continue
		}
		sq := squares[m.ID]
		if seen[sq] {
			continue
		}
		seen[sq] = true
		x0 := float64(sq.x)*b.SquareSize + off
		y0 := float64(sq.y)*b.SquareSize + off
		src = append(src,
			geometry.Point2{X: x0, Y: y0},
			geometry.Point2{X: x0 + b.MarkerSize, Y: y0},
			geometry.Point2{X: x0 + b.MarkerSize, Y: y0 + b.MarkerSize},
			geometry.Point2{X: x0, Y: y0 + b.MarkerSize},
		)
		dst = append(dst, m.Corners[:]...)
	}
	if len(src) < 4 {
		return nil
	}

	h, err := geometry.Homography(src, dst)
	if err != nil {
		return nil
	}

	var out []geometry.Point2
	for i := 0; i < b.Size.Height-1; i++ {
		for j := 0; j < b.Size.Width-1; j++ {
			if !seen[square{j, i}] && !seen[square{j + 1, i}] && !seen[square{j, i + 1}] && !seen[square{j + 1, i + 1}] {
				continue
			}
			corner := geometry.Point2{X: float64(j+1) * b.SquareSize, Y: float64(i+1) * b.SquareSize}
			out = append(out, geometry.ApplyHomography(h, corner))
		}
	}
	return out
}
