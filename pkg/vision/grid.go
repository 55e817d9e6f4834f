package vision

import (
	"math"

	"github.com/charlie0129/markercam/pkg/geometry"
)

// GridCoord returns the ideal planar coordinate of grid element (row, col).
// Asymmetric grids shift odd rows by one unit and space columns two units
// apart.
func GridCoord(row, col int, asymmetric bool) geometry.Point2 {
	if asymmetric {
		return geometry.Point2{X: float64(2*col + row%2), Y: float64(row)}
	}
	return geometry.Point2{X: float64(col), Y: float64(row)}
}

// OrderGrid sorts unordered blob centers into row-major grid order. It
// assumes the grid is rotated by less than 45 degrees in the image.
func OrderGrid(points []geometry.Point2, size geometry.Size, asymmetric bool) ([]geometry.Point2, bool) {
	n := size.Width * size.Height
	if n < 4 || len(points) != n {
		return nil, false
	}

	// Asymmetric rows interleave, so weighting y twice keeps each corner a
	// unique extreme.
	k := 1.0
	if asymmetric {
		k = 2
	}
	tl, tr, br, bl := extremes(points, k)
	last := size.Height - 1
	ideal := []geometry.Point2{
		GridCoord(0, 0, asymmetric),
		GridCoord(0, size.Width-1, asymmetric),
		GridCoord(last, size.Width-1, asymmetric),
		GridCoord(last, 0, asymmetric),
	}
	h, err := geometry.Homography([]geometry.Point2{tl, tr, br, bl}, ideal)
	if err != nil {
		return nil, false
	}

	out := make([]geometry.Point2, n)
	filled := make([]bool, n)
	for _, p := range points {
		g := geometry.ApplyHomography(h, p)
		row := int(math.Round(g.Y))
		if row < 0 || row >= size.Height {
			return nil, false
		}
		u := g.X
		if asymmetric {
			u = (g.X - float64(row%2)) / 2
		}
		col := int(math.Round(u))
		if col < 0 || col >= size.Width {
			return nil, false
		}
		idx := row*size.Width + col
		if filled[idx] {
			return nil, false
		}
		out[idx], filled[idx] = p, true
	}
	return out, true
}

func extremes(points []geometry.Point2, k float64) (tl, tr, br, bl geometry.Point2) {
	sum := func(p geometry.Point2) float64 { return p.X + k*p.Y }
	diff := func(p geometry.Point2) float64 { return p.X - k*p.Y }
	tl, tr, br, bl = points[0], points[0], points[0], points[0]
	for _, p := range points[1:] {
		if sum(p) < sum(tl) {
			tl = p
		}
		if sum(p) > sum(br) {
			br = p
		}
		if diff(p) > diff(tr) {
			tr = p
		}
		if diff(p) < diff(bl) {
			bl = p
		}
	}
	return tl, tr, br, bl
}
