package capture

import (
	"context"
	"errors"
	"time"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/source"
	"github.com/charlie0129/markercam/pkg/vision"
)

type fakeFrame struct {
	found  bool
	points []geometry.Point2
	closed bool
}

func (f *fakeFrame) Size() geometry.Size { return geometry.Size{Width: 640, Height: 480} }
func (f *fakeFrame) Close() error        { f.closed = true; return nil }

// fakeSource yields frames in order. before runs ahead of frame i being
// returned.
type fakeSource struct {
	frames []*fakeFrame
	live   bool
	pos    int
	before func(i int)
}

func (s *fakeSource) Next(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, source.ErrEndOfStream
	}
	i := s.pos
	s.pos++
	if s.before != nil {
		s.before(i)
	}
	return s.frames[i], nil
}

func (s *fakeSource) Live() bool   { return s.live }
func (s *fakeSource) Close() error { return nil }

type fakeDetector struct{}

func (fakeDetector) Detect(f vision.Frame) (bool, []geometry.Point2) {
	ff := f.(*fakeFrame)
	return ff.found, ff.points
}

type fakeSolver struct {
	calls    int
	views    []int
	failures int
}

func (s *fakeSolver) Solve(samples [][]geometry.Point2, size geometry.Size) (*calibration.Result, error) {
	s.calls++
	s.views = append(s.views, len(samples))
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("solver diverged")
	}
	return &calibration.Result{
		NrOfFrames:           len(samples),
		ImageSize:            size,
		CameraMatrix:         []float64{500, 0, 320, 0, 500, 240, 0, 0, 1},
		Distortion:           make([]float64, 5),
		AvgReprojectionError: 0.1,
	}, nil
}

func frames(found ...bool) []*fakeFrame {
	out := make([]*fakeFrame, len(found))
	for i, f := range found {
		out[i] = &fakeFrame{found: f, points: []geometry.Point2{{X: float64(i)}}}
	}
	return out
}

// stepClock advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}
