package solver

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/geometry"
	"github.com/charlie0129/markercam/pkg/store"
)

type countingRunner struct {
	calls  int
	result *calibration.Result
	err    error
}

func (r *countingRunner) Run(context.Context) (*calibration.Result, error) {
	r.calls++
	return r.result, r.err
}

func TestCacheHitSkipsRunner(t *testing.T) {
	p := testProfile(t)
	cached := &calibration.Result{
		ImageSize:    geometry.Size{Width: 640, Height: 480},
		CameraMatrix: []float64{500, 0, 320, 0, 500, 240, 0, 0, 1},
		Distortion:   []float64{0.1, 0, 0, 0, 0},
	}
	if err := store.Save(p.OutputFileName, cached, store.Options{}); err != nil {
		t.Fatal(err)
	}

	runner := &countingRunner{}
	got, err := CalculateCameraParameters(context.Background(), p, runner)
	if err != nil {
		t.Fatalf("CalculateCameraParameters() error = %v", err)
	}
	if runner.calls != 0 {
		t.Errorf("runner called %d times, want 0", runner.calls)
	}
	if got.CameraMatrix[0] != 500 || got.Distortion[0] != 0.1 {
		t.Errorf("result = %+v, want cached values", got)
	}
}

func TestCacheMissRunsRunner(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing"},
		{name: "corrupt", content: "camera_matrix: [oops"},
		{name: "incomplete", content: "image_width: 640\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProfile(t)
			if tt.content != "" {
				if err := os.WriteFile(p.OutputFileName, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			fresh := &calibration.Result{AvgReprojectionError: 0.3}
			runner := &countingRunner{result: fresh}
			got, err := CalculateCameraParameters(context.Background(), p, runner)
			if err != nil {
				t.Fatalf("CalculateCameraParameters() error = %v", err)
			}
			if runner.calls != 1 || got != fresh {
				t.Errorf("runner calls = %d, result = %p, want 1, %p", runner.calls, got, fresh)
			}
		})
	}
}

func TestCacheRunnerError(t *testing.T) {
	p := testProfile(t)
	boom := errors.New("boom")
	_, err := CalculateCameraParameters(context.Background(), p, RunnerFunc(func(context.Context) (*calibration.Result, error) {
		return nil, boom
	}))
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
