package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/events"
	"github.com/charlie0129/markercam/pkg/version"
)

type fakePipeline struct {
	status      calibration.Status
	result      *calibration.Result
	invalidated int
	err         error
}

func (f *fakePipeline) Status() calibration.Status   { return f.status }
func (f *fakePipeline) Result() *calibration.Result  { return f.result }
func (f *fakePipeline) InvalidateCalibration() error { f.invalidated++; return f.err }

func setup(t *testing.T, fp *fakePipeline, queueSize int) *control.Queue {
	t.Helper()
	pipe = fp
	sseHub = events.NewEventHub()
	controls = control.NewQueue(queueSize)
	sessionID = "test-session"
	t.Cleanup(func() {
		pipe, sseHub, controls, sessionID = nil, nil, nil, ""
	})
	return controls
}

func do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	setupRoutes().ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	setup(t, &fakePipeline{status: calibration.Status{Phase: calibration.PhaseCapturing, Samples: 4, Target: 25}}, 1)

	w := do(http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body)
	}
	var got StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Phase != calibration.PhaseCapturing || got.Samples != 4 || got.Target != 25 || got.SessionID != "test-session" {
		t.Errorf("status = %+v", got)
	}
}

func TestGetCalibration(t *testing.T) {
	fp := &fakePipeline{}
	setup(t, fp, 1)

	if w := do(http.MethodGet, "/calibration"); w.Code != http.StatusNotFound {
		t.Errorf("code without calibration = %d, want 404", w.Code)
	}

	fp.result = &calibration.Result{CameraMatrix: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, AvgReprojectionError: 0.3}
	w := do(http.MethodGet, "/calibration")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var got calibration.Result
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.AvgReprojectionError != 0.3 || len(got.CameraMatrix) != 9 {
		t.Errorf("calibration = %+v", got)
	}
}

func TestDeleteCalibration(t *testing.T) {
	fp := &fakePipeline{}
	setup(t, fp, 1)
	if w := do(http.MethodDelete, "/calibration"); w.Code != http.StatusOK || fp.invalidated != 1 {
		t.Errorf("code = %d, invalidated = %d", w.Code, fp.invalidated)
	}

	fp.err = errors.New("read-only file system")
	if w := do(http.MethodDelete, "/calibration"); w.Code != http.StatusInternalServerError {
		t.Errorf("code on failure = %d, want 500", w.Code)
	}
}

func TestPostControl(t *testing.T) {
	q := setup(t, &fakePipeline{}, 1)

	tests := []struct {
		path string
		code int
		want control.Event
	}{
		{path: "/control/start", code: http.StatusAccepted, want: control.EventStart},
		{path: "/control/undistort", code: http.StatusAccepted, want: control.EventToggleUndistorted},
		{path: "/control/stop", code: http.StatusAccepted, want: control.EventStop},
		{path: "/control/explode", code: http.StatusBadRequest, want: control.EventNone},
	}
	for _, tt := range tests {
		w := do(http.MethodPost, tt.path)
		if w.Code != tt.code {
			t.Errorf("POST %s code = %d, want %d", tt.path, w.Code, tt.code)
		}
		if got := q.Poll(); got != tt.want {
			t.Errorf("POST %s queued %v, want %v", tt.path, got, tt.want)
		}
	}

	q.Push(control.EventStart)
	if w := do(http.MethodPost, "/control/stop"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("code with full queue = %d, want 503", w.Code)
	}
}

func TestGetVersion(t *testing.T) {
	setup(t, &fakePipeline{}, 1)
	w := do(http.MethodGet, "/version")
	var got VersionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Version != version.Version || got.GitCommit != version.GitCommit {
		t.Errorf("version = %+v", got)
	}
}

func TestGetEvents(t *testing.T) {
	setup(t, &fakePipeline{}, 1)
	hub := sseHub

	srv := httptest.NewServer(setupRoutes())
	defer srv.Close()

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for hub.Subscribers() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		hub.Publish(events.CapturePhase, events.CapturePhaseEvent{From: "Detection", To: "Capturing"})
	}()

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if strings.HasPrefix(sc.Text(), "data:") {
			break
		}
	}
	body := strings.Join(lines, "\n")
	if !strings.Contains(body, "event:capture.phase") || !strings.Contains(body, `"to":"Capturing"`) {
		t.Errorf("stream = %q", body)
	}
}
