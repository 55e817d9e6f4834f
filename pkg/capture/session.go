// Package capture implements the calibration capture state machine: it
// accumulates detected board samples, triggers the solver once enough have
// been collected, and reacts to start, toggle and stop events.
package capture

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/events"
	"github.com/charlie0129/markercam/pkg/geometry"
)

// now is a test seam.
var now = time.Now

// Solver calibrates from samples. It must not modify samples.
type Solver interface {
	Solve(samples [][]geometry.Point2, imageSize geometry.Size) (*calibration.Result, error)
}

// Session is the state of one calibration capture.
type Session struct {
	mu sync.RWMutex

	target int
	delay  time.Duration
	live   bool

	phase           calibration.Phase
	samples         [][]geometry.Point2
	lastAccepted    time.Time
	imageSize       geometry.Size
	showUndistorted bool
	result          *calibration.Result
	message         string

	solver Solver
	hub    events.Publisher
}

// NewSession creates a session for p. Live sources start in
// PhaseDetection and wait for a start event; image lists start capturing
// immediately.
func NewSession(p *config.Profile, live bool, solver Solver, hub events.Publisher) *Session {
	s := &Session{
		target:          p.NrFrames,
		delay:           p.Delay,
		live:            live,
		phase:           calibration.PhaseDetection,
		showUndistorted: p.ShowUndistorted,
		solver:          solver,
		hub:             hub,
	}
	if hub == nil {
		s.hub = (*events.EventHub)(nil)
	}
	if !live {
		s.phase = calibration.PhaseCapturing
	}
	return s
}

func (s *Session) Phase() calibration.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Samples returns the number of accepted samples.
func (s *Session) Samples() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

func (s *Session) ShowUndistorted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showUndistorted
}

// Result returns the calibration produced by this session, if any.
func (s *Session) Result() *calibration.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Status fills the capture part of a status snapshot.
func (s *Session) Status() calibration.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := calibration.Status{
		Phase:           s.phase,
		Samples:         len(s.samples),
		Target:          s.target,
		ShowUndistorted: s.showUndistorted,
		Calibrated:      s.result != nil,
		Message:         s.message,
	}
	if s.result != nil {
		st.RMS = s.result.AvgReprojectionError
	}
	return st
}

// setPhase must be called with mu held.
func (s *Session) setPhase(to calibration.Phase, msg string) {
	from := s.phase
	s.phase = to
	s.message = msg
	logrus.WithFields(logrus.Fields{
		"from":    from,
		"to":      to,
		"samples": len(s.samples),
	}).Info(msg)
	s.hub.Publish(events.CapturePhase, events.CapturePhaseEvent{
		From:    string(from),
		To:      string(to),
		Samples: len(s.samples),
		Message: msg,
		Ts:      now().Unix(),
	})
}

// Handle applies a control event. It reports whether the loop should stop.
func (s *Session) Handle(e control.Event) (stop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e {
	case control.EventStart:
		if !s.live {
			logrus.Debug("start ignored: input is not live")
			return false
		}
		s.samples = nil
		s.setPhase(calibration.PhaseCapturing, "capture started")
	case control.EventToggleUndistorted:
		if s.phase != calibration.PhaseCalibrated {
			return false
		}
		s.showUndistorted = !s.showUndistorted
		logrus.WithField("showUndistorted", s.showUndistorted).Info("toggled undistorted preview")
	case control.EventStop:
		return true
	}
	return false
}

// Offer submits the outcome of one detection. The sample is accepted only
// while capturing, and for live inputs only once the delay since the last
// accepted sample has elapsed. It reports whether the sample was accepted.
func (s *Session) Offer(found bool, points []geometry.Point2, imageSize geometry.Size) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.imageSize = imageSize
	if s.phase != calibration.PhaseCapturing || !found {
		return false
	}
	t := now()
	if s.live && t.Sub(s.lastAccepted) <= s.delay {
		return false
	}
	s.samples = append(s.samples, points)
	s.lastAccepted = t
	logrus.WithFields(logrus.Fields{
		"samples": len(s.samples),
		"target":  s.target,
	}).Debug("sample accepted")
	return true
}

// Ready reports whether enough samples have been collected to solve.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase == calibration.PhaseCapturing && len(s.samples) >= s.target
}

// Calibrate runs the solver on the collected samples. On success the
// session becomes calibrated; on failure the samples are discarded and the
// session returns to detection.
func (s *Session) Calibrate() error {
	// Solve runs without the lock held; status readers must not wait on it.
	s.mu.RLock()
	samples := append([][]geometry.Point2(nil), s.samples...)
	imageSize := s.imageSize
	s.mu.RUnlock()

	r, err := s.solver.Solve(samples, imageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		logrus.WithError(err).Error("calibration failed")
		s.samples = nil
		s.setPhase(calibration.PhaseDetection, "calibration failed")
		return err
	}
	s.result = r
	s.setPhase(calibration.PhaseCalibrated, "calibration succeeded")
	s.hub.Publish(events.CalibrationSolved, events.CalibrationSolvedEvent{
		RMS:   r.AvgReprojectionError,
		Views: r.NrOfFrames,
		Ts:    now().Unix(),
	})
	return nil
}

// Finish runs a best-effort solve at end of input when the session is not
// calibrated but holds samples.
func (s *Session) Finish() error {
	s.mu.RLock()
	pending := s.phase != calibration.PhaseCalibrated && len(s.samples) > 0
	s.mu.RUnlock()
	if !pending {
		return nil
	}
	logrus.WithField("samples", s.Samples()).Info("input ended; calibrating with the samples collected so far")
	return s.Calibrate()
}
