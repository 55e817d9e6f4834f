// Package pipeline chains the calibration stage and the pose streaming
// stage for one profile, and keeps a status snapshot for observers.
package pipeline

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/capture"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/detect"
	"github.com/charlie0129/markercam/pkg/events"
	"github.com/charlie0129/markercam/pkg/pose"
	"github.com/charlie0129/markercam/pkg/solver"
	"github.com/charlie0129/markercam/pkg/source"
	"github.com/charlie0129/markercam/pkg/store"
	"github.com/charlie0129/markercam/pkg/stream"
	"github.com/charlie0129/markercam/pkg/transport"
	"github.com/charlie0129/markercam/pkg/vision"
)

// minMarkerSize is the smallest pose marker side length streaming accepts.
const minMarkerSize = 10e-6

// ErrMarkerSize is returned by Stream when the profile's pose marker size is
// unusable.
var ErrMarkerSize = pkgerrors.New("invalid pose marker size")

// Pipeline runs calibration and streaming for a profile.
type Pipeline struct {
	Profile  *config.Profile
	Toolkit  vision.Toolkit
	Hub      *events.EventHub
	Controls *control.Queue

	// Preview receives undistorted frames while calibrated. Optional.
	Preview capture.Preview

	TransportURL string
	Encoding     string

	// ExitOnCalibrated ends the capture stage as soon as a calibration
	// succeeds.
	ExitOnCalibrated bool

	// openTransport is a test seam.
	openTransport func(string) (transport.Transport, error)

	mu        sync.RWMutex
	session   *capture.Session
	client    *stream.Client
	result    *calibration.Result
	startedAt time.Time
	message   string
}

// Run calibrates (or loads the cached calibration) and then streams poses
// until the input ends, a stop event arrives or ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	r, err := p.Calibrate(ctx)
	if err != nil {
		return err
	}
	return p.Stream(ctx, r)
}

// Calibrate returns the cached calibration, or captures samples and solves
// a new one.
func (p *Pipeline) Calibrate(ctx context.Context) (*calibration.Result, error) {
	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = time.Now()
	}
	p.mu.Unlock()

	r, err := solver.CalculateCameraParameters(ctx, p.Profile, solver.RunnerFunc(p.capture))
	if err != nil {
		p.setMessage(err.Error())
		return nil, err
	}

	p.mu.Lock()
	cached := p.session == nil
	p.result = r
	p.mu.Unlock()
	if cached {
		p.Hub.Publish(events.CalibrationSolved, events.CalibrationSolvedEvent{
			RMS:    r.AvgReprojectionError,
			Views:  r.NrOfFrames,
			Cached: true,
			Output: p.Profile.OutputFileName,
			Ts:     time.Now().Unix(),
		})
	}
	return r, nil
}

func (p *Pipeline) capture(ctx context.Context) (*calibration.Result, error) {
	src, err := source.Open(p.Profile, p.Toolkit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close input")
		}
	}()

	s := capture.NewSession(p.Profile, src.Live(), solver.New(p.Profile), p.Hub)
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()

	if src.Live() && s.Phase() == calibration.PhaseDetection {
		logrus.Info("press 'g' (or POST /control/start) to start capturing samples")
	}

	loop := &capture.Loop{
		Session:          s,
		Source:           src,
		Detector:         detect.New(p.Profile, p.Toolkit),
		Flipper:          p.Toolkit,
		FlipVertical:     p.Profile.FlipVertical,
		Undistorter:      p.Toolkit,
		Preview:          p.Preview,
		Controls:         p.Controls,
		ExitOnCalibrated: p.ExitOnCalibrated,
	}
	return loop.Run(ctx)
}

// Stream pushes marker poses estimated with r's camera model to the
// configured transport.
func (p *Pipeline) Stream(ctx context.Context, r *calibration.Result) error {
	if p.Profile.PoseMarkerSize <= minMarkerSize {
		return pkgerrors.Wrapf(ErrMarkerSize, "%g", p.Profile.PoseMarkerSize)
	}

	enc, err := stream.NewEncoder(p.encoding())
	if err != nil {
		return err
	}
	open := p.openTransport
	if open == nil {
		open = transport.Open
	}
	tr, err := open(p.TransportURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close transport")
		}
	}()

	src, err := source.Open(p.Profile, p.Toolkit)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close input")
		}
	}()

	c := &stream.Client{
		Source:    &flipSource{FrameSource: src, flipper: p.Toolkit, enabled: p.Profile.FlipVertical},
		Estimator: pose.NewEstimator(p.Toolkit, p.Profile.Dictionary, r.Camera(), p.Profile.PoseMarkerSize),
		Encoder:   enc,
		Transport: tr,
		Controls:  p.Controls,
	}
	p.mu.Lock()
	p.client = c
	p.result = r
	p.mu.Unlock()

	p.Hub.Publish(events.StreamState, events.StreamStateEvent{Running: true, Target: tr.String(), Ts: time.Now().Unix()})
	err = c.Run(ctx)
	msg := "input ended"
	if err != nil {
		msg = err.Error()
	}
	p.setMessage(msg)
	p.Hub.Publish(events.StreamState, events.StreamStateEvent{Running: false, Target: tr.String(), Message: msg, Ts: time.Now().Unix()})
	return err
}

func (p *Pipeline) encoding() string {
	if p.Encoding == "" {
		return stream.DefaultEncoding
	}
	return p.Encoding
}

func (p *Pipeline) setMessage(msg string) {
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

// Result returns the calibration in use, if any.
func (p *Pipeline) Result() *calibration.Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result
}

// InvalidateCalibration removes the calibration file so the next run
// calibrates again. The calibration in use is not affected.
func (p *Pipeline) InvalidateCalibration() error {
	return store.Remove(p.Profile.OutputFileName)
}

// Status returns a snapshot of both stages.
func (p *Pipeline) Status() calibration.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := calibration.Status{
		Phase:      calibration.PhaseDetection,
		Target:     p.Profile.NrFrames,
		Calibrated: p.result != nil,
		StartedAt:  p.startedAt,
	}
	if p.session != nil {
		st = p.session.Status()
		st.StartedAt = p.startedAt
	}
	if p.result != nil {
		st.Calibrated = true
		st.Phase = calibration.PhaseCalibrated
		st.RMS = p.result.AvgReprojectionError
	}
	if p.client != nil {
		s := p.client.Stats()
		st.Streaming = s.Running
		st.FramesRead = s.Frames
		st.PosesFound = s.Detections
		st.PosesSent = s.Sent
		st.SendErrors = s.SendErrors
	}
	if st.Message == "" {
		st.Message = p.message
	}
	return st
}

// flipSource mirrors frames before pose estimation.
type flipSource struct {
	source.FrameSource
	flipper vision.Flipper
	enabled bool
}

func (s *flipSource) Next(ctx context.Context) (vision.Frame, error) {
	f, err := s.FrameSource.Next(ctx)
	if err != nil || !s.enabled {
		return f, err
	}
	flipped, err := s.flipper.FlipVertical(f)
	_ = f.Close()
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to flip frame")
	}
	return flipped, nil
}
