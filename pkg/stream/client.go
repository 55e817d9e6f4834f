// Package stream runs the pose streaming loop: read a frame, estimate the
// marker pose and push it to the transport.
package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/pose"
	"github.com/charlie0129/markercam/pkg/source"
	"github.com/charlie0129/markercam/pkg/transport"
	"github.com/charlie0129/markercam/pkg/vision"
)

const statusInterval = 5 * time.Second

// Estimator finds a pose in a frame.
type Estimator interface {
	Estimate(f vision.Frame) (pose.Pose, bool)
}

// Stats are the loop counters.
type Stats struct {
	Running    bool   `json:"running"`
	Frames     uint64 `json:"frames"`
	ReadErrors uint64 `json:"readErrors"`
	Detections uint64 `json:"detections"`
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"sendErrors"`
}

// Client streams poses from Source to Transport.
type Client struct {
	Source    source.FrameSource
	Estimator Estimator
	Encoder   Encoder
	Transport transport.Transport
	Controls  *control.Queue

	running    atomic.Bool
	frames     atomic.Uint64
	readErrors atomic.Uint64
	detections atomic.Uint64
	sent       atomic.Uint64
	sendErrors atomic.Uint64
	seq        uint64

	lastPrint time.Time
	lastStats Stats
}

// Stats returns a snapshot of the counters. It is safe to call from other
// goroutines.
func (c *Client) Stats() Stats {
	return Stats{
		Running:    c.running.Load(),
		Frames:     c.frames.Load(),
		ReadErrors: c.readErrors.Load(),
		Detections: c.detections.Load(),
		Sent:       c.sent.Load(),
		SendErrors: c.sendErrors.Load(),
	}
}

// Run loops until the source ends, a stop event arrives or ctx is done.
// Only ctx cancellation is reported as an error.
func (c *Client) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)

	logrus.WithField("transport", c.Transport.String()).Info("streaming poses")
	defer func() {
		logrus.WithFields(c.fields()).Info("streaming stopped")
	}()

	for {
		f, err := c.Source.Next(ctx)
		switch {
		case errors.Is(err, source.ErrEndOfStream):
			logrus.Info("input exhausted")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			c.readErrors.Add(1)
			logrus.WithError(err).Warn("failed to read frame")
		default:
			c.frames.Add(1)
			c.handle(f)
			_ = f.Close()
		}

		c.printStatus()

		if c.Controls.Poll() == control.EventStop {
			logrus.Info("streaming stopped by user")
			return nil
		}
	}
}

func (c *Client) handle(f vision.Frame) {
	p, ok := c.Estimator.Estimate(f)
	if !ok {
		return
	}
	c.detections.Add(1)

	p.Seq = c.seq
	c.seq++
	payload, err := c.Encoder.Encode(p)
	if err != nil {
		logrus.WithError(err).Error("failed to encode pose")
		return
	}
	if err := c.Transport.Send(payload); err != nil {
		c.sendErrors.Add(1)
		logrus.WithError(err).Debug("failed to send pose")
		return
	}
	c.sent.Add(1)
}

func (c *Client) fields() logrus.Fields {
	s := c.Stats()
	return logrus.Fields{
		"frames":     s.Frames,
		"readErrors": s.ReadErrors,
		"detections": s.Detections,
		"sent":       s.Sent,
		"sendErrors": s.SendErrors,
	}
}

// printStatus logs the counters at most once per statusInterval.
func (c *Client) printStatus() {
	if time.Since(c.lastPrint) < statusInterval {
		return
	}
	defer func() { c.lastPrint = time.Now() }()

	s := c.Stats()
	if s == c.lastStats {
		logrus.WithFields(c.fields()).Trace("stream status")
		return
	}
	logrus.WithFields(c.fields()).Debug("stream status")
	c.lastStats = s
}
