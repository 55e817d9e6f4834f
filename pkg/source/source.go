// Package source turns a validated profile's input into a FrameSource.
package source

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/vision"
)

// ErrEndOfStream is returned by Next when the source has no more frames. It
// is distinct from a failure to read a single frame.
var ErrEndOfStream = errors.New("end of stream")

// FrameSource produces frames one at a time.
type FrameSource interface {
	// Next blocks until a frame is available. It returns ErrEndOfStream once
	// the source is exhausted.
	Next(ctx context.Context) (vision.Frame, error)
	// Live reports whether the source is a continuous capture whose samples
	// need debouncing and which accepts a start trigger.
	Live() bool
	Close() error
}

// Open creates the FrameSource described by p.
func Open(p *config.Profile, opener vision.CaptureOpener) (FrameSource, error) {
	switch p.InputType {
	case config.InputImageList:
		return NewImageList(p.ImageList, opener), nil
	case config.InputCamera:
		c, err := opener.OpenCamera(p.CameraID)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to open camera %d", p.CameraID)
		}
		return NewCapture(c), nil
	case config.InputVideoFile:
		c, err := opener.OpenVideo(p.Input)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to open video %s", p.Input)
		}
		return NewCapture(c), nil
	default:
		return nil, pkgerrors.Errorf("input %q has no usable type", p.Input)
	}
}

// Capture reads from a camera or video file.
type Capture struct {
	c vision.Capture
}

func NewCapture(c vision.Capture) *Capture {
	return &Capture{c: c}
}

func (s *Capture) Next(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.c.Read()
	if errors.Is(err, vision.ErrNoFrame) {
		return nil, ErrEndOfStream
	}
	return f, err
}

// Live is true for both cameras and video files; a video is consumed at its
// own pace just like a device.
func (s *Capture) Live() bool { return true }

func (s *Capture) Close() error {
	return s.c.Close()
}

// ImageList reads an enumerated list of image files through a cursor.
type ImageList struct {
	paths  []string
	opener vision.CaptureOpener
	pos    int
}

func NewImageList(paths []string, opener vision.CaptureOpener) *ImageList {
	return &ImageList{paths: paths, opener: opener}
}

// Next reads the image under the cursor. The cursor moves past an unreadable
// image so the failure is reported once and the next call continues.
func (s *ImageList) Next(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.paths) {
		return nil, ErrEndOfStream
	}
	path := s.paths[s.pos]
	s.pos++
	f, err := s.opener.ReadImage(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read image %s", path)
	}
	return f, nil
}

func (s *ImageList) Live() bool { return false }

func (s *ImageList) Close() error { return nil }

// Remaining returns how many images have not been read yet.
func (s *ImageList) Remaining() int {
	return len(s.paths) - s.pos
}
