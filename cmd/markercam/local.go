package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/events"
	"github.com/charlie0129/markercam/pkg/pipeline"
	"github.com/charlie0129/markercam/pkg/store"
	"github.com/charlie0129/markercam/pkg/stream"
	"github.com/charlie0129/markercam/pkg/vision/opencv"
)

type localFlags struct {
	transportURL string
	encoding     string
	previewDir   string
	keyboard     bool
}

func (f *localFlags) addStreamFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.transportURL, "transport", "udp://127.0.0.1:5000",
		"where poses are sent (udp://host:port, ws://addr/path, mqtt://broker/topic, zmq+tcp://addr)")
	cmd.Flags().StringVar(&f.encoding, "encoding", stream.DefaultEncoding,
		fmt.Sprintf("pose encoding %v", stream.Encodings()))
}

func (f *localFlags) addCaptureFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.previewDir, "preview-dir", "",
		"write undistorted preview frames to this directory once calibrated")
	cmd.Flags().BoolVar(&f.keyboard, "keyboard", true,
		"read control keys from the terminal: g start, u toggle undistorted, q or ESC stop")
}

// newLocalPipeline loads and validates the profile and builds a pipeline
// around the opencv toolkit.
func newLocalPipeline(f *localFlags, exitOnCalibrated bool) (*pipeline.Pipeline, error) {
	toolkit := opencv.New()

	file, err := config.NewFile(configPath)
	if err != nil {
		return nil, err
	}
	profile, err := config.Validate(file.Raw(), toolkit)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(profile.LogrusFields()).Infof("config loaded")

	p := &pipeline.Pipeline{
		Profile:          profile,
		Toolkit:          toolkit,
		Hub:              events.NewEventHub(),
		Controls:         control.NewQueue(control.DefaultQueueSize),
		TransportURL:     f.transportURL,
		Encoding:         f.encoding,
		ExitOnCalibrated: exitOnCalibrated,
	}
	if f.previewDir != "" {
		w, err := opencv.NewImageWriter(f.previewDir)
		if err != nil {
			return nil, err
		}
		p.Preview = w
	}
	return p, nil
}

// withControls runs fn with a context canceled by SIGINT or SIGTERM. When
// enabled and stdin is a terminal, key presses feed p.Controls meanwhile.
func withControls(f *localFlags, p *pipeline.Pipeline, fn func(ctx context.Context) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if f.keyboard && term.IsTerminal(int(os.Stdin.Fd())) {
		kb, err := control.NewKeyboard(os.Stdin)
		if err != nil {
			logrus.Warnf("keyboard control disabled: %v", err)
		} else {
			defer func() {
				if err := kb.Restore(); err != nil {
					logrus.Warnf("failed to restore terminal: %v", err)
				}
			}()
			go func() {
				if err := kb.Run(ctx, p.Controls); err != nil {
					logrus.Debugf("keyboard reader stopped: %v", err)
				}
			}()
			logrus.Info("keys: g start capturing, u toggle undistorted, q or ESC stop")
		}
	}

	return fn(ctx)
}

func NewCalibrateCommand() *cobra.Command {
	f := &localFlags{}
	cmd := &cobra.Command{
		Use:     "calibrate",
		GroupID: gLocal,
		Short:   "Calibrate the camera and save the parameters",
		Long: `Calibrate the camera described by the profile and save the parameters to its output file.

A cached calibration is reused when the output file already holds one. Delete the file (or use 'markercam calibration reset' against a daemon) to recalibrate.

For a live camera, press 'g' to start capturing. Once calibrated, 'u' toggles the undistorted preview and 'q' ends the session.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := newLocalPipeline(f, false)
			if err != nil {
				return err
			}
			return withControls(f, p, func(ctx context.Context) error {
				r, err := p.Calibrate(ctx)
				if err != nil {
					return fmt.Errorf("calibration failed: %w", err)
				}
				logrus.WithFields(logrus.Fields{
					"rms":    r.AvgReprojectionError,
					"frames": r.NrOfFrames,
					"output": p.Profile.OutputFileName,
				}).Info("camera calibrated")
				return nil
			})
		},
	}
	f.addCaptureFlags(cmd)
	return cmd
}

func NewStreamCommand() *cobra.Command {
	f := &localFlags{}
	cmd := &cobra.Command{
		Use:     "stream",
		GroupID: gLocal,
		Short:   "Stream marker poses using a saved calibration",
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := newLocalPipeline(f, true)
			if err != nil {
				return err
			}
			r, err := store.Load(p.Profile.OutputFileName)
			if err != nil {
				return fmt.Errorf("no usable calibration in %s, run 'markercam calibrate' first: %w",
					p.Profile.OutputFileName, err)
			}
			return withControls(f, p, func(ctx context.Context) error {
				return p.Stream(ctx, r)
			})
		},
	}
	f.addStreamFlags(cmd)
	cmd.Flags().BoolVar(&f.keyboard, "keyboard", true, "stop streaming with q or ESC")
	return cmd
}

func NewRunCommand() *cobra.Command {
	f := &localFlags{}
	cmd := &cobra.Command{
		Use:     "run",
		GroupID: gLocal,
		Short:   "Calibrate (or load the cached calibration) and stream marker poses",
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := newLocalPipeline(f, true)
			if err != nil {
				return err
			}
			return withControls(f, p, p.Run)
		},
	}
	f.addStreamFlags(cmd)
	f.addCaptureFlags(cmd)
	return cmd
}
