package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/markercam/pkg/control"
)

func NewControlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "control",
		Short:   "Send a control event to the daemon",
		GroupID: gDaemon,
		Long: `Send a control event to the daemon, the same way key presses drive a local session.

  start      start (or restart) capturing calibration samples
  undistort  toggle the undistorted preview once calibrated
  stop       end the current stage`,
	}

	for _, e := range []control.Event{control.EventStart, control.EventToggleUndistorted, control.EventStop} {
		cmd.AddCommand(&cobra.Command{
			Use:   e.String(),
			Short: fmt.Sprintf("Send %q to the daemon", e),
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.Control(e)
				if err != nil {
					return err
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
				return nil
			},
		})
	}

	return cmd
}

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Aliases: []string{"cali"},
		Short:   "Inspect or reset the daemon's calibration",
		GroupID: gDaemon,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the calibration in use",
			RunE: func(cmd *cobra.Command, _ []string) error {
				r, err := apiClient.GetCalibration()
				if err != nil {
					return err
				}
				k := r.CameraMatrix
				cmd.Printf("Calibrated: %s\n", bold("%s", r.CalibrationTime.Local().Format("2006-01-02 15:04:05")))
				cmd.Printf("  Image size: %s\n", bold("%dx%d", r.ImageSize.Width, r.ImageSize.Height))
				cmd.Printf("  Frames: %s\n", bold("%d", r.NrOfFrames))
				cmd.Printf("  Model: %s\n", bold("%s", modelName(r.Fisheye)))
				if len(k) == 9 {
					cmd.Printf("  Focal length: %s\n", bold("fx=%.3f fy=%.3f", k[0], k[4]))
					cmd.Printf("  Principal point: %s\n", bold("cx=%.3f cy=%.3f", k[2], k[5]))
				}
				cmd.Printf("  Distortion: %s\n", bold("%v", r.Distortion))
				cmd.Printf("  Reprojection error: %s\n", rmsText(r.AvgReprojectionError))
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Remove the cached calibration file so the next run recalibrates",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.DeleteCalibration()
				if err != nil {
					return fmt.Errorf("failed to reset calibration: %w", err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
				return nil
			},
		},
	)

	return cmd
}

func modelName(fisheye bool) string {
	if fisheye {
		return "fisheye"
	}
	return "pinhole"
}
