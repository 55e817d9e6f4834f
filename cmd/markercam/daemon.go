package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/markercam/pkg/daemon"
	"github.com/charlie0129/markercam/pkg/stream"
	_ "github.com/charlie0129/markercam/pkg/transport/zmqpub"
	"github.com/charlie0129/markercam/pkg/version"
	"github.com/charlie0129/markercam/pkg/vision/opencv"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the markercam daemon.
	alwaysAllowNonRootAccess = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	opts := daemon.Options{}
	previewDir := ""

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run markercam daemon in the foreground",
		GroupID: gDaemon,
		Long: `Run calibration followed by pose streaming, and serve status and control over a unix socket.

Control the daemon with 'markercam control', 'markercam status' and 'markercam calibration'.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("markercam daemon starting")

			opts.ConfigPath = configPath
			opts.SocketPath = unixSocketPath
			opts.AllowNonRoot = alwaysAllowNonRootAccess
			if previewDir != "" {
				w, err := opencv.NewImageWriter(previewDir)
				if err != nil {
					return err
				}
				opts.Preview = w
			}
			return daemon.Run(opts, opencv.New())
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.StringVar(&opts.TransportURL, "transport", "udp://127.0.0.1:5000", "where poses are sent")
	f.StringVar(&opts.Encoding, "encoding", stream.DefaultEncoding, "pose encoding")
	f.StringVar(&previewDir, "preview-dir", "", "write undistorted preview frames to this directory")

	return cmd
}
