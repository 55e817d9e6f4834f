package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/markercam/pkg/client"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/pipeline"
	"github.com/charlie0129/markercam/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/markercam.sock"
	configPath     = "markercam.yaml"
)

var apiClient *client.Client

var (
	gLocal        = "Local:"
	gDaemon       = "Daemon:"
	commandGroups = []string{
		gLocal,
		gDaemon,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, config.ErrInvalidProfile):
		fmt.Fprintln(os.Stderr, "\nError: the calibration profile is invalid")
		fmt.Fprintf(os.Stderr, "  - Check %s, or create one with 'markercam config init'\n", configPath)
	case errors.Is(err, pipeline.ErrMarkerSize):
		fmt.Fprintln(os.Stderr, "\nError: pose_marker_size must be set to the printed marker side length")
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: markercam daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Start it with 'markercam daemon'.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--always-allow-non-root-access' flag")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markercam",
		Short: "markercam calibrates a camera and streams marker poses",
		Long: `markercam calibrates a camera from a chessboard, ChArUco board or circles
grid, then estimates the pose of an ArUco marker in every frame and streams
it over UDP, WebSocket, MQTT or ZeroMQ.

A finished calibration is cached in the output file of the profile and
reused on the next run.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}
			apiClient = client.NewClient(unixSocketPath)
			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "calibration profile path (.yaml or .json)")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "markercam daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewCalibrateCommand(),
		NewStreamCommand(),
		NewRunCommand(),
		NewConfigCommand(),
		NewDaemonCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
		NewControlCommand(),
		NewCalibrationCommand(),
		NewStatusCommand(),
		NewVersionCommand(),
	)

	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
			v, err := apiClient.GetVersion()
			if err != nil {
				logrus.Debugf("daemon version unavailable: %v", err)
				return
			}
			if v.Version != version.Version {
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"daemonVersion": v.Version,
				}).Warn("Version mismatch between client and daemon.")
			}
		},
	}
}
