package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/markercam/pkg/stream"
	daemonutils "github.com/charlie0129/markercam/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false
	transportURL := ""
	encoding := ""

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install markercam daemon as a systemd service",
		GroupID: gDaemon,
		Long: `Install markercam daemon as a systemd service.

This makes markercam calibrate and stream in the background and start on boot. You must run this command as root.

By default, only root user is allowed to access the daemon socket. Use --allow-non-root-access to let other users run 'markercam status' and 'markercam control' without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := filepath.Abs(configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(conf); err != nil {
				logrus.Warnf("profile %s does not exist yet, the daemon will use defaults", conf)
			}

			args := []string{
				"--config", conf,
				"--daemon-socket", unixSocketPath,
				"--log-level", logLevel,
				"--transport", transportURL,
				"--encoding", encoding,
			}
			if allowNonRootAccess {
				args = append(args, "--always-allow-non-root-access")
				logrus.Info("non-root users are allowed to access the markercam daemon.")
			} else {
				logrus.Info("only root user is allowed to access the markercam daemon.")
			}

			err = daemonutils.Install(args)
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use the current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run ``markercam install'' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access markercam daemon.")
	cmd.Flags().StringVar(&transportURL, "transport", "udp://127.0.0.1:5000", "where the daemon sends poses")
	cmd.Flags().StringVar(&encoding, "encoding", stream.DefaultEncoding, "pose encoding")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall markercam daemon",
		GroupID: gDaemon,
		Long: `Stop the markercam service and remove its systemd unit.

You must run this command as root.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := daemonutils.Uninstall(); err != nil {
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}
			logrus.Infof("successfully uninstalled markercam")
			return nil
		},
	}
}
