// Package daemon installs markercam as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitPath = "/etc/systemd/system/markercam.service"

	// runCommand is a test seam.
	runCommand = func(name string, args ...string) error {
		out, err := exec.Command(name, args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

const unitTemplate = `[Unit]
Description=markercam camera calibration and marker pose streaming
After=network-online.target
Wants=network-online.target

[Service]
ExecStart={{exec}} daemon {{args}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// Unit renders the service unit for exePath. args are appended to the
// daemon command line.
func Unit(exePath string, args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted[i] = a
	}
	s := strings.ReplaceAll(unitTemplate, "{{exec}}", exePath)
	return strings.ReplaceAll(s, " {{args}}", strings.TrimRight(" "+strings.Join(quoted, " "), " "))
}

// Install writes the unit for the current executable and starts it.
func Install(args []string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	return install(exePath, args)
}

func install(exePath string, args []string) error {
	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	logrus.Infof("writing service unit to %s", unitPath)

	err := os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}
	err = os.WriteFile(unitPath, []byte(Unit(exePath, args)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting markercam")

	if err := runCommand("systemctl", "daemon-reload"); err != nil {
		return err
	}
	return runCommand("systemctl", "enable", "--now", filepath.Base(unitPath))
}
