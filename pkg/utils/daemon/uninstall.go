package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

func Uninstall() error {
	logrus.Infof("stopping markercam")

	err := runCommand("systemctl", "disable", "--now", filepath.Base(unitPath))
	if err != nil {
		logrus.Warnf("failed to stop service: %v", err)
	}

	logrus.Infof("removing service unit")

	// if the file doesn't exist, we don't need to remove it
	err = os.Remove(unitPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", unitPath, err)
	}

	return runCommand("systemctl", "daemon-reload")
}
