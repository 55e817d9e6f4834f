package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/vision/opencv"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Manage the calibration profile",
		GroupID: gLocal,
	}

	force := false
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a profile holding the default values",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", configPath)
			}
			if err := config.NewFileFromConfig(nil, configPath).Save(); err != nil {
				return err
			}
			logrus.Infof("default profile written to %s", configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing profile")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the profile and probe its input",
		RunE: func(_ *cobra.Command, _ []string) error {
			f, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			p, err := config.Validate(f.Raw(), opencv.New())
			if err != nil {
				return err
			}
			logrus.WithFields(p.LogrusFields()).Info("profile is valid")
			return nil
		},
	}

	cmd.AddCommand(initCmd, checkCmd)
	return cmd
}
