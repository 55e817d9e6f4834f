package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/daemon"
	"github.com/charlie0129/markercam/pkg/events"
)

func NewStatusCommand() *cobra.Command {
	watch := false
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gDaemon,
		Short:   "Get the current status of the daemon",
		Long:    `Get the capture phase, calibration quality and streaming counters of the daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
			} else {
				printStatus(cmd, st)
			}
			if !watch {
				return nil
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			cmd.Println()
			cmd.Println(bold("Events:"))
			return apiClient.WatchEvents(ctx, func(ev events.Event) bool {
				cmd.Println("  " + eventLine(ev))
				return true
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep printing daemon events until interrupted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, st *daemon.StatusResponse) {
	cmd.Println(bold("Calibration:"))
	cmd.Printf("  Phase: %s\n", phaseText(st.Phase))
	if st.Phase == calibration.PhaseCapturing {
		cmd.Printf("  Samples: %s\n", bold("%d / %d", st.Samples, st.Target))
	}
	cmd.Printf("  Calibrated: %s\n", bool2Text(st.Calibrated))
	if st.Calibrated {
		cmd.Printf("  Reprojection error: %s\n", rmsText(st.RMS))
		cmd.Printf("  Show undistorted: %s\n", bool2Text(st.ShowUndistorted))
	}

	cmd.Println()

	cmd.Println(bold("Streaming:"))
	cmd.Printf("  Running: %s\n", bool2Text(st.Streaming))
	cmd.Printf("  Frames read: %s\n", bold("%d", st.FramesRead))
	cmd.Printf("  Poses found: %s\n", bold("%d", st.PosesFound))
	cmd.Printf("  Poses sent: %s\n", bold("%d", st.PosesSent))
	if st.SendErrors > 0 {
		cmd.Printf("  Send errors: %s\n", color.New(color.Bold, color.FgRed).Sprintf("%d", st.SendErrors))
	}

	cmd.Println()

	cmd.Println(bold("Daemon:"))
	if !st.StartedAt.IsZero() {
		cmd.Printf("  Up since: %s\n", bold("%s", st.StartedAt.Local().Format(time.DateTime)))
	}
	cmd.Printf("  Session: %s\n", bold("%s", st.SessionID))
	if st.Message != "" {
		cmd.Printf("  Message: %s\n", st.Message)
	}
}

func eventLine(ev events.Event) string {
	switch ev.Name {
	case events.CapturePhase:
		d, err := events.DecodeAs[events.CapturePhaseEvent](ev)
		if err == nil {
			line := d.From + " -> " + phaseText(calibration.Phase(d.To))
			if d.Message != "" {
				line += " (" + d.Message + ")"
			}
			return line
		}
	case events.CalibrationSolved:
		d, err := events.DecodeAs[events.CalibrationSolvedEvent](ev)
		if err == nil {
			src := "solved"
			if d.Cached {
				src = "loaded from cache"
			}
			return bold("calibration %s", src) + ", rms " + rmsText(d.RMS)
		}
	case events.StreamState:
		d, err := events.DecodeAs[events.StreamStateEvent](ev)
		if err == nil {
			if d.Running {
				return color.GreenString("streaming to %s", d.Target)
			}
			line := "streaming stopped"
			if d.Message != "" {
				line += ": " + d.Message
			}
			return line
		}
	}
	return ev.Name + " " + string(ev.Data)
}

func phaseText(p calibration.Phase) string {
	switch p {
	case calibration.PhaseCalibrated:
		return color.New(color.Bold, color.FgGreen).Sprint(p)
	case calibration.PhaseCapturing:
		return color.New(color.Bold, color.FgYellow).Sprint(p)
	default:
		return bold("%s", p)
	}
}

// rmsText colors a reprojection error by how usable the calibration is.
func rmsText(rms float64) string {
	c := color.New(color.Bold, color.FgGreen)
	switch {
	case rms > 1:
		c = color.New(color.Bold, color.FgRed)
	case rms > 0.5:
		c = color.New(color.Bold, color.FgYellow)
	}
	return c.Sprintf("%.4f px", rms)
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
