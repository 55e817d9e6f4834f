// Package calibration defines the types shared by the camera calibration
// workflow. It contains:
//
//   - Phase: the discrete states of the capture state machine
//   - Pattern: the supported calibration target layouts
//   - Flags: the solver option bitmask, using OpenCV's bit values
//   - Result: an immutable calibration outcome, as persisted and cached
//   - Status: a synthesized view model returned by the daemon HTTP API
//
// These types are shared across capture, solver, store, daemon and client
// code to avoid duplicate definitions and keep JSON/YAML contracts consistent.
package calibration
