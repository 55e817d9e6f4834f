package events

import "encoding/json"

// Event name constants
const (
	CapturePhase      = "capture.phase"
	CalibrationSolved = "calibration.solved"
	StreamState       = "stream.state"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// CapturePhaseEvent is the typed payload for capture.phase.
type CapturePhaseEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Samples int    `json:"samples"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// CalibrationSolvedEvent is the typed payload for calibration.solved.
type CalibrationSolvedEvent struct {
	RMS    float64 `json:"rms"`
	Views  int     `json:"views"`
	Cached bool    `json:"cached"`
	Output string  `json:"output"`
	Ts     int64   `json:"ts"`
}

// StreamStateEvent is the typed payload for stream.state.
type StreamStateEvent struct {
	Running bool   `json:"running"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.CapturePhaseEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
