// SPDX-License-Identifier: MIT
package engine

import "errors"

// State is the capture session state. Only one non-Idle state is ever
// active.
type State int32

const (
	Idle State = iota
	BaselineRecording
	Testing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case BaselineRecording:
		return "BaselineRecording"
	case Testing:
		return "Testing"
	default:
		return "Unknown"
	}
}

var (
	// ErrBusy rejects a start request while a session is running.
	ErrBusy = errors.New("capture session already running")

	// ErrNoBaseline rejects a test before a baseline has been recorded.
	ErrNoBaseline = errors.New("no baseline noise power recorded")

	// ErrNoWindows reports a calibration pass that read nothing.
	ErrNoWindows = errors.New("calibration read no windows")
)
