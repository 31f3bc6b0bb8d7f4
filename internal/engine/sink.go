// SPDX-License-Identifier: MIT
package engine

// TestingSink receives results of a Testing session. Methods are called on
// the capture goroutine and must return quickly; hand work off to another
// goroutine (see the dispatch package) rather than doing it inline.
type TestingSink interface {
	IntermediateSNR(value float64)
	MicrophoneActive(active bool)
}

// CalibrationSink receives results of a BaselineRecording session. The same
// threading rules as TestingSink apply.
type CalibrationSink interface {
	BaselineRecorded()
	BaselineQuality(label string, level int)
	MicrophoneActive(active bool)
}

// CalibrationFailureSink is implemented by calibration sinks that want to
// hear about a pass that produced no baseline. Sinks without it only see
// the absence of BaselineRecorded.
type CalibrationFailureSink interface {
	BaselineFailed(err error)
}

// NopTestingSink discards every notification.
type NopTestingSink struct{}

func (NopTestingSink) IntermediateSNR(float64) {}
func (NopTestingSink) MicrophoneActive(bool)   {}

// NopCalibrationSink discards every notification.
type NopCalibrationSink struct{}

func (NopCalibrationSink) BaselineRecorded()           {}
func (NopCalibrationSink) BaselineQuality(string, int) {}
func (NopCalibrationSink) MicrophoneActive(bool)       {}

var (
	_ TestingSink     = NopTestingSink{}
	_ CalibrationSink = NopCalibrationSink{}
)
