package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Capture parameters are fixed at build time. Measurements are only
// comparable across sessions when every session captures the same way, so
// nothing in the YAML or flag layer can change them.
const (
	SampleRate          = 44100                   // Hz
	Channels            = 1                       // Mono
	BitDepth            = 16                      // Signed 16-bit PCM
	WindowDuration      = 100 * time.Millisecond  // One analysis window
	CalibrationDuration = 5000 * time.Millisecond // Baseline recording length

	// BufferFloor is the smallest capture buffer, in samples, ever requested
	// from a device regardless of what the platform reports.
	BufferFloor = 8192

	// MinDeviceID selects the system default input device.
	MinDeviceID = -1
)

// ErrInvalidCapture is returned when derived capture sizes are unusable.
var ErrInvalidCapture = errors.New("invalid capture parameters")

// Capture holds the immutable capture parameters shared by every session.
type Capture struct {
	SampleRate          int
	Channels            int
	BitDepth            int
	WindowDuration      time.Duration
	CalibrationDuration time.Duration
}

// DefaultCapture returns the capture parameters every session uses.
func DefaultCapture() Capture {
	return Capture{
		SampleRate:          SampleRate,
		Channels:            Channels,
		BitDepth:            BitDepth,
		WindowDuration:      WindowDuration,
		CalibrationDuration: CalibrationDuration,
	}
}

// WindowSize is the number of samples in one analysis window.
func (c Capture) WindowSize() int {
	return WindowSize(c.SampleRate, c.WindowDuration)
}

// WindowSize returns round(duration × sampleRate) samples.
func WindowSize(sampleRate int, d time.Duration) int {
	return int(math.Round(d.Seconds() * float64(sampleRate)))
}

// BufferSize returns the capture buffer size for a platform minimum:
// twice the minimum, but never below BufferFloor.
func BufferSize(platformMin int) int {
	return max(platformMin*2, BufferFloor)
}

// Validate fails closed when the derived sizes cannot drive a capture.
func (c Capture) Validate(bufferSize int) error {
	return ValidateSizes(c.SampleRate, c.Channels, c.WindowSize(), bufferSize)
}

// ValidateSizes checks the sizes a capture device is opened with.
func ValidateSizes(sampleRate, channels, windowSize, bufferSize int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("%w: rate=%d channels=%d", ErrInvalidCapture, sampleRate, channels)
	}
	if windowSize <= 0 {
		return fmt.Errorf("%w: window size %d", ErrInvalidCapture, windowSize)
	}
	if bufferSize <= 0 {
		return fmt.Errorf("%w: buffer size %d", ErrInvalidCapture, bufferSize)
	}
	return nil
}
