// SPDX-License-Identifier: MIT
package audio

import (
	"errors"

	"vocalsnr/internal/config"
)

var (
	// ErrPermissionDenied is returned when capture is not permitted. No
	// device is touched in that case.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrAllSourcesExhausted is returned when every candidate failed. It
	// wraps the joined candidate errors.
	ErrAllSourcesExhausted = errors.New("all audio sources exhausted")

	// ErrInvalidParams is returned when the capture sizes cannot be used.
	ErrInvalidParams = config.ErrInvalidCapture

	// ErrDeviceRead marks a read failure reported by the device itself, as
	// opposed to an unexpected failure of the read call.
	ErrDeviceRead = errors.New("device read error")

	errInterrupted = errors.New("read interrupted")
)

// Source is an exclusively owned capture handle. Read blocks until samples
// are available; Interrupt may be called from another goroutine to unblock
// it. Every other method is called by the owner only.
type Source interface {
	// Name identifies the candidate that produced this source.
	Name() string
	// Initialized reports whether the device finished initialization.
	Initialized() bool
	// Start begins capture.
	Start() error
	// Read fills buf with up to len(buf) samples and returns the count.
	// (0, nil) means nothing was available. Errors wrapping ErrDeviceRead
	// come from the device; anything else is an unexpected failure.
	Read(buf []int16) (int, error)
	// Stop halts capture. It is safe to call after Interrupt.
	Stop() error
	// Interrupt unblocks a pending Read and makes later reads fail.
	Interrupt()
	// Release frees the device. It is idempotent.
	Release() error
}

// Params are the capture parameters handed to each candidate.
type Params struct {
	SampleRate int
	Channels   int
	WindowSize int // samples per Read
	BufferSize int // device buffer, in samples
	Device     int // PortAudio device index for the raw candidate
}

// NewParams derives Params from the fixed capture configuration and the
// platform minimum buffer size.
func NewParams(c config.Capture, platformMin, device int) Params {
	return Params{
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		WindowSize: c.WindowSize(),
		BufferSize: config.BufferSize(platformMin),
		Device:     device,
	}
}

// Validate fails closed when either size is unusable.
func (p Params) Validate() error {
	return config.ValidateSizes(p.SampleRate, p.Channels, p.WindowSize, p.BufferSize)
}

// Permission reports whether the host allows microphone capture.
type Permission interface {
	Granted() bool
}

// permissionFunc adapts a function to Permission.
type permissionFunc func() bool

// Granted implements Permission.
func (f permissionFunc) Granted() bool { return f() }

// StaticPermission is a fixed Permission answer, typically from config.
type StaticPermission bool

// Granted implements Permission.
func (p StaticPermission) Granted() bool { return bool(p) }
