// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"vocalsnr/internal/log"
)

// portAudioSource reads from a blocking PortAudio input stream. The stream
// is bound to buffer at open time, so every Read fills one whole window.
type portAudioSource struct {
	name        string
	stream      *portaudio.Stream
	buffer      []int16
	interrupted atomic.Bool
	release     sync.Once
	releaseErr  error
}

// Compile-time check for interface implementation.
var _ Source = (*portAudioSource)(nil)

// RawCandidate opens the configured device with low-latency parameters and
// no host processing beyond what PortAudio applies. This is the preferred
// variant.
func RawCandidate() Candidate {
	return Candidate{
		Name: "raw",
		Open: func(p Params) (Source, error) {
			dev, err := InputDevice(p.Device)
			if err != nil {
				return nil, err
			}
			return openPortAudio("raw", portaudio.LowLatencyParameters(dev, nil), p)
		},
	}
}

// MicrophoneCandidate opens the system default input device with the
// default (high latency) parameters.
func MicrophoneCandidate() Candidate {
	return Candidate{
		Name: "microphone",
		Open: func(p Params) (Source, error) {
			dev, err := portaudio.DefaultInputDevice()
			if err != nil {
				return nil, err
			}
			return openPortAudio("microphone", portaudio.HighLatencyParameters(dev, nil), p)
		},
	}
}

func openPortAudio(name string, sp portaudio.StreamParameters, p Params) (Source, error) {
	if sp.Input.Device == nil || sp.Input.Device.MaxInputChannels < p.Channels {
		return nil, fmt.Errorf("device cannot capture %d channel(s)", p.Channels)
	}
	sp.Output.Device = nil
	sp.Output.Channels = 0
	sp.Input.Channels = p.Channels
	sp.SampleRate = float64(p.SampleRate)
	sp.FramesPerBuffer = p.WindowSize
	// The device buffer is expressed to PortAudio as latency.
	if bufLatency := time.Duration(float64(p.BufferSize) / float64(p.SampleRate) * float64(time.Second)); bufLatency > sp.Input.Latency {
		sp.Input.Latency = bufLatency
	}

	s := &portAudioSource{
		name:   name,
		buffer: make([]int16, p.WindowSize*p.Channels),
	}
	stream, err := portaudio.OpenStream(sp, s.buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream on %q: %w", name, sp.Input.Device.Name, err)
	}
	s.stream = stream
	log.Debugf("Acquirer: opened %s stream on %q (latency %v, frames %d)",
		name, sp.Input.Device.Name, sp.Input.Latency, sp.FramesPerBuffer)
	return s, nil
}

func (s *portAudioSource) Name() string { return s.name }

func (s *portAudioSource) Initialized() bool { return s.stream != nil }

func (s *portAudioSource) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start %s stream: %w", s.name, err)
	}
	return nil
}

func (s *portAudioSource) Read(buf []int16) (int, error) {
	if s.interrupted.Load() {
		return 0, fmt.Errorf("%w: %w", ErrDeviceRead, errInterrupted)
	}
	if err := s.stream.Read(); err != nil {
		// An overflow still delivers a full buffer; samples were dropped
		// before it, not inside it.
		if !errors.Is(err, portaudio.InputOverflowed) {
			if s.interrupted.Load() {
				return 0, fmt.Errorf("%w: %w", ErrDeviceRead, errInterrupted)
			}
			return 0, fmt.Errorf("%w: %w", ErrDeviceRead, err)
		}
		log.Debugf("Acquirer: %s input overflowed", s.name)
	}
	return copy(buf, s.buffer), nil
}

func (s *portAudioSource) Stop() error {
	if s.interrupted.Load() {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop %s stream: %w", s.name, err)
	}
	return nil
}

// Interrupt aborts the stream, which makes a blocked Pa_ReadStream return.
func (s *portAudioSource) Interrupt() {
	if s.interrupted.Swap(true) {
		return
	}
	if err := s.stream.Abort(); err != nil {
		log.Debugf("Acquirer: aborting %s stream: %v", s.name, err)
	}
}

func (s *portAudioSource) Release() error {
	s.release.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.releaseErr = fmt.Errorf("failed to close %s stream: %w", s.name, err)
		}
	})
	return s.releaseErr
}
