// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"vocalsnr/internal/log"
	"vocalsnr/pkg/bitint"
)

// miniaudioSource captures through miniaudio's callback API. The callback
// copies into a blocking ring buffer so Read keeps the same blocking
// contract as the PortAudio sources.
type miniaudioSource struct {
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	ring    *ringbuffer.RingBuffer
	scratch []byte

	dropped atomic.Uint64 // bytes the callback could not queue
	release sync.Once
	relErr  error
}

// Compile-time check for interface implementation.
var _ Source = (*miniaudioSource)(nil)

// MiniaudioCandidate opens the default capture device through miniaudio.
// It is the last resort when PortAudio cannot open any input.
func MiniaudioCandidate() Candidate {
	return Candidate{Name: "miniaudio", Open: openMiniaudio}
}

func openMiniaudio(p Params) (Source, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init miniaudio context: %w", err)
	}

	s := &miniaudioSource{
		ctx:     ctx,
		ring:    ringbuffer.New(bitint.RingBytes(p.BufferSize, p.Channels)).SetBlocking(true),
		scratch: make([]byte, p.WindowSize*2*p.Channels),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(p.Channels)
	cfg.SampleRate = uint32(p.SampleRate)
	cfg.PeriodSizeInFrames = uint32(p.WindowSize)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: s.onFrames})
	if err != nil {
		s.freeContext()
		return nil, fmt.Errorf("failed to init miniaudio device: %w", err)
	}
	s.device = device
	return s, nil
}

// onFrames runs on the miniaudio thread and must not block.
func (s *miniaudioSource) onFrames(_, in []byte, _ uint32) {
	n, err := s.ring.TryWrite(in)
	if n < len(in) {
		s.dropped.Add(uint64(len(in) - n))
	}
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) && !errors.Is(err, ringbuffer.ErrAcquireLock) {
		log.Debugf("Acquirer: miniaudio callback: %v", err)
	}
}

func (s *miniaudioSource) Name() string { return "miniaudio" }

func (s *miniaudioSource) Initialized() bool { return s.device != nil }

func (s *miniaudioSource) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start miniaudio device: %w", err)
	}
	return nil
}

func (s *miniaudioSource) Read(buf []int16) (int, error) {
	want := min(len(buf)*2, len(s.scratch))
	n, err := io.ReadFull(s.ring, s.scratch[:want])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeviceRead, err)
	}
	samples := n / 2
	for i := range samples {
		buf[i] = int16(binary.LittleEndian.Uint16(s.scratch[2*i:]))
	}
	return samples, nil
}

func (s *miniaudioSource) Stop() error {
	if d := s.dropped.Load(); d > 0 {
		log.Warnf("Acquirer: miniaudio dropped %d bytes of capture", d)
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop miniaudio device: %w", err)
	}
	return nil
}

// Interrupt closes the ring so a blocked Read returns immediately.
func (s *miniaudioSource) Interrupt() {
	s.ring.CloseWithError(errInterrupted)
}

func (s *miniaudioSource) Release() error {
	s.release.Do(func() {
		s.ring.CloseWithError(errInterrupted)
		if s.device != nil {
			s.device.Uninit()
		}
		s.relErr = s.freeContext()
	})
	return s.relErr
}

func (s *miniaudioSource) freeContext() error {
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil
	if err != nil {
		return fmt.Errorf("failed to uninit miniaudio context: %w", err)
	}
	return nil
}
