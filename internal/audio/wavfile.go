// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavSource replays a 16-bit PCM WAV file. With pacing enabled each window
// is released at the rate a live device would deliver it, so timed passes
// such as calibration behave the same as with a microphone.
type wavSource struct {
	path   string
	file   *os.File
	dec    *wav.Decoder
	buf    *goaudio.IntBuffer
	rate   int
	paced  bool
	stop   chan struct{}
	once   sync.Once
	closer sync.Once
	relErr error
}

// Compile-time check for interface implementation.
var _ Source = (*wavSource)(nil)

// WAVCandidate replays path. The file must match the capture format
// exactly; it is never resampled.
func WAVCandidate(path string, paced bool) Candidate {
	return Candidate{
		Name: "wav",
		Open: func(p Params) (Source, error) {
			return openWAV(path, paced, p)
		},
	}
}

func openWAV(path string, paced bool, p Params) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if int(dec.SampleRate) != p.SampleRate || int(dec.NumChans) != p.Channels || dec.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("%s is %d Hz/%d ch/%d bit, want %d Hz/%d ch/16 bit",
			path, dec.SampleRate, dec.NumChans, dec.BitDepth, p.SampleRate, p.Channels)
	}

	return &wavSource{
		path: path,
		file: f,
		dec:  dec,
		buf: &goaudio.IntBuffer{
			Data:           make([]int, p.WindowSize*p.Channels),
			Format:         &goaudio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
			SourceBitDepth: 16,
		},
		rate:  p.SampleRate,
		paced: paced,
		stop:  make(chan struct{}),
	}, nil
}

func (s *wavSource) Name() string { return "wav" }

func (s *wavSource) Initialized() bool { return s.dec != nil }

func (s *wavSource) Start() error { return nil }

// Read returns a device error at end of file; a replay has no more input
// to give, exactly like an unplugged device.
func (s *wavSource) Read(out []int16) (int, error) {
	select {
	case <-s.stop:
		return 0, fmt.Errorf("%w: %w", ErrDeviceRead, errInterrupted)
	default:
	}

	want := min(len(out), len(s.buf.Data))
	s.buf.Data = s.buf.Data[:want]
	n, err := s.dec.PCMBuffer(s.buf)
	s.buf.Data = s.buf.Data[:cap(s.buf.Data)]
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeviceRead, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %w", ErrDeviceRead, io.EOF)
	}
	for i := range n {
		out[i] = int16(s.buf.Data[i])
	}

	if s.paced {
		t := time.NewTimer(time.Duration(n) * time.Second / time.Duration(s.rate))
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.stop:
			return 0, fmt.Errorf("%w: %w", ErrDeviceRead, errInterrupted)
		}
	}
	return n, nil
}

func (s *wavSource) Stop() error { return nil }

func (s *wavSource) Interrupt() {
	s.once.Do(func() { close(s.stop) })
}

func (s *wavSource) Release() error {
	s.closer.Do(func() {
		s.Interrupt()
		s.relErr = s.file.Close()
	})
	return s.relErr
}
