package config

import (
	"errors"
	"testing"
	"time"
)

func TestWindowSize(t *testing.T) {
	tests := []struct {
		rate int
		d    time.Duration
		want int
	}{
		{44100, 100 * time.Millisecond, 4410},
		{48000, 100 * time.Millisecond, 4800},
		{8000, 20 * time.Millisecond, 160},
		{44100, 0, 0},
	}
	for _, tt := range tests {
		if got := WindowSize(tt.rate, tt.d); got != tt.want {
			t.Errorf("WindowSize(%d, %v) = %d, want %d", tt.rate, tt.d, got, tt.want)
		}
	}
	if got := DefaultCapture().WindowSize(); got != 4410 {
		t.Errorf("default window size = %d, want 4410", got)
	}
}

func TestBufferSize(t *testing.T) {
	tests := []struct {
		platformMin int
		want        int
	}{
		{3000, 8192},
		{5000, 10000},
		{4096, 8192},
		{0, 8192},
		{-1, 8192},
	}
	for _, tt := range tests {
		if got := BufferSize(tt.platformMin); got != tt.want {
			t.Errorf("BufferSize(%d) = %d, want %d", tt.platformMin, got, tt.want)
		}
	}
}

func TestCaptureValidate(t *testing.T) {
	c := DefaultCapture()
	if err := c.Validate(BufferSize(0)); err != nil {
		t.Errorf("default capture invalid: %v", err)
	}
	if err := c.Validate(0); !errors.Is(err, ErrInvalidCapture) {
		t.Errorf("zero buffer: got %v, want ErrInvalidCapture", err)
	}
	c.WindowDuration = 0
	if err := c.Validate(8192); !errors.Is(err, ErrInvalidCapture) {
		t.Errorf("zero window: got %v, want ErrInvalidCapture", err)
	}
}

func TestValidateSizes(t *testing.T) {
	tests := []struct {
		name                         string
		rate, channels, window, buff int
		wantErr                      bool
	}{
		{"defaults", SampleRate, Channels, 4410, BufferFloor, false},
		{"zero rate", 0, Channels, 4410, BufferFloor, true},
		{"zero channels", SampleRate, 0, 4410, BufferFloor, true},
		{"zero window", SampleRate, Channels, 0, BufferFloor, true},
		{"negative buffer", SampleRate, Channels, 4410, -1, true},
	}
	for _, tt := range tests {
		err := ValidateSizes(tt.rate, tt.channels, tt.window, tt.buff)
		if got := err != nil; got != tt.wantErr {
			t.Errorf("%s: ValidateSizes() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidCapture) {
			t.Errorf("%s: error %v does not wrap ErrInvalidCapture", tt.name, err)
		}
	}
}
