package utils

import (
	"math"
	"sync"
)

// MockTransport implements the transport interface for testing.
type MockTransport struct {
	mu   sync.Mutex
	Sent []any
}

// Send stores the message for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	return nil
}

// Close implements the transport interface.
func (m *MockTransport) Close() error { return nil }

// Messages returns a snapshot of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.Sent...)
}

// GenerateComplexWave returns a 440 Hz tone with two harmonics at 90% of
// full scale.
func GenerateComplexWave(size int, sampleRate float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int16(signal * math.MaxInt16 * 0.9)
	}
	return buffer
}

// GenerateSineWave returns a pure tone of the given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency float64, amplitude int16) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int16(math.Sin(2*math.Pi*frequency*t) * float64(amplitude))
	}
	return buffer
}

// GenerateConstant returns a buffer holding value in every sample.
func GenerateConstant(size int, value int16) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		buffer[i] = value
	}
	return buffer
}

// PeakAmplitude returns the largest absolute sample value.
func PeakAmplitude(samples []int16) int {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	return peak
}
