// SPDX-License-Identifier: MIT
package analysis

import (
	"gonum.org/v1/gonum/dsp/window"
)

// Analyzer reduces one window of captured samples to a power value. Both
// methods are called from the capture goroutine for every window, so
// implementations must not allocate once warmed up.
type Analyzer interface {
	// ApplyWindow tapers buf[:n] in place. n <= 1 leaves buf untouched.
	ApplyWindow(buf []int16, n int)
	// Power returns the mean of squares of buf[:n], or 0 when n == 0.
	Power(buf []int16, n int) float64
}

// HannAnalyzer applies a Hann taper before measuring power. Coefficients are
// computed once per window length and reused; concurrent use is safe once
// the length has settled, since the cache is then only read.
type HannAnalyzer struct {
	coeffs []float64
}

// Compile-time check for interface implementation.
var _ Analyzer = (*HannAnalyzer)(nil)

// NewHannAnalyzer returns an analyzer with coefficients precomputed for size.
func NewHannAnalyzer(size int) *HannAnalyzer {
	h := &HannAnalyzer{}
	if size > 1 {
		h.coefficients(size)
	}
	return h
}

// ApplyWindow multiplies sample i by 0.5(1 - cos(2πi/(n-1))) and truncates
// the product toward zero.
func (h *HannAnalyzer) ApplyWindow(buf []int16, n int) {
	n = min(n, len(buf))
	if n <= 1 {
		return
	}
	c := h.coefficients(n)
	for i := range n {
		buf[i] = int16(float64(buf[i]) * c[i])
	}
}

// Power implements Analyzer.
func (h *HannAnalyzer) Power(buf []int16, n int) float64 {
	return Power(buf, n)
}

func (h *HannAnalyzer) coefficients(n int) []float64 {
	if len(h.coeffs) == n {
		return h.coeffs
	}
	c := make([]float64, n)
	for i := range c {
		c[i] = 1
	}
	h.coeffs = window.Hann(c)
	return h.coeffs
}

// Power returns the mean of squares of buf[:n]. Samples are widened to
// float64 before squaring so full-scale input cannot overflow.
func Power(buf []int16, n int) float64 {
	n = min(n, len(buf))
	if n <= 0 {
		return 0
	}
	var sum float64
	for _, s := range buf[:n] {
		v := float64(s)
		sum += v * v
	}
	return sum / float64(n)
}
