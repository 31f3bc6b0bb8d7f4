// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"math/rand/v2"
	"testing"

	"vocalsnr/pkg/utils"
)

func TestApplyWindow_Taper(t *testing.T) {
	sizes := []int{3, 101, 4410, 4411}
	for _, n := range sizes {
		buf := utils.GenerateConstant(n, 10000)
		NewHannAnalyzer(n).ApplyWindow(buf, n)

		if buf[0] != 0 {
			t.Errorf("n=%d: first sample = %d, want 0", n, buf[0])
		}
		if buf[n-1] != 0 {
			t.Errorf("n=%d: last sample = %d, want 0", n, buf[n-1])
		}
		mid := buf[(n-1)/2]
		if n%2 == 1 && mid < 9999 {
			t.Errorf("n=%d: midpoint sample = %d, want ≈10000", n, mid)
		}
		if n%2 == 0 && mid < 9990 {
			t.Errorf("n=%d: near-midpoint sample = %d, want ≈10000", n, mid)
		}
	}
}

func TestApplyWindow_PartialWindow(t *testing.T) {
	buf := utils.GenerateConstant(10, 500)
	h := NewHannAnalyzer(10)
	h.ApplyWindow(buf, 5)

	if buf[0] != 0 || buf[4] != 0 {
		t.Errorf("partial window edges = %d, %d; want 0, 0", buf[0], buf[4])
	}
	if buf[2] != 500 {
		t.Errorf("partial window midpoint = %d, want 500", buf[2])
	}
	for i := 5; i < 10; i++ {
		if buf[i] != 500 {
			t.Errorf("sample %d beyond valid count was modified: %d", i, buf[i])
		}
	}
}

func TestApplyWindow_Degenerate(t *testing.T) {
	h := NewHannAnalyzer(0)
	for _, n := range []int{-1, 0, 1} {
		buf := []int16{1234, 1234}
		h.ApplyWindow(buf, n)
		if buf[0] != 1234 || buf[1] != 1234 {
			t.Errorf("n=%d modified buffer: %v", n, buf)
		}
	}
	// A count past the end of the buffer is clamped rather than panicking.
	buf := []int16{100, 100, 100}
	h.ApplyWindow(buf, 10)
	if buf[0] != 0 || buf[1] != 100 || buf[2] != 0 {
		t.Errorf("clamped window = %v, want [0 100 0]", buf)
	}
}

func TestApplyWindow_Truncates(t *testing.T) {
	// Coefficient for i=1, n=5 is 0.5; -3*0.5 must truncate toward zero.
	buf := []int16{-3, -3, -3, -3, -3}
	NewHannAnalyzer(5).ApplyWindow(buf, 5)
	if buf[1] != -1 {
		t.Errorf("buf[1] = %d, want -1", buf[1])
	}
}

func TestPower(t *testing.T) {
	tests := []struct {
		name string
		buf  []int16
		n    int
		want float64
	}{
		{"Empty", nil, 0, 0},
		{"ZeroCount", []int16{5, 5}, 0, 0},
		{"Constant", utils.GenerateConstant(4410, 300), 4410, 90000},
		{"ConstantNegative", utils.GenerateConstant(100, -7), 100, 49},
		{"FullScale", utils.GenerateConstant(8, math.MinInt16), 8, 32768 * 32768},
		{"Mixed", []int16{1, -2, 3, -4}, 4, 7.5},
		{"Prefix", []int16{2, 2, 100}, 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Power(tt.buf, tt.n); got != tt.want {
				t.Errorf("Power() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPower_NonNegative(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	buf := make([]int16, 512)
	for range 200 {
		for i := range buf {
			buf[i] = int16(r.IntN(65536) - 32768)
		}
		if p := Power(buf, r.IntN(len(buf)+1)); p < 0 || math.IsNaN(p) {
			t.Fatalf("Power() = %v, want >= 0", p)
		}
	}
}

func TestComputeSNR(t *testing.T) {
	tests := []struct {
		name          string
		signal, noise float64
		want          float64
	}{
		{"BothZero", 0, 0, 0},
		{"NoNoise", 100, 0, 100},
		{"NegativeNoise", 100, -1, 100},
		{"NoSignal", 0, 1000, 0},
		{"TenX", 10000, 1000, 10},
		{"Equal", 500, 500, 0},
		{"BelowNoise", 10, 1000, 0},
		{"Huge", 1e30, 1e-3, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSNR(tt.signal, tt.noise)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ComputeSNR(%v, %v) = %v, want %v", tt.signal, tt.noise, got, tt.want)
			}
		})
	}
}

func TestComputeSNR_Bounded(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for range 1000 {
		s := r.Float64() * math.Pow(10, float64(r.IntN(20)))
		n := r.Float64() * math.Pow(10, float64(r.IntN(20)))
		if got := ComputeSNR(s, n); got < MinSNR || got > MaxSNR || math.IsNaN(got) {
			t.Fatalf("ComputeSNR(%v, %v) = %v out of range", s, n, got)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		power float64
		want  Quality
	}{
		{0, Quality{"Excellent", 1}},
		{50, Quality{"Excellent", 1}},
		{199, Quality{"Excellent", 1}},
		{200, Quality{"Good", 2}},
		{499, Quality{"Good", 2}},
		{500, Quality{"Fair", 3}},
		{999, Quality{"Fair", 3}},
		{1000, Quality{"Poor", 4}},
		{1999, Quality{"Poor", 4}},
		{2000, Quality{"Very Poor", 5}},
		{2001, Quality{"Very Poor", 5}},
	}
	for _, tt := range tests {
		if got := Classify(tt.power); got != tt.want {
			t.Errorf("Classify(%v) = %+v, want %+v", tt.power, got, tt.want)
		}
	}
}

func TestRating(t *testing.T) {
	tests := []struct {
		snr  float64
		want string
	}{
		{-25, "No Signal"},
		{-20, "No Signal"},
		{-1, "Very Poor"},
		{0, "Poor"},
		{4.9, "Poor"},
		{5, "Fair"},
		{10, "Good"},
		{15, "Very Good"},
		{20, "Excellent"},
		{100, "Excellent"},
	}
	for _, tt := range tests {
		if got := Rating(tt.snr); got != tt.want {
			t.Errorf("Rating(%v) = %q, want %q", tt.snr, got, tt.want)
		}
	}
}

func TestRating_ClampedReadings(t *testing.T) {
	// A signal weaker than the noise floor is clamped, not rated negative.
	if got := Rating(ComputeSNR(10, 1000)); got != "Poor" {
		t.Errorf("Rating(ComputeSNR(10, 1000)) = %q, want Poor", got)
	}
	if got := Rating(ComputeSNR(0, 1000)); got != "Poor" {
		t.Errorf("Rating(ComputeSNR(0, 1000)) = %q, want Poor", got)
	}
}

func TestHannAnalyzer_NoAllocs(t *testing.T) {
	const n = 4410
	h := NewHannAnalyzer(n)
	buf := utils.GenerateSineWave(n, 44100, 440, 8000)
	allocs := testing.AllocsPerRun(100, func() {
		h.ApplyWindow(buf, n)
		_ = h.Power(buf, n)
	})
	if allocs != 0 {
		t.Errorf("allocations per window = %.1f, want 0", allocs)
	}
}

func BenchmarkWindowAndPower(b *testing.B) {
	const n = 4410
	h := NewHannAnalyzer(n)
	src := utils.GenerateComplexWave(n, 44100)
	buf := make([]int16, n)
	for b.Loop() {
		copy(buf, src)
		h.ApplyWindow(buf, n)
		_ = ComputeSNR(h.Power(buf, n), 1000)
	}
}
