// SPDX-License-Identifier: MIT
package analysis

import "math"

// SNR bounds in dB.
const (
	MinSNR = 0.0
	MaxSNR = 100.0
)

// ComputeSNR returns 10·log10(signal/noise) clamped to [MinSNR, MaxSNR].
// A non-positive noise floor means any signal is infinitely clean, and a
// non-positive signal means there is nothing to measure.
func ComputeSNR(signalPower, noisePower float64) float64 {
	if noisePower <= 0 {
		if signalPower > 0 {
			return MaxSNR
		}
		return MinSNR
	}
	if signalPower <= 0 {
		return MinSNR
	}
	snr := 10 * math.Log10(signalPower/noisePower)
	if math.IsNaN(snr) {
		return MinSNR
	}
	return math.Max(MinSNR, math.Min(MaxSNR, snr))
}

// Rating labels an SNR value in dB for display. The negative tiers match the
// meter scale of the mobile app; readings from ComputeSNR never go below
// MinSNR, so a quieter-than-baseline signal rates "Poor".
func Rating(snr float64) string {
	switch {
	case snr <= -20:
		return "No Signal"
	case snr < 0:
		return "Very Poor"
	case snr < 5:
		return "Poor"
	case snr < 10:
		return "Fair"
	case snr < 15:
		return "Good"
	case snr < 20:
		return "Very Good"
	default:
		return "Excellent"
	}
}
