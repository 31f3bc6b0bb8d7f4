// SPDX-License-Identifier: MIT
package analysis

// Quality is the tier assigned to a measured noise floor. Level runs from
// 1 (quietest) to 5.
type Quality struct {
	Label string
	Level int
}

var qualityTiers = []struct {
	below float64
	q     Quality
}{
	{200, Quality{"Excellent", 1}},
	{500, Quality{"Good", 2}},
	{1000, Quality{"Fair", 3}},
	{2000, Quality{"Poor", 4}},
}

var qualityWorst = Quality{"Very Poor", 5}

// Classify maps a baseline noise power onto its quality tier. Each tier
// includes its lower bound.
func Classify(noisePower float64) Quality {
	for _, t := range qualityTiers {
		if noisePower < t.below {
			return t.q
		}
	}
	return qualityWorst
}
