package matching

import "math"

// matchTolerance is the absolute tolerance for price/quantity comparisons
// between invoice lines and receipt lines. OCR and rounding differences
// below a dollar/unit are not variances.
const matchTolerance = 1.00

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= matchTolerance
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
