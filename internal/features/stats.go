package features

import "sort"

// Median returns the median of values. Empty input returns 0, false.
func Median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// OLSSlope fits y = a + b*x by least squares over index positions 0..n-1 and
// returns b. Needs at least three points for a meaningful trend.
func OLSSlope(values []float64) (float64, bool) {
	n := len(values)
	if n < 3 {
		return 0, false
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (fn*sumXY - sumX*sumY) / denom, true
}

// DeltaPct returns (current - baseline) / baseline * 100. A zero baseline has
// no defined delta.
func DeltaPct(current, baseline float64) (float64, bool) {
	if baseline == 0 {
		return 0, false
	}
	return (current - baseline) / baseline * 100, true
}
