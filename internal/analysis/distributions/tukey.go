package distributions

import (
	"math"

	"labstats/internal/analysis/special"
)

const tukeyBisectSteps = 100

// TukeyQCDF approximates the CDF of the studentized range statistic q for k
// groups and df error degrees of freedom with the normal surrogate
//
//	Φ((q·√df − √k) / √2)^k
//
// This is NOT the exact studentized-range distribution (which needs a double
// integral); p-values derived from it are approximate. Invalid k < 2, df <= 0 or
// non-finite input returns the neutral 0.5.
func TukeyQCDF(q float64, k int, df float64) float64 {
	if math.IsNaN(q) || k < 2 || !isFinite(df) || df <= 0 {
		return 0.5
	}
	if q <= 0 {
		return 0
	}
	if math.IsInf(q, 1) {
		return 1
	}
	z := (q*math.Sqrt(df) - math.Sqrt(float64(k))) / math.Sqrt2
	return math.Pow(special.StandardNormalCDF(z), float64(k))
}

// TukeyQQuantile inverts TukeyQCDF by bisection, returning the q at which the
// surrogate CDF reaches p. NaN for p outside (0, 1) or invalid k, df.
func TukeyQQuantile(p float64, k int, df float64) float64 {
	if !(p > 0 && p < 1) || k < 2 || !isFinite(df) || df <= 0 {
		return math.NaN()
	}

	lo, hi := 0.0, 1.0
	for TukeyQCDF(hi, k, df) < p {
		hi *= 2
		if hi > 1e6 {
			return math.Inf(1)
		}
	}
	for i := 0; i < tukeyBisectSteps; i++ {
		mid := lo + (hi-lo)/2
		if TukeyQCDF(mid, k, df) < p {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-12 {
			break
		}
	}
	return lo + (hi-lo)/2
}
