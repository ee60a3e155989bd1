// Package distributions provides the cumulative distribution functions used to turn
// test statistics into p-values. All of them are built on internal/analysis/special.
package distributions

import (
	"math"

	"labstats/internal/analysis/special"
)

// ChiSquareCDF returns P(X <= x) for X ~ χ²(df).
//
// df = 1 reduces to 2Φ(√x) - 1; other df use the regularized lower incomplete
// gamma P(df/2, x/2). Returns 0 for x <= 0 and NaN for df <= 0.
func ChiSquareCDF(x, df float64) float64 {
	if math.IsNaN(x) || math.IsNaN(df) || df <= 0 {
		return math.NaN()
	}
	if x <= 0 {
		return 0
	}
	if df == 1 {
		return 2*special.StandardNormalCDF(math.Sqrt(x)) - 1
	}
	return special.IncompleteGammaLower(df/2, x/2)
}

// ChiSquareSF returns the upper tail 1 - ChiSquareCDF(x, df)
func ChiSquareSF(x, df float64) float64 {
	return 1 - ChiSquareCDF(x, df)
}

// FCDF returns P(X <= x) for X ~ F(df1, df2) via I_y(df1/2, df2/2) with
// y = df1·x / (df1·x + df2).
//
// Any non-finite input yields 0.5. That is a fallback-safety value, not a
// statistical claim; callers that care must check their inputs first.
func FCDF(x, df1, df2 float64) float64 {
	if !isFinite(x) || !isFinite(df1) || !isFinite(df2) {
		return 0.5
	}
	if x <= 0 {
		return 0
	}
	y := df1 * x / (df1*x + df2)
	return special.RegularizedIncompleteBeta(y, df1/2, df2/2)
}

// FSF returns the upper tail 1 - FCDF(x, df1, df2)
func FSF(x, df1, df2 float64) float64 {
	return 1 - FCDF(x, df1, df2)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
