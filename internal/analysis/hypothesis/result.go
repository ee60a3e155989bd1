// Package hypothesis implements the hypothesis tests of the engine: chi-square
// independence, Fisher's exact test, the two-proportion z-test, one-way and
// multi-way ANOVA, Tukey HSD and the log-rank test.
//
// Every test is a pure function from input data to a result value. Invalid input
// is returned as an error wrapping core.ErrInvalidInput; numerically degenerate
// situations never fail, they substitute a documented fallback and attach a
// warning to the result.
package hypothesis

import (
	"math"

	"labstats/domain/stats"
	"labstats/internal/analysis/distributions"
)

const (
	// DefaultLowExpectedCount is the expected-cell threshold below or at which the
	// chi-square approximation is flagged.
	DefaultLowExpectedCount = 5.0

	// fisherTolerance widens the "as or less likely" comparison of Fisher's test
	// so tables with the same probability up to rounding are all counted.
	fisherTolerance = 1e-10

	// z critical value of the 95% confidence intervals
	z95 = 1.96

	// ANOVA p-value fallback used when the F tail is not a finite probability
	anovaFallbackF        = 10.0
	anovaFallbackSignalP  = 0.001
	anovaFallbackNeutralP = 0.5
	neutralPValue         = 0.5
)

// Option customizes a test
type Option func(*options)

type options struct {
	lowExpectedCount float64
}

func defaultOptions() options {
	return options{lowExpectedCount: DefaultLowExpectedCount}
}

// WithLowExpectedCount overrides the expected-count threshold of the chi-square warning
func WithLowExpectedCount(threshold float64) Option {
	return func(o *options) {
		if threshold >= 0 && !math.IsNaN(threshold) {
			o.lowExpectedCount = threshold
		}
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// fTestPValue returns the upper F tail for an ANOVA effect. A non-finite or
// out-of-range tail is replaced by 0.001 when F > 10 and 0.5 otherwise; the
// second return value reports that the fallback was used.
func fTestPValue(f float64, df1, df2 int) (float64, bool) {
	p := distributions.FSF(f, float64(df1), float64(df2))
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
		if f > anovaFallbackF {
			return anovaFallbackSignalP, true
		}
		return anovaFallbackNeutralP, true
	}
	return p, false
}

// chiSquarePValue returns the upper χ² tail, or the neutral 0.5 with ok=false
// when it is not a finite probability.
func chiSquarePValue(statistic float64, df int) (float64, bool) {
	p := distributions.ChiSquareSF(statistic, float64(df))
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return neutralPValue, false
	}
	return stats.ClampProbability(p), true
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
