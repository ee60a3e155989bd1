package hypothesis

import (
	"fmt"
	"math"

	"labstats/domain/core"
	"labstats/domain/stats"
	"labstats/internal/analysis/special"
)

// ProportionResult is the outcome of a two-sample z-test for proportions
type ProportionResult struct {
	stats.TestResult `yaml:",inline"`

	P1         float64 `json:"p1" yaml:"p1"`
	P2         float64 `json:"p2" yaml:"p2"`
	Difference float64 `json:"difference" yaml:"difference"`
	PooledP    float64 `json:"pooled_p" yaml:"pooled_p"`
	PooledSE   float64 `json:"pooled_se" yaml:"pooled_se"`
	UnpooledSE float64 `json:"unpooled_se" yaml:"unpooled_se"`
	CILower    float64 `json:"ci_lower" yaml:"ci_lower"`
	CIUpper    float64 `json:"ci_upper" yaml:"ci_upper"`
}

// TwoProportionZTest compares x1/n1 with x2/n2.
//
// The statistic uses the pooled proportion under H0:
//
//	z = (p1 - p2) / sqrt(p(1-p)(1/n1 + 1/n2))
//
// while the 95% interval for p1 - p2 uses the unpooled standard error
// sqrt(p1(1-p1)/n1 + p2(1-p2)/n2). The two standard errors differ on purpose.
func TwoProportionZTest(x1, n1, x2, n2 int) (*ProportionResult, error) {
	if n1 <= 0 || n2 <= 0 {
		return nil, core.NewInvalidInputError("trials", fmt.Sprintf("sample sizes must be positive, got %d and %d", n1, n2))
	}
	if x1 < 0 || x1 > n1 || x2 < 0 || x2 > n2 {
		return nil, core.NewInvalidInputError("successes", fmt.Sprintf("successes must lie in [0, n], got %d/%d and %d/%d", x1, n1, x2, n2))
	}

	fn1, fn2 := float64(n1), float64(n2)
	p1 := float64(x1) / fn1
	p2 := float64(x2) / fn2
	pooled := float64(x1+x2) / (fn1 + fn2)
	pooledSE := math.Sqrt(pooled * (1 - pooled) * (1/fn1 + 1/fn2))
	unpooledSE := math.Sqrt(p1*(1-p1)/fn1 + p2*(1-p2)/fn2)
	diff := p1 - p2

	z := 0.0
	pValue := 1.0
	degenerate := pooledSE == 0
	if !degenerate {
		z = diff / pooledSE
		pValue = stats.ClampProbability(2 * (1 - special.StandardNormalCDF(math.Abs(z))))
	}

	result := &ProportionResult{
		TestResult: stats.NewTestResult(stats.TestProportionZ, z, pValue, 0),
		P1:         p1,
		P2:         p2,
		Difference: diff,
		PooledP:    pooled,
		PooledSE:   pooledSE,
		UnpooledSE: unpooledSE,
		CILower:    diff - z95*unpooledSE,
		CIUpper:    diff + z95*unpooledSE,
	}
	if degenerate {
		result.Warn(stats.WarningDegenerate, "pooled proportion is %.0f, standard error is zero; z set to 0 and p to 1", pooled)
	}
	return result, nil
}

// TwoProportionZTestGroups runs TwoProportionZTest on two named groups
func TwoProportionZTestGroups(g1, g2 stats.ProportionGroup) (*ProportionResult, error) {
	result, err := TwoProportionZTest(g1.Successes, g1.Trials, g2.Successes, g2.Trials)
	if err != nil {
		return nil, fmt.Errorf("%s vs %s: %w", g1.Name, g2.Name, err)
	}
	return result, nil
}

// Comparison converts the z-test into a pairwise comparison record whose
// effect size is the difference in proportions
func (r *ProportionResult) Comparison(group1, group2 string) stats.PairwiseComparison {
	return stats.PairwiseComparison{
		Group1:      group1,
		Group2:      group2,
		Test:        r.Test,
		Statistic:   r.Statistic,
		RawP:        r.PValue,
		CorrectedP:  r.PValue,
		EffectSize:  r.Difference,
		CILower:     r.CILower,
		CIUpper:     r.CIUpper,
		Significant: r.Significant,
		Warnings:    append([]string(nil), r.Warnings...),
	}
}
