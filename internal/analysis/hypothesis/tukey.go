package hypothesis

import (
	"math"

	"labstats/domain/stats"
	"labstats/internal/analysis/distributions"
)

// tukeyConfidence is the family confidence of the HSD intervals
const tukeyConfidence = 0.95

// TukeyResult holds the one-way ANOVA the comparisons are based on and one
// comparison per unordered pair of groups, in input order (0-1, 0-2, ..., 1-2, ...).
type TukeyResult struct {
	ANOVA       *ANOVAResult               `json:"anova" yaml:"anova"`
	QCritical   float64                    `json:"q_critical" yaml:"q_critical"`
	Comparisons []stats.PairwiseComparison `json:"comparisons" yaml:"comparisons"`
	Warnings    []string                   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TukeyHSD runs a one-way ANOVA and then compares every pair of groups with
// the studentized range statistic
//
//	SE = sqrt(MS_within·(1/n1 + 1/n2)),  q = |mean1 − mean2| / SE
//
// with p = 1 − TukeyQCDF(q, k, df_within) where k counts all groups, not just
// the pair. EffectSize is mean1 − mean2 and the interval is Δ ± q₀.₉₅·SE.
// The studentized range CDF is a normal surrogate, so p-values are approximate.
func TukeyHSD(groups []stats.GroupSample) (*TukeyResult, error) {
	anova, err := OneWayANOVA(groups)
	if err != nil {
		return nil, err
	}

	k := len(groups)
	df := float64(anova.DF2)
	qCrit := distributions.TukeyQQuantile(tukeyConfidence, k, df)

	result := &TukeyResult{
		ANOVA:       anova,
		QCritical:   qCrit,
		Comparisons: make([]stats.PairwiseComparison, 0, k*(k-1)/2),
		Warnings: []string{stats.WarningApproximation.Format(
			"studentized range p-values use the normal surrogate Φ((q√df − √k)/√2)^k")},
	}

	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			result.Comparisons = append(result.Comparisons, tukeyPair(anova.Groups[i], anova.Groups[j], anova.MSWithin, qCrit, k, df))
		}
	}
	return result, nil
}

func tukeyPair(g1, g2 GroupSummary, msWithin, qCrit float64, k int, df float64) stats.PairwiseComparison {
	diff := g1.Mean - g2.Mean
	se := math.Sqrt(msWithin * (1/float64(g1.N) + 1/float64(g2.N)))

	cmp := stats.PairwiseComparison{
		Group1:     g1.Name,
		Group2:     g2.Name,
		Test:       stats.TestTukeyHSD,
		EffectSize: diff,
	}

	var q float64
	switch {
	case se > 0:
		q = math.Abs(diff) / se
	case diff == 0:
		cmp.Warnings = append(cmp.Warnings, stats.WarningZeroVariance.Format("standard error is zero and means are equal, q reported as 0"))
	default:
		q = math.Inf(1)
		cmp.Warnings = append(cmp.Warnings, stats.WarningZeroVariance.Format("standard error is zero with distinct means, q reported as +Inf"))
	}

	p := stats.ClampProbability(1 - distributions.TukeyQCDF(q, k, df))
	if math.IsNaN(p) {
		p = neutralPValue
		cmp.Warnings = append(cmp.Warnings, stats.WarningPValueFallback.Format("studentized range tail was not finite, reported neutral %.1f", neutralPValue))
	}

	cmp.Statistic = q
	cmp.RawP = p
	cmp.CorrectedP = p
	cmp.Significant = p < stats.SignificanceLevel
	cmp.CILower = diff - qCrit*se
	cmp.CIUpper = diff + qCrit*se
	return cmp
}
