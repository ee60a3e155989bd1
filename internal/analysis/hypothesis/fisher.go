package hypothesis

import (
	"fmt"
	"math"

	"labstats/domain/core"
	"labstats/domain/stats"
	"labstats/internal/analysis/special"
)

// FisherResult is the outcome of Fisher's exact test on a 2x2 table.
// Statistic holds the probability of the observed table.
type FisherResult struct {
	stats.TestResult `yaml:",inline"`

	OddsRatio float64 `json:"odds_ratio" yaml:"odds_ratio"`
	CILower   float64 `json:"ci_lower" yaml:"ci_lower"` // Woolf 95% interval, NaN when a cell is zero
	CIUpper   float64 `json:"ci_upper" yaml:"ci_upper"`
}

// FisherExact runs the two-tailed Fisher exact test on the table
//
//	a b
//	c d
//
// The table is treated as a hypergeometric draw with fixed margins. The p-value is
// the total probability of every table no more likely than the observed one
// (ordering by probability, not doubling a tail), clamped to 1.
//
// The odds ratio (a·d)/(b·c) is +Inf when b·c = 0; a warning always accompanies it.
func FisherExact(a, b, c, d int) (*FisherResult, error) {
	if a < 0 || b < 0 || c < 0 || d < 0 {
		return nil, core.NewInvalidInputError("cells", fmt.Sprintf("negative count in [%d %d; %d %d]", a, b, c, d))
	}
	n := a + b + c + d
	if n == 0 {
		return nil, core.NewInsufficientDataError("2x2 table total", 0, 1)
	}

	row1 := a + b
	col1 := a + c
	observedP := special.Hypergeometric(a, n, col1, row1)

	lo, hi := special.HypergeometricSupport(n, col1, row1)
	pValue := 0.0
	for x := lo; x <= hi; x++ {
		p := special.Hypergeometric(x, n, col1, row1)
		if p <= observedP+fisherTolerance {
			pValue += p
		}
	}
	pValue = math.Min(pValue, 1)

	result := &FisherResult{
		TestResult: stats.NewTestResult(stats.TestFisherExact, observedP, pValue, 1),
		CILower:    math.NaN(),
		CIUpper:    math.NaN(),
	}

	num := float64(a) * float64(d)
	den := float64(b) * float64(c)
	switch {
	case den == 0 && num == 0:
		result.OddsRatio = math.Inf(1)
		result.Warn(stats.WarningZeroCell, "odds ratio is undefined (a*d = 0 and b*c = 0), reported as +Inf")
	case den == 0:
		result.OddsRatio = math.Inf(1)
		result.Warn(stats.WarningZeroCell, "odds ratio is infinite because b*c = 0")
	default:
		result.OddsRatio = num / den
	}

	if a > 0 && b > 0 && c > 0 && d > 0 {
		logOR := math.Log(result.OddsRatio)
		se := math.Sqrt(1/float64(a) + 1/float64(b) + 1/float64(c) + 1/float64(d))
		result.CILower = math.Exp(logOR - z95*se)
		result.CIUpper = math.Exp(logOR + z95*se)
	}
	return result, nil
}

// FisherExactTable runs FisherExact on a 2x2 contingency table
func FisherExactTable(table stats.ContingencyTable) (*FisherResult, error) {
	if table.Rows() != 2 || table.Columns() != 2 || len(table.Counts[1]) != 2 {
		return nil, fmt.Errorf("%w: Fisher's exact test needs a 2x2 table, got %dx%d",
			core.ErrDimensionMismatch, table.Rows(), table.Columns())
	}
	return FisherExact(table.Counts[0][0], table.Counts[0][1], table.Counts[1][0], table.Counts[1][1])
}

// PairwiseFisher runs FisherExact on every pair of rows of a two-column table.
// Comparisons come back in row order (0-1, 0-2, ..., 1-2, ...) with CorrectedP
// equal to RawP; apply a correction afterwards.
func PairwiseFisher(table stats.ContingencyTable) ([]stats.PairwiseComparison, error) {
	if table.Columns() != 2 {
		return nil, fmt.Errorf("%w: pairwise Fisher needs two outcome columns, got %d", core.ErrDimensionMismatch, table.Columns())
	}
	if _, err := validateTable(table); err != nil {
		return nil, err
	}

	rows := table.Rows()
	comparisons := make([]stats.PairwiseComparison, 0, rows*(rows-1)/2)
	for i := 0; i < rows; i++ {
		for j := i + 1; j < rows; j++ {
			r, err := FisherExact(table.Counts[i][0], table.Counts[i][1], table.Counts[j][0], table.Counts[j][1])
			if err != nil {
				return nil, fmt.Errorf("rows %d and %d: %w", i, j, err)
			}
			comparisons = append(comparisons, r.Comparison(rowLabel(table, i), rowLabel(table, j)))
		}
	}
	return comparisons, nil
}

// Comparison converts the result into a pairwise record whose effect size is the odds ratio
func (r *FisherResult) Comparison(group1, group2 string) stats.PairwiseComparison {
	return stats.PairwiseComparison{
		Group1:      group1,
		Group2:      group2,
		Test:        stats.TestPairwiseFisher,
		Statistic:   r.Statistic,
		RawP:        r.PValue,
		CorrectedP:  r.PValue,
		EffectSize:  r.OddsRatio,
		CILower:     r.CILower,
		CIUpper:     r.CIUpper,
		Significant: r.Significant,
		Warnings:    append([]string(nil), r.Warnings...),
	}
}

func rowLabel(table stats.ContingencyTable, i int) string {
	if i < len(table.RowLabels) {
		return table.RowLabels[i]
	}
	return fmt.Sprintf("row%d", i+1)
}
