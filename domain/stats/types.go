package stats

import (
	"fmt"
	"math"
	"strings"
)

// SignificanceLevel is the conventional threshold behind TestResult.Significant
const SignificanceLevel = 0.05

// ============================================================================
// INPUT RECORDS (created per invocation, never persisted by the engine)
// ============================================================================

// ContingencyTable is a rectangular matrix of non-negative counts.
// Rows are groups, columns are outcome categories.
type ContingencyTable struct {
	RowLabels    []string `json:"row_labels,omitempty" yaml:"row_labels,omitempty"`
	ColumnLabels []string `json:"column_labels,omitempty" yaml:"column_labels,omitempty"`
	Counts       [][]int  `json:"counts" yaml:"counts"`
}

// NewContingencyTable wraps a count matrix without labels
func NewContingencyTable(counts [][]int) ContingencyTable {
	return ContingencyTable{Counts: counts}
}

// Rows returns the number of rows
func (t ContingencyTable) Rows() int {
	return len(t.Counts)
}

// Columns returns the column count of the first row (0 for an empty table)
func (t ContingencyTable) Columns() int {
	if len(t.Counts) == 0 {
		return 0
	}
	return len(t.Counts[0])
}

// GroupSample pairs a group name with its ordered measurements
type GroupSample struct {
	Name   string    `json:"name" yaml:"name"`
	Values []float64 `json:"values" yaml:"values"`
}

// SurvivalRecord is one individual's follow-up. Event=false means censored.
type SurvivalRecord struct {
	Time  float64 `json:"time" yaml:"time"`
	Event bool    `json:"event" yaml:"event"`
}

// SurvivalGroup collects the survival records of one named group
type SurvivalGroup struct {
	Name    string           `json:"name" yaml:"name"`
	Records []SurvivalRecord `json:"records" yaml:"records"`
}

// ProportionGroup is a success count out of a number of trials
type ProportionGroup struct {
	Name      string `json:"name" yaml:"name"`
	Successes int    `json:"successes" yaml:"successes"`
	Trials    int    `json:"trials" yaml:"trials"`
}

// FactorialObservation is one measurement with its level for each factor
type FactorialObservation struct {
	Levels []string `json:"levels" yaml:"levels"`
	Value  float64  `json:"value" yaml:"value"`
}

// FactorialDesign is the input of a multi-way ANOVA (1 to 3 factors)
type FactorialDesign struct {
	Factors      []string               `json:"factors" yaml:"factors"`
	Observations []FactorialObservation `json:"observations" yaml:"observations"`
}

// ============================================================================
// RESULTS
// ============================================================================

// TestResult is the common part of every hypothesis test outcome.
// INVARIANTS:
// - PValue always in [0, 1]
// - Significant == PValue < SignificanceLevel
type TestResult struct {
	Test        TestName `json:"test" yaml:"test"`
	Statistic   float64  `json:"statistic" yaml:"statistic"`
	PValue      float64  `json:"p_value" yaml:"p_value"`
	DF          int      `json:"df" yaml:"df"`
	DF2         int      `json:"df2,omitempty" yaml:"df2,omitempty"` // denominator df for F tests
	Significant bool     `json:"significant" yaml:"significant"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// NewTestResult builds a result with the significance flag derived from p
func NewTestResult(test TestName, statistic, pValue float64, df int) TestResult {
	return TestResult{
		Test:        test,
		Statistic:   statistic,
		PValue:      pValue,
		DF:          df,
		Significant: pValue < SignificanceLevel,
	}
}

// Warn appends a formatted warning
func (r *TestResult) Warn(code WarningCode, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, code.Format(format, args...))
}

// HasWarning reports whether a warning with the given code was attached
func (r TestResult) HasWarning(code WarningCode) bool {
	prefix := string(code) + ":"
	for _, w := range r.Warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

// PairwiseComparison is the outcome of comparing two groups, possibly as part of a family
type PairwiseComparison struct {
	Group1      string   `json:"group1" yaml:"group1"`
	Group2      string   `json:"group2" yaml:"group2"`
	Test        TestName `json:"test" yaml:"test"`
	Statistic   float64  `json:"statistic" yaml:"statistic"`
	RawP        float64  `json:"raw_p" yaml:"raw_p"`
	CorrectedP  float64  `json:"corrected_p" yaml:"corrected_p"`
	EffectSize  float64  `json:"effect_size" yaml:"effect_size"`
	CILower     float64  `json:"ci_lower" yaml:"ci_lower"`
	CIUpper     float64  `json:"ci_upper" yaml:"ci_upper"`
	Significant bool     `json:"significant" yaml:"significant"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// EffectRecord is one row of a multi-way ANOVA table
type EffectRecord struct {
	Factors     []string `json:"factors" yaml:"factors"` // one name for a main effect, several for an interaction
	SumSquares  float64  `json:"sum_squares" yaml:"sum_squares"`
	DF          int      `json:"df" yaml:"df"`
	MeanSquare  float64  `json:"mean_square" yaml:"mean_square"`
	F           float64  `json:"f" yaml:"f"`
	PValue      float64  `json:"p_value" yaml:"p_value"`
	EtaSquared  float64  `json:"eta_squared" yaml:"eta_squared"`
	Significant bool     `json:"significant" yaml:"significant"`
}

// Name joins the factor names the way ANOVA tables print interactions (A:B)
func (e EffectRecord) Name() string {
	return strings.Join(e.Factors, ":")
}

// ============================================================================
// ENUMS
// ============================================================================

// TestName identifies which hypothesis test produced a result
type TestName string

const (
	TestChiSquare      TestName = "chi_square"
	TestFisherExact    TestName = "fisher_exact"
	TestProportionZ    TestName = "two_proportion_z"
	TestOneWayANOVA    TestName = "one_way_anova"
	TestMultiWayANOVA  TestName = "multi_way_anova"
	TestTukeyHSD       TestName = "tukey_hsd"
	TestLogRank        TestName = "log_rank"
	TestPairwiseFisher TestName = "pairwise_fisher"
)

// CorrectionMethod selects a multiple-testing correction
type CorrectionMethod string

const (
	CorrectionNone       CorrectionMethod = "none"
	CorrectionBonferroni CorrectionMethod = "bonferroni"
	CorrectionHolm       CorrectionMethod = "holm"
	CorrectionFDR        CorrectionMethod = "fdr" // Benjamini-Hochberg
)

// WarningCode represents structured warning types
type WarningCode string

const (
	WarningLowExpected        WarningCode = "LOW_EXPECTED_COUNT"   // expected cell count at or below threshold
	WarningZeroCell           WarningCode = "ZERO_CELL"            // odds ratio infinite or undefined
	WarningZeroVariance       WarningCode = "ZERO_VARIANCE"        // MS_within or MS_error is zero
	WarningPValueFallback     WarningCode = "P_VALUE_FALLBACK"     // non-finite p-value replaced
	WarningDegenerate         WarningCode = "DEGENERATE_STATISTIC" // division by zero in a statistic
	WarningSkippedInteraction WarningCode = "SKIPPED_INTERACTION"  // interaction with zero df
	WarningNegativeSS         WarningCode = "NEGATIVE_SUM_SQUARES" // residual interaction SS clamped
	WarningInsufficientDF     WarningCode = "INSUFFICIENT_DF"      // error df <= 0
	WarningNoEvents           WarningCode = "NO_EVENTS"            // survival data without deaths
	WarningZeroExpected       WarningCode = "ZERO_EXPECTED"        // group skipped, expected count 0
	WarningApproximation      WarningCode = "APPROXIMATION"        // result relies on an approximate CDF
)

// Format renders a warning as "CODE: message"
func (c WarningCode) Format(format string, args ...interface{}) string {
	return fmt.Sprintf("%s: %s", c, fmt.Sprintf(format, args...))
}

// ClampProbability forces p into [0, 1]; NaN is left for the caller's fallback policy
func ClampProbability(p float64) float64 {
	if math.IsNaN(p) {
		return p
	}
	return math.Max(0, math.Min(1, p))
}
