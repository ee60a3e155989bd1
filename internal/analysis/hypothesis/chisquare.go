package hypothesis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"labstats/domain/core"
	"labstats/domain/stats"
)

// ChiSquareResult is the outcome of a chi-square test of independence
type ChiSquareResult struct {
	stats.TestResult `yaml:",inline"`

	Expected    [][]float64 `json:"expected" yaml:"expected"`
	MinExpected float64     `json:"min_expected" yaml:"min_expected"`
	CramersV    float64     `json:"cramers_v" yaml:"cramers_v"`
	Total       int         `json:"total" yaml:"total"`
}

// ChiSquareIndependence tests independence of the rows and columns of a
// contingency table with Pearson's statistic Σ (O-E)²/E, df = (r-1)(c-1).
//
// A minimum expected count at or below the threshold (5 by default) adds a
// warning recommending Fisher's exact test; it never blocks the test.
func ChiSquareIndependence(table stats.ContingencyTable, opts ...Option) (*ChiSquareResult, error) {
	o := applyOptions(opts)

	observed, err := validateTable(table)
	if err != nil {
		return nil, err
	}
	rows, cols := len(observed), len(observed[0])

	rowTotals := make([]float64, rows)
	for i, row := range observed {
		rowTotals[i] = floats.Sum(row)
	}
	colTotals := make([]float64, cols)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		for i := range observed {
			column[i] = observed[i][j]
		}
		colTotals[j] = floats.Sum(column)
	}
	total := floats.Sum(rowTotals)

	for i, v := range rowTotals {
		if v == 0 {
			return nil, core.NewInvalidInputError("table", fmt.Sprintf("row %d has a zero total", i))
		}
	}
	for j, v := range colTotals {
		if v == 0 {
			return nil, core.NewInvalidInputError("table", fmt.Sprintf("column %d has a zero total", j))
		}
	}

	expected := make([][]float64, rows)
	minExpected := math.Inf(1)
	statistic := 0.0
	for i := range observed {
		expected[i] = make([]float64, cols)
		for j := range observed[i] {
			e := rowTotals[i] * colTotals[j] / total
			expected[i][j] = e
			minExpected = math.Min(minExpected, e)
			diff := observed[i][j] - e
			statistic += diff * diff / e
		}
	}

	df := (rows - 1) * (cols - 1)
	pValue, ok := chiSquarePValue(statistic, df)

	result := &ChiSquareResult{
		TestResult:  stats.NewTestResult(stats.TestChiSquare, statistic, pValue, df),
		Expected:    expected,
		MinExpected: minExpected,
		CramersV:    math.Sqrt(statistic / (total * float64(minInt(rows-1, cols-1)))),
		Total:       int(total),
	}
	if !ok {
		result.Warn(stats.WarningPValueFallback, "chi-square p-value was not finite, reported neutral %.1f", neutralPValue)
	}
	if minExpected <= o.lowExpectedCount {
		result.Warn(stats.WarningLowExpected,
			"minimum expected count %.2f is at or below %.0f; the chi-square approximation may be unreliable, consider Fisher's exact test",
			minExpected, o.lowExpectedCount)
	}
	return result, nil
}

// validateTable checks shape and sign and converts the counts to float64
func validateTable(table stats.ContingencyTable) ([][]float64, error) {
	rows := table.Rows()
	if rows == 0 || table.Columns() == 0 {
		return nil, core.NewInvalidInputError("table", "needs at least one row and one column")
	}
	cols := table.Columns()
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("%w: a %dx%d table has (r-1)(c-1) = 0", core.ErrDegreesOfFreedom, rows, cols)
	}
	if len(table.RowLabels) > 0 && len(table.RowLabels) != rows {
		return nil, fmt.Errorf("%w: %d row labels for %d rows", core.ErrDimensionMismatch, len(table.RowLabels), rows)
	}
	if len(table.ColumnLabels) > 0 && len(table.ColumnLabels) != cols {
		return nil, fmt.Errorf("%w: %d column labels for %d columns", core.ErrDimensionMismatch, len(table.ColumnLabels), cols)
	}

	observed := make([][]float64, rows)
	for i, row := range table.Counts {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", core.ErrDimensionMismatch, i, len(row), cols)
		}
		observed[i] = make([]float64, cols)
		for j, c := range row {
			if c < 0 {
				return nil, core.NewInvalidInputError("table", fmt.Sprintf("negative count %d at (%d,%d)", c, i, j))
			}
			observed[i][j] = float64(c)
		}
	}
	return observed, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
