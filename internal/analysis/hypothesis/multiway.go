package hypothesis

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"labstats/domain/core"
	"labstats/domain/stats"
)

// MaxFactors is the largest design MultiWayANOVA decomposes
const MaxFactors = 3

// cellKey holds the levels of up to MaxFactors factors; unused slots stay empty
type cellKey [MaxFactors]string

func (k cellKey) less(o cellKey) bool {
	for i := range k {
		if k[i] != o[i] {
			return k[i] < o[i]
		}
	}
	return false
}

// ErrorRecord is the residual row of a multi-way ANOVA table
type ErrorRecord struct {
	SumSquares float64 `json:"sum_squares" yaml:"sum_squares"`
	DF         int     `json:"df" yaml:"df"`
	MeanSquare float64 `json:"mean_square" yaml:"mean_square"`
}

// MultiWayResult is the outcome of a multi-way ANOVA. The embedded TestResult
// describes the whole model: Statistic is the model F, DF the summed effect df
// and DF2 the error df.
type MultiWayResult struct {
	stats.TestResult `yaml:",inline"`

	Effects   []stats.EffectRecord `json:"effects" yaml:"effects"`
	Error     ErrorRecord          `json:"error" yaml:"error"`
	SSTotal   float64              `json:"ss_total" yaml:"ss_total"`
	DFTotal   int                  `json:"df_total" yaml:"df_total"`
	GrandMean float64              `json:"grand_mean" yaml:"grand_mean"`
}

// Effect returns the effect row with the given name ("dose" or "dose:strain")
func (r *MultiWayResult) Effect(name string) (stats.EffectRecord, bool) {
	for _, e := range r.Effects {
		if e.Name() == name {
			return e, true
		}
	}
	return stats.EffectRecord{}, false
}

// cell accumulates the observations sharing one combination of levels
type cell struct {
	n   int
	sum float64
}

func (c *cell) mean() float64 {
	return c.sum / float64(c.n)
}

// cellTable groups observations by the levels of a subset of factors
type cellTable struct {
	cells map[cellKey]*cell
	keys  []cellKey // sorted, so summation order is fixed
}

func newCellTable(observations []stats.FactorialObservation, factors []int) *cellTable {
	t := &cellTable{cells: make(map[cellKey]*cell)}
	for _, obs := range observations {
		var key cellKey
		for i, f := range factors {
			key[i] = obs.Levels[f]
		}
		c, ok := t.cells[key]
		if !ok {
			c = &cell{}
			t.cells[key] = c
		}
		c.n++
		c.sum += obs.Value
	}
	t.keys = make([]cellKey, 0, len(t.cells))
	for k := range t.cells {
		t.keys = append(t.keys, k)
	}
	sort.Slice(t.keys, func(i, j int) bool { return t.keys[i].less(t.keys[j]) })
	return t
}

func (t *cellTable) levels() int {
	return len(t.keys)
}

// MultiWayANOVA decomposes the variance of a factorial design with one to three
// factors into main effects, every two-way interaction and, for three factors,
// the three-way interaction obtained as a residual of the three-way cell SS.
//
// Error SS is the total SS minus every modeled effect SS and its df is
// N − Σ effect df − 1. Interactions with zero df are skipped with a warning.
// In unbalanced designs the residual three-way SS can come out negative; it is
// clamped to 0 with a warning.
func MultiWayANOVA(design stats.FactorialDesign) (*MultiWayResult, error) {
	if err := validateDesign(design); err != nil {
		return nil, err
	}

	obs := design.Observations
	n := len(obs)
	values := make([]float64, n)
	for i, o := range obs {
		values[i] = o.Value
	}
	grandMean := floats.Sum(values) / float64(n)
	deviations := make([]float64, n)
	for i, v := range values {
		d := v - grandMean
		deviations[i] = d * d
	}
	ssTotal := floats.Sum(deviations)

	result := &MultiWayResult{
		SSTotal:   ssTotal,
		DFTotal:   n - 1,
		GrandMean: grandMean,
	}
	var warnings []string

	// main effects
	k := len(design.Factors)
	marginals := make([]*cellTable, k)
	levelCounts := make([]int, k)
	var effects []stats.EffectRecord
	for f := 0; f < k; f++ {
		marginals[f] = newCellTable(obs, []int{f})
		levelCounts[f] = marginals[f].levels()
		df := levelCounts[f] - 1
		if df == 0 {
			warnings = append(warnings, stats.WarningInsufficientDF.Format(
				"factor %q has a single level, main effect skipped", design.Factors[f]))
			continue
		}
		terms := make([]float64, 0, levelCounts[f])
		for _, key := range marginals[f].keys {
			c := marginals[f].cells[key]
			d := c.mean() - grandMean
			terms = append(terms, float64(c.n)*d*d)
		}
		effects = append(effects, stats.EffectRecord{
			Factors:    []string{design.Factors[f]},
			SumSquares: floats.Sum(terms),
			DF:         df,
		})
	}

	// two-way interactions
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			name := design.Factors[a] + ":" + design.Factors[b]
			df := (levelCounts[a] - 1) * (levelCounts[b] - 1)
			if df == 0 {
				warnings = append(warnings, stats.WarningSkippedInteraction.Format(
					"interaction %s has zero degrees of freedom, skipped", name))
				continue
			}
			table := newCellTable(obs, []int{a, b})
			terms := make([]float64, 0, table.levels())
			for _, key := range table.keys {
				c := table.cells[key]
				d := c.mean() - marginals[a].cells[cellKey{key[0]}].mean() - marginals[b].cells[cellKey{key[1]}].mean() + grandMean
				terms = append(terms, float64(c.n)*d*d)
			}
			effects = append(effects, stats.EffectRecord{
				Factors:    []string{design.Factors[a], design.Factors[b]},
				SumSquares: floats.Sum(terms),
				DF:         df,
			})
		}
	}

	// three-way interaction as the residual of the full cell SS
	if k == MaxFactors {
		name := strings.Join(design.Factors, ":")
		df := (levelCounts[0] - 1) * (levelCounts[1] - 1) * (levelCounts[2] - 1)
		if df == 0 {
			warnings = append(warnings, stats.WarningSkippedInteraction.Format(
				"interaction %s has zero degrees of freedom, skipped", name))
		} else {
			table := newCellTable(obs, []int{0, 1, 2})
			terms := make([]float64, 0, table.levels())
			for _, key := range table.keys {
				c := table.cells[key]
				d := c.mean() - grandMean
				terms = append(terms, float64(c.n)*d*d)
			}
			ss := floats.Sum(terms)
			for _, e := range effects {
				ss -= e.SumSquares
			}
			if ss < 0 {
				warnings = append(warnings, stats.WarningNegativeSS.Format(
					"residual SS of %s was %.6g (unbalanced design), clamped to 0", name, ss))
				ss = 0
			}
			effects = append(effects, stats.EffectRecord{
				Factors:    append([]string(nil), design.Factors...),
				SumSquares: ss,
				DF:         df,
			})
		}
	}

	ssModel, dfModel := 0.0, 0
	for _, e := range effects {
		ssModel += e.SumSquares
		dfModel += e.DF
	}
	ssError := ssTotal - ssModel
	if ssError < 0 {
		warnings = append(warnings, stats.WarningNegativeSS.Format(
			"error SS was %.6g after removing modeled effects, clamped to 0", ssError))
		ssError = 0
	}
	dfError := n - dfModel - 1
	result.Error = ErrorRecord{SumSquares: ssError, DF: dfError}

	testable := dfError > 0
	if !testable {
		warnings = append(warnings, stats.WarningInsufficientDF.Format(
			"error df is %d, every effect reported with F = 0", dfError))
	} else {
		result.Error.MeanSquare = ssError / float64(dfError)
		if result.Error.MeanSquare == 0 {
			testable = false
			warnings = append(warnings, stats.WarningZeroVariance.Format(
				"error mean square is zero, every effect reported with F = 0"))
		}
	}

	fallbacks := 0
	for i := range effects {
		e := &effects[i]
		e.MeanSquare = e.SumSquares / float64(e.DF)
		if ssTotal > 0 {
			e.EtaSquared = e.SumSquares / ssTotal
		}
		e.PValue = 1
		if testable {
			e.F = e.MeanSquare / result.Error.MeanSquare
			p, fellBack := fTestPValue(e.F, e.DF, dfError)
			if fellBack {
				fallbacks++
			}
			e.PValue = p
		}
		e.Significant = e.PValue < stats.SignificanceLevel
	}
	result.Effects = effects

	modelF, modelP := 0.0, 1.0
	if testable && dfModel > 0 {
		modelF = (ssModel / float64(dfModel)) / result.Error.MeanSquare
		p, fellBack := fTestPValue(modelF, dfModel, dfError)
		if fellBack {
			fallbacks++
		}
		modelP = p
	}
	if fallbacks > 0 {
		warnings = append(warnings, stats.WarningPValueFallback.Format(
			"%d F tail(s) were not finite probabilities and use the 0.001/0.5 fallback", fallbacks))
	}

	result.TestResult = stats.NewTestResult(stats.TestMultiWayANOVA, modelF, modelP, dfModel)
	result.DF2 = dfError
	result.Warnings = warnings
	return result, nil
}

func validateDesign(design stats.FactorialDesign) error {
	k := len(design.Factors)
	if k < 1 || k > MaxFactors {
		return core.NewInvalidInputError("factors", fmt.Sprintf("supports 1 to %d factors, got %d", MaxFactors, k))
	}
	seen := make(map[string]bool, k)
	for _, f := range design.Factors {
		if f == "" {
			return core.NewInvalidInputError("factors", "factor names must not be empty")
		}
		if seen[f] {
			return core.NewInvalidInputError("factors", fmt.Sprintf("duplicate factor %q", f))
		}
		seen[f] = true
	}
	if len(design.Observations) < 2 {
		return core.NewInsufficientDataError("observations", len(design.Observations), 2)
	}
	for i, o := range design.Observations {
		if len(o.Levels) != k {
			return fmt.Errorf("%w: observation %d has %d levels for %d factors", core.ErrDimensionMismatch, i, len(o.Levels), k)
		}
		if !isFinite(o.Value) {
			return core.NewInvalidInputError("observations", fmt.Sprintf("observation %d is not finite", i))
		}
	}
	return nil
}
