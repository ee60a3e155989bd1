// Package correction adjusts families of p-values for multiple testing.
//
// Every function returns adjusted values in the order of its input; sorting
// happens internally and is stable, so tied p-values keep their input order.
package correction

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"labstats/domain/core"
	"labstats/domain/stats"
)

// ParseMethod maps a user-supplied name to a correction method.
// "bh" and "benjamini-hochberg" are accepted as aliases of fdr.
func ParseMethod(name string) (stats.CorrectionMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return stats.CorrectionNone, nil
	case "bonferroni":
		return stats.CorrectionBonferroni, nil
	case "holm":
		return stats.CorrectionHolm, nil
	case "fdr", "bh", "benjamini-hochberg":
		return stats.CorrectionFDR, nil
	default:
		return "", fmt.Errorf("%w: correction method %q (want bonferroni, holm, fdr or none)", core.ErrUnsupportedMethod, name)
	}
}

// Adjust applies the given method to pValues
func Adjust(pValues []float64, method stats.CorrectionMethod) ([]float64, error) {
	if err := validate(pValues); err != nil {
		return nil, err
	}
	switch method {
	case stats.CorrectionNone:
		return append([]float64(nil), pValues...), nil
	case stats.CorrectionBonferroni:
		return bonferroni(pValues), nil
	case stats.CorrectionHolm:
		return holm(pValues), nil
	case stats.CorrectionFDR:
		return benjaminiHochberg(pValues), nil
	default:
		return nil, fmt.Errorf("%w: correction method %q", core.ErrUnsupportedMethod, method)
	}
}

// Bonferroni returns min(p·n, 1) for every p-value
func Bonferroni(pValues []float64) ([]float64, error) {
	return Adjust(pValues, stats.CorrectionBonferroni)
}

// Holm applies the Holm step-down procedure: the i-th smallest p-value
// (0-indexed) is multiplied by n−i, clamped to 1, and the sequence is made
// non-decreasing from the smallest to the largest.
func Holm(pValues []float64) ([]float64, error) {
	return Adjust(pValues, stats.CorrectionHolm)
}

// BenjaminiHochberg controls the false discovery rate: the p-value of rank r
// (1-indexed, ascending) is multiplied by n/r, clamped to 1, and the sequence is
// made non-increasing walking down from the largest rank. The largest p-value
// is therefore left unchanged.
func BenjaminiHochberg(pValues []float64) ([]float64, error) {
	return Adjust(pValues, stats.CorrectionFDR)
}

func validate(pValues []float64) error {
	for i, p := range pValues {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return core.NewInvalidInputError("p-values", fmt.Sprintf("value %v at index %d is not a probability", p, i))
		}
	}
	return nil
}

func bonferroni(p []float64) []float64 {
	n := float64(len(p))
	adjusted := make([]float64, len(p))
	for i, v := range p {
		adjusted[i] = math.Min(v*n, 1)
	}
	return adjusted
}

func holm(p []float64) []float64 {
	n := len(p)
	order := ascendingOrder(p)
	adjusted := make([]float64, n)
	running := 0.0
	for i, idx := range order {
		v := math.Min(p[idx]*float64(n-i), 1)
		running = math.Max(running, v)
		adjusted[idx] = running
	}
	return adjusted
}

func benjaminiHochberg(p []float64) []float64 {
	n := len(p)
	order := ascendingOrder(p)
	adjusted := make([]float64, n)
	running := 1.0
	for i := n - 1; i >= 0; i-- {
		idx := order[i]
		rank := float64(i + 1)
		v := math.Min(p[idx]*(float64(n)/rank), 1)
		running = math.Min(running, v)
		adjusted[idx] = running
	}
	return adjusted
}

// ascendingOrder returns the indices of p sorted by value, ties in input order
func ascendingOrder(p []float64) []int {
	order := make([]int, len(p))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p[order[a]] < p[order[b]]
	})
	return order
}

// ApplyToComparisons adjusts the raw p-values of a family of comparisons in
// place, setting CorrectedP and Significant on each.
func ApplyToComparisons(comparisons []stats.PairwiseComparison, method stats.CorrectionMethod) error {
	raw := make([]float64, len(comparisons))
	for i, c := range comparisons {
		raw[i] = c.RawP
	}
	adjusted, err := Adjust(raw, method)
	if err != nil {
		return err
	}
	for i := range comparisons {
		comparisons[i].CorrectedP = adjusted[i]
		comparisons[i].Significant = adjusted[i] < stats.SignificanceLevel
	}
	return nil
}
