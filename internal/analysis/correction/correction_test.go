package correction

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"labstats/domain/core"
	"labstats/domain/stats"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		input string
		want  stats.CorrectionMethod
	}{
		{"bonferroni", stats.CorrectionBonferroni},
		{"Holm", stats.CorrectionHolm},
		{"fdr", stats.CorrectionFDR},
		{"bh", stats.CorrectionFDR},
		{" BH ", stats.CorrectionFDR},
		{"benjamini-hochberg", stats.CorrectionFDR},
		{"none", stats.CorrectionNone},
		{"", stats.CorrectionNone},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	_, err := ParseMethod("sidak")
	assert.ErrorIs(t, err, core.ErrUnsupportedMethod)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestBonferroni(t *testing.T) {
	got, err := Bonferroni([]float64{0.01, 0.04, 0.3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.03, 0.12, 0.9}, got, 1e-12)

	got, err = Bonferroni([]float64{0.5, 0.2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.4}, got)
}

func TestHolm(t *testing.T) {
	// sorted: 0.01 (x4), 0.02 (x3), 0.03 (x2), 0.04 (x1)
	got, err := Holm([]float64{0.03, 0.01, 0.04, 0.02})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.06, 0.04, 0.06, 0.06}, got, 1e-12)

	// monotone: 0.05*2 = 0.10 is raised to the 0.04*3 = 0.12 before it
	got, err = Holm([]float64{0.05, 0.04, 0.9})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.12, 0.12, 0.9}, got, 1e-12)
}

func TestBenjaminiHochberg_AscendingFamily(t *testing.T) {
	raw := []float64{0.01, 0.02, 0.03, 0.04, 0.05}
	got, err := BenjaminiHochberg(raw)
	require.NoError(t, err)

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1], got[i], "adjusted values must be non-decreasing")
	}
	assert.Equal(t, raw[4], got[4], "largest rank keeps its raw p-value exactly")
	for _, v := range got {
		assert.InDelta(t, 0.05, v, 1e-12)
	}
}

func TestBenjaminiHochberg_InputOrderPreserved(t *testing.T) {
	got, err := BenjaminiHochberg([]float64{0.04, 0.001, 0.5, 0.03})
	require.NoError(t, err)
	// ranks: 0.001(1) -> 0.004, 0.03(2) -> 0.06, 0.04(3) -> 0.0533, 0.5(4) -> 0.5
	// then cumulative min from the top: 0.04 -> 0.0533, 0.03 -> 0.0533
	assert.InDeltaSlice(t, []float64{0.04 * 4 / 3, 0.004, 0.5, 0.04 * 4 / 3}, got, 1e-12)
}

func TestAdjust_None(t *testing.T) {
	raw := []float64{0.2, 0.01}
	got, err := Adjust(raw, stats.CorrectionNone)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got[0] = 0.9
	assert.Equal(t, 0.2, raw[0], "identity must return a copy")
}

func TestAdjust_InvalidInput(t *testing.T) {
	for _, p := range []float64{-0.1, 1.1, math.NaN(), math.Inf(1)} {
		_, err := Adjust([]float64{0.1, p}, stats.CorrectionHolm)
		assert.ErrorIs(t, err, core.ErrInvalidInput, "p=%v", p)
	}

	_, err := Adjust([]float64{0.1}, stats.CorrectionMethod("sidak"))
	assert.ErrorIs(t, err, core.ErrUnsupportedMethod)
}

func TestAdjust_Empty(t *testing.T) {
	for _, m := range []stats.CorrectionMethod{stats.CorrectionNone, stats.CorrectionBonferroni, stats.CorrectionHolm, stats.CorrectionFDR} {
		got, err := Adjust(nil, m)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestAdjust_Ordering(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.SliceOfN(rapid.Float64Range(0, 1), 1, 40).Draw(rt, "p")

		bonf, err := Bonferroni(p)
		require.NoError(rt, err)
		holm, err := Holm(p)
		require.NoError(rt, err)
		bh, err := BenjaminiHochberg(p)
		require.NoError(rt, err)

		for i := range p {
			require.GreaterOrEqual(rt, bonf[i], holm[i], "index %d", i)
			require.GreaterOrEqual(rt, holm[i], bh[i], "index %d", i)
			require.GreaterOrEqual(rt, bh[i], p[i], "index %d", i)
			require.LessOrEqual(rt, bonf[i], 1.0)
		}
	})
}

func TestApplyToComparisons(t *testing.T) {
	comparisons := []stats.PairwiseComparison{
		{Group1: "a", Group2: "b", RawP: 0.01, CorrectedP: 0.01, Significant: true},
		{Group1: "a", Group2: "c", RawP: 0.02, CorrectedP: 0.02, Significant: true},
		{Group1: "b", Group2: "c", RawP: 0.30, CorrectedP: 0.30},
	}

	require.NoError(t, ApplyToComparisons(comparisons, stats.CorrectionBonferroni))
	assert.InDelta(t, 0.03, comparisons[0].CorrectedP, 1e-12)
	assert.True(t, comparisons[0].Significant)
	assert.InDelta(t, 0.06, comparisons[1].CorrectedP, 1e-12)
	assert.False(t, comparisons[1].Significant)
	assert.InDelta(t, 0.9, comparisons[2].CorrectedP, 1e-12)
	assert.Equal(t, 0.01, comparisons[0].RawP, "raw p-values are untouched")

	comparisons[0].RawP = 2
	assert.ErrorIs(t, ApplyToComparisons(comparisons, stats.CorrectionHolm), core.ErrInvalidInput)
}
