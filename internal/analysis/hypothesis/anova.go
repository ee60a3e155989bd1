package hypothesis

import (
	"fmt"

	descriptive "github.com/montanaflynn/stats"

	"labstats/domain/core"
	"labstats/domain/stats"
)

// GroupSummary holds the descriptive statistics of one ANOVA group
type GroupSummary struct {
	Name     string  `json:"name" yaml:"name"`
	N        int     `json:"n" yaml:"n"`
	Mean     float64 `json:"mean" yaml:"mean"`
	Variance float64 `json:"variance" yaml:"variance"` // sample variance, 0 for a single value
}

// ANOVAResult is the outcome of a one-way analysis of variance.
// Statistic holds F, DF the between-group df and DF2 the within-group df.
type ANOVAResult struct {
	stats.TestResult `yaml:",inline"`

	Groups        []GroupSummary `json:"groups" yaml:"groups"`
	GrandMean     float64        `json:"grand_mean" yaml:"grand_mean"`
	SSBetween     float64        `json:"ss_between" yaml:"ss_between"`
	SSWithin      float64        `json:"ss_within" yaml:"ss_within"`
	SSTotal       float64        `json:"ss_total" yaml:"ss_total"`
	MSBetween     float64        `json:"ms_between" yaml:"ms_between"`
	MSWithin      float64        `json:"ms_within" yaml:"ms_within"`
	EtaSquared    float64        `json:"eta_squared" yaml:"eta_squared"`
	TotalObserved int            `json:"total_observed" yaml:"total_observed"`
}

// OneWayANOVA tests whether the group means differ.
//
//	SS_between = Σ nᵢ(meanᵢ − grand)²     df = k − 1
//	SS_within  = Σᵢ Σⱼ (xᵢⱼ − meanᵢ)²     df = N − k
//
// F = MS_between / MS_within, or 0 with a warning when MS_within is 0.
func OneWayANOVA(groups []stats.GroupSample) (*ANOVAResult, error) {
	if len(groups) < 2 {
		return nil, core.NewInsufficientDataError("groups", len(groups), 2)
	}

	summaries := make([]GroupSummary, len(groups))
	total := 0
	grandSum := 0.0
	for i, g := range groups {
		if len(g.Values) == 0 {
			return nil, core.NewInvalidInputError("groups", fmt.Sprintf("group %q is empty", g.Name))
		}
		for _, v := range g.Values {
			if !isFinite(v) {
				return nil, core.NewInvalidInputError("groups", fmt.Sprintf("group %q has a non-finite value", g.Name))
			}
		}
		summary, err := summarize(g)
		if err != nil {
			return nil, err
		}
		summaries[i] = summary
		total += summary.N
		grandSum += summary.Mean * float64(summary.N)
	}

	k := len(groups)
	dfBetween := k - 1
	dfWithin := total - k
	if dfWithin <= 0 {
		return nil, fmt.Errorf("%w: within-group df is %d (N=%d, k=%d)", core.ErrDegreesOfFreedom, dfWithin, total, k)
	}

	grandMean := grandSum / float64(total)
	ssBetween, ssWithin := 0.0, 0.0
	for i, g := range groups {
		d := summaries[i].Mean - grandMean
		ssBetween += float64(summaries[i].N) * d * d
		for _, v := range g.Values {
			e := v - summaries[i].Mean
			ssWithin += e * e
		}
	}
	ssTotal := ssBetween + ssWithin
	msBetween := ssBetween / float64(dfBetween)
	msWithin := ssWithin / float64(dfWithin)

	result := &ANOVAResult{
		Groups:        summaries,
		GrandMean:     grandMean,
		SSBetween:     ssBetween,
		SSWithin:      ssWithin,
		SSTotal:       ssTotal,
		MSBetween:     msBetween,
		MSWithin:      msWithin,
		TotalObserved: total,
	}
	if ssTotal > 0 {
		result.EtaSquared = ssBetween / ssTotal
	}

	f := 0.0
	var warnings []string
	if msWithin == 0 {
		warnings = append(warnings, stats.WarningZeroVariance.Format("within-group mean square is zero, F reported as 0"))
	} else {
		f = msBetween / msWithin
	}

	pValue, fellBack := fTestPValue(f, dfBetween, dfWithin)
	if fellBack {
		warnings = append(warnings, stats.WarningPValueFallback.Format(
			"F tail for F=%g (df %d, %d) was not a finite probability, reported %.3g", f, dfBetween, dfWithin, pValue))
	}

	result.TestResult = stats.NewTestResult(stats.TestOneWayANOVA, f, pValue, dfBetween)
	result.DF2 = dfWithin
	result.Warnings = warnings
	return result, nil
}

// summarize computes n, mean and sample variance of a group
func summarize(g stats.GroupSample) (GroupSummary, error) {
	mean, err := descriptive.Mean(g.Values)
	if err != nil {
		return GroupSummary{}, fmt.Errorf("mean of group %q: %w", g.Name, err)
	}
	variance := 0.0
	if len(g.Values) > 1 {
		variance, err = descriptive.SampleVariance(g.Values)
		if err != nil {
			return GroupSummary{}, fmt.Errorf("variance of group %q: %w", g.Name, err)
		}
	}
	return GroupSummary{Name: g.Name, N: len(g.Values), Mean: mean, Variance: variance}, nil
}

// Summary returns the summary of the named group
func (r *ANOVAResult) Summary(name string) (GroupSummary, bool) {
	for _, g := range r.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupSummary{}, false
}
