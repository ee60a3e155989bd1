package hypothesis

import (
	"fmt"
	"math"
	"sort"

	"labstats/domain/core"
	"labstats/domain/stats"
)

// LogRankGroup is the per-group tally of a log-rank test
type LogRankGroup struct {
	Name     string  `json:"name" yaml:"name"`
	N        int     `json:"n" yaml:"n"`
	Observed int     `json:"observed" yaml:"observed"`
	Expected float64 `json:"expected" yaml:"expected"`
}

// LogRankResult is the outcome of a log-rank comparison of survival curves
type LogRankResult struct {
	stats.TestResult `yaml:",inline"`

	Groups     []LogRankGroup `json:"groups" yaml:"groups"`
	EventTimes int            `json:"event_times" yaml:"event_times"`
}

// Group returns the tally of the named group
func (r *LogRankResult) Group(name string) (LogRankGroup, bool) {
	for _, g := range r.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return LogRankGroup{}, false
}

// LogRank compares the survival of two or more groups.
//
// At every distinct event time t (pooled over groups, ascending) a subject is
// at risk when its time is ≥ t; each group's expected deaths are the total
// deaths at t times its share of the at-risk population. The statistic
// Σ (O − E)² / E runs over every group except the last, with df = groups − 1.
// Groups whose expected count is zero are left out of the sum with a warning.
func LogRank(groups []stats.SurvivalGroup) (*LogRankResult, error) {
	if len(groups) < 2 {
		return nil, core.NewInsufficientDataError("survival groups", len(groups), 2)
	}
	eventSet := make(map[float64]struct{})
	for _, g := range groups {
		if len(g.Records) == 0 {
			return nil, core.NewInvalidInputError("groups", fmt.Sprintf("survival group %q is empty", g.Name))
		}
		for _, r := range g.Records {
			if !isFinite(r.Time) || r.Time < 0 {
				return nil, core.NewInvalidInputError("groups", fmt.Sprintf("group %q has invalid time %v", g.Name, r.Time))
			}
			if r.Event {
				eventSet[r.Time] = struct{}{}
			}
		}
	}

	times := make([]float64, 0, len(eventSet))
	for t := range eventSet {
		times = append(times, t)
	}
	sort.Float64s(times)

	tallies := make([]LogRankGroup, len(groups))
	for i, g := range groups {
		tallies[i] = LogRankGroup{Name: g.Name, N: len(g.Records)}
	}

	atRisk := make([]int, len(groups))
	deaths := make([]int, len(groups))
	for _, t := range times {
		totalAtRisk, totalDeaths := 0, 0
		for i, g := range groups {
			atRisk[i], deaths[i] = 0, 0
			for _, r := range g.Records {
				if r.Time >= t {
					atRisk[i]++
					if r.Event && r.Time == t {
						deaths[i]++
					}
				}
			}
			totalAtRisk += atRisk[i]
			totalDeaths += deaths[i]
		}
		for i := range groups {
			tallies[i].Observed += deaths[i]
			tallies[i].Expected += float64(totalDeaths) * float64(atRisk[i]) / float64(totalAtRisk)
		}
	}

	df := len(groups) - 1
	result := &LogRankResult{Groups: tallies, EventTimes: len(times)}
	if len(times) == 0 {
		result.TestResult = stats.NewTestResult(stats.TestLogRank, 0, 1, df)
		result.Warn(stats.WarningNoEvents, "no deaths observed in any group, statistic reported as 0")
		return result, nil
	}

	statistic := 0.0
	var warnings []string
	for _, g := range tallies[:len(tallies)-1] {
		if g.Expected == 0 {
			warnings = append(warnings, stats.WarningZeroExpected.Format("group %q has zero expected deaths, left out of the statistic", g.Name))
			continue
		}
		d := float64(g.Observed) - g.Expected
		statistic += d * d / g.Expected
	}

	pValue, ok := chiSquarePValue(statistic, df)
	if !ok || math.IsNaN(statistic) {
		warnings = append(warnings, stats.WarningPValueFallback.Format("chi-square tail was not finite, reported neutral %.1f", neutralPValue))
	}
	result.TestResult = stats.NewTestResult(stats.TestLogRank, statistic, pValue, df)
	result.Warnings = warnings
	return result, nil
}
