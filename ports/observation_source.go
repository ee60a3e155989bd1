package ports

import (
	"context"

	"labstats/domain/core"
	"labstats/domain/stats"
)

// ObservationSource loads the raw observations of an experiment in the shapes
// the hypothesis tests consume. Groups are returned sorted by name.
type ObservationSource interface {
	// InfectionTable returns one row per group with columns (infected, uninfected)
	InfectionTable(ctx context.Context, experimentID core.ExperimentID) (stats.ContingencyTable, error)

	// Measurements returns the values of one metric (e.g. "offspring") per group
	Measurements(ctx context.Context, experimentID core.ExperimentID, metric string) ([]stats.GroupSample, error)

	// Survival returns follow-up time and death status per individual, by group
	Survival(ctx context.Context, experimentID core.ExperimentID) ([]stats.SurvivalGroup, error)
}
