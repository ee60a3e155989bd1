package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"labstats/domain/core"
	"labstats/domain/stats"
	"labstats/internal/errors"
	"labstats/ports"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation
const undefinedTable = "42P01"

// observationRepository reads experiment observations from the
// individuals / infection_status / reproduction_events tables
type observationRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewObservationRepository creates a Postgres-backed observation source.
// A non-positive timeout leaves query deadlines to the caller's context.
func NewObservationRepository(db *sqlx.DB, timeout time.Duration) ports.ObservationSource {
	return &observationRepository{db: db, timeout: timeout}
}

// Connect opens and pings a Postgres connection pool
func Connect(ctx context.Context, url string, maxOpenConns int) (*sqlx.DB, error) {
	if url == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return db, nil
}

type infectionRow struct {
	GroupName  string `db:"group_name"`
	Infected   int    `db:"infected"`
	Uninfected int    `db:"uninfected"`
}

type measurementRow struct {
	GroupName string  `db:"group_name"`
	Value     float64 `db:"value"`
}

type survivalRow struct {
	GroupName    string  `db:"group_name"`
	FollowUpDays float64 `db:"follow_up_days"`
	Died         bool    `db:"died"`
}

func (r *observationRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// InfectionTable counts infected and uninfected individuals per group
func (r *observationRepository) InfectionTable(ctx context.Context, experimentID core.ExperimentID) (stats.ContingencyTable, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var rows []infectionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT i.group_name,
			COUNT(*) FILTER (WHERE s.infected) AS infected,
			COUNT(*) FILTER (WHERE NOT s.infected) AS uninfected
		FROM individuals i
		JOIN infection_status s ON s.individual_id = i.id
		WHERE i.experiment_id = $1
		GROUP BY i.group_name
		ORDER BY i.group_name
	`, experimentID.String())
	if err != nil {
		return stats.ContingencyTable{}, queryError("infection table", err)
	}
	if len(rows) == 0 {
		return stats.ContingencyTable{}, experimentNotFound(experimentID)
	}
	return buildInfectionTable(rows), nil
}

// Measurements returns the values of a reproduction metric per group
func (r *observationRepository) Measurements(ctx context.Context, experimentID core.ExperimentID, metric string) ([]stats.GroupSample, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var rows []measurementRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT i.group_name, e.value
		FROM reproduction_events e
		JOIN individuals i ON i.id = e.individual_id
		WHERE i.experiment_id = $1 AND e.metric = $2
		ORDER BY i.group_name, i.id, e.id
	`, experimentID.String(), metric)
	if err != nil {
		return nil, queryError("measurements", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no %q measurements", experimentNotFound(experimentID), metric)
	}
	return buildGroupSamples(rows), nil
}

// Survival returns follow-up time and death status per individual
func (r *observationRepository) Survival(ctx context.Context, experimentID core.ExperimentID) ([]stats.SurvivalGroup, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var rows []survivalRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT i.group_name, s.follow_up_days, s.died
		FROM individuals i
		JOIN infection_status s ON s.individual_id = i.id
		WHERE i.experiment_id = $1
		ORDER BY i.group_name, i.id
	`, experimentID.String())
	if err != nil {
		return nil, queryError("survival records", err)
	}
	if len(rows) == 0 {
		return nil, experimentNotFound(experimentID)
	}
	return buildSurvivalGroups(rows), nil
}

func buildInfectionTable(rows []infectionRow) stats.ContingencyTable {
	counts := make(map[string][2]int, len(rows))
	for _, row := range rows {
		c := counts[row.GroupName]
		counts[row.GroupName] = [2]int{c[0] + row.Infected, c[1] + row.Uninfected}
	}
	return stats.InfectionTableFromCounts(counts)
}

func buildGroupSamples(rows []measurementRow) []stats.GroupSample {
	values := make(map[string][]float64)
	for _, row := range rows {
		values[row.GroupName] = append(values[row.GroupName], row.Value)
	}
	return stats.GroupSamplesFromMap(values)
}

func buildSurvivalGroups(rows []survivalRow) []stats.SurvivalGroup {
	records := make(map[string][]stats.SurvivalRecord)
	for _, row := range rows {
		records[row.GroupName] = append(records[row.GroupName], stats.SurvivalRecord{Time: row.FollowUpDays, Event: row.Died})
	}
	return stats.SurvivalGroupsFromMap(records)
}

func experimentNotFound(id core.ExperimentID) error {
	return fmt.Errorf("%w: %s", core.ErrExperimentNotFound, id)
}

// queryError wraps a driver error, pointing at the migrate command when the
// schema has not been created
func queryError(what string, err error) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return errors.DatabaseError(fmt.Sprintf("failed to query %s: schema missing, run the migrate command", what), err)
	}
	return errors.DatabaseError(fmt.Sprintf("failed to query %s", what), err)
}
