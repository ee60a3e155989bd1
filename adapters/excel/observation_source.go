package excel

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"labstats/domain/core"
	"labstats/domain/stats"
	"labstats/internal"
	"labstats/ports"
)

// experimentColumn optionally scopes rows to an experiment; sheets without it
// hold a single experiment and match any ID
const experimentColumn = "experiment"

// WorkbookSource serves observations from a workbook with the sheets
//
//	infection:    group, infected, uninfected   (counts per group)
//	           or group, infected                (one row per individual, yes/no)
//	measurements: group, metric, value
//	survival:     group, time, status            (status 1/dead/true = death)
type WorkbookSource struct {
	reader *DataReader
	logger *internal.Logger
}

// NewWorkbookSource creates a workbook-backed observation source
func NewWorkbookSource(path string, logger *internal.Logger) *WorkbookSource {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &WorkbookSource{reader: NewDataReader(path, logger), logger: logger}
}

var _ ports.ObservationSource = (*WorkbookSource)(nil)

// InfectionTable reads the infection sheet
func (s *WorkbookSource) InfectionTable(ctx context.Context, experimentID core.ExperimentID) (stats.ContingencyTable, error) {
	sheet, err := s.load(ctx, SheetInfection, "group", stats.ColumnInfected)
	if err != nil {
		return stats.ContingencyTable{}, err
	}

	aggregated := sheet.HasColumn(stats.ColumnUninfected)
	counts := make(map[string][2]int)
	matched := 0
	for i, row := range sheet.Rows {
		if !matchesExperiment(row, experimentID) {
			continue
		}
		matched++
		group, err := requireField(sheet, i, "group")
		if err != nil {
			return stats.ContingencyTable{}, err
		}
		c := counts[group]
		if aggregated {
			infected, err := parseCount(sheet, i, stats.ColumnInfected)
			if err != nil {
				return stats.ContingencyTable{}, err
			}
			uninfected, err := parseCount(sheet, i, stats.ColumnUninfected)
			if err != nil {
				return stats.ContingencyTable{}, err
			}
			c[0] += infected
			c[1] += uninfected
		} else {
			infected, err := parseFlag(sheet, i, stats.ColumnInfected)
			if err != nil {
				return stats.ContingencyTable{}, err
			}
			if infected {
				c[0]++
			} else {
				c[1]++
			}
		}
		counts[group] = c
	}
	if matched == 0 {
		return stats.ContingencyTable{}, s.notFound(experimentID, SheetInfection)
	}

	s.logger.Debug("[WorkbookSource] infection table for %s: %d groups from %d rows", experimentID, len(counts), matched)
	return stats.InfectionTableFromCounts(counts), nil
}

// Measurements reads the rows of the measurements sheet for one metric
func (s *WorkbookSource) Measurements(ctx context.Context, experimentID core.ExperimentID, metric string) ([]stats.GroupSample, error) {
	sheet, err := s.load(ctx, SheetMeasurements, "group", "metric", "value")
	if err != nil {
		return nil, err
	}

	values := make(map[string][]float64)
	matched := 0
	for i, row := range sheet.Rows {
		if !matchesExperiment(row, experimentID) || !strings.EqualFold(row["metric"], metric) {
			continue
		}
		matched++
		group, err := requireField(sheet, i, "group")
		if err != nil {
			return nil, err
		}
		v, err := parseFloat(sheet, i, "value")
		if err != nil {
			return nil, err
		}
		values[group] = append(values[group], v)
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: no %q measurements", s.notFound(experimentID, SheetMeasurements), metric)
	}

	s.logger.Debug("[WorkbookSource] %s measurements for %s: %d groups from %d rows", metric, experimentID, len(values), matched)
	return stats.GroupSamplesFromMap(values), nil
}

// Survival reads the survival sheet
func (s *WorkbookSource) Survival(ctx context.Context, experimentID core.ExperimentID) ([]stats.SurvivalGroup, error) {
	sheet, err := s.load(ctx, SheetSurvival, "group", "time", "status")
	if err != nil {
		return nil, err
	}

	records := make(map[string][]stats.SurvivalRecord)
	matched := 0
	for i, row := range sheet.Rows {
		if !matchesExperiment(row, experimentID) {
			continue
		}
		matched++
		group, err := requireField(sheet, i, "group")
		if err != nil {
			return nil, err
		}
		t, err := parseFloat(sheet, i, "time")
		if err != nil {
			return nil, err
		}
		event, err := parseFlag(sheet, i, "status")
		if err != nil {
			return nil, err
		}
		records[group] = append(records[group], stats.SurvivalRecord{Time: t, Event: event})
	}
	if matched == 0 {
		return nil, s.notFound(experimentID, SheetSurvival)
	}

	s.logger.Debug("[WorkbookSource] survival records for %s: %d groups from %d rows", experimentID, len(records), matched)
	return stats.SurvivalGroupsFromMap(records), nil
}

func (s *WorkbookSource) load(ctx context.Context, name string, required ...string) (*SheetData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sheet, err := s.reader.ReadSheet(name)
	if stderrors.Is(err, ErrSheetNotFound) {
		return nil, fmt.Errorf("%w: workbook has no %s sheet", core.ErrExperimentNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	for _, col := range required {
		if !sheet.HasColumn(col) {
			return nil, core.NewInvalidInputError(name, fmt.Sprintf("missing column %q", col))
		}
	}
	return sheet, nil
}

func (s *WorkbookSource) notFound(id core.ExperimentID, sheet string) error {
	return fmt.Errorf("%w: %s has no rows in sheet %s", core.ErrExperimentNotFound, id, sheet)
}

func matchesExperiment(row RawRowData, id core.ExperimentID) bool {
	v, ok := row[experimentColumn]
	if !ok || id == "" {
		return true
	}
	return v == id.String()
}

func requireField(sheet *SheetData, i int, col string) (string, error) {
	v := sheet.Rows[i][col]
	if v == "" {
		return "", cellError(sheet, i, col, "is empty")
	}
	return v, nil
}

func parseCount(sheet *SheetData, i int, col string) (int, error) {
	raw := sheet.Rows[i][col]
	n, err := strconv.Atoi(raw)
	if err != nil {
		// spreadsheets often store integers as 12.0
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, cellError(sheet, i, col, fmt.Sprintf("%q is not a count", raw))
		}
		n = int(f)
	}
	if n < 0 {
		return 0, cellError(sheet, i, col, fmt.Sprintf("negative count %d", n))
	}
	return n, nil
}

func parseFloat(sheet *SheetData, i int, col string) (float64, error) {
	raw := sheet.Rows[i][col]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, cellError(sheet, i, col, fmt.Sprintf("%q is not a number", raw))
	}
	return v, nil
}

func parseFlag(sheet *SheetData, i int, col string) (bool, error) {
	raw := strings.ToLower(sheet.Rows[i][col])
	switch raw {
	case "1", "true", "yes", "y", "dead", "died", "event", "infected":
		return true, nil
	case "0", "false", "no", "n", "alive", "censored", "uninfected":
		return false, nil
	}
	return false, cellError(sheet, i, col, fmt.Sprintf("%q is not a yes/no value", raw))
}

func cellError(sheet *SheetData, i int, col, reason string) error {
	return core.NewInvalidInputError(sheet.Name, fmt.Sprintf("line %d column %s %s", sheet.Lines[i], col, reason))
}
