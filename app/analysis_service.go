package app

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/errgroup"

	"labstats/domain/core"
	"labstats/domain/stats"
	"labstats/internal"
	"labstats/internal/analysis/correction"
	"labstats/internal/analysis/hypothesis"
	"labstats/internal/config"
	"labstats/internal/errors"
	"labstats/ports"
)

// AnalysisService runs the hypothesis tests for callers: it assigns run ids,
// fans pairwise comparisons out over a bounded worker pool, applies the
// multiple-testing correction and maps engine errors to application codes.
type AnalysisService struct {
	correction  stats.CorrectionMethod
	workers     int
	lowExpected float64
	logger      *internal.Logger
}

// NewAnalysisService creates an analysis service from the analysis settings
func NewAnalysisService(cfg config.AnalysisConfig, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	method := cfg.CorrectionMethod
	if method == "" {
		method = stats.CorrectionHolm
	}
	lowExpected := cfg.LowExpectedCount
	if lowExpected <= 0 {
		lowExpected = hypothesis.DefaultLowExpectedCount
	}
	return &AnalysisService{
		correction:  method,
		workers:     workers,
		lowExpected: lowExpected,
		logger:      logger,
	}
}

// IndependenceReport holds the chi-square test of a contingency table, and
// Fisher's exact test when the table is 2x2. When a table with more than two
// rows has two columns, every pair of rows is also compared with Fisher's
// exact test and corrected.
type IndependenceReport struct {
	RunID     core.RunID                  `json:"run_id" yaml:"run_id"`
	ChiSquare *hypothesis.ChiSquareResult `json:"chi_square" yaml:"chi_square"`
	Fisher    *hypothesis.FisherResult    `json:"fisher,omitempty" yaml:"fisher,omitempty"`
	Pairwise  *PairwiseReport             `json:"pairwise,omitempty" yaml:"pairwise,omitempty"`
}

// PairwiseReport is a corrected family of pairwise comparisons
type PairwiseReport struct {
	RunID       core.RunID                 `json:"run_id" yaml:"run_id"`
	Method      stats.CorrectionMethod     `json:"method" yaml:"method"`
	Comparisons []stats.PairwiseComparison `json:"comparisons" yaml:"comparisons"`
}

// MeansReport is a one-way ANOVA with Tukey's post-hoc comparisons
type MeansReport struct {
	RunID core.RunID              `json:"run_id" yaml:"run_id"`
	ANOVA *hypothesis.ANOVAResult `json:"anova" yaml:"anova"`
	Tukey *hypothesis.TukeyResult `json:"tukey" yaml:"tukey"`
}

// FactorialReport is a multi-way ANOVA of a factorial design
type FactorialReport struct {
	RunID    core.RunID                 `json:"run_id" yaml:"run_id"`
	MultiWay *hypothesis.MultiWayResult `json:"multiway" yaml:"multiway"`
}

// ExperimentReport collects every analysis that the experiment's data supports.
// Families without observations are listed in Skipped.
type ExperimentReport struct {
	RunID        core.RunID                `json:"run_id" yaml:"run_id"`
	ExperimentID core.ExperimentID         `json:"experiment_id" yaml:"experiment_id"`
	Metric       string                    `json:"metric,omitempty" yaml:"metric,omitempty"`
	Independence *IndependenceReport       `json:"independence,omitempty" yaml:"independence,omitempty"`
	Proportions  *PairwiseReport           `json:"proportions,omitempty" yaml:"proportions,omitempty"`
	Means        *MeansReport              `json:"means,omitempty" yaml:"means,omitempty"`
	Survival     *hypothesis.LogRankResult `json:"survival,omitempty" yaml:"survival,omitempty"`
	Skipped      []string                  `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	RuntimeMs    int64                     `json:"runtime_ms" yaml:"runtime_ms"`
}

// Independence tests a contingency table for association
func (s *AnalysisService) Independence(ctx context.Context, table stats.ContingencyTable) (*IndependenceReport, error) {
	runID := core.NewRunID()
	return s.independence(ctx, runID, s.runLogger(runID, "independence"), table)
}

func (s *AnalysisService) independence(ctx context.Context, runID core.RunID, logger *internal.Logger, table stats.ContingencyTable) (*IndependenceReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chi, err := hypothesis.ChiSquareIndependence(table, hypothesis.WithLowExpectedCount(s.lowExpected))
	if err != nil {
		return nil, errors.Wrap(err, "chi-square independence test failed")
	}
	report := &IndependenceReport{RunID: runID, ChiSquare: chi}
	logger.Debug("chi-square %.4f (df=%d) p=%.4g", chi.Statistic, chi.DF, chi.PValue)
	s.logWarnings(logger, chi.Warnings)

	switch {
	case table.Rows() == 2 && table.Columns() == 2:
		fisher, err := hypothesis.FisherExactTable(table)
		if err != nil {
			return nil, errors.Wrap(err, "fisher exact test failed")
		}
		report.Fisher = fisher
		s.logWarnings(logger, fisher.Warnings)
	case table.Rows() > 2 && table.Columns() == 2:
		comparisons, err := hypothesis.PairwiseFisher(table)
		if err != nil {
			return nil, errors.Wrap(err, "pairwise fisher tests failed")
		}
		if err := correction.ApplyToComparisons(comparisons, s.correction); err != nil {
			return nil, errors.Wrap(err, "correction failed")
		}
		report.Pairwise = &PairwiseReport{RunID: runID, Method: s.correction, Comparisons: comparisons}
	}

	return report, nil
}

// PairwiseProportions compares every pair of groups with a two-proportion
// z-test and corrects the family. An empty method uses the configured one.
func (s *AnalysisService) PairwiseProportions(ctx context.Context, groups []stats.ProportionGroup, method stats.CorrectionMethod) (*PairwiseReport, error) {
	runID := core.NewRunID()
	return s.pairwiseProportions(ctx, runID, s.runLogger(runID, "pairwise_proportions"), groups, method)
}

func (s *AnalysisService) pairwiseProportions(ctx context.Context, runID core.RunID, logger *internal.Logger, groups []stats.ProportionGroup, method stats.CorrectionMethod) (*PairwiseReport, error) {
	if len(groups) < 2 {
		return nil, errors.Wrap(core.NewInsufficientDataError("proportion groups", len(groups), 2), "pairwise proportions")
	}
	if method == "" {
		method = s.correction
	}

	type pair struct{ i, j int }
	pairs := make([]pair, 0, len(groups)*(len(groups)-1)/2)
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	// each worker writes only its own slot, so the family keeps pair order
	comparisons := make([]stats.PairwiseComparison, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for idx, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			g1, g2 := groups[p.i], groups[p.j]
			result, err := hypothesis.TwoProportionZTestGroups(g1, g2)
			if err != nil {
				return err
			}
			comparisons[idx] = result.Comparison(g1.Name, g2.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "pairwise proportion tests failed")
	}

	if err := correction.ApplyToComparisons(comparisons, method); err != nil {
		return nil, errors.Wrap(err, "correction failed")
	}
	logger.Debug("%d pairwise proportion comparisons corrected with %s", len(comparisons), method)
	return &PairwiseReport{RunID: runID, Method: method, Comparisons: comparisons}, nil
}

// CompareMeans runs a one-way ANOVA followed by Tukey's HSD
func (s *AnalysisService) CompareMeans(ctx context.Context, groups []stats.GroupSample) (*MeansReport, error) {
	runID := core.NewRunID()
	return s.compareMeans(ctx, runID, s.runLogger(runID, "compare_means"), groups)
}

func (s *AnalysisService) compareMeans(ctx context.Context, runID core.RunID, logger *internal.Logger, groups []stats.GroupSample) (*MeansReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tukey, err := hypothesis.TukeyHSD(groups)
	if err != nil {
		return nil, errors.Wrap(err, "one-way ANOVA failed")
	}
	logger.Debug("ANOVA F=%.4f (df=%d,%d) p=%.4g", tukey.ANOVA.Statistic, tukey.ANOVA.DF, tukey.ANOVA.DF2, tukey.ANOVA.PValue)
	s.logWarnings(logger, tukey.ANOVA.Warnings)
	return &MeansReport{RunID: runID, ANOVA: tukey.ANOVA, Tukey: tukey}, nil
}

// Factorial runs a multi-way ANOVA on a design with one to three factors
func (s *AnalysisService) Factorial(ctx context.Context, design stats.FactorialDesign) (*FactorialReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runID := core.NewRunID()
	logger := s.runLogger(runID, "factorial")
	result, err := hypothesis.MultiWayANOVA(design)
	if err != nil {
		return nil, errors.Wrap(err, "multi-way ANOVA failed")
	}
	logger.Debug("multi-way ANOVA over %d factors: %d effects, error df %d", len(design.Factors), len(result.Effects), result.Error.DF)
	s.logWarnings(logger, result.Warnings)
	return &FactorialReport{RunID: runID, MultiWay: result}, nil
}

// Survival compares survival curves with the log-rank test
func (s *AnalysisService) Survival(ctx context.Context, groups []stats.SurvivalGroup) (*hypothesis.LogRankResult, error) {
	runID := core.NewRunID()
	return s.survival(ctx, s.runLogger(runID, "survival"), groups)
}

func (s *AnalysisService) survival(ctx context.Context, logger *internal.Logger, groups []stats.SurvivalGroup) (*hypothesis.LogRankResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := hypothesis.LogRank(groups)
	if err != nil {
		return nil, errors.Wrap(err, "log-rank test failed")
	}
	logger.Debug("log-rank %.4f (df=%d) p=%.4g over %d event times", result.Statistic, result.DF, result.PValue, result.EventTimes)
	s.logWarnings(logger, result.Warnings)
	return result, nil
}

// Correct adjusts raw p-values; an empty method uses the configured one
func (s *AnalysisService) Correct(ctx context.Context, pValues []float64, method stats.CorrectionMethod) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if method == "" {
		method = s.correction
	}
	adjusted, err := correction.Adjust(pValues, method)
	if err != nil {
		return nil, errors.Wrap(err, "p-value correction failed")
	}
	return adjusted, nil
}

// AnalyzeExperiment loads an experiment through the source and runs the
// infection, measurement and survival analyses it has data for. An empty
// metric skips the measurement family.
func (s *AnalysisService) AnalyzeExperiment(ctx context.Context, source ports.ObservationSource, experimentID core.ExperimentID, metric string) (*ExperimentReport, error) {
	startTime := time.Now()
	runID := core.NewRunID()
	logger := s.runLogger(runID, "experiment").With("experiment_id", experimentID.String())
	logger.Info("analyzing experiment %s", experimentID)

	report := &ExperimentReport{RunID: runID, ExperimentID: experimentID, Metric: metric}
	skip := func(family string, err error) {
		logger.Warn("skipping %s: %v", family, err)
		report.Skipped = append(report.Skipped, family)
	}

	table, err := source.InfectionTable(ctx, experimentID)
	switch {
	case isMissing(err):
		skip("infection", err)
	case err != nil:
		return nil, errors.Wrap(err, "failed to load infection table")
	default:
		if report.Independence, err = s.independence(ctx, runID, logger, table); err != nil {
			return nil, err
		}
		if len(table.Counts) >= 2 {
			if report.Proportions, err = s.pairwiseProportions(ctx, runID, logger, table.ProportionGroups(), ""); err != nil {
				return nil, err
			}
		}
	}

	if metric == "" {
		report.Skipped = append(report.Skipped, "measurements")
	} else {
		samples, err := source.Measurements(ctx, experimentID, metric)
		switch {
		case isMissing(err):
			skip("measurements", err)
		case err != nil:
			return nil, errors.Wrapf(err, "failed to load %s measurements", metric)
		default:
			if report.Means, err = s.compareMeans(ctx, runID, logger, samples); err != nil {
				return nil, err
			}
		}
	}

	groups, err := source.Survival(ctx, experimentID)
	switch {
	case isMissing(err):
		skip("survival", err)
	case err != nil:
		return nil, errors.Wrap(err, "failed to load survival records")
	default:
		if report.Survival, err = s.survival(ctx, logger, groups); err != nil {
			return nil, err
		}
	}

	if report.Independence == nil && report.Means == nil && report.Survival == nil {
		return nil, errors.Wrap(core.NewNotFoundError("experiment observations", experimentID.String()), "nothing to analyze")
	}

	report.RuntimeMs = time.Since(startTime).Milliseconds()
	logger.Info("experiment %s analyzed in %dms (skipped: %v)", experimentID, report.RuntimeMs, report.Skipped)
	return report, nil
}

func (s *AnalysisService) runLogger(runID core.RunID, operation string) *internal.Logger {
	return s.logger.With("run_id", runID.String(), "operation", operation)
}

func (s *AnalysisService) logWarnings(logger *internal.Logger, warnings []string) {
	for _, w := range warnings {
		logger.Warn("%s", w)
	}
}

func isMissing(err error) bool {
	return err != nil && stderrors.Is(err, core.ErrNotFound)
}
