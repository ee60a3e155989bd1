package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"labstats/domain/core"
	"labstats/domain/stats"
	"labstats/internal"
	"labstats/internal/analysis/correction"
	"labstats/internal/analysis/hypothesis"
	"labstats/internal/config"
	"labstats/internal/errors"
)

// MockObservationSource implements ports.ObservationSource
type MockObservationSource struct {
	mock.Mock
}

func (m *MockObservationSource) InfectionTable(ctx context.Context, id core.ExperimentID) (stats.ContingencyTable, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(stats.ContingencyTable), args.Error(1)
}

func (m *MockObservationSource) Measurements(ctx context.Context, id core.ExperimentID, metric string) ([]stats.GroupSample, error) {
	args := m.Called(ctx, id, metric)
	return args.Get(0).([]stats.GroupSample), args.Error(1)
}

func (m *MockObservationSource) Survival(ctx context.Context, id core.ExperimentID) ([]stats.SurvivalGroup, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]stats.SurvivalGroup), args.Error(1)
}

func newTestService(t *testing.T, method stats.CorrectionMethod) (*AnalysisService, *observer.ObservedLogs) {
	t.Helper()
	observed, logs := observer.New(zapcore.DebugLevel)
	logger := internal.NewLoggerFromZap(internal.LogLevelDebug, zap.New(observed))
	svc := NewAnalysisService(config.AnalysisConfig{CorrectionMethod: method, Workers: 3}, logger)
	return svc, logs
}

var infectionTable = stats.InfectionTableFromCounts(map[string][2]int{
	"control": {11, 9},
	"low":     {6, 14},
	"high":    {2, 18},
})

var eggCounts = []stats.GroupSample{
	{Name: "control", Values: []float64{1, 2, 3, 4}},
	{Name: "low", Values: []float64{2, 3, 4, 5}},
	{Name: "high", Values: []float64{6, 7, 8, 9}},
}

var survivalGroups = []stats.SurvivalGroup{
	{Name: "control", Records: []stats.SurvivalRecord{{Time: 30}, {Time: 30}, {Time: 21, Event: true}}},
	{Name: "exposed", Records: []stats.SurvivalRecord{{Time: 4, Event: true}, {Time: 6, Event: true}, {Time: 30}}},
}

func TestNewAnalysisService_Defaults(t *testing.T) {
	svc := NewAnalysisService(config.AnalysisConfig{}, nil)
	assert.Equal(t, stats.CorrectionHolm, svc.correction)
	assert.Equal(t, 1, svc.workers)
	assert.Equal(t, hypothesis.DefaultLowExpectedCount, svc.lowExpected)
}

func TestIndependence_TwoByTwoAddsFisher(t *testing.T) {
	svc, logs := newTestService(t, stats.CorrectionHolm)
	table := stats.NewContingencyTable([][]int{{8, 2}, {3, 7}})

	report, err := svc.Independence(context.Background(), table)
	require.NoError(t, err)
	assert.False(t, report.RunID == "")
	require.NotNil(t, report.ChiSquare)
	require.NotNil(t, report.Fisher)
	assert.Nil(t, report.Pairwise)
	assert.InDelta(t, 0.06977851869492735, report.Fisher.PValue, 1e-9)

	// the low expected count warning is logged with the run id
	warned := logs.FilterMessageSnippet(string(stats.WarningLowExpected)).All()
	require.NotEmpty(t, warned)
	assert.Equal(t, report.RunID.String(), warned[0].ContextMap()["run_id"])
}

func TestIndependence_ManyRowsAddsPairwiseFisher(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionBonferroni)

	report, err := svc.Independence(context.Background(), infectionTable)
	require.NoError(t, err)
	assert.Nil(t, report.Fisher)
	require.NotNil(t, report.Pairwise)
	assert.Equal(t, stats.CorrectionBonferroni, report.Pairwise.Method)
	require.Len(t, report.Pairwise.Comparisons, 3)
	for _, c := range report.Pairwise.Comparisons {
		assert.Equal(t, stats.TestPairwiseFisher, c.Test)
		assert.InDelta(t, min(1, 3*c.RawP), c.CorrectedP, 1e-12)
	}
}

func TestIndependence_InvalidTable(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionHolm)
	_, err := svc.Independence(context.Background(), stats.NewContingencyTable([][]int{{1, -1}, {2, 3}}))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.True(t, core.IsInvalidInputError(err))
}

func TestPairwiseProportions(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionHolm)
	groups := infectionTable.ProportionGroups()

	report, err := svc.PairwiseProportions(context.Background(), groups, "")
	require.NoError(t, err)
	assert.Equal(t, stats.CorrectionHolm, report.Method)
	require.Len(t, report.Comparisons, 3)

	// pair order is input order regardless of worker scheduling
	assert.Equal(t, [][2]string{{"control", "high"}, {"control", "low"}, {"high", "low"}},
		[][2]string{
			{report.Comparisons[0].Group1, report.Comparisons[0].Group2},
			{report.Comparisons[1].Group1, report.Comparisons[1].Group2},
			{report.Comparisons[2].Group1, report.Comparisons[2].Group2},
		})

	raw := make([]float64, len(report.Comparisons))
	for i, c := range report.Comparisons {
		direct, err := hypothesis.TwoProportionZTestGroups(groups[pairIndex(i)[0]], groups[pairIndex(i)[1]])
		require.NoError(t, err)
		assert.Equal(t, direct.PValue, c.RawP)
		raw[i] = c.RawP
	}
	holm, err := correction.Holm(raw)
	require.NoError(t, err)
	for i, c := range report.Comparisons {
		assert.Equal(t, holm[i], c.CorrectedP)
		assert.Equal(t, holm[i] < stats.SignificanceLevel, c.Significant)
	}
}

// pairIndex maps the position of a pair among three groups to its indices
func pairIndex(i int) [2]int {
	return [][2]int{{0, 1}, {0, 2}, {1, 2}}[i]
}

func TestPairwiseProportions_Errors(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionHolm)
	ctx := context.Background()

	_, err := svc.PairwiseProportions(ctx, []stats.ProportionGroup{{Name: "a", Successes: 1, Trials: 2}}, "")
	assert.Equal(t, errors.CodeInsufficientData, errors.GetCode(err))

	_, err = svc.PairwiseProportions(ctx, []stats.ProportionGroup{
		{Name: "a", Successes: 1, Trials: 2},
		{Name: "b", Successes: 5, Trials: 4},
	}, "")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Contains(t, err.Error(), "a vs b")

	_, err = svc.PairwiseProportions(ctx, infectionTable.ProportionGroups(), stats.CorrectionMethod("sidak"))
	assert.Equal(t, errors.CodeUnsupportedMethod, errors.GetCode(err))
}

func TestCompareMeans(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionHolm)

	report, err := svc.CompareMeans(context.Background(), eggCounts)
	require.NoError(t, err)
	assert.InDelta(t, 16.8, report.ANOVA.Statistic, 1e-9)
	assert.Same(t, report.ANOVA, report.Tukey.ANOVA)
	assert.Len(t, report.Tukey.Comparisons, 3)

	_, err = svc.CompareMeans(context.Background(), eggCounts[:1])
	assert.Equal(t, errors.CodeInsufficientData, errors.GetCode(err))
}

func TestFactorialAndSurvival(t *testing.T) {
	svc, logs := newTestService(t, stats.CorrectionHolm)
	ctx := context.Background()

	design := stats.FactorialDesign{Factors: []string{"dose"}}
	for i, g := range eggCounts {
		for _, v := range g.Values {
			design.Observations = append(design.Observations, stats.FactorialObservation{Levels: []string{fmt.Sprint(i)}, Value: v})
		}
	}
	multi, err := svc.Factorial(ctx, design)
	require.NoError(t, err)
	assert.False(t, multi.RunID == "")
	require.NotNil(t, multi.MultiWay)
	assert.InDelta(t, 16.8, multi.MultiWay.Statistic, 1e-9)

	logRank, err := svc.Survival(ctx, survivalGroups)
	require.NoError(t, err)
	assert.Equal(t, 1, logRank.DF)
	assert.Equal(t, 3, logRank.EventTimes)
	assert.Equal(t, 1, logs.FilterMessageSnippet("over 3 event times").Len())

	_, err = svc.Factorial(ctx, stats.FactorialDesign{})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestCorrect(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionFDR)
	ctx := context.Background()

	adjusted, err := svc.Correct(ctx, []float64{0.01, 0.04, 0.03}, "")
	require.NoError(t, err)
	expected, err := correction.BenjaminiHochberg([]float64{0.01, 0.04, 0.03})
	require.NoError(t, err)
	assert.Equal(t, expected, adjusted)

	_, err = svc.Correct(ctx, []float64{1.5}, stats.CorrectionBonferroni)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestCanceledContext(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionHolm)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Independence(ctx, infectionTable)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.PairwiseProportions(ctx, infectionTable.ProportionGroups(), "")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.CompareMeans(ctx, eggCounts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeExperiment(t *testing.T) {
	svc, logs := newTestService(t, stats.CorrectionHolm)
	ctx := context.Background()
	id := core.ExperimentID("exp-1")

	source := new(MockObservationSource)
	source.On("InfectionTable", ctx, id).Return(infectionTable, nil)
	source.On("Measurements", ctx, id, "eggs").Return(eggCounts, nil)
	source.On("Survival", ctx, id).Return(survivalGroups, nil)

	report, err := svc.AnalyzeExperiment(ctx, source, id, "eggs")
	require.NoError(t, err)
	source.AssertExpectations(t)

	assert.Equal(t, id, report.ExperimentID)
	assert.Empty(t, report.Skipped)
	require.NotNil(t, report.Independence)
	require.NotNil(t, report.Proportions)
	require.NotNil(t, report.Means)
	require.NotNil(t, report.Survival)
	assert.Equal(t, report.RunID, report.Independence.RunID)
	assert.Equal(t, report.RunID, report.Proportions.RunID)
	assert.Len(t, report.Proportions.Comparisons, 3)

	entries := logs.FilterField(zap.String("experiment_id", "exp-1")).All()
	assert.NotEmpty(t, entries)
}

func TestAnalyzeExperiment_SkipsMissingFamilies(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionHolm)
	ctx := context.Background()
	id := core.ExperimentID("exp-2")
	notFound := fmt.Errorf("%w: %s", core.ErrExperimentNotFound, id)

	source := new(MockObservationSource)
	source.On("InfectionTable", ctx, id).Return(stats.ContingencyTable{}, notFound)
	source.On("Survival", ctx, id).Return(survivalGroups, nil)

	report, err := svc.AnalyzeExperiment(ctx, source, id, "")
	require.NoError(t, err)
	source.AssertExpectations(t)
	source.AssertNotCalled(t, "Measurements", mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, []string{"infection", "measurements"}, report.Skipped)
	assert.Nil(t, report.Independence)
	assert.NotNil(t, report.Survival)
}

func TestAnalyzeExperiment_NothingToAnalyze(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionHolm)
	ctx := context.Background()
	id := core.ExperimentID("exp-3")
	notFound := fmt.Errorf("%w: %s", core.ErrExperimentNotFound, id)

	source := new(MockObservationSource)
	source.On("InfectionTable", ctx, id).Return(stats.ContingencyTable{}, notFound)
	source.On("Measurements", ctx, id, "eggs").Return([]stats.GroupSample(nil), notFound)
	source.On("Survival", ctx, id).Return([]stats.SurvivalGroup(nil), notFound)

	_, err := svc.AnalyzeExperiment(ctx, source, id, "eggs")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestAnalyzeExperiment_SourceFailure(t *testing.T) {
	svc, _ := newTestService(t, stats.CorrectionHolm)
	ctx := context.Background()
	id := core.ExperimentID("exp-4")

	source := new(MockObservationSource)
	source.On("InfectionTable", ctx, id).Return(stats.ContingencyTable{},
		errors.DatabaseError("failed to query infection table", stderrors.New("connection refused")))

	_, err := svc.AnalyzeExperiment(ctx, source, id, "eggs")
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
	source.AssertNotCalled(t, "Survival", mock.Anything, mock.Anything)
}
