package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"labstats/adapters/excel"
	"labstats/adapters/postgres"
	"labstats/app"
	"labstats/domain/core"
	"labstats/domain/stats"
	"labstats/internal"
	"labstats/internal/analysis/correction"
	"labstats/internal/analysis/hypothesis"
	"labstats/internal/config"
	"labstats/internal/errors"
	"labstats/ports"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.IsAppError(err) {
			fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errors.GetCode(err), err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "labstats",
		Short: "Hypothesis tests for infection, reproduction and survival experiments",
		Long: `Run hypothesis tests on experiment data.

Requests are YAML (or JSON) files, "-" reads standard input. Results are
written as YAML so that NaN and infinite values survive.

Configuration is read from the environment and an optional .env file:
- LOG_LEVEL (ERROR|WARN|INFO|DEBUG|TRACE, default INFO)
- CORRECTION_METHOD (none|bonferroni|holm|fdr, default holm)
- ANALYSIS_WORKERS (default 4)
- LOW_EXPECTED_COUNT (default 5)
- DATABASE_URL, DB_MAX_OPEN_CONNS, DB_QUERY_TIMEOUT
- EXCEL_FILE`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional env file read before the environment")

	load := func() (*runtime, error) { return newRuntime(envFile) }

	rootCmd.AddCommand(
		newChiSquareCmd(load),
		newFisherCmd(),
		newZTestCmd(),
		newPairwiseCmd(load),
		newANOVACmd(),
		newTukeyCmd(load),
		newMultiWayCmd(load),
		newLogRankCmd(load),
		newCorrectCmd(load),
		newExperimentCmd(load),
	)
	return rootCmd
}

// runtime is the configuration, logger and service shared by the commands
type runtime struct {
	cfg     *config.Config
	logger  *internal.Logger
	service *app.AnalysisService
}

func newRuntime(envFile string) (*runtime, error) {
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, err
	}
	logger := internal.NewLoggerWithOptions(cfg.Log.Level, cfg.Log.Development)
	return &runtime{
		cfg:     cfg,
		logger:  logger,
		service: app.NewAnalysisService(cfg.Analysis, logger),
	}, nil
}

func newChiSquareCmd(load func() (*runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "chisq [table-file]",
		Short: "Chi-square test of independence (plus Fisher's exact test for 2x2 tables)",
		Long: `Test a contingency table for independence.

Example table file:
  row_labels: [control, treated]
  column_labels: [infected, uninfected]
  counts:
    - [11, 9]
    - [2, 18]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			var table stats.ContingencyTable
			if err := readRequest(cmd, args[0], &table); err != nil {
				return err
			}
			report, err := rt.service.Independence(cmd.Context(), table)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), report)
		},
	}
}

func newFisherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fisher [a] [b] [c] [d]",
		Short: "Fisher's exact test on the 2x2 table [[a, b], [c, d]]",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cells, err := parseInts(args)
			if err != nil {
				return err
			}
			result, err := hypothesis.FisherExact(cells[0], cells[1], cells[2], cells[3])
			if err != nil {
				return errors.Wrap(err, "fisher exact test failed")
			}
			return writeYAML(cmd.OutOrStdout(), result)
		},
	}
}

func newZTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ztest [x1] [n1] [x2] [n2]",
		Short: "Two-proportion z-test of x1/n1 against x2/n2",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseInts(args)
			if err != nil {
				return err
			}
			result, err := hypothesis.TwoProportionZTest(v[0], v[1], v[2], v[3])
			if err != nil {
				return errors.Wrap(err, "two-proportion z-test failed")
			}
			return writeYAML(cmd.OutOrStdout(), result)
		},
	}
}

func newPairwiseCmd(load func() (*runtime, error)) *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "pairwise [groups-file]",
		Short: "Two-proportion z-tests for every pair of groups, corrected for multiple testing",
		Long: `Compare every pair of proportions and correct the family.

Example groups file:
  - {name: control, successes: 11, trials: 20}
  - {name: low, successes: 6, trials: 20}
  - {name: high, successes: 2, trials: 20}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			m, err := parseMethodFlag(method)
			if err != nil {
				return err
			}
			var groups []stats.ProportionGroup
			if err := readRequest(cmd, args[0], &groups); err != nil {
				return err
			}
			report, err := rt.service.PairwiseProportions(cmd.Context(), groups, m)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&method, "method", "", "Correction method: none|bonferroni|holm|fdr (default CORRECTION_METHOD)")
	return cmd
}

func newANOVACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "anova [groups-file]",
		Short: "One-way ANOVA",
		Long: `Compare group means with a one-way ANOVA.

Example groups file:
  - {name: control, values: [12, 14, 9]}
  - {name: exposed, values: [3, 5, 4]}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var groups []stats.GroupSample
			if err := readRequest(cmd, args[0], &groups); err != nil {
				return err
			}
			result, err := hypothesis.OneWayANOVA(groups)
			if err != nil {
				return errors.Wrap(err, "one-way ANOVA failed")
			}
			return writeYAML(cmd.OutOrStdout(), result)
		},
	}
}

func newTukeyCmd(load func() (*runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "tukey [groups-file]",
		Short: "One-way ANOVA followed by Tukey's HSD pairwise comparisons",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			var groups []stats.GroupSample
			if err := readRequest(cmd, args[0], &groups); err != nil {
				return err
			}
			report, err := rt.service.CompareMeans(cmd.Context(), groups)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), report)
		},
	}
}

func newMultiWayCmd(load func() (*runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "multiway [design-file]",
		Short: "Multi-way ANOVA with up to three factors",
		Long: `Run a factorial ANOVA with main effects and interactions.

Example design file:
  factors: [dose, temperature]
  observations:
    - {levels: [low, 20C], value: 12}
    - {levels: [high, 25C], value: 4}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			var design stats.FactorialDesign
			if err := readRequest(cmd, args[0], &design); err != nil {
				return err
			}
			result, err := rt.service.Factorial(cmd.Context(), design)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), result)
		},
	}
}

func newLogRankCmd(load func() (*runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "logrank [survival-file]",
		Short: "Log-rank test comparing survival between groups",
		Long: `Compare survival curves with the log-rank test.

Example survival file (event false = censored):
  - name: control
    records: [{time: 30, event: false}, {time: 21, event: true}]
  - name: exposed
    records: [{time: 4, event: true}, {time: 6, event: true}]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			var groups []stats.SurvivalGroup
			if err := readRequest(cmd, args[0], &groups); err != nil {
				return err
			}
			result, err := rt.service.Survival(cmd.Context(), groups)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), result)
		},
	}
}

// correctedValue pairs a raw p-value with its adjusted value
type correctedValue struct {
	Raw      float64 `yaml:"raw"`
	Adjusted float64 `yaml:"adjusted"`
}

func newCorrectCmd(load func() (*runtime, error)) *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "correct [p-values...]",
		Short: "Adjust p-values for multiple testing",
		Long: `Adjust a family of p-values. Output keeps the input order.

Example: labstats correct --method fdr 0.01 0.04 0.03 0.20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			m, err := parseMethodFlag(method)
			if err != nil {
				return err
			}
			raw := make([]float64, len(args))
			for i, a := range args {
				if raw[i], err = strconv.ParseFloat(a, 64); err != nil {
					return errors.InvalidInput(fmt.Sprintf("p-value %q is not a number", a))
				}
			}
			adjusted, err := rt.service.Correct(cmd.Context(), raw, m)
			if err != nil {
				return err
			}
			out := make([]correctedValue, len(raw))
			for i := range raw {
				out[i] = correctedValue{Raw: raw[i], Adjusted: adjusted[i]}
			}
			return writeYAML(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&method, "method", "", "Correction method: none|bonferroni|holm|fdr (default CORRECTION_METHOD)")
	return cmd
}

func newExperimentCmd(load func() (*runtime, error)) *cobra.Command {
	var metric string
	var workbook string
	var databaseURL string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "experiment [experiment-id]",
		Short: "Run every supported analysis on a stored experiment",
		Long: `Load an experiment and run the infection (chi-square, Fisher, pairwise
z-tests), measurement (ANOVA, Tukey) and survival (log-rank) analyses.

Observations come from Postgres when --database-url or DATABASE_URL is set,
otherwise from the workbook given by --workbook or EXCEL_FILE (.xlsx, or a
directory of infection.csv / measurements.csv / survival.csv).

Example: labstats experiment 0190c1d2-... --metric offspring --workbook results.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			experimentID, err := core.ParseExperimentID(args[0])
			if err != nil {
				return errors.WithCode(errors.CodeInvalidInput, err)
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			source, closeSource, err := openSource(ctx, rt, databaseURL, workbook)
			if err != nil {
				return err
			}
			defer closeSource()

			report, err := rt.service.AnalyzeExperiment(ctx, source, experimentID, metric)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&metric, "metric", "", "Reproduction metric for the ANOVA (skipped when empty)")
	cmd.Flags().StringVar(&workbook, "workbook", "", "Workbook path (default EXCEL_FILE)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default DATABASE_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout, 0 for none")
	return cmd
}

// openSource picks Postgres when a database URL is configured, else the workbook
func openSource(ctx context.Context, rt *runtime, databaseURL, workbook string) (ports.ObservationSource, func(), error) {
	if databaseURL == "" {
		databaseURL = rt.cfg.Database.URL
	}
	if databaseURL != "" {
		db, err := postgres.Connect(ctx, databaseURL, rt.cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, nil, err
		}
		rt.logger.Debug("reading observations from postgres")
		return postgres.NewObservationRepository(db, rt.cfg.Database.QueryTimeout), func() { db.Close() }, nil
	}

	if workbook == "" {
		workbook = rt.cfg.Data.WorkbookPath
	}
	if workbook == "" {
		return nil, nil, errors.ConfigInvalid("no observation source: set --database-url / DATABASE_URL or --workbook / EXCEL_FILE")
	}
	rt.logger.Debug("reading observations from workbook %s", workbook)
	return excel.NewWorkbookSource(workbook, rt.logger), func() {}, nil
}

func parseMethodFlag(method string) (stats.CorrectionMethod, error) {
	if method == "" {
		return "", nil
	}
	m, err := correction.ParseMethod(method)
	if err != nil {
		return "", errors.Wrap(err, "invalid --method")
	}
	return m, nil
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("argument %d (%q) is not an integer", i+1, a))
		}
		out[i] = v
	}
	return out, nil
}

// readRequest decodes a YAML or JSON request file; "-" reads the command's input
func readRequest(cmd *cobra.Command, path string, v interface{}) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(errors.InvalidInput(err.Error()), "failed to open request file %s", path)
		}
		defer f.Close()
		r = f
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.InvalidInput(fmt.Sprintf("request %s is empty", path))
		}
		return errors.InvalidInput(fmt.Sprintf("failed to parse request %s: %v", path, err))
	}
	return nil
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode result")
	}
	return enc.Close()
}
