package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/dashboard"
	"marketpulse/internal/domain"
	"marketpulse/internal/features"
	"marketpulse/internal/gather"
	"marketpulse/internal/gather/us"
	"marketpulse/internal/model/logreg"
	"marketpulse/internal/runner"
	"marketpulse/internal/split"
	"marketpulse/internal/store"
	"marketpulse/internal/strategy"
	"marketpulse/internal/strategy/builtins"
)

var (
	gatherWithFeatures bool
	sentimentCSV       string
	reportSort         string
	reportXLSX         string
)

var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Fetch daily bars from Alpaca into the price store",
	RunE:  runGather,
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Recompute the feature table of every stored ticker",
	RunE:  runFeatures,
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest the configured rule-based strategy on every ticker",
	RunE:  runBacktest,
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Train, score and backtest the classifier on every ticker",
	RunE:  runModel,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compare recorded results with buy-and-hold",
	RunE:  runReport,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return config.Write(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	gatherCmd.Flags().BoolVar(&gatherWithFeatures, "features", false, "recompute features after fetching")
	featuresCmd.Flags().StringVar(&sentimentCSV, "sentiment", "", "import a ticker,date,avg_sentiment CSV before computing")
	reportCmd.Flags().StringVar(&reportSort, "sort", "sharpe", "rank by sharpe, return, excess or dsharpe")
	reportCmd.Flags().StringVar(&reportXLSX, "xlsx", "", "also write the report to this workbook (default report.xlsx_path)")

	rootCmd.AddCommand(gatherCmd, featuresCmd, backtestCmd, modelCmd, reportCmd, configCmd)
}

func runGather(cmd *cobra.Command, _ []string) error {
	a, done, err := setup()
	if err != nil {
		return err
	}
	defer done()

	cfg := a.cfg
	if len(cfg.Gather.Tickers) == 0 {
		return fmt.Errorf("gather.tickers is empty")
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return fmt.Errorf("alpaca credentials are not set")
	}

	var daily *us.DailyBarGatherer
	bars := us.NewClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	opts := us.Options{
		Tickers:         cfg.Gather.Tickers,
		StartDate:       cfg.Gather.StartDate,
		Feed:            cfg.Alpaca.Feed,
		BatchSize:       cfg.Gather.BatchSize,
		MaxWorkers:      cfg.Gather.MaxWorkers,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		MaxRetries:      cfg.Gather.MaxRetries,
		RetryDelay:      cfg.Gather.RetryDelay,
		ProgressDir:     filepath.Join(cfg.Storage.DataDir, "prices"),
	}
	if cfg.Alpaca.TradingURL != "" {
		cal := us.NewCalendar(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.TradingURL)
		daily = us.NewDailyBarGatherer(bars, cal, a.parquet, opts, a.log)
	} else {
		daily = us.NewDailyBarGatherer(bars, nil, a.parquet, opts, a.log)
	}

	stages := []gather.Gatherer{daily}
	if gatherWithFeatures {
		stages = append(stages, features.NewJob(a.parquet, a.parquet, a.parquet, a.log))
	}
	return gather.RunAll(cmd.Context(), a.log, stages...)
}

func runFeatures(cmd *cobra.Command, _ []string) error {
	a, done, err := setup()
	if err != nil {
		return err
	}
	defer done()

	var stages []gather.Gatherer
	if sentimentCSV != "" {
		stages = append(stages, features.NewSentimentImport(sentimentCSV, a.parquet, a.log))
	}
	stages = append(stages, features.NewJob(a.parquet, a.parquet, a.parquet, a.log))
	return gather.RunAll(cmd.Context(), a.log, stages...)
}

func runBacktest(cmd *cobra.Command, _ []string) (err error) {
	a, done, err := setup()
	if err != nil {
		return err
	}
	defer done()

	reg := strategy.NewRegistry()
	reg.Register(builtins.NewDefaultMACross())
	gen, ok := reg.Get(a.cfg.Backtest.StrategyID)
	if !ok {
		return fmt.Errorf("unknown strategy %q (have %s)", a.cfg.Backtest.StrategyID, strings.Join(reg.List(), ", "))
	}

	results, err := a.openResults()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, results.Close()) }()
	defer a.flushMetrics()

	job := runner.NewCrossoverJob(a.deps(results), gen, runner.CrossoverOptions{
		MinRows:     a.cfg.Backtest.MinRows,
		StartEquity: a.cfg.Backtest.StartEquity,
		Sharpe:      a.sharpe(),
		MaxWorkers:  a.cfg.Backtest.MaxWorkers,
	})
	stats, err := job.Evaluate(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tickers recorded, %d skipped\n", gen.Name(), stats.Evaluated, stats.Skipped)
	return nil
}

func runModel(cmd *cobra.Command, _ []string) (err error) {
	a, done, err := setup()
	if err != nil {
		return err
	}
	defer done()

	results, err := a.openResults()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, results.Close()) }()
	defer a.flushMetrics()

	mc := a.cfg.Model
	trainer := logreg.New(logreg.Options{C: mc.C, MaxIter: mc.MaxIter})
	signal := builtins.NewThreshold(mc.ModelID, domain.ColProbUp, mc.Threshold)
	job := runner.NewModelJob(a.deps(results), trainer, signal, runner.ModelOptions{
		ModelID:  mc.ModelID,
		Features: mc.Features,
		Horizon:  mc.Horizon,
		Split: split.Options{
			TrainRatio: mc.TrainRatio,
			MinTrain:   mc.MinTrain,
			MinTest:    mc.MinTest,
		},
		StartEquity: a.cfg.Backtest.StartEquity,
		Sharpe:      a.sharpe(),
		MaxWorkers:  a.cfg.Backtest.MaxWorkers,
	})
	stats, err := job.Evaluate(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tickers recorded, %d skipped\n", mc.ModelID, stats.Evaluated, stats.Skipped)
	return nil
}

func runReport(cmd *cobra.Command, _ []string) (err error) {
	a, done, err := setup()
	if err != nil {
		return err
	}
	defer done()

	mode, err := parseSortMode(reportSort)
	if err != nil {
		return err
	}

	results, err := a.openResults()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, results.Close()) }()

	rep, err := dashboard.Build(cmd.Context(), results, dashboard.Options{
		Sharpe:   a.sharpe(),
		SortMode: mode,
	})
	if err != nil {
		return err
	}
	if len(rep.Groups) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no results recorded yet; run backtest or model first")
		return nil
	}
	dashboard.RenderTable(cmd.OutOrStdout(), rep)

	path := reportXLSX
	if path == "" {
		path = a.cfg.Report.XLSXPath
	}
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := dashboard.WriteXLSX(path, rep); err != nil {
		return err
	}
	a.log.Info("workbook written", zap.String("path", path))
	return nil
}

func (a *app) deps(results store.ResultRecorder) runner.Deps {
	return runner.Deps{
		Prices:   a.parquet,
		Features: a.parquet,
		Recorder: results,
		Metrics:  a.metrics,
		Log:      a.log,
	}
}

func parseSortMode(s string) (int, error) {
	for mode := 0; mode < dashboard.SortModeCount; mode++ {
		if strings.EqualFold(s, dashboard.SortModeLabel(mode)) {
			return mode, nil
		}
	}
	switch strings.ToLower(s) {
	case "dsharpe", "delta":
		return dashboard.SortSharpeDelta, nil
	}
	return 0, fmt.Errorf("unknown sort %q", s)
}
