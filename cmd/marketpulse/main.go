package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/metrics"
	"marketpulse/internal/monitoring"
	"marketpulse/internal/store"
	"marketpulse/internal/util"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "marketpulse",
	Short:         "Backtest trading signals on daily equity data",
	Long:          "Ingest daily bars, derive features, backtest rule-based and model-driven signals, and report how they compare with buy-and-hold.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $MARKETPULSE_CONFIG or "+config.DefaultPath+")")
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is the state every subcommand shares.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	parquet *store.ParquetStore
	metrics *monitoring.Recorder
}

// setup loads the configuration and installs the logger. The returned func
// flushes the logger.
func setup() (*app, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := util.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	restore := util.SetDefault(logger)

	a := &app{
		cfg:     cfg,
		log:     logger,
		parquet: store.NewParquetStore(cfg.Storage.DataDir),
		metrics: monitoring.NewRecorder(),
	}
	return a, func() {
		_ = logger.Sync()
		restore()
	}, nil
}

func (a *app) sharpe() metrics.SharpeOptions {
	return metrics.SharpeOptions{
		RiskFreeDaily:  a.cfg.Backtest.RiskFreeDaily,
		PeriodsPerYear: metrics.TradingDaysPerYear,
	}
}

func (a *app) openResults() (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.cfg.Storage.SQLitePath, err)
	}
	return s, nil
}

// flushMetrics writes the run's metrics when a textfile path is configured.
func (a *app) flushMetrics() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
		a.log.Warn("metrics not written", zap.Error(err))
	}
}
