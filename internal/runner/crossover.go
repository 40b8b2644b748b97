package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"marketpulse/internal/backtest"
	"marketpulse/internal/domain"
	"marketpulse/internal/metrics"
	"marketpulse/internal/series"
	"marketpulse/internal/strategy"
	"marketpulse/internal/util"
)

// CrossoverOptions configures a CrossoverJob.
type CrossoverOptions struct {
	MinRows     int
	StartEquity float64
	Sharpe      metrics.SharpeOptions
	MaxWorkers  int
}

// CrossoverJob backtests a rule-based generator on every ticker.
type CrossoverJob struct {
	deps Deps
	gen  strategy.Generator
	opts CrossoverOptions
}

// NewCrossoverJob creates a job that evaluates gen.
func NewCrossoverJob(deps Deps, gen strategy.Generator, opts CrossoverOptions) *CrossoverJob {
	deps.Log = util.OrNop(deps.Log).Named("crossover").With(zap.String("strategy", gen.Name()))
	return &CrossoverJob{deps: deps, gen: gen, opts: opts}
}

// Name returns the job name used in logs and metrics.
func (j *CrossoverJob) Name() string { return "crossover" }

// Run evaluates every ticker. See Evaluate.
func (j *CrossoverJob) Run(ctx context.Context) error {
	_, err := j.Evaluate(ctx)
	return err
}

// Evaluate removes the strategy's previous summaries, then backtests and
// records every ticker that has enough joined rows.
func (j *CrossoverJob) Evaluate(ctx context.Context) (Stats, error) {
	if err := j.deps.Recorder.DeleteStrategy(ctx, j.gen.Name()); err != nil {
		return Stats{}, fmt.Errorf("clearing %s: %w", j.gen.Name(), err)
	}
	tickers, err := j.deps.Prices.ListTickers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("listing tickers: %w", err)
	}
	return fanOut(ctx, j.Name(), j.deps, j.opts.MaxWorkers, tickers, j.evaluate)
}

func (j *CrossoverJob) evaluate(ctx context.Context, ticker string) error {
	t, err := loadTable(ctx, j.deps, ticker)
	if err != nil {
		return err
	}
	if len(t.rows) < j.opts.MinRows {
		return fmt.Errorf("%d joined rows, need %d: %w", len(t.rows), j.opts.MinRows, domain.ErrInsufficientData)
	}

	positions, err := j.gen.Generate(t.rows)
	if err != nil {
		return err
	}
	returns, err := series.New(t.dates(), series.PctChange(t.closes, 1))
	if err != nil {
		return err
	}
	res, err := backtest.Simulate(returns, positions, backtest.Options{
		StartEquity: j.opts.StartEquity,
		BuyAndHold:  true,
	})
	if err != nil {
		return err
	}

	id := j.gen.Name()
	summary, err := res.Summary(id, ticker, j.opts.Sharpe)
	if err != nil {
		return err
	}
	base, err := res.BuyAndHoldSummary(id, ticker, j.opts.Sharpe)
	if err != nil {
		return err
	}
	if err := j.deps.Recorder.SaveBacktest(ctx, summary, res.EquityRows(id, ticker), res.BuyAndHoldRows(id, ticker)); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	j.deps.Log.Info("backtest recorded",
		zap.String("ticker", ticker),
		zap.Float64("return", summary.CumulativeReturn),
		zap.Float64("sharpe", summary.Sharpe),
		zap.Float64("max_drawdown", summary.MaxDrawdown),
		zap.Float64("buy_hold_return", base.CumulativeReturn),
		zap.Float64("buy_hold_sharpe", base.Sharpe))
	return nil
}
