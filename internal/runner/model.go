package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/backtest"
	"marketpulse/internal/domain"
	"marketpulse/internal/features"
	"marketpulse/internal/metrics"
	"marketpulse/internal/model"
	"marketpulse/internal/series"
	"marketpulse/internal/split"
	"marketpulse/internal/util"
)

// ModelOptions configures a ModelJob.
type ModelOptions struct {
	ModelID     string
	Features    []string
	Horizon     int
	Split       split.Options
	StartEquity float64
	Sharpe      metrics.SharpeOptions
	MaxWorkers  int
}

// ModelJob trains a classifier per ticker on the early part of its history
// and backtests the classifier's signals on the rest.
type ModelJob struct {
	deps    Deps
	trainer model.Trainer
	signal  model.Signaler
	opts    ModelOptions

	trainColumns []string // features plus label
	testColumns  []string // features plus ret_1d
}

// NewModelJob creates a model job. trainer fits one classifier per ticker;
// signal turns its probabilities into positions.
func NewModelJob(deps Deps, trainer model.Trainer, signal model.Signaler, opts ModelOptions) *ModelJob {
	if opts.Horizon <= 0 {
		opts.Horizon = 5
	}
	deps.Log = util.OrNop(deps.Log).Named("model").With(zap.String("model", opts.ModelID))
	j := &ModelJob{deps: deps, trainer: trainer, signal: signal, opts: opts}
	j.trainColumns = append(append([]string(nil), opts.Features...), domain.ColLabelUp5D)
	j.testColumns = append(append([]string(nil), opts.Features...), domain.ColReturn1D)
	return j
}

// Name returns the job name used in logs and metrics.
func (j *ModelJob) Name() string { return "model" }

// Run evaluates every ticker. See Evaluate.
func (j *ModelJob) Run(ctx context.Context) error {
	_, err := j.Evaluate(ctx)
	return err
}

// Evaluate trains, scores and records every ticker.
func (j *ModelJob) Evaluate(ctx context.Context) (Stats, error) {
	tickers, err := j.deps.Prices.ListTickers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("listing tickers: %w", err)
	}
	return fanOut(ctx, j.Name(), j.deps, j.opts.MaxWorkers, tickers, j.evaluate)
}

func (j *ModelJob) evaluate(ctx context.Context, ticker string) error {
	t, err := loadTable(ctx, j.deps, ticker)
	if err != nil {
		return err
	}

	label := features.ForwardUp(t.closes, j.opts.Horizon)
	for i := range t.rows {
		t.rows[i].Values[domain.ColLabelUp5D] = label[i]
	}
	rows := model.DropIncomplete(t.rows, domain.ColReturn1D)

	part, err := split.Split(rows, j.opts.Split)
	if err != nil {
		return err
	}
	train := model.DropIncomplete(part.Train, j.trainColumns...)
	test := model.DropIncomplete(part.Test, j.testColumns...)
	if err := split.CheckSizes(len(train), len(test), j.opts.Split); err != nil {
		return fmt.Errorf("after cleaning: %w", err)
	}

	x, y, err := model.Design(train, j.opts.Features, domain.ColLabelUp5D)
	if err != nil {
		return err
	}
	clf, err := j.trainer.Fit(x, y)
	if err != nil {
		return fmt.Errorf("fitting: %w", err)
	}
	preds, err := model.NewAdapter(j.opts.ModelID, j.opts.Features, clf, j.signal).Score(test)
	if err != nil {
		return err
	}

	positions := series.Series{
		Dates:  make([]time.Time, len(preds)),
		Values: make([]float64, len(preds)),
	}
	for i, p := range preds {
		positions.Dates[i] = p.Date
		positions.Values[i] = float64(p.Signal)
	}
	returns, err := column(test, domain.ColReturn1D)
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

	id := j.opts.ModelID
	summary, err := res.Summary(id, ticker, j.opts.Sharpe)
	if err != nil {
		return err
	}
	base, err := res.BuyAndHoldSummary(id, ticker, j.opts.Sharpe)
	if err != nil {
		return err
	}
	if err := j.deps.Recorder.SaveModelRun(ctx, summary, preds,
		res.EquityRows(id+domain.SuffixStrategy, ticker),
		res.BuyAndHoldRows(id, ticker),
	); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	j.deps.Log.Info("model run recorded",
		zap.String("ticker", ticker),
		zap.Int("train", len(train)),
		zap.Int("test", len(test)),
		zap.Float64("return", summary.CumulativeReturn),
		zap.Float64("sharpe", summary.Sharpe),
		zap.Float64("buy_hold_return", base.CumulativeReturn),
		zap.Float64("buy_hold_sharpe", base.Sharpe))
	return nil
}
