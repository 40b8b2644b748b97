// Package runner fans the evaluation engine out over every stored ticker
// and hands the results to the recorder. A ticker that cannot be evaluated
// is logged, counted and skipped; it never stops the batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/domain"
	"marketpulse/internal/monitoring"
	"marketpulse/internal/series"
	"marketpulse/internal/store"
)

// Stats counts the outcome of one batch.
type Stats struct {
	Evaluated int
	Skipped   int
}

// Deps are the collaborators shared by every job.
type Deps struct {
	Prices   store.PriceStore
	Features store.FeatureStore
	Recorder store.ResultRecorder
	Metrics  *monitoring.Recorder
	Log      *zap.Logger
}

type unitFunc func(ctx context.Context, ticker string) error

// fanOut runs fn for every ticker with at most workers in flight. Unit
// errors are logged and counted; only cancellation of ctx aborts the
// batch.
func fanOut(ctx context.Context, job string, deps Deps, workers int, tickers []string, fn unitFunc) (Stats, error) {
	if workers <= 0 {
		workers = 1
	}
	var evaluated, skipped atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, ticker := range tickers {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			start := time.Now()
			err := fn(egCtx, ticker)
			switch {
			case err == nil:
				evaluated.Add(1)
				deps.Metrics.UnitEvaluated(job, time.Since(start))
				deps.Log.Debug("unit recorded", zap.String("ticker", ticker), zap.Duration("elapsed", time.Since(start)))
			case egCtx.Err() != nil:
				return egCtx.Err()
			default:
				skipped.Add(1)
				deps.Metrics.UnitSkipped(job, err)
				if errors.Is(err, domain.ErrInsufficientData) {
					deps.Log.Warn("skipping ticker", zap.String("ticker", ticker), zap.Error(err))
				} else {
					deps.Log.Error("ticker failed", zap.String("ticker", ticker), zap.Error(err))
				}
			}
			return nil
		})
	}
	err := eg.Wait()
	if err == nil {
		err = ctx.Err()
	}

	stats := Stats{Evaluated: int(evaluated.Load()), Skipped: int(skipped.Load())}
	if err != nil {
		return stats, err
	}
	deps.Metrics.RunFinished(job, time.Now())
	deps.Log.Info("batch finished",
		zap.Int("tickers", len(tickers)),
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// table is the inner join of a ticker's prices and features on date.
type table struct {
	rows   []domain.FeatureRow
	closes []float64
}

func (t table) dates() []time.Time {
	out := make([]time.Time, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Date
	}
	return out
}

// loadTable reads and joins the price and feature tables of ticker.
func loadTable(ctx context.Context, deps Deps, ticker string) (table, error) {
	prices, err := deps.Prices.ReadAllPrices(ctx, ticker)
	if err != nil {
		return table{}, fmt.Errorf("reading prices: %w", err)
	}
	features, err := deps.Features.ReadFeatures(ctx, ticker)
	if err != nil {
		return table{}, fmt.Errorf("reading features: %w", err)
	}

	byDay := make(map[time.Time]domain.FeatureRow, len(features))
	for _, f := range features {
		byDay[f.Date] = f
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Date.Before(prices[j].Date) })

	var t table
	for _, p := range prices {
		f, ok := byDay[p.Date]
		if !ok {
			continue
		}
		values := make(map[string]float64, len(f.Values)+1)
		for k, v := range f.Values {
			values[k] = v
		}
		t.rows = append(t.rows, domain.FeatureRow{Ticker: ticker, Date: p.Date, Values: values})
		t.closes = append(t.closes, p.Close)
	}
	if err := series.ValidateDated(t.rows); err != nil {
		return table{}, err
	}
	return t, nil
}

// column extracts name from rows as a Series.
func column(rows []domain.FeatureRow, name string) (series.Series, error) {
	s, err := series.Column(rows, name)
	if err != nil {
		return series.Series{}, fmt.Errorf("column %s: %w", name, err)
	}
	return s, nil
}
