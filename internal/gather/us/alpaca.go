// Package us gathers daily prices for a configured ticker list from the
// Alpaca market-data API.
package us

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/domain"
	"marketpulse/internal/gather"
	"marketpulse/internal/store"
	"marketpulse/internal/util"
)

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// barSource is the part of the Alpaca market-data client the gatherer uses.
type barSource interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// Options configures a DailyBarGatherer.
type Options struct {
	Tickers         []string
	StartDate       string // YYYY-MM-DD
	Feed            string // "iex" or "sip"
	BatchSize       int    // tickers per API call
	MaxWorkers      int
	RateLimitPerMin int
	MaxRetries      int
	RetryDelay      time.Duration
	ProgressDir     string // where .last-completed and .empty-tickers live
}

// DailyBarGatherer fetches daily bars for the configured tickers and merges
// them into the price store.
type DailyBarGatherer struct {
	bars     barSource
	calendar calendarSource
	store    store.PriceStore
	opts     Options
	limiter  *util.RateLimiter
	now      func() time.Time
	log      *zap.Logger
}

// NewClient builds the Alpaca market-data client.
func NewClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// NewDailyBarGatherer creates a gatherer. cal may be nil, in which case the
// end date is the last completed weekday.
func NewDailyBarGatherer(bars barSource, cal calendarSource, s store.PriceStore, opts Options, log *zap.Logger) *DailyBarGatherer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.Feed == "" {
		opts.Feed = "iex"
	}
	return &DailyBarGatherer{
		bars:     bars,
		calendar: cal,
		store:    s,
		opts:     opts,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		now:      time.Now,
		log:      util.OrNop(log).With(zap.String("gatherer", "us-daily")),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars from StartDate through the latest finished trading
// day and writes them to the price store. It is resumable and idempotent
// within a day.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	start, err := util.ParseDay(g.opts.StartDate)
	if err != nil {
		return err
	}
	end, err := latestFinishedTradingDay(g.calendar, g.now())
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s precedes start date %s: %w", end.Format(time.DateOnly), g.opts.StartDate, domain.ErrInvalidInput)
	}
	endStr := end.Format(time.DateOnly)

	tracker, err := newProgressTracker(g.opts.ProgressDir)
	if err != nil {
		return err
	}
	defer tracker.Close()

	if tracker.IsCompleted(endStr) {
		g.log.Info("already completed", zap.String("end", endStr))
		return nil
	}
	if last := tracker.LastCompleted(); last != "" && last != endStr {
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting tracker: %w", err)
		}
	}

	var remaining []string
	seen := make(map[string]struct{}, len(g.opts.Tickers))
	for _, t := range g.opts.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if _, dup := seen[t]; dup || t == "" || tracker.IsEmpty(t) {
			continue
		}
		seen[t] = struct{}{}
		remaining = append(remaining, t)
	}

	var batches [][]string
	for i := 0; i < len(remaining); i += g.opts.BatchSize {
		batches = append(batches, remaining[i:min(i+g.opts.BatchSize, len(remaining))])
	}
	g.log.Info("starting",
		zap.String("start", g.opts.StartDate),
		zap.String("end", endStr),
		zap.Int("tickers", len(remaining)),
		zap.Int("batches", len(batches)),
	)

	var (
		hits, misses, failed atomic.Int64
		runStart             = time.Now()
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxWorkers)
	for i, batch := range batches {
		eg.Go(func() error {
			label := fmt.Sprintf("%d/%d", i+1, len(batches))
			prices, err := g.fetch(egCtx, batch, start, end)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				failed.Add(1)
				g.log.Error("batch fetch failed", zap.String("batch", label), zap.Error(err))
				return nil
			}

			got := make(map[string]struct{})
			for _, p := range prices {
				got[p.Ticker] = struct{}{}
			}
			var empty []string
			for _, t := range batch {
				if _, ok := got[t]; !ok {
					empty = append(empty, t)
				}
			}

			if err := g.store.WritePrices(egCtx, prices); err != nil {
				failed.Add(1)
				g.log.Error("writing prices failed", zap.String("batch", label), zap.Error(err))
				return nil
			}
			if len(empty) > 0 {
				if err := tracker.MarkEmpty(empty); err != nil {
					g.log.Warn("marking empty tickers failed", zap.Error(err))
				}
				g.log.Warn("tickers without bars", zap.Strings("tickers", empty))
			}

			hits.Add(int64(len(got)))
			misses.Add(int64(len(empty)))
			g.log.Info("batch done",
				zap.String("batch", label),
				zap.Int("tickers", len(got)),
				zap.Int("bars", len(prices)),
				zap.Duration("elapsed", time.Since(runStart).Round(time.Second)),
			)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}
	if err := tracker.MarkCompleted(endStr); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}
	g.log.Info("complete",
		zap.Int64("hits", hits.Load()),
		zap.Int64("empty", misses.Load()),
		zap.Duration("elapsed", time.Since(runStart).Round(time.Second)),
	)
	return nil
}

// fetch retrieves daily bars for a batch of tickers in one API call.
func (g *DailyBarGatherer) fetch(ctx context.Context, tickers []string, start, end time.Time) ([]domain.PricePoint, error) {
	var multi map[string][]marketdata.Bar
	err := util.Retry(ctx, g.opts.MaxRetries, g.opts.RetryDelay, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		multi, err = g.bars.GetMultiBars(tickers, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end.AddDate(0, 0, 1),
			Feed:      g.opts.Feed,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var out []domain.PricePoint
	for symbol, bars := range multi {
		for _, b := range bars {
			out = append(out, domain.PricePoint{
				Ticker: strings.ToUpper(symbol),
				Date:   util.Day(b.Timestamp),
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: int64(b.Volume),
			})
		}
	}
	return out, nil
}
