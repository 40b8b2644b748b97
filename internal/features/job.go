package features

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/domain"
	"marketpulse/internal/gather"
	"marketpulse/internal/store"
	"marketpulse/internal/util"
)

var (
	_ gather.Gatherer = (*Job)(nil)
	_ gather.Gatherer = (*SentimentImport)(nil)
)

// Job recomputes the feature table of every ticker that has prices. It
// implements gather.Gatherer so it can run as the stage after price
// ingestion.
type Job struct {
	prices    store.PriceStore
	sentiment store.SentimentStore
	features  store.FeatureStore
	log       *zap.Logger
}

// NewJob creates a feature job. sentiment may be nil, in which case every
// row carries an undefined avg_sentiment.
func NewJob(prices store.PriceStore, sentiment store.SentimentStore, features store.FeatureStore, log *zap.Logger) *Job {
	return &Job{
		prices:    prices,
		sentiment: sentiment,
		features:  features,
		log:       util.OrNop(log).Named("features"),
	}
}

// Name implements gather.Gatherer.
func (j *Job) Name() string { return "features" }

// Run rebuilds features for all tickers. A ticker that fails is logged and
// skipped; Run reports an error only when listing tickers fails or when
// every ticker failed.
func (j *Job) Run(ctx context.Context) error {
	tickers, err := j.prices.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("listing tickers: %w", err)
	}

	var failed int
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.runTicker(ctx, ticker)
		if err != nil {
			failed++
			if errors.Is(err, domain.ErrInsufficientData) {
				j.log.Warn("skipping ticker", zap.String("ticker", ticker), zap.Error(err))
			} else {
				j.log.Error("computing features failed", zap.String("ticker", ticker), zap.Error(err))
			}
			continue
		}
		j.log.Debug("features written", zap.String("ticker", ticker), zap.Int("rows", n))
	}

	j.log.Info("features done", zap.Int("tickers", len(tickers)), zap.Int("failed", failed))
	if failed > 0 && failed == len(tickers) {
		return fmt.Errorf("features failed for all %d tickers", failed)
	}
	return nil
}

func (j *Job) runTicker(ctx context.Context, ticker string) (int, error) {
	prices, err := j.prices.ReadAllPrices(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("reading prices: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no prices: %w", domain.ErrInsufficientData)
	}

	var sent map[time.Time]float64
	if j.sentiment != nil {
		if sent, err = j.sentiment.ReadSentiment(ctx, ticker); err != nil {
			return 0, fmt.Errorf("reading sentiment: %w", err)
		}
	}

	rows, err := Compute(prices, sent)
	if err != nil {
		return 0, err
	}
	if err := j.features.WriteFeatures(ctx, rows); err != nil {
		return 0, fmt.Errorf("writing features: %w", err)
	}
	return len(rows), nil
}
