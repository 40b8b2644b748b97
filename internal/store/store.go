// Package store defines storage interfaces for the input tables (prices,
// features, sentiment) and for the evaluation results, together with their
// Parquet and SQLite implementations.
package store

import (
	"context"
	"time"

	"marketpulse/internal/domain"
)

// PriceStore persists and retrieves daily price observations.
type PriceStore interface {
	// WritePrices merges a batch of prices into storage, replacing any
	// existing observation with the same (ticker, date).
	WritePrices(ctx context.Context, prices []domain.PricePoint) error

	// ReadPrices returns prices for ticker within [start, end], ordered by
	// date.
	ReadPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PricePoint, error)

	// ReadAllPrices returns every stored price of ticker ordered by date.
	ReadAllPrices(ctx context.Context, ticker string) ([]domain.PricePoint, error)

	// ListTickers returns all tickers that have price data.
	ListTickers(ctx context.Context) ([]string, error)
}

// FeatureStore persists and retrieves derived feature rows.
type FeatureStore interface {
	// WriteFeatures replaces the stored feature table of every ticker that
	// appears in rows.
	WriteFeatures(ctx context.Context, rows []domain.FeatureRow) error

	// ReadFeatures returns the feature table of ticker ordered by date.
	ReadFeatures(ctx context.Context, ticker string) ([]domain.FeatureRow, error)
}

// SentimentStore persists per-date average news sentiment.
type SentimentStore interface {
	WriteSentiment(ctx context.Context, scores []SentimentScore) error
	ReadSentiment(ctx context.Context, ticker string) (map[time.Time]float64, error)
}

// SentimentScore is the average sentiment of a ticker's headlines on one day.
type SentimentScore struct {
	Ticker       string
	Date         time.Time
	AvgSentiment float64
}

// ResultRecorder persists evaluation output. Every Save call replaces the
// rows for its keys inside one transaction, so a unit is either fully
// recorded or not at all.
type ResultRecorder interface {
	// SaveBacktest records a rule-based strategy summary and its curves.
	SaveBacktest(ctx context.Context, summary domain.SummaryMetrics, curves ...[]domain.EquityRow) error

	// SaveModelRun records a model summary, its predictions and its curves.
	SaveModelRun(ctx context.Context, summary domain.SummaryMetrics, preds []domain.PredictionRow, curves ...[]domain.EquityRow) error

	// DeleteStrategy removes every summary row of a rule-based strategy.
	DeleteStrategy(ctx context.Context, strategyID string) error
}

// ResultReader reads recorded results back for reporting.
type ResultReader interface {
	// ListSummaries returns every strategy and model summary.
	ListSummaries(ctx context.Context) ([]domain.SummaryMetrics, error)

	// ReadEquity returns the curve of strategyID for ticker ordered by date.
	ReadEquity(ctx context.Context, strategyID, ticker string) ([]domain.EquityRow, error)

	// ReadPredictions returns the predictions of modelID for ticker.
	ReadPredictions(ctx context.Context, modelID, ticker string) ([]domain.PredictionRow, error)
}
