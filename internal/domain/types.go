// Package domain defines the value types shared by the evaluation engine,
// the stores, and the batch jobs.
package domain

import (
	"math"
	"time"
)

// PricePoint is one daily observation for a ticker. Only Close is required
// by the engine; the remaining fields are carried through from ingestion.
type PricePoint struct {
	Ticker string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// FeatureRow holds the named numeric features for a ticker on one date. A
// feature that is absent from Values or stored as NaN is undefined.
type FeatureRow struct {
	Ticker string
	Date   time.Time
	Values map[string]float64
}

// Get returns the named feature and whether it is defined.
func (r FeatureRow) Get(name string) (float64, bool) {
	v, ok := r.Values[name]
	if !ok || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

// Day returns the row date. It lets FeatureRow satisfy Dated.
func (r FeatureRow) Day() time.Time { return r.Date }

// Day returns the observation date. It lets PricePoint satisfy Dated.
func (p PricePoint) Day() time.Time { return p.Date }

// Dated is implemented by anything that sits on a daily time index.
type Dated interface {
	Day() time.Time
}

// SummaryMetrics is the one-row summary of a (strategy, ticker) evaluation
// window.
type SummaryMetrics struct {
	StrategyID       string
	Ticker           string
	StartDate        time.Time
	EndDate          time.Time
	CumulativeReturn float64
	Sharpe           float64
	MaxDrawdown      float64
}

// EquityRow is one point of an equity curve together with the return that
// produced it.
type EquityRow struct {
	StrategyID string
	Ticker     string
	Date       time.Time
	Equity     float64
	Return     float64
}

// PredictionRow is the classifier output for one test-set date.
type PredictionRow struct {
	ModelID       string
	Ticker        string
	Date          time.Time
	ProbabilityUp float64
	Signal        int
}

// Suffixes appended to a strategy or model ID to name its curves.
const (
	SuffixStrategy   = "_STRAT"
	SuffixBuyAndHold = "_BUY_HOLD"
)

// Well-known feature column names.
const (
	ColReturn1D     = "ret_1d"
	ColMA20         = "ma_20"
	ColMA50         = "ma_50"
	ColVolatility20 = "volatility_20"
	ColRSI14        = "rsi_14"
	ColSentiment    = "avg_sentiment"
	ColSentiment3D  = "sentiment_3d"
	ColProbUp       = "probability_up"
	ColLabelUp5D    = "y_up_5d"
)
