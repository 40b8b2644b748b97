// Package features derives the per-date indicator table from a ticker's
// price history. Warm-up entries are left undefined (NaN) rather than
// zero so that downstream generators can tell "no history yet" apart from
// a genuine value.
package features

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"marketpulse/internal/domain"
	"marketpulse/internal/series"
	"marketpulse/internal/util"
)

// Indicator windows.
const (
	WindowFast       = 20
	WindowSlow       = 50
	WindowVolatility = 20
	PeriodRSI        = 14
	WindowSentiment  = 3
)

// Compute returns one FeatureRow per price. sentiment maps UTC days to the
// average headline sentiment of that day and may be nil; days without a
// score leave avg_sentiment undefined.
func Compute(prices []domain.PricePoint, sentiment map[time.Time]float64) ([]domain.FeatureRow, error) {
	if err := series.ValidateDated(prices); err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	n := len(prices)
	closes := make([]float64, n)
	for i, p := range prices {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			return nil, fmt.Errorf("features: %s %s: close %v: %w",
				p.Ticker, p.Date.Format(time.DateOnly), p.Close, domain.ErrInvalidInput)
		}
		closes[i] = p.Close
	}

	ret := series.PctChange(closes, 1)
	ma20 := SMA(closes, WindowFast)
	ma50 := SMA(closes, WindowSlow)
	vol := RollingStd(ret, WindowVolatility)
	rsi := RSI(closes, PeriodRSI)

	sent := make([]float64, n)
	for i, p := range prices {
		v, ok := sentiment[util.Day(p.Date)]
		if !ok {
			v = math.NaN()
		}
		sent[i] = v
	}
	sent3 := series.FillNaN(series.RollingMean(sent, WindowSentiment), 0)

	rows := make([]domain.FeatureRow, n)
	for i, p := range prices {
		rows[i] = domain.FeatureRow{
			Ticker: p.Ticker,
			Date:   p.Date,
			Values: map[string]float64{
				domain.ColReturn1D:     ret[i],
				domain.ColMA20:         ma20[i],
				domain.ColMA50:         ma50[i],
				domain.ColVolatility20: vol[i],
				domain.ColRSI14:        rsi[i],
				domain.ColSentiment:    sent[i],
				domain.ColSentiment3D:  sent3[i],
			},
		}
	}
	return rows, nil
}

// SMA is the simple moving average over period closes; the first period-1
// entries are NaN.
func SMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nanSlice(len(values))
	}
	return maskWarmup(talib.Sma(values, period), period-1)
}

// RSI is Wilder's relative strength index; the first period entries are
// NaN.
func RSI(values []float64, period int) []float64 {
	if period < 2 || len(values) <= period {
		return nanSlice(len(values))
	}
	return maskWarmup(talib.Rsi(values, period), period)
}

// RollingStd is the trailing sample standard deviation over window
// entries. An entry is NaN until the window is full or whenever the window
// holds an undefined value.
func RollingStd(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window < 2 {
		return out
	}
next:
	for i := window - 1; i < len(values); i++ {
		w := values[i-window+1 : i+1]
		for _, v := range w {
			if math.IsNaN(v) {
				continue next
			}
		}
		out[i] = stat.StdDev(w, nil)
	}
	return out
}

// ForwardUp labels each date 1 when the close horizon periods later is above
// today's close and 0 otherwise. The last horizon dates have no future
// close and are NaN; they must never be used for training.
func ForwardUp(closes []float64, horizon int) []float64 {
	fwd := series.Shift(series.PctChange(closes, horizon), -horizon)
	out := make([]float64, len(closes))
	for i, r := range fwd {
		switch {
		case math.IsNaN(r):
			out[i] = math.NaN()
		case r > 0:
			out[i] = 1
		default:
			out[i] = 0
		}
	}
	return out
}

func maskWarmup(values []float64, warmup int) []float64 {
	for i := 0; i < warmup && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
